package database

import (
	"context"
	"testing"
	"time"

	"leadsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTenantUpsertAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{
		Name:          "Clinica Sorriso",
		Bindings:      models.SourceBindings{InstanceID: "inst-42", PipelineID: "777"},
		SpreadsheetID: "sheet-abc",
		SheetMode:     models.SheetModeAutoMonthly,
		Flags:         models.FeatureFlags{DetectProduct: true, WriteStatus: true},
		IsActive:      true,
	}
	require.NoError(t, db.UpsertTenant(ctx, tenant))
	require.NotZero(t, tenant.ID)

	tenants, err := db.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "inst-42", tenants[0].Bindings.InstanceID)
	assert.Equal(t, "777", tenants[0].Bindings.PipelineID)

	tenant.IsActive = false
	require.NoError(t, db.UpsertTenant(ctx, tenant))

	tenants, err = db.ListActiveTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestGetTenantByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetTenantByID(context.Background(), 99)
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestJobLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	job := &models.Job{
		Lane:     models.SourceChat,
		TraceID:  "trace-1",
		TenantID: 1,
		Payload:  `{"phone":"5511992083378"}`,
		Status:   models.JobPending,
	}
	require.NoError(t, db.CreateJob(ctx, job))
	require.NotZero(t, job.ID)

	due, err := db.GetDueJobs(ctx, models.SourceChat, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// A retry scheduled in the future is not due.
	next := time.Now().Add(time.Minute)
	require.NoError(t, db.UpdateJobStatus(ctx, job.ID, models.JobRetry, "boom", &next))

	due, err = db.GetDueJobs(ctx, models.SourceChat, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	got, err := db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	require.NoError(t, db.UpdateJobStatus(ctx, job.ID, models.JobFailed, "exhausted", nil))

	failed, err := db.GetFailedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)

	require.NoError(t, db.RequeueJob(ctx, job.ID))
	got, err = db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Zero(t, got.RetryCount)
}

func TestRequeueOnlyFailedJobs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	job := &models.Job{Lane: models.SourcePipeline, TraceID: "t", TenantID: 1, Payload: "{}", Status: models.JobPending}
	require.NoError(t, db.CreateJob(ctx, job))

	err := db.RequeueJob(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestAuditTrailOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, step := range []string{models.StepReceived, models.StepNormalized, models.StepEnqueued} {
		require.NoError(t, db.AppendAuditStep(ctx, &models.AuditStep{
			TraceID: "trace-9",
			Step:    step,
			Status:  "ok",
		}))
	}

	steps, err := db.GetTrace(ctx, "trace-9")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Seq)
	}
	assert.Equal(t, models.StepReceived, steps[0].Step)
	assert.Equal(t, models.StepEnqueued, steps[2].Step)
}
