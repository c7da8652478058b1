package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadsync/internal/database"
	"leadsync/internal/models"
)

func TestRecordAndTrace(t *testing.T) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	trail := NewTrail(db, zerolog.Nop())
	ctx := context.Background()

	trail.Record(ctx, "trace-1", models.StepReceived, "ok", "source=chat")
	trail.Record(ctx, "trace-1", models.StepNormalized, "ok", "")
	trail.Record(ctx, "trace-1", models.StepCompleted, "ok", "row=12")
	trail.Record(ctx, "trace-2", models.StepReceived, "ok", "")

	steps, err := trail.Trace(ctx, "trace-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, models.StepReceived, steps[0].Step)
	assert.Equal(t, models.StepCompleted, steps[2].Step)
	assert.Equal(t, 3, steps[2].Seq)
}

func TestRecordIgnoresEmptyTrace(t *testing.T) {
	trail := NewTrail(failingStore{}, zerolog.Nop())
	// Must not reach the failing store at all.
	trail.Record(context.Background(), "", models.StepReceived, "ok", "")
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	trail := NewTrail(failingStore{}, zerolog.Nop())
	trail.Record(context.Background(), "trace-1", models.StepReceived, "ok", "")
}

type failingStore struct{}

func (failingStore) AppendAuditStep(context.Context, *models.AuditStep) error {
	return errors.New("disk full")
}

func (failingStore) GetTrace(context.Context, string) ([]models.AuditStep, error) {
	return nil, errors.New("disk full")
}
