// Package domain holds the interfaces the packages of this service meet in,
// so the dispatcher, guards and stores can be wired and tested independently.
package domain

import (
	"context"
	"time"

	"leadsync/internal/models"
)

// GuardRepository backs the dedup and throttle windows.
type GuardRepository interface {
	// MarkSeen records key for the window and reports whether this was the
	// first occurrence inside it.
	MarkSeen(ctx context.Context, key string, window time.Duration) (bool, error)
	// CountHit bumps the fixed-window counter for key and returns the count.
	CountHit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// TenantSource lists the tenants the resolver caches.
type TenantSource interface {
	ListActiveTenants(ctx context.Context) ([]*models.Tenant, error)
	// GetTenantByID loads one tenant regardless of its active flag, for jobs
	// queued before a tenant was deactivated.
	GetTenantByID(ctx context.Context, id int64) (*models.Tenant, error)
}

// JobStore persists dispatcher jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetDueJobs(ctx context.Context, lane string, limit int) ([]models.Job, error)
	GetJobByID(ctx context.Context, id int64) (*models.Job, error)
	GetFailedJobs(ctx context.Context) ([]models.Job, error)
	// ClaimJob atomically takes ownership of a due pending/retry job; false
	// means another worker got there first.
	ClaimJob(ctx context.Context, id int64) (bool, error)
	// ReclaimStale returns jobs claimed before the cutoff to pending.
	ReclaimStale(ctx context.Context, before time.Time) (int64, error)
	UpdateJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	RequeueJob(ctx context.Context, id int64) error
}

// AuditSink appends processing steps for a trace. Implementations are
// best-effort: they log their own failures and never return them.
type AuditSink interface {
	Record(ctx context.Context, traceID, step, status, detail string)
}

// LeadStore is the column-mapped tabular store.
type LeadStore interface {
	// AppendLead writes a new lead row at the next empty row of the
	// tenant's current sheet.
	AppendLead(ctx context.Context, tenant *models.Tenant, lead *models.LeadRow) error
	// UpdateLead locates the row for phone and updates only the given
	// logical fields.
	UpdateLead(ctx context.Context, tenant *models.Tenant, phone string, fields map[string]string) error
	// InvalidateMapping drops the cached column mapping for the tenant.
	InvalidateMapping(tenant *models.Tenant)
}

// Alerter posts operator-visible failure notifications, rate-limited and
// best-effort.
type Alerter interface {
	Notify(text string)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}
