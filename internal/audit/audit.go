// Package audit keeps the per-trace processing trail operators read when a
// lead goes missing. Recording is best-effort: a broken trail never blocks
// lead processing.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"leadsync/internal/models"
)

// Store is the persistence the trail writes through.
type Store interface {
	AppendAuditStep(ctx context.Context, step *models.AuditStep) error
	GetTrace(ctx context.Context, traceID string) ([]models.AuditStep, error)
}

type Trail struct {
	store  Store
	logger zerolog.Logger
}

func NewTrail(store Store, logger zerolog.Logger) *Trail {
	return &Trail{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record appends one step. Failures are logged and swallowed.
func (t *Trail) Record(ctx context.Context, traceID, step, status, detail string) {
	if traceID == "" {
		return
	}
	err := t.store.AppendAuditStep(ctx, &models.AuditStep{
		TraceID: traceID,
		Step:    step,
		Status:  status,
		Detail:  detail,
	})
	if err != nil {
		t.logger.Warn().
			Err(err).
			Str("trace_id", traceID).
			Str("step", step).
			Msg("audit step dropped")
	}
}

// Trace returns the ordered steps for one trace.
func (t *Trail) Trace(ctx context.Context, traceID string) ([]models.AuditStep, error) {
	return t.store.GetTrace(ctx, traceID)
}
