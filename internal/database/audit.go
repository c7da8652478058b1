package database

import (
	"context"
	"fmt"
	"time"

	"leadsync/internal/models"
)

// AppendAuditStep appends one step record for a trace. Sequence numbers are
// assigned from the current maximum so readers can order steps even when
// timestamps collide.
func (db *DB) AppendAuditStep(ctx context.Context, step *models.AuditStep) error {
	query := `INSERT INTO audit_trail (trace_id, seq, step, status, detail, created_at)
              SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
              FROM audit_trail WHERE trace_id = ?`
	now := time.Now()
	res, err := db.ExecContext(ctx, query,
		step.TraceID, step.Step, step.Status, step.Detail, now, step.TraceID,
	)
	if err != nil {
		return fmt.Errorf("append audit step: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit insert id: %w", err)
	}
	step.ID = id
	step.CreatedAt = now
	return nil
}

// GetTrace returns all steps of one trace in sequence order.
func (db *DB) GetTrace(ctx context.Context, traceID string) ([]models.AuditStep, error) {
	query := `SELECT id, trace_id, seq, step, status, detail, created_at
              FROM audit_trail WHERE trace_id = ? ORDER BY seq ASC`
	rows, err := db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	defer rows.Close()

	var steps []models.AuditStep
	for rows.Next() {
		var s models.AuditStep
		var detail *string
		if err := rows.Scan(&s.ID, &s.TraceID, &s.Seq, &s.Step, &s.Status, &detail, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit step: %w", err)
		}
		if detail != nil {
			s.Detail = *detail
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
