package models

import "time"

// Audit step names in processing order.
const (
	StepReceived   = "received"
	StepNormalized = "normalized"
	StepNoClient   = "no_client"
	StepDeduped    = "deduped"
	StepEnqueued   = "enqueued"
	StepClassified = "classified"
	StepOrganic    = "organic_skipped"
	StepSheetWrite = "sheet_write"
	StepCompleted  = "completed"
	StepFailed     = "failed"
	StepDeadLetter = "dead_letter"
)

// AuditStep is one append-only processing record keyed by the per-event trace
// identifier and ordered by sequence.
type AuditStep struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id"`
	Seq       int       `json:"seq"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
