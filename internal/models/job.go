package models

import "time"

// Job statuses in the jobs table.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobRetry      = "retry"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job is the unit the dispatcher schedules: one accepted canonical event on
// one source lane. Owned exclusively by the queue until a worker claims it.
type Job struct {
	ID          int64      `json:"id"`
	Lane        string     `json:"lane"`
	TraceID     string     `json:"trace_id"`
	TenantID    int64      `json:"tenant_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
