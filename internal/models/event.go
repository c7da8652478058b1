package models

import (
	"encoding/json"
	"time"
)

// Event kinds as reported (or inferred) from the source payload.
const (
	KindCreate = "create"
	KindUpdate = "update"
)

// Source tags for the two inbound integrations.
const (
	SourceChat     = "chat"
	SourcePipeline = "pipeline"
)

// CanonicalEvent is the normalized, source-agnostic representation of a
// lead-lifecycle occurrence. It is built once per inbound delivery and never
// mutated afterwards; RawPayload keeps the original body for audit.
type CanonicalEvent struct {
	TraceID      string          `json:"trace_id"`
	Source       string          `json:"source"`
	TenantHint   string          `json:"tenant_hint"`
	Phone        string          `json:"phone"`
	DisplayName  string          `json:"display_name"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Kind         string          `json:"kind"`
	KindExplicit bool            `json:"kind_explicit"`
	StatusLabel  string          `json:"status_label"`
	StatusID     string          `json:"status_id,omitempty"`
	SaleAmount   float64         `json:"sale_amount,omitempty"`
	Campaign     string          `json:"campaign,omitempty"`
	Message      string          `json:"message,omitempty"`
	LeadSource   string          `json:"lead_source,omitempty"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
}

// HasSale reports whether the event carries a positive sale amount.
func (e *CanonicalEvent) HasSale() bool {
	return e.SaleAmount > 0
}
