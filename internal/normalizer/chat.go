package normalizer

import (
	"encoding/json"
	"fmt"

	"leadsync/internal/models"

	"github.com/google/uuid"
)

// chatPayload covers both shapes the messaging CRM sends: the legacy flat
// shape (instanceId/moment/chatName at top level) and the live shape with a
// nested account and status. Decoding both into one struct and resolving by
// priority keeps downstream code shape-agnostic.
type chatPayload struct {
	// Legacy flat shape.
	InstanceID string `json:"instanceId"`
	Moment     string `json:"moment"`
	ChatName   string `json:"chatName"`
	SenderName string `json:"senderName"`

	// Live shape.
	Account struct {
		Code string `json:"code"`
		ID   string `json:"id"`
	} `json:"account"`
	CreatedISO string `json:"created_isoformat"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"status"`
	SaleAmount json.Number `json:"sale_amount"`

	// Shared.
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	Campaign string `json:"campaign"`
}

// Chat normalizes a messaging-CRM delivery. The raw body is kept verbatim on
// the event; only the derived copy is annotated.
func Chat(body []byte) (*models.CanonicalEvent, error) {
	var p chatPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: decode chat body: %v", ErrInvalidPayload, err)
	}

	hint := firstNonEmpty(p.InstanceID, p.Account.Code, p.Account.ID)
	phone := DigitsOnly(p.Phone)
	if phone == "" && hint == "" {
		return nil, fmt.Errorf("%w: phone and instance identifier both absent", ErrInvalidPayload)
	}

	ev := &models.CanonicalEvent{
		TraceID:     uuid.NewString(),
		Source:      models.SourceChat,
		TenantHint:  hint,
		Phone:       phone,
		DisplayName: firstNonEmpty(p.Name, p.ChatName, p.SenderName),
		OccurredAt:  parseWhen(firstNonEmpty(p.CreatedISO, p.Moment)),
		StatusLabel: p.Status.Name,
		StatusID:    p.Status.ID.String(),
		Campaign:    p.Campaign,
		Message:     p.Message,
		RawPayload:  json.RawMessage(body),
	}

	if v, err := p.SaleAmount.Float64(); err == nil {
		ev.SaleAmount = v
	}

	switch p.Type {
	case "lead_created", "created", "add":
		ev.Kind = models.KindCreate
		ev.KindExplicit = true
	case "lead_updated", "updated", "status_changed":
		ev.Kind = models.KindUpdate
		ev.KindExplicit = true
	default:
		// Legacy shape carries no marker; the classifier decides.
		ev.Kind = models.KindCreate
	}

	return ev, nil
}
