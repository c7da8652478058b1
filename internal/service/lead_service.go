// Package service turns dispatched jobs into spreadsheet writes: it decodes
// the stored canonical event, classifies it, applies tenant flags and drives
// the lead store.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leadsync/internal/classifier"
	"leadsync/internal/dispatcher"
	"leadsync/internal/domain"
	"leadsync/internal/events"
	"leadsync/internal/metrics"
	"leadsync/internal/models"
	"leadsync/internal/normalizer"
	"leadsync/internal/sheets"
	"leadsync/internal/tenant"
)

// maxCommentLen keeps free-text messages from blowing up the comments cell.
const maxCommentLen = 500

// TenantLookup resolves the tenant a stored job belongs to.
type TenantLookup interface {
	ByID(ctx context.Context, id int64) (*models.Tenant, error)
}

type LeadService struct {
	tenants TenantLookup
	store   domain.LeadStore
	audit   domain.AuditSink
	events  domain.EventPublisher
	logger  zerolog.Logger
}

func NewLeadService(tenants TenantLookup, store domain.LeadStore, auditSink domain.AuditSink, bus domain.EventPublisher, logger zerolog.Logger) *LeadService {
	return &LeadService{
		tenants: tenants,
		store:   store,
		audit:   auditSink,
		events:  bus,
		logger:  logger.With().Str("component", "lead-service").Logger(),
	}
}

// Handle processes one job end to end. Errors it returns unwrapped are
// retryable; ErrNoRetry-wrapped ones go straight to the dead-letter queue.
func (s *LeadService) Handle(ctx context.Context, job *models.Job) error {
	var ev models.CanonicalEvent
	if err := json.Unmarshal([]byte(job.Payload), &ev); err != nil {
		s.audit.Record(ctx, job.TraceID, models.StepFailed, "error", "payload decode: "+err.Error())
		return fmt.Errorf("%w: decode payload: %v", dispatcher.ErrNoRetry, err)
	}

	tn, err := s.tenants.ByID(ctx, job.TenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			s.audit.Record(ctx, job.TraceID, models.StepFailed, "error", fmt.Sprintf("tenant %d gone", job.TenantID))
			return fmt.Errorf("%w: %v", dispatcher.ErrNoRetry, err)
		}
		return fmt.Errorf("resolve tenant: %w", err)
	}

	out := classifier.Classify(&ev)
	s.audit.Record(ctx, job.TraceID, models.StepClassified, "ok",
		fmt.Sprintf("kind=%s transition=%s product=%s", out.Kind, out.Transition, out.Product))

	if tn.Flags.PaidOnly && !out.Paid {
		s.audit.Record(ctx, job.TraceID, models.StepOrganic, "skipped", "source="+ev.LeadSource)
		s.logger.Info().
			Str("trace_id", job.TraceID).
			Int64("tenant_id", tn.ID).
			Str("lead_source", ev.LeadSource).
			Msg("organic lead skipped")
		return nil
	}

	if out.Kind == models.KindCreate {
		return s.createLead(ctx, job, tn, &ev, out)
	}
	return s.updateLead(ctx, job, tn, &ev, out)
}

func (s *LeadService) createLead(ctx context.Context, job *models.Job, tn *models.Tenant, ev *models.CanonicalEvent, out classifier.Outcome) error {
	fields := map[string]string{
		models.FieldName:         ev.DisplayName,
		models.FieldPhone:        normalizer.FormatPhone(ev.Phone),
		models.FieldChannel:      channelLabel(ev),
		models.FieldFirstContact: formatDate(ev.OccurredAt, tn.Location()),
		models.FieldComments:     truncate(ev.Message, maxCommentLen),
	}
	if fields[models.FieldName] == "" {
		fields[models.FieldName] = normalizer.FormatPhone(ev.Phone)
	}
	if tn.Flags.DetectProduct && out.Product != "" {
		fields[models.FieldProduct] = out.Product
	}
	if tn.Flags.WriteStatus {
		fields[models.FieldStatus] = statusOrDefault(ev.StatusLabel)
	}

	err := s.store.AppendLead(ctx, tn, &models.LeadRow{Fields: fields})
	if err != nil {
		metrics.IncSheetOp("append", "error")
		s.audit.Record(ctx, job.TraceID, models.StepSheetWrite, "error", err.Error())
		return fmt.Errorf("append lead: %w", err)
	}
	metrics.IncSheetOp("append", "ok")
	s.audit.Record(ctx, job.TraceID, models.StepSheetWrite, "ok", "append")
	s.audit.Record(ctx, job.TraceID, models.StepCompleted, "ok", "")

	_ = s.events.PublishJSON(events.EventLeadCreated, events.LeadEventPayload{
		TraceID:    job.TraceID,
		TenantID:   tn.ID,
		Source:     ev.Source,
		PhoneTail:  normalizer.PhoneTail(ev.Phone),
		Product:    out.Product,
		OccurredAt: ev.OccurredAt,
	})
	return nil
}

func (s *LeadService) updateLead(ctx context.Context, job *models.Job, tn *models.Tenant, ev *models.CanonicalEvent, out classifier.Outcome) error {
	fields := map[string]string{}
	if tn.Flags.WriteStatus && ev.StatusLabel != "" {
		fields[models.FieldStatus] = ev.StatusLabel
	}

	switch out.Transition {
	case classifier.TransitionSale:
		fields[models.FieldCloseDate] = formatDate(ev.OccurredAt, tn.Location())
		if ev.SaleAmount > 0 {
			fields[models.FieldSaleValue] = formatMoney(ev.SaleAmount)
		}
		if fields[models.FieldStatus] == "" {
			fields[models.FieldStatus] = statusOrDefault(ev.StatusLabel)
		}
	case classifier.TransitionLoss:
		if fields[models.FieldStatus] == "" && ev.StatusLabel != "" {
			fields[models.FieldStatus] = ev.StatusLabel
		}
	}
	if ev.Message != "" {
		fields[models.FieldComments] = truncate(ev.Message, maxCommentLen)
	}
	if len(fields) == 0 {
		s.audit.Record(ctx, job.TraceID, models.StepCompleted, "ok", "nothing to write")
		return nil
	}

	err := s.store.UpdateLead(ctx, tn, ev.Phone, fields)
	if err != nil {
		if errors.Is(err, sheets.ErrRowNotFound) {
			// The row is gone or was never written; retrying cannot help.
			metrics.IncSheetOp("update", "not_found")
			s.audit.Record(ctx, job.TraceID, models.StepSheetWrite, "error", "row not found")
			return fmt.Errorf("%w: %v", dispatcher.ErrNoRetry, err)
		}
		metrics.IncSheetOp("update", "error")
		s.audit.Record(ctx, job.TraceID, models.StepSheetWrite, "error", err.Error())
		return fmt.Errorf("update lead: %w", err)
	}
	metrics.IncSheetOp("update", "ok")
	s.audit.Record(ctx, job.TraceID, models.StepSheetWrite, "ok", "update")
	s.audit.Record(ctx, job.TraceID, models.StepCompleted, "ok", "")

	eventType := events.EventLeadUpdated
	if out.Transition == classifier.TransitionSale {
		eventType = events.EventLeadSale
	}
	_ = s.events.PublishJSON(eventType, events.LeadEventPayload{
		TraceID:    job.TraceID,
		TenantID:   tn.ID,
		Source:     ev.Source,
		PhoneTail:  normalizer.PhoneTail(ev.Phone),
		Status:     ev.StatusLabel,
		SaleAmount: ev.SaleAmount,
		OccurredAt: ev.OccurredAt,
	})
	return nil
}

func channelLabel(ev *models.CanonicalEvent) string {
	if ev.Source == models.SourceChat {
		return "WhatsApp"
	}
	if ev.Campaign != "" {
		return ev.Campaign
	}
	return "CRM"
}

func statusOrDefault(label string) string {
	if label != "" {
		return label
	}
	return "Fez Contato"
}

func formatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.In(loc).Format("02/01/2006")
}

// formatMoney renders a pt-BR currency value like "R$ 1.500,00".
func formatMoney(v float64) string {
	raw := fmt.Sprintf("%.2f", v)
	dot := strings.IndexByte(raw, '.')
	intPart, decPart := raw[:dot], raw[dot+1:]

	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(ch)
	}
	return "R$ " + b.String() + "," + decPart
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
