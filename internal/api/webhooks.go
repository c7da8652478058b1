package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"leadsync/internal/metrics"
	"leadsync/internal/models"
	"leadsync/internal/normalizer"
	"leadsync/internal/tenant"
)

// handleChatWebhook ingests chat CRM events, both the legacy flat shape and
// the live nested one.
func (s *HTTPServer) handleChatWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("webhook_chat")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	traceID := uuid.NewString()
	s.sink.Record(r.Context(), traceID, models.StepReceived, "ok", "source="+models.SourceChat)

	if !s.guard.AllowIP(r.Context(), clientIP(r)) {
		metrics.IncEventRejected(models.SourceChat, "ip_throttled")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	ev, err := normalizer.Chat(body)
	if err != nil {
		metrics.IncEventRejected(models.SourceChat, "invalid_payload")
		s.sink.Record(r.Context(), traceID, models.StepFailed, "error", "normalize: "+err.Error())
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s.ingest(w, r, traceID, ev)
}

// handlePipelineWebhook ingests pipeline CRM events: form-encoded bodies with
// bracketed keys, authenticated by an HMAC-SHA1 signature over the raw body.
func (s *HTTPServer) handlePipelineWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("webhook_pipeline")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	if secret := s.cfg.Webhooks.PipelineSecret; secret != "" {
		if !validSignature(body, r.Header.Get("X-Signature"), secret) {
			metrics.IncEventRejected(models.SourcePipeline, "bad_signature")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	traceID := uuid.NewString()
	s.sink.Record(r.Context(), traceID, models.StepReceived, "ok", "source="+models.SourcePipeline)

	if !s.guard.AllowIP(r.Context(), clientIP(r)) {
		metrics.IncEventRejected(models.SourcePipeline, "ip_throttled")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		metrics.IncEventRejected(models.SourcePipeline, "invalid_payload")
		s.sink.Record(r.Context(), traceID, models.StepFailed, "error", "parse form: "+err.Error())
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	ev, err := normalizer.Pipeline(form)
	if err != nil {
		metrics.IncEventRejected(models.SourcePipeline, "invalid_payload")
		s.sink.Record(r.Context(), traceID, models.StepFailed, "error", "normalize: "+err.Error())
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s.ingest(w, r, traceID, ev)
}

// ingest runs the shared tail of both webhooks: tenant resolution, the guard
// windows, and dispatch. Unknown tenants and duplicates answer 200 so the CRM
// does not retry them forever.
func (s *HTTPServer) ingest(w http.ResponseWriter, r *http.Request, traceID string, ev *models.CanonicalEvent) {
	ctx := r.Context()
	ev.TraceID = traceID
	s.sink.Record(ctx, traceID, models.StepNormalized, "ok",
		"kind="+ev.Kind+" phone_tail="+normalizer.PhoneTail(ev.Phone))

	tn, err := s.tenants.Resolve(ctx, ev.Source, ev.TenantHint)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			metrics.IncEventRejected(ev.Source, "no_tenant")
			s.sink.Record(ctx, traceID, models.StepNoClient, "skipped", "binding="+ev.TenantHint)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "trace_id": traceID})
			return
		}
		writeError(w, http.StatusInternalServerError, "tenant lookup failed")
		return
	}

	if !s.guard.AllowEvent(ctx, tn.ID, ev.Phone, ev.Kind) {
		metrics.IncEventRejected(ev.Source, "duplicate")
		s.sink.Record(ctx, traceID, models.StepDeduped, "skipped", "")
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "trace_id": traceID})
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode event")
		return
	}

	job := &models.Job{
		Lane:     ev.Source,
		TraceID:  traceID,
		TenantID: tn.ID,
		Payload:  string(payload),
	}
	if err := s.dispatcher.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Msg("enqueue failed")
		s.sink.Record(ctx, traceID, models.StepFailed, "error", "enqueue: "+err.Error())
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	metrics.IncEventReceived(ev.Source)
	s.sink.Record(ctx, traceID, models.StepEnqueued, "ok", "")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"trace_id": traceID,
		"job_id":   job.ID,
	})
}

func (s *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.Webhooks.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return nil, false
	}
	return body, true
}

func validSignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
