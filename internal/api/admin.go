package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"leadsync/internal/database"
	"leadsync/internal/metrics"
	"leadsync/internal/models"
)

func (s *HTTPServer) handleDeadLetterList(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_deadletter")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobs, err := s.jobs.GetFailedJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed jobs")
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleRetryOne serves POST /api/v1/deadletter/{id}/retry.
func (s *HTTPServer) handleRetryOne(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_deadletter_retry")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/deadletter/")
	idPart, ok := strings.CutSuffix(rest, "/retry")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := s.dispatcher.RetryJob(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found or not failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "requeued", "job_id": id})
}

func (s *HTTPServer) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_deadletter_retry_all")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := s.dispatcher.RetryAllFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retry all failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "requeued", "count": n})
}

// handleAuditTrace serves GET /api/v1/audit/{trace_id}: the ordered steps
// plus any jobs the trace produced.
func (s *HTTPServer) handleAuditTrace(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_audit")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	traceID := strings.TrimPrefix(r.URL.Path, "/api/v1/audit/")
	if traceID == "" || strings.Contains(traceID, "/") {
		writeError(w, http.StatusBadRequest, "trace id is required")
		return
	}

	steps, err := s.audit.Trace(r.Context(), traceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load trace")
		return
	}
	if len(steps) == 0 {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}

	jobs, err := s.jobs.GetJobsByTrace(r.Context(), traceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load trace jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id": traceID,
		"steps":    steps,
		"jobs":     jobs,
	})
}

// handleTenantsRefresh drops the tenant cache. With a tenant_id it also drops
// that tenant's cached column mappings, for when an operator reshuffled the
// spreadsheet and cannot wait out the mapping TTL.
func (s *HTTPServer) handleTenantsRefresh(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_tenants_refresh")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.tenants.Invalidate()

	if idStr := r.URL.Query().Get("tenant_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		tn, err := s.tenants.ByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.mappings.InvalidateMapping(tn)
		writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed", "tenant_id": id})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *HTTPServer) handleExportDeadLetter(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("admin_export")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobs, err := s.jobs.GetFailedJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed jobs")
		return
	}

	trails := make(map[string][]models.AuditStep, len(jobs))
	for _, job := range jobs {
		if _, ok := trails[job.TraceID]; ok {
			continue
		}
		steps, err := s.audit.Trace(r.Context(), job.TraceID)
		if err != nil {
			s.logger.Warn().Err(err).Str("trace_id", job.TraceID).Msg("trail skipped in export")
			continue
		}
		trails[job.TraceID] = steps
	}

	path, err := s.exporter.DeadLetters(jobs, trails)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "exported", "path": path, "jobs": len(jobs)})
}
