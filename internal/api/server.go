// Package api is the HTTP surface: the two CRM webhook endpoints and the
// operator admin API over the dead-letter queue, audit trail and tenant cache.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"leadsync/internal/config"
	"leadsync/internal/models"
)

// Dispatcher is the queue surface the handlers drive.
type Dispatcher interface {
	Enqueue(ctx context.Context, job *models.Job) error
	RetryJob(ctx context.Context, id int64) error
	RetryAllFailed(ctx context.Context) (int, error)
}

// TenantResolver maps source bindings to tenants.
type TenantResolver interface {
	Resolve(ctx context.Context, source, binding string) (*models.Tenant, error)
	ByID(ctx context.Context, id int64) (*models.Tenant, error)
	Invalidate()
}

// LeadMappings is the sheet mapping cache control the admin surface uses
// after an operator restructures a spreadsheet.
type LeadMappings interface {
	InvalidateMapping(tenant *models.Tenant)
}

// EventGuard applies the dedup and per-IP windows.
type EventGuard interface {
	AllowEvent(ctx context.Context, tenantID int64, phone, kind string) bool
	AllowIP(ctx context.Context, ip string) bool
}

// JobReader serves the admin read endpoints.
type JobReader interface {
	GetFailedJobs(ctx context.Context) ([]models.Job, error)
	GetJobsByTrace(ctx context.Context, traceID string) ([]models.Job, error)
}

// AuditReader returns the ordered steps of one trace.
type AuditReader interface {
	Trace(ctx context.Context, traceID string) ([]models.AuditStep, error)
}

// Exporter writes the dead-letter workbook and returns its path.
type Exporter interface {
	DeadLetters(jobs []models.Job, trails map[string][]models.AuditStep) (string, error)
}

// AuditSink mirrors domain.AuditSink for the ingestion path.
type AuditSink interface {
	Record(ctx context.Context, traceID, step, status, detail string)
}

type HTTPServer struct {
	cfg        *config.Config
	dispatcher Dispatcher
	tenants    TenantResolver
	mappings   LeadMappings
	guard      EventGuard
	jobs       JobReader
	audit      AuditReader
	sink       AuditSink
	exporter   Exporter
	logger     zerolog.Logger
	server     *http.Server
}

func NewHTTPServer(
	cfg *config.Config,
	dispatcher Dispatcher,
	tenants TenantResolver,
	mappings LeadMappings,
	eventGuard EventGuard,
	jobs JobReader,
	auditReader AuditReader,
	sink AuditSink,
	exporter Exporter,
	logger zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:        cfg,
		dispatcher: dispatcher,
		tenants:    tenants,
		mappings:   mappings,
		guard:      eventGuard,
		jobs:       jobs,
		audit:      auditReader,
		sink:       sink,
		exporter:   exporter,
		logger:     logger.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/chat", srv.handleChatWebhook)
	mux.HandleFunc("/webhook/pipeline", srv.handlePipelineWebhook)
	mux.HandleFunc("/healthz", srv.handleHealthz)
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	admin := http.NewServeMux()
	admin.HandleFunc("/api/v1/deadletter", srv.handleDeadLetterList)
	admin.HandleFunc("/api/v1/deadletter/retry-all", srv.handleRetryAll)
	admin.HandleFunc("/api/v1/deadletter/", srv.handleRetryOne)
	admin.HandleFunc("/api/v1/audit/", srv.handleAuditTrace)
	admin.HandleFunc("/api/v1/tenants/refresh", srv.handleTenantsRefresh)
	admin.HandleFunc("/api/v1/export/deadletter", srv.handleExportDeadLetter)
	mux.Handle("/api/v1/", NewHTTPAuth(cfg.Admin).Wrap(admin))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return firstCSV(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func firstCSV(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ',' {
			return raw[:i]
		}
	}
	return raw
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
