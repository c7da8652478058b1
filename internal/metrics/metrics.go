package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "events_received_total",
			Help:      "Webhook events accepted per source.",
		},
		[]string{"source"},
	)

	eventsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "events_rejected_total",
			Help:      "Webhook events dropped before dispatch, by reason.",
		},
		[]string{"source", "reason"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "jobs_processed_total",
			Help:      "Dispatcher jobs by lane and final status.",
		},
		[]string{"lane", "status"},
	)

	jobRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "job_retries_total",
			Help:      "Retry attempts scheduled per lane.",
		},
		[]string{"lane"},
	)

	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "dead_letter_total",
			Help:      "Jobs parked in the dead-letter queue per lane.",
		},
		[]string{"lane"},
	)

	leadEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "lead_events_total",
			Help:      "Domain events published on the in-process bus.",
		},
		[]string{"type"},
	)

	sheetOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadsync",
			Name:      "sheet_operations_total",
			Help:      "Spreadsheet writes by operation and outcome.",
		},
		[]string{"operation", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			eventsReceived,
			eventsRejected,
			jobsProcessed,
			jobRetries,
			deadLetters,
			leadEvents,
			sheetOps,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncEventReceived(source string) {
	eventsReceived.WithLabelValues(source).Inc()
}

func IncEventRejected(source, reason string) {
	eventsRejected.WithLabelValues(source, reason).Inc()
}

func IncJobProcessed(lane, status string) {
	jobsProcessed.WithLabelValues(lane, status).Inc()
}

func IncJobRetry(lane string) {
	jobRetries.WithLabelValues(lane).Inc()
}

func IncDeadLetter(lane string) {
	deadLetters.WithLabelValues(lane).Inc()
}

func IncLeadEvent(eventType string) {
	leadEvents.WithLabelValues(eventType).Inc()
}

func IncSheetOp(operation, status string) {
	sheetOps.WithLabelValues(operation, status).Inc()
}
