package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for campaignd
type Metrics struct {
	// Job counters
	JobsStartedTotal   *prometheus.CounterVec
	JobsCompletedTotal *prometheus.CounterVec

	// Dispatch counters
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec

	// Report counters
	ReportEventsTotal       *prometheus.CounterVec
	ReportLinesSkippedTotal prometheus.Counter
	ReportObjectsTotal      prometheus.Counter

	// Registry gauge
	RegistryJobs prometheus.Gauge

	// HTTP API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_jobs_started_total",
				Help: "Total number of background jobs started",
			},
			[]string{"type"},
		),
		JobsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_jobs_completed_total",
				Help: "Total number of background jobs finished, by terminal status",
			},
			[]string{"type", "status"},
		),
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_messages_sent_total",
				Help: "Total number of messages accepted by a provider",
			},
			[]string{"provider"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_messages_failed_total",
				Help: "Total number of messages a provider rejected or that failed to send",
			},
			[]string{"provider"},
		),
		ReportEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_report_events_total",
				Help: "Total number of delivery events parsed during reconciliation",
			},
			[]string{"kind"},
		),
		ReportLinesSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignd_report_lines_skipped_total",
				Help: "Total number of malformed or incomplete event log lines skipped",
			},
		),
		ReportObjectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignd_report_objects_total",
				Help: "Total number of event log objects fetched from storage",
			},
		),
		RegistryJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignd_registry_jobs",
				Help: "Number of jobs currently held in the registry",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_api_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignd_api_request_duration_seconds",
				Help:    "HTTP API request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignd_api_errors_total",
				Help: "Total number of HTTP API error responses, by category",
			},
			[]string{"type"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.JobsStartedTotal,
		m.JobsCompletedTotal,
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.ReportEventsTotal,
		m.ReportLinesSkippedTotal,
		m.ReportObjectsTotal,
		m.RegistryJobs,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
