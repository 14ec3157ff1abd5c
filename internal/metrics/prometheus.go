package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio ingest service
type Metrics struct {
	// Batch metrics
	BatchesReceived prometheus.Counter
	BatchesRejected *prometheus.CounterVec
	BatchesFailed   prometheus.Counter
	BatchSize       prometheus.Histogram

	// Per-file metrics
	FilesProcessed prometheus.Counter
	FilesSkipped   *prometheus.CounterVec
	AudioDuration  prometheus.Histogram

	// Storage metrics
	StoreDuration prometheus.Histogram

	// Event publishing metrics
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BatchesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_ingest_batches_received_total",
			Help: "Total number of audio batches received",
		}),
		BatchesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_ingest_batches_rejected_total",
			Help: "Total number of batches rejected by validation",
		}, []string{"reason"}),
		BatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_ingest_batches_failed_total",
			Help: "Total number of batches aborted by an unavailable store",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_ingest_batch_files",
			Help:    "Number of files per received batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512 files
		}),

		FilesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_ingest_files_processed_total",
			Help: "Total number of files decoded and stored",
		}),
		FilesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_ingest_files_skipped_total",
			Help: "Total number of files skipped within accepted batches",
		}, []string{"stage"}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_ingest_file_duration_seconds",
			Help:    "Duration of stored audio files",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),

		StoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_ingest_store_duration_seconds",
			Help:    "Time spent writing one metadata record",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),

		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_ingest_events_published_total",
			Help: "Total number of batch events published",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_ingest_events_dropped_total",
			Help: "Total number of batch events dropped or failed",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_ingest_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audio_ingest_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_ingest_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordBatchReceived counts a batch and observes its file count
func (m *Metrics) RecordBatchReceived(files int) {
	m.BatchesReceived.Inc()
	m.BatchSize.Observe(float64(files))
}

// RecordBatchRejected counts a validation rejection
func (m *Metrics) RecordBatchRejected(reason string) {
	m.BatchesRejected.WithLabelValues(reason).Inc()
}

// RecordBatchFailed counts a batch aborted by a systemic storage failure
func (m *Metrics) RecordBatchFailed() {
	m.BatchesFailed.Inc()
}

// RecordFileProcessed records a stored file and its duration
func (m *Metrics) RecordFileProcessed(durationSeconds float64) {
	m.FilesProcessed.Inc()
	m.AudioDuration.Observe(durationSeconds)
}

// RecordFileSkipped counts a file skipped at the given stage
func (m *Metrics) RecordFileSkipped(stage string) {
	m.FilesSkipped.WithLabelValues(stage).Inc()
}

// RecordStore observes the latency of one store call
func (m *Metrics) RecordStore(durationSeconds float64) {
	m.StoreDuration.Observe(durationSeconds)
}

// RecordEventPublished increments the published events counter
func (m *Metrics) RecordEventPublished() {
	m.EventsPublished.Inc()
}

// RecordEventDropped increments the dropped events counter
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
