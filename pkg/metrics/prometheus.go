// Package metrics provides Prometheus metrics for the arena vote engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the engine exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Votes
	votesRecorded         *prometheus.CounterVec
	votesRejected         *prometheus.CounterVec
	ratingUpdateLatency   prometheus.Histogram
	ratingPersistFailures prometheus.Counter
	votedPairs            prometheus.Gauge

	// Remote store
	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec

	// Local store
	localOps *prometheus.CounterVec

	// Sync
	syncState     prometheus.Gauge
	syncSteps     *prometheus.CounterVec
	catalogSize   prometheus.Gauge
	catalogReload *prometheus.CounterVec
	changeEvents  prometheus.Counter

	// Change queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpThrottled       prometheus.Counter

	// Errors
	errorReports         *prometheus.CounterVec
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arena",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.votesRecorded = m.counterVec("votes_recorded_total", "Votes committed, by category", "category")
	m.votesRejected = m.counterVec("votes_rejected_total", "Votes rejected before commit, by reason", "reason")
	m.ratingUpdateLatency = m.histogram("rating_update_latency_milliseconds", "Time to compute and persist a rating update")
	m.ratingPersistFailures = m.counter("rating_persist_failures_total", "Rating updates applied locally but not persisted remotely")
	m.votedPairs = m.gauge("voted_pairs", "Pairs recorded in the local voted-pairs index")

	m.remoteCalls = m.counterVec("remote_calls_total", "Remote store calls by operation and outcome", "op", "outcome")
	m.remoteLatency = m.histogramVec("remote_call_latency_milliseconds", "Remote store call latency", "op")
	m.breakerState = m.gaugeVec("circuit_breaker_state", "Breaker state: 0 closed, 1 half-open, 2 open", "name")

	m.localOps = m.counterVec("local_store_ops_total", "Local state store operations by op and outcome", "op", "outcome")

	m.syncState = m.gauge("sync_state", "Coordinator state: 0 uninitialized, 1 syncing, 2 ready, 3 degraded")
	m.syncSteps = m.counterVec("sync_steps_total", "Sync steps by step and outcome", "step", "outcome")
	m.catalogSize = m.gauge("catalog_candidates", "Candidates in the in-memory catalog")
	m.catalogReload = m.counterVec("catalog_reloads_total", "Catalog reloads by source", "source")
	m.changeEvents = m.counter("change_events_total", "Candidate change notifications received")

	m.queueSize = m.gauge("queue_size", "Current size of the change queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum change queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Change queue utilization (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Change events enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Change events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Change events dropped on enqueue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time from enqueue to refresh")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.httpThrottled = m.counter("http_throttled_total", "HTTP requests rejected by the per-client throttle")

	m.errorReports = m.counterVec("error_reports_total", "User-facing error reports by title", "title")
	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

// RecordVote increments the committed vote counter for a category.
func RecordVote(category string) {
	globalManager.votesRecorded.WithLabelValues(category).Inc()
}

// RecordVoteRejected increments the rejected vote counter.
func RecordVoteRejected(reason string) {
	globalManager.votesRejected.WithLabelValues(reason).Inc()
}

// RecordRatingUpdateLatency records how long a rating update took.
func RecordRatingUpdateLatency(latencyMs float64) {
	globalManager.ratingUpdateLatency.Observe(latencyMs)
}

// RecordRatingPersistFailure counts a rating update that did not reach the remote store.
func RecordRatingPersistFailure() {
	globalManager.ratingPersistFailures.Inc()
}

// UpdateVotedPairs sets the voted-pairs gauge.
func UpdateVotedPairs(n int) {
	globalManager.votedPairs.Set(float64(n))
}

// RecordRemoteCall records one remote store call.
func RecordRemoteCall(op, outcome string, latencyMs float64) {
	globalManager.remoteCalls.WithLabelValues(op, outcome).Inc()
	globalManager.remoteLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateBreakerState sets the breaker state gauge.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordLocalOp records one local state store operation.
func RecordLocalOp(op, outcome string) {
	globalManager.localOps.WithLabelValues(op, outcome).Inc()
}

// UpdateSyncState sets the coordinator state gauge.
func UpdateSyncState(state int) {
	globalManager.syncState.Set(float64(state))
}

// RecordSyncStep records the outcome of one sync step.
func RecordSyncStep(step, outcome string) {
	globalManager.syncSteps.WithLabelValues(step, outcome).Inc()
}

// UpdateCatalogSize sets the catalog size gauge.
func UpdateCatalogSize(n int) {
	globalManager.catalogSize.Set(float64(n))
}

// RecordCatalogReload counts a catalog reload from source ("remote" or "bundled").
func RecordCatalogReload(source string) {
	globalManager.catalogReload.WithLabelValues(source).Inc()
}

// RecordChangeEvent counts a candidate change notification.
func RecordChangeEvent() {
	globalManager.changeEvents.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPThrottled counts a throttled HTTP request.
func RecordHTTPThrottled() {
	globalManager.httpThrottled.Inc()
}

// RecordErrorReport counts a user-facing error report.
func RecordErrorReport(title string) {
	globalManager.errorReports.WithLabelValues(title).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
