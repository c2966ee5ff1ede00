// Package metrics provides Prometheus metrics for the stride prediction pipeline.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the stride service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Feature pipeline
	featuresComputed     prometheus.Counter
	featuresInsufficient prometheus.Counter
	featureLatency       prometheus.Histogram
	featureStoreWrites   prometheus.Counter
	featureStoreDeleted  prometheus.Counter

	// Training
	trainingRuns      *prometheus.CounterVec
	trainingDuration  *prometheus.HistogramVec
	trainingSamples   *prometheus.GaugeVec
	candidateScore    *prometheus.GaugeVec
	candidateFailures *prometheus.CounterVec
	modelActivations  *prometheus.CounterVec

	// Serving
	predictions       *prometheus.CounterVec
	fallbackReasons   *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	breakerState      *prometheus.GaugeVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - training job queue
	queueCapacity    prometheus.Gauge
	queueSize        prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec

	// Worker Metrics
	workerCount      prometheus.Gauge
	workerBusy       prometheus.Gauge
	workerJobLatency prometheus.Histogram
	workerErrors     prometheus.Counter

	// Errors by component
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stride",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	ns, ss, labels := m.namespace, m.subsystem, prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{Namespace: ns, Subsystem: ss, Name: m.name(name), Help: help, ConstLabels: labels})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{Namespace: ns, Subsystem: ss, Name: m.name(name), Help: help, ConstLabels: labels})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Subsystem: ss, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: labels})
	}
	counterVec := func(name, help string, l ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: ss, Name: m.name(name), Help: help, ConstLabels: labels}, l)
	}
	gaugeVec := func(name, help string, l ...string) *prometheus.GaugeVec {
		return auto.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Subsystem: ss, Name: m.name(name), Help: help, ConstLabels: labels}, l)
	}

	m.featuresComputed = counter("features_computed_total", "Total number of feature vectors computed")
	m.featuresInsufficient = counter("features_insufficient_total", "Feature vectors computed from an empty training history")
	m.featureLatency = histogram("feature_latency_milliseconds", "Feature extraction latency in milliseconds", m.histogramBuckets)
	m.featureStoreWrites = counter("feature_store_writes_total", "Feature vectors appended to the store")
	m.featureStoreDeleted = counter("feature_store_deleted_total", "Feature vectors removed by retention cleanup")

	m.trainingRuns = counterVec("training_runs_total", "Training runs by event and outcome status", "event", "status")
	m.trainingDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   ns,
		Subsystem:   ss,
		Name:        m.name("training_duration_seconds"),
		Help:        "Wall time of a training run",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: labels,
	}, []string{"event"})
	m.trainingSamples = gaugeVec("training_samples", "Samples used by the latest training run", "event", "split")
	m.candidateScore = gaugeVec("candidate_r2", "Held-out R2 of each candidate in the latest run", "event", "model")
	m.candidateFailures = counterVec("candidate_failures_total", "Candidates excluded because fitting failed", "event", "model")
	m.modelActivations = counterVec("model_activations_total", "Model activations by event", "event")

	m.predictions = counterVec("predictions_total", "Predictions served by event and source", "event", "source")
	m.fallbackReasons = counterVec("fallback_total", "Fallback predictions by degradation reason", "reason")
	m.predictionLatency = histogram("prediction_latency_milliseconds", "End-to-end prediction latency in milliseconds", m.histogramBuckets)
	m.breakerState = gaugeVec("artifact_breaker_state", "Artifact loader circuit breaker state (0 closed, 1 half-open, 2 open)", "name")

	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   ns,
		Subsystem:   ss,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.queueCapacity = gauge("queue_capacity", "Maximum training job queue capacity")
	m.queueSize = gauge("queue_size", "Current number of queued training jobs")
	m.queueUtilization = gauge("queue_utilization_ratio", "Queue utilization ratio (size/capacity)")
	m.queueEnqueued = counter("queue_enqueued_total", "Training jobs accepted by the queue")
	m.queueDequeued = counter("queue_dequeued_total", "Training jobs handed to workers")
	m.queueRejected = counterVec("queue_rejected_total", "Training jobs rejected by the queue", "reason")

	m.workerCount = gauge("worker_count", "Number of training workers")
	m.workerBusy = gauge("worker_busy", "Number of workers currently running a job")
	m.workerJobLatency = histogram("worker_job_seconds", "Training job latency in seconds", []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600})
	m.workerErrors = counter("worker_errors_total", "Training jobs that ended with an error")

	m.errorRateByComponent = counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Enabled reports whether the manager records anything.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval is how often gauge updaters should sample.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

// SetEnabled turns recording on or off for the package-level helpers.
// Disabled helpers return without touching any collector.
func SetEnabled(enabled bool) { globalManager.enabled.Store(enabled) }

// SetRefreshInterval changes the gauge sampling interval; non-positive
// values are ignored.
func SetRefreshInterval(d time.Duration) {
	if d > 0 {
		globalManager.refreshInterval.Store(int64(d))
	}
}

// RefreshInterval returns the gauge sampling interval of the global manager.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// Feature pipeline.

// RecordFeaturesComputed counts one extraction and its latency.
func RecordFeaturesComputed(latencyMs float64, insufficient bool) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.featuresComputed.Inc()
	globalManager.featureLatency.Observe(latencyMs)
	if insufficient {
		globalManager.featuresInsufficient.Inc()
	}
}

// RecordFeatureStoreWrite counts an appended feature vector.
func RecordFeatureStoreWrite() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.featureStoreWrites.Inc()
}

// RecordFeatureStoreCleanup adds the number of vectors pruned.
func RecordFeatureStoreCleanup(deleted int) {
	if !globalManager.enabled.Load() {
		return
	}
	if deleted > 0 {
		globalManager.featureStoreDeleted.Add(float64(deleted))
	}
}

// Training.

// RecordTrainingRun records the status and duration of a training run.
func RecordTrainingRun(event, status string, duration time.Duration) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.trainingRuns.WithLabelValues(event, status).Inc()
	globalManager.trainingDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// UpdateTrainingSamples sets the train/test sample gauges for an event.
func UpdateTrainingSamples(event string, train, test int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.trainingSamples.WithLabelValues(event, "train").Set(float64(train))
	globalManager.trainingSamples.WithLabelValues(event, "test").Set(float64(test))
}

// UpdateCandidateScore sets the held-out R2 of a candidate.
func UpdateCandidateScore(event, model string, r2 float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.candidateScore.WithLabelValues(event, model).Set(r2)
}

// RecordCandidateFailure counts a candidate excluded from comparison.
func RecordCandidateFailure(event, model string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.candidateFailures.WithLabelValues(event, model).Inc()
}

// RecordModelActivation counts an activation swap.
func RecordModelActivation(event string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.modelActivations.WithLabelValues(event).Inc()
}

// Serving.

// RecordPrediction counts a served prediction and its latency.
func RecordPrediction(event, source string, latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.predictions.WithLabelValues(event, source).Inc()
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordFallback counts a degradation by reason.
func RecordFallback(reason string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.fallbackReasons.WithLabelValues(reason).Inc()
}

// UpdateBreakerState publishes the circuit breaker state.
func UpdateBreakerState(name string, state int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size and derived utilization.
func UpdateQueueSize(size, capacity int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts a rejected job by reason.
func RecordQueueRejected(reason string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy adjusts the busy-worker gauge by delta.
func AddWorkerBusy(delta int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerBusy.Add(float64(delta))
}

// RecordWorkerJob records a finished job.
func RecordWorkerJob(latency time.Duration, failed bool) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerJobLatency.Observe(latency.Seconds())
	if failed {
		globalManager.workerErrors.Inc()
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
