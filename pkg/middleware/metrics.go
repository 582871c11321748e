package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/getserve/pkg/admission"
	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/server"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "getserve").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for exchange duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "getserve",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the file server.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	responseBytes   prometheus.Counter
	slotsInUse      prometheus.Gauge
	admissionWait   prometheus.Histogram
	admissionsTotal prometheus.Counter
	releasesTotal   prometheus.Counter
	connStates      *prometheus.CounterVec
}

// globalMetrics is the singleton metrics instance.
// Created on first call to Prometheus() or AdmissionObserver().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics initializes the Prometheus metrics.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of requests answered, by status code",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),

		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Time spent answering a parsed request",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		responseBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "response_body_bytes_total",
			Help:        "Total response body bytes produced",
			ConstLabels: config.ConstLabels,
		}),

		slotsInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "admission_slots_in_use",
			Help:        "Number of connections currently holding an admission slot",
			ConstLabels: config.ConstLabels,
		}),

		admissionWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "admission_wait_seconds",
			Help:        "Time the accept loop waited for a free admission slot",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}),

		admissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "admissions_total",
			Help:        "Total number of admission slots granted",
			ConstLabels: config.ConstLabels,
		}),

		releasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "releases_total",
			Help:        "Total number of admission slots returned",
			ConstLabels: config.ConstLabels,
		}),

		connStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connection_states_total",
			Help:        "Connection state transitions into failed or closed",
			ConstLabels: config.ConstLabels,
		}, []string{"state"}),
	}
}

// loadMetrics returns the global metrics, creating them from opts on first use.
func loadMetrics(opts []MetricsOption) *metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	return globalMetrics
}

// Prometheus creates middleware that collects Prometheus metrics for every
// answered request.
//
// Metrics collected:
//   - getserve_requests_total: Counter of requests by method and status
//   - getserve_request_duration_seconds: Histogram of handler duration
//   - getserve_response_body_bytes_total: Counter of body bytes produced
//
// Requests rejected by the parser never reach middleware; they are counted
// in the server's own MetricsCollector.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	cfg := server.DefaultConfig().
//	    WithHandler(fileserve.NewHandler(store)).
//	    WithMiddleware(middleware.Prometheus(middleware.WithRegistry(reg)))
//	cfg.AdmissionObserver = middleware.AdmissionObserver(middleware.WithRegistry(reg))
func Prometheus(opts ...MetricsOption) server.Middleware {
	m := loadMetrics(opts)

	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()

			resp := next.ServeRequest(ctx, req)

			m.requestDuration.Observe(time.Since(start).Seconds())

			status := protocol.StatusNotFound
			if resp != nil {
				status = resp.Status
				m.responseBytes.Add(float64(len(resp.Body)))
			}
			m.requestsTotal.WithLabelValues(string(req.Method), strconv.Itoa(status.Code())).Inc()

			return resp
		})
	}
}

// AdmissionObserver returns an admission.Observer that exports slot
// occupancy and acquire latency.
//
// Metrics collected:
//   - getserve_admission_slots_in_use: Gauge of held slots
//   - getserve_admission_wait_seconds: Histogram of time spent waiting for a slot
//   - getserve_admissions_total / getserve_releases_total: Slot counters
func AdmissionObserver(opts ...MetricsOption) admission.Observer {
	return &admissionObserver{m: loadMetrics(opts)}
}

type admissionObserver struct {
	m *metrics
}

func (o *admissionObserver) OnAcquire(wait time.Duration) {
	o.m.slotsInUse.Inc()
	o.m.admissionsTotal.Inc()
	o.m.admissionWait.Observe(wait.Seconds())
}

func (o *admissionObserver) OnRelease() {
	o.m.slotsInUse.Dec()
	o.m.releasesTotal.Inc()
}

// RecordConnState counts connections that end failed or closed. It has the
// shape of server.Config.ConnStateHook's state argument.
func RecordConnState(state server.ConnState) {
	if state != server.StateFailed && state != server.StateClosed {
		return
	}
	globalMetricsMu.Lock()
	m := globalMetrics
	globalMetricsMu.Unlock()
	if m != nil {
		m.connStates.WithLabelValues(state.String()).Inc()
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector exposes the metrics for use in custom registrations and tests.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ResponseBytes   prometheus.Counter
	SlotsInUse      prometheus.Gauge
	AdmissionWait   prometheus.Histogram
	AdmissionsTotal prometheus.Counter
	ReleasesTotal   prometheus.Counter
	ConnStates      *prometheus.CounterVec
}

// GetMetrics returns the global metrics collector.
// Returns nil if neither Prometheus nor AdmissionObserver has been called.
func GetMetrics() *Collector {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		RequestsTotal:   globalMetrics.requestsTotal,
		RequestDuration: globalMetrics.requestDuration,
		ResponseBytes:   globalMetrics.responseBytes,
		SlotsInUse:      globalMetrics.slotsInUse,
		AdmissionWait:   globalMetrics.admissionWait,
		AdmissionsTotal: globalMetrics.admissionsTotal,
		ReleasesTotal:   globalMetrics.releasesTotal,
		ConnStates:      globalMetrics.connStates,
	}
}
