package server

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/getserve/pkg/admission"
	"github.com/vango-dev/getserve/pkg/protocol"
)

// ServerMetrics aggregates metrics across the server.
type ServerMetrics struct {
	// Admission
	Admission admission.Stats `json:"admission"`

	// Connections
	ConnsAccepted int64 `json:"conns_accepted"`
	ConnsClosed   int64 `json:"conns_closed"`
	ActiveConns   int64 `json:"active_conns"`

	// Exchanges
	Requests       int64 `json:"requests"`
	ResponsesOK    int64 `json:"responses_ok"`
	NotFound       int64 `json:"responses_not_found"`
	BadRequests    int64 `json:"responses_bad_request"`
	NotImplemented int64 `json:"responses_not_implemented"`

	// Network
	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`

	// Errors
	HandlerPanics int64 `json:"handler_panics"`
	WriteErrors   int64 `json:"write_errors"`
	ReadErrors    int64 `json:"read_errors"`

	// Latency (microseconds)
	ExchangeLatencyP50 int64 `json:"exchange_latency_p50_us"`
	ExchangeLatencyP99 int64 `json:"exchange_latency_p99_us"`

	// Timestamp
	CollectedAt time.Time `json:"collected_at"`
}

// Metrics collects and returns server metrics.
func (s *Server) Metrics() *ServerMetrics {
	m := s.metrics.Snapshot()
	m.Admission = s.admission.Stats()
	return m
}

// MetricsCollector collects and aggregates metrics over time.
type MetricsCollector struct {
	// Counters (atomic)
	connsAccepted  atomic.Int64
	connsClosed    atomic.Int64
	requests       atomic.Int64
	responsesOK    atomic.Int64
	notFound       atomic.Int64
	badRequests    atomic.Int64
	notImplemented atomic.Int64
	bytesSent      atomic.Int64
	bytesReceived  atomic.Int64
	handlerPanics  atomic.Int64
	writeErrors    atomic.Int64
	readErrors     atomic.Int64

	// Latency tracking
	latencyMu sync.Mutex
	latencies []int64
}

// NewMetricsCollector creates a new MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		latencies: make([]int64, 0, 1000),
	}
}

// RecordConnAccepted records an accepted connection.
func (m *MetricsCollector) RecordConnAccepted() {
	m.connsAccepted.Add(1)
}

// RecordConnClosed records a closed connection.
func (m *MetricsCollector) RecordConnClosed() {
	m.connsClosed.Add(1)
}

// RecordResponse records a completed exchange and its status.
func (m *MetricsCollector) RecordResponse(status protocol.Status, latency time.Duration) {
	m.requests.Add(1)
	switch status {
	case protocol.StatusOK:
		m.responsesOK.Add(1)
	case protocol.StatusNotFound:
		m.notFound.Add(1)
	case protocol.StatusBadRequest:
		m.badRequests.Add(1)
	case protocol.StatusNotImplemented:
		m.notImplemented.Add(1)
	}

	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()
	// Keep only recent samples
	if len(m.latencies) >= 1000 {
		m.latencies = append(m.latencies[:0], m.latencies[500:]...)
	}
	m.latencies = append(m.latencies, latency.Microseconds())
}

// RecordBytesSent records bytes sent.
func (m *MetricsCollector) RecordBytesSent(n int) {
	m.bytesSent.Add(int64(n))
}

// RecordBytesReceived records bytes received.
func (m *MetricsCollector) RecordBytesReceived(n int) {
	m.bytesReceived.Add(int64(n))
}

// RecordHandlerPanic records a handler panic.
func (m *MetricsCollector) RecordHandlerPanic() {
	m.handlerPanics.Add(1)
}

// RecordWriteError records a write error.
func (m *MetricsCollector) RecordWriteError() {
	m.writeErrors.Add(1)
}

// RecordReadError records a read error.
func (m *MetricsCollector) RecordReadError() {
	m.readErrors.Add(1)
}

// Snapshot returns current metrics. Admission stats are filled in by
// Server.Metrics.
func (m *MetricsCollector) Snapshot() *ServerMetrics {
	accepted := m.connsAccepted.Load()
	closed := m.connsClosed.Load()
	metrics := &ServerMetrics{
		ConnsAccepted:  accepted,
		ConnsClosed:    closed,
		ActiveConns:    accepted - closed,
		Requests:       m.requests.Load(),
		ResponsesOK:    m.responsesOK.Load(),
		NotFound:       m.notFound.Load(),
		BadRequests:    m.badRequests.Load(),
		NotImplemented: m.notImplemented.Load(),
		BytesSent:      m.bytesSent.Load(),
		BytesReceived:  m.bytesReceived.Load(),
		HandlerPanics:  m.handlerPanics.Load(),
		WriteErrors:    m.writeErrors.Load(),
		ReadErrors:     m.readErrors.Load(),
		CollectedAt:    time.Now(),
	}

	metrics.ExchangeLatencyP50, metrics.ExchangeLatencyP99 = m.latencyPercentiles()

	return metrics
}

// latencyPercentiles calculates P50 and P99 latencies.
func (m *MetricsCollector) latencyPercentiles() (p50, p99 int64) {
	m.latencyMu.Lock()
	sorted := slices.Clone(m.latencies)
	m.latencyMu.Unlock()

	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	slices.Sort(sorted)

	return sorted[n/2], sorted[(n*99)/100]
}
