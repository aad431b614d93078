package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame path counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64 // Frames not handed to detection because it was busy
	ReadErrors      atomic.Uint64

	// Detection counters
	DetectionRuns   atomic.Uint64
	DetectionSkips  atomic.Uint64
	DetectorErrors  atomic.Uint64
	EstimatesHeld   atomic.Uint64 // Cycles served from the hold window
	EstimatesAbsent atomic.Uint64

	// Latency tracking
	DetectionLatencyMs atomic.Uint64
	ProcessLatencyMs   atomic.Uint64

	// Disfluency events
	DisfluencyEvents atomic.Uint64

	// Telemetry clients (SSE + WebSocket)
	ActiveClients atomic.Int64
	TotalClients  atomic.Uint64

	// Throughput, stored as float64 bits
	fpsBits atomic.Uint64

	registry *prometheus.Registry
	http     *prometheus.CounterVec
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	load := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}

	m.gauge("coach_frames_read_total", "Total frames read from the frame source", load(&m.FramesRead))
	m.gauge("coach_frames_processed_total", "Total frames run through the detection cycle", load(&m.FramesProcessed))
	m.gauge("coach_frames_dropped_total", "Frames not handed to the detection cycle because it was busy", load(&m.FramesDropped))
	m.gauge("coach_read_errors_total", "Total frame source read errors", load(&m.ReadErrors))

	m.gauge("coach_detection_runs_total", "Total detector invocations", load(&m.DetectionRuns))
	m.gauge("coach_detection_skips_total", "Cycles skipped by the detection stride", load(&m.DetectionSkips))
	m.gauge("coach_detector_errors_total", "Total recoverable detector failures", load(&m.DetectorErrors))
	m.gauge("coach_estimates_held_total", "Cycles served from the stabilizer hold window", load(&m.EstimatesHeld))
	m.gauge("coach_estimates_absent_total", "Cycles with no valid estimate", load(&m.EstimatesAbsent))

	m.gauge("coach_detection_latency_ms", "Last detector invocation latency in milliseconds", load(&m.DetectionLatencyMs))
	m.gauge("coach_process_latency_ms", "Last detection cycle latency in milliseconds", load(&m.ProcessLatencyMs))

	m.gauge("coach_disfluency_events_total", "Disfluency events received", load(&m.DisfluencyEvents))

	m.gauge("coach_active_clients", "Connected telemetry clients", func() float64 { return float64(m.ActiveClients.Load()) })
	m.gauge("coach_total_clients", "Telemetry clients connected since start", load(&m.TotalClients))

	m.gauge("coach_frame_rate_fps", "Instantaneous frame throughput", m.FPS)

	m.http = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	m.registry.MustRegister(m.http)
}

// SetFPS stores the latest throughput reading
func (m *Metrics) SetFPS(fps float64) {
	m.fpsBits.Store(math.Float64bits(fps))
}

// FPS returns the latest throughput reading
func (m *Metrics) FPS() float64 {
	return math.Float64frombits(m.fpsBits.Load())
}

// UpdateDetectionLatency records how long the last detector call took
func (m *Metrics) UpdateDetectionLatency(d time.Duration) {
	m.DetectionLatencyMs.Store(uint64(d.Milliseconds()))
}

// UpdateProcessLatency records how long the last detection cycle took
func (m *Metrics) UpdateProcessLatency(d time.Duration) {
	m.ProcessLatencyMs.Store(uint64(d.Milliseconds()))
}

// UnmatchedEndpoint labels requests that matched no route
const UnmatchedEndpoint = "other"

var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true,
}

// ObserveRequest counts one HTTP request. endpoint must come from a fixed
// set (route patterns); unknown methods fold into "OTHER".
func (m *Metrics) ObserveRequest(method, endpoint string, status int) {
	if !knownMethods[method] {
		method = "OTHER"
	}
	m.http.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// Registry exposes the private registry (tests, custom exporters)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
