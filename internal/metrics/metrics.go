// Package metrics provides Prometheus metrics for shipyard's build
// orchestration components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all shipyard metrics.
	Namespace = "shipyard"

	// Subsystem constants for metric organization.
	SubsystemBuild     = "build"
	SubsystemQueue     = "queue"
	SubsystemWebSocket = "websocket"
	SubsystemAPI       = "api"
)

// Label constants for consistent labeling across metrics.
const (
	LabelProject   = "project"
	LabelStatus    = "status"
	LabelEndpoint  = "endpoint"
	LabelMethod    = "method"
	LabelErrorType = "error_type"
)

var (
	// Build metrics

	// BuildsTotal counts every build that reached a terminal status.
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemBuild,
			Name:      "total",
			Help:      "Total number of builds that reached a terminal status",
		},
		[]string{LabelProject, LabelStatus},
	)

	// BuildDuration tracks how long a build ran for, by terminal status.
	BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemBuild,
			Name:      "duration_seconds",
			Help:      "Duration of a build from start to terminal status",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{LabelProject, LabelStatus},
	)

	// BuildLogLinesTotal counts log lines appended across all builds.
	BuildLogLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemBuild,
			Name:      "log_lines_total",
			Help:      "Total number of log lines appended by the executor",
		},
		[]string{LabelProject},
	)

	// Queue metrics

	// QueueDepth is the current pending-build count per project.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemQueue,
			Name:      "depth",
			Help:      "Current number of pending builds in a project's queue",
		},
		[]string{LabelProject},
	)

	// QueueRejectedTotal counts Submit calls rejected by admission control.
	QueueRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemQueue,
			Name:      "rejected_total",
			Help:      "Total number of Submit calls rejected, by reason",
		},
		[]string{LabelProject, LabelStatus},
	)

	// WebSocket metrics

	// WebSocketSubscribersActive is the current count of attached subscribers.
	WebSocketSubscribersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemWebSocket,
			Name:      "subscribers_active",
			Help:      "Current number of attached log stream subscribers",
		},
		[]string{LabelProject},
	)

	// WebSocketFramesDroppedTotal counts frames dropped by a slow subscriber's
	// bounded buffer.
	WebSocketFramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemWebSocket,
			Name:      "frames_dropped_total",
			Help:      "Total number of log frames dropped by slow subscribers",
		},
		[]string{LabelProject},
	)

	// API metrics

	// APIRequestsTotal counts the total number of API requests.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{LabelEndpoint, LabelMethod, LabelStatus},
	)

	// APIRequestDuration tracks the duration of API requests.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// APIRequestSize tracks the size of API request bodies.
	APIRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_size_bytes",
			Help:      "Size of API request bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// APIResponseSize tracks the size of API response bodies.
	APIResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "response_size_bytes",
			Help:      "Size of API response bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{LabelEndpoint, LabelMethod},
	)

	// allMetrics contains all metrics for registration.
	allMetrics = []prometheus.Collector{
		BuildsTotal,
		BuildDuration,
		BuildLogLinesTotal,
		QueueDepth,
		QueueRejectedTotal,
		WebSocketSubscribersActive,
		WebSocketFramesDroppedTotal,
		APIRequestsTotal,
		APIRequestDuration,
		APIRequestSize,
		APIResponseSize,
	}
)

// Register registers all shipyard metrics with the default Prometheus
// registry. It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all shipyard metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all shipyard
// metrics and standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	RegisterWith(reg)
	return reg
}
