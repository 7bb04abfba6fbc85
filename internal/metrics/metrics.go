// Package metrics exports Prometheus collectors for the execution service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sessions
	SessionsCreated   *prometheus.CounterVec
	AttachmentsActive prometheus.Gauge
	SessionDuration   *prometheus.HistogramVec
	WatchdogKills     prometheus.Counter

	// Duplex stream
	FramesSent *prometheus.CounterVec
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omni",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by endpoint, method and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omni",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	m.SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omni",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created by language and mode",
		},
		[]string{"lang", "mode"},
	)

	m.AttachmentsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "omni",
			Subsystem: "session",
			Name:      "attachments_active",
			Help:      "Currently attached duplex streams",
		},
	)

	m.SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omni",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Attachment lifetime by language and mode",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"lang", "mode"},
	)

	m.WatchdogKills = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "omni",
			Subsystem: "session",
			Name:      "watchdog_kills_total",
			Help:      "Sessions terminated by the wall-clock watchdog",
		},
	)

	m.FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omni",
			Subsystem: "ws",
			Name:      "frames_sent_total",
			Help:      "Frames sent to clients by type",
		},
		[]string{"type"},
	)

	return m
}
