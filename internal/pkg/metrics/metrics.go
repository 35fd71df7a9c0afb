package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pinmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pinmap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Pipeline metrics
	PinFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "pipeline",
		Name:      "fetches_total",
		Help:      "Pins-in-bounds fetches by outcome (started, ok, canceled, failed)",
	}, []string{"outcome"})

	PinFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pinmap",
		Subsystem: "pipeline",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of pins-in-bounds fetches that were not superseded",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	GateSkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "pipeline",
		Name:      "gate_skips_total",
		Help:      "Viewport events ignored because the viewport did not change",
	})

	DraftsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "pipeline",
		Name:      "drafts_suppressed_total",
		Help:      "Times a local draft marker became hidden for being near a server pin",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pinmap",
		Subsystem: "pipeline",
		Name:      "active_sessions",
		Help:      "Current number of live map sessions",
	})

	PinsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "events",
		Name:      "pins_changed_total",
		Help:      "Pins-changed events by direction (published, received) and action",
	}, []string{"direction", "action"})

	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "remote",
		Name:      "requests_total",
		Help:      "Requests to the remote pins backend by status class",
	}, []string{"status"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pinmap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pinmap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pinmap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pinmap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "db",
		Name:      "pool_empty_acquires_total",
		Help:      "Acquires that had to wait for a new or released connection",
	})

	DBPoolCanceledAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "db",
		Name:      "pool_canceled_acquires_total",
		Help:      "Acquires canceled by their context, usually a superseded viewport query",
	})

	DBPoolAcquireSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinmap",
		Subsystem: "db",
		Name:      "pool_acquire_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool metrics read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	EmptyAcquireCount() int64
	CanceledAcquireCount() int64
	AcquireDuration() time.Duration
}

var (
	poolMu   sync.Mutex
	poolLast struct {
		empty, canceled int64
		acquire         time.Duration
	}
)

// UpdateDBPoolMetrics copies pool gauges and advances the pool counters by
// the change since the previous call.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))

	poolMu.Lock()
	defer poolMu.Unlock()
	if d := s.EmptyAcquireCount() - poolLast.empty; d > 0 {
		DBPoolEmptyAcquires.Add(float64(d))
	}
	if d := s.CanceledAcquireCount() - poolLast.canceled; d > 0 {
		DBPoolCanceledAcquires.Add(float64(d))
	}
	if d := s.AcquireDuration() - poolLast.acquire; d > 0 {
		DBPoolAcquireSeconds.Add(d.Seconds())
	}
	poolLast.empty = s.EmptyAcquireCount()
	poolLast.canceled = s.CanceledAcquireCount()
	poolLast.acquire = s.AcquireDuration()
}
