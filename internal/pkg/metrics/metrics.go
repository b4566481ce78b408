package metrics

import (
	"strconv"
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
		Namespace: "analyst",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "analyst",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "analyst",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
	}, []string{"method", "path"})

	// Region pipeline metrics
	RegionQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "region",
		Name:      "queries_total",
		Help:      "Region queries by final state",
	}, []string{"state"})

	RegionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "analyst",
		Subsystem: "region",
		Name:      "duration_seconds",
		Help:      "Duration of region pipeline runs",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"state"})

	RegionFeatures = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "analyst",
		Subsystem: "region",
		Name:      "published_features",
		Help:      "Number of features in published region results",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	SkippedSegments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "region",
		Name:      "skipped_segment_ids_total",
		Help:      "Segment identifiers skipped because they could not be decoded",
	})

	// Tile metrics
	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "tiles",
		Name:      "fetches_total",
		Help:      "Network fetches of OSMLR geometry tiles by result",
	}, []string{"result"})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "analyst",
		Subsystem: "tiles",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of OSMLR geometry tile fetches",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	TileSharedFetches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "tiles",
		Name:      "shared_fetches_total",
		Help:      "Tile requests served by joining an in-flight fetch",
	})

	CachedTiles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "analyst",
		Subsystem: "tiles",
		Name:      "cached",
		Help:      "Number of geometry tiles held in the process cache",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "analyst",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analyst",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "analyst",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "analyst",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "analyst",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
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

// UpdateDBPoolMetrics copies pool statistics into the pool gauges.
func UpdateDBPoolMetrics(stat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}) {
	DBPoolConnsAcquired.Set(float64(stat.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(stat.IdleConns()))
	DBPoolConnsOpen.Set(float64(stat.TotalConns()))
}
