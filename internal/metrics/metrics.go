package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValuationsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasaciones_valuations_saved_total",
		Help: "Saved valuation snapshots written, new or overwritten.",
	})

	ComparablesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasaciones_comparables_imported_total",
		Help: "Comparables created through bulk import.",
	})

	BackgroundWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasaciones_background_write_failures_total",
		Help: "Fire-and-forget writes that failed and were dropped.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasaciones_active_sessions",
		Help: "Valuation sessions currently held in memory.",
	})

	requests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasaciones_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// WatchFeed exports the number of change notifications waiting for
// dispatch. Call it once per process.
func WatchFeed(pending func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tasaciones_change_feed_pending",
		Help: "Change batches buffered plus backlogged changes awaiting dispatch.",
	}, func() float64 { return float64(pending()) })
}

// Middleware records the latency of every request
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
