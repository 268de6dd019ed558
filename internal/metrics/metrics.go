// Package metrics provides Prometheus instrumentation for the MCP server and the receipt bot.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "basemcp"

var (
	// ToolCallsTotal counts MCP tool invocations by tool and result (ok, error).
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total MCP tool calls by tool and result.",
		},
		[]string{"tool", "result"},
	)

	// ToolDuration observes tool handler latency.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "MCP tool handler duration in seconds.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// UpstreamRequestsTotal counts third-party API requests by provider and status bucket.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total upstream API requests by provider and status.",
		},
		[]string{"provider", "status"},
	)

	// UpstreamDuration observes upstream request latency.
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// PriceSourceTotal counts which source answered asset_price.
	PriceSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_source_total",
			Help:      "Asset price lookups by answering source.",
		},
		[]string{"source"},
	)

	// TransactionsSentTotal counts signed transactions by operation and result.
	TransactionsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_sent_total",
			Help:      "Transactions broadcast by operation and result.",
		},
		[]string{"op", "result"},
	)

	// ReceiptsGeneratedTotal counts PDF receipts produced.
	ReceiptsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receipts_generated_total",
		Help:      "Total payment receipts generated.",
	})

	// BotUpdatesTotal counts Telegram updates by kind (command, callback, text).
	BotUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_updates_total",
			Help:      "Telegram updates handled by kind.",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		ToolCallsTotal,
		ToolDuration,
		UpstreamRequestsTotal,
		UpstreamDuration,
		PriceSourceTotal,
		TransactionsSentTotal,
		ReceiptsGeneratedTotal,
		BotUpdatesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// ObserveTool records one tool call.
func ObserveTool(tool string, failed bool, d time.Duration) {
	result := "ok"
	if failed {
		result = "error"
	}
	ToolCallsTotal.WithLabelValues(tool, result).Inc()
	ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveUpstream records one upstream request. status is the HTTP code,
// or 0 when the request never got a response.
func ObserveUpstream(provider string, status int, d time.Duration) {
	bucket := "error"
	if status > 0 {
		bucket = StatusBucket(status)
	}
	UpstreamRequestsTotal.WithLabelValues(provider, bucket).Inc()
	UpstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveTx records one broadcast attempt.
func ObserveTx(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TransactionsSentTotal.WithLabelValues(op, result).Inc()
}

// StartDBStatsCollector periodically samples sql.DBStats and the goroutine
// count into gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern keeps cardinality bounded
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			StatusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// StatusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func StatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
