package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StreamConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hangout_stream_connections",
		Help: "Current number of attached real-time streams",
	}, []string{"transport"})
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hangout_events_published_total",
		Help: "Real-time events handed to the fan-out layer",
	}, []string{"type", "result"})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hangout_notifications_total",
		Help: "Notifications delivered by channel",
	}, []string{"channel", "result"})
	ReactionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hangout_reaction_retries_total",
		Help: "Reaction writes retried after a version conflict",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(StreamConnections, EventsPublished, NotificationsSent,
		ReactionRetries, HttpRequestsTotal, HttpRequestDuration)
}

// Result labels.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Outcome returns the result label for err.
func Outcome(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
