package dashboard

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "findmyspot_http_requests_total",
				Help: "Dashboard HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "findmyspot_http_request_duration_seconds",
				Help:    "Dashboard HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// instrument records request count and duration by route.
func (m *httpMetrics) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		m.requests.WithLabelValues(c.Request.Method, path, status).Inc()
		m.duration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// requestLog logs one line per request.
func requestLog(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Printf("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// principal echoes the configured identity on every response.
func principal(identity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity != "" {
			c.Header("X-Principal", identity)
		}
		c.Next()
	}
}
