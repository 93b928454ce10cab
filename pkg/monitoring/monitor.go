package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	LessonProgressUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_progress_updates_total",
			Help: "Lesson progress updates by result",
		},
		[]string{"result"},
	)

	QuizAttemptsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_completed_total",
			Help: "Submitted quiz attempts by outcome",
		},
		[]string{"outcome"},
	)

	FileBytesServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_bytes_served_total",
			Help: "Bytes streamed by the download endpoint",
		},
		[]string{"type"},
	)

	AbandonedAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_abandoned_attempts",
			Help: "Unsubmitted quiz attempts whose time limit has elapsed",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			LessonProgressUpdates,
			QuizAttemptsCompleted,
			FileBytesServed,
			AbandonedAttempts,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
