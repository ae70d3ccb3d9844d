package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus collectors. It also observes the exam flow.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	answers  prometheus.Counter
	results  *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. gatherer serves /metrics.
func NewMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		answers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_answers_saved_total",
			Help: "Answers recorded by students",
		}),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_results_finalized_total",
				Help: "Exam attempts finalized, by whether the time budget ran out",
			},
			[]string{"time_up"},
		),
		gatherer: gatherer,
	}
	reg.MustRegister(m.requests, m.duration, m.answers, m.results)
	return m
}

// Middleware counts and times requests by route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// AnswerSaved counts a stored answer.
func (m *Metrics) AnswerSaved() { m.answers.Inc() }

// ResultFinalized counts a finalized attempt.
func (m *Metrics) ResultFinalized(timeUp bool) {
	m.results.WithLabelValues(strconv.FormatBool(timeUp)).Inc()
}
