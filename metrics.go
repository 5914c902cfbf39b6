package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsManager owns a private registry so tests can build as many as they
// like. All methods are safe on a nil receiver.
type metricsManager struct {
	registry *prometheus.Registry

	counterRequests        *prometheus.CounterVec
	counterMutations       *prometheus.CounterVec
	counterPersistFailures prometheus.Counter
	counterAICalls         *prometheus.CounterVec

	histRequestDuration prometheus.Histogram
}

func newMetricsManager(namespace string) *metricsManager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &metricsManager{
		registry: reg,
		counterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "The total number of incoming requests",
		}, []string{"method", "status"}),
		counterMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Record store mutations by operation",
		}, []string{"op"}),
		counterPersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_persist_failures_total",
			Help:      "Full-state saves that failed after a mutation was applied",
		}),
		counterAICalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_calls_total",
			Help:      "Outbound AI calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		histRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// register adds an extra collector, such as the pgx pool stats.
func (m *metricsManager) register(c prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(c)
}

func (m *metricsManager) countMutation(op string) {
	if m == nil {
		return
	}
	m.counterMutations.WithLabelValues(op).Inc()
}

func (m *metricsManager) countPersistFailure() {
	if m == nil {
		return
	}
	m.counterPersistFailures.Inc()
}

func (m *metricsManager) countAICall(kind, outcome string) {
	if m == nil {
		return
	}
	m.counterAICalls.WithLabelValues(kind, outcome).Inc()
}

// ginMiddleware counts requests and observes their duration.
func (m *metricsManager) ginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		m.histRequestDuration.Observe(time.Since(start).Seconds())
		m.counterRequests.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
