package obs

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the domain counters.
const (
	ResultOK          = "ok"
	ResultClientError = "client_error"
	ResultError       = "error"
)

// Metrics groups the Prometheus collectors for the service.
type Metrics struct {
	QuotesTotal  *prometheus.CounterVec
	RefundsTotal *prometheus.CounterVec
	ReqDur       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers collectors on reg. A nil reg gets a private registry,
// which keeps tests from colliding on the default one.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of booking price computations by gateway and outcome.",
		}, []string{"gateway", "result"}),
		RefundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Count of refund computations by rule and outcome.",
		}, []string{"rule", "result"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"method", "route"}),
		gatherer: reg,
	}
	m.QuotesTotal = registerOrReuse(reg, m.QuotesTotal)
	m.RefundsTotal = registerOrReuse(reg, m.RefundsTotal)
	m.ReqDur = registerOrReuse(reg, m.ReqDur)
	return m
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register collector: %w", err))
	}
	return c
}

// ObserveQuote records one pricing attempt.
func (m *Metrics) ObserveQuote(gateway, result string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(gateway, result).Inc()
}

// ObserveRefund records one refund attempt. rule is empty when the input was
// rejected before a rule was selected.
func (m *Metrics) ObserveRefund(rule, result string) {
	if m == nil {
		return
	}
	if rule == "" {
		rule = "none"
	}
	m.RefundsTotal.WithLabelValues(rule, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware observes request latency per matched route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := routePattern(r)
		if route == "" {
			route = "unknown"
		}
		m.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(time.Since(start)))
	})
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
