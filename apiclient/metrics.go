package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-attempt and per-call Prometheus series.
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autodev",
			Subsystem: "api",
			Name:      "attempts_total",
			Help:      "Total number of HTTP attempts against the backend",
		}, []string{"method", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autodev",
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Total number of retries after a transient failure",
		}, []string{"method", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autodev",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Logical calls that failed, by error code",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autodev",
			Subsystem: "api",
			Name:      "call_duration_seconds",
			Help:      "Duration of logical calls including retries and backoff",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"method", "status"}),
	}

	for _, c := range []prometheus.Collector{m.attempts, m.retries, m.errors, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeRetry(method string, code Code) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(method, string(code)).Inc()
}

func (m *Metrics) observeCall(method string, elapsed time.Duration, err *Error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.errors.WithLabelValues(method, string(err.Code)).Inc()
	}
	m.duration.WithLabelValues(method, status).Observe(elapsed.Seconds())
}
