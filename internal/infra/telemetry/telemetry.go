package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "octopis"

// AuthMetrics holds the counters emitted by the token service and rate limiter.
type AuthMetrics struct {
	RateLimitDecisions *prometheus.CounterVec
	RateLimitKeys      prometheus.Gauge
	RateLimitSwept     prometheus.Counter
	TokenOperations    *prometheus.CounterVec
}

// NewAuthMetrics registers the auth metrics on reg. A nil reg uses the default registerer.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &AuthMetrics{
		RateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rate_limit",
			Name:      "decisions_total",
			Help:      "Sliding-window admission decisions by route and outcome.",
		}, []string{"route", "outcome"}),
		RateLimitKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rate_limit",
			Name:      "tracked_keys",
			Help:      "Client/route keys currently held by the limiter.",
		}),
		RateLimitSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rate_limit",
			Name:      "swept_keys_total",
			Help:      "Idle keys removed by the reaper.",
		}),
		TokenOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "operations_total",
			Help:      "Token issue, refresh and revoke operations by outcome.",
		}, []string{"operation", "outcome"}),
	}
}

// ObserveToken increments the token operation counter. Safe on a nil receiver.
func (m *AuthMetrics) ObserveToken(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.TokenOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveRateLimit records one admission decision. Safe on a nil receiver.
func (m *AuthMetrics) ObserveRateLimit(route string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.RateLimitDecisions.WithLabelValues(route, outcome).Inc()
}

// ObserveTrackedKeys sets the tracked-keys gauge. Safe on a nil receiver.
func (m *AuthMetrics) ObserveTrackedKeys(n int) {
	if m == nil {
		return
	}
	m.RateLimitKeys.Set(float64(n))
}
