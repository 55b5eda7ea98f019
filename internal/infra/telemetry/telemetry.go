package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for the authentication flows. A nil
// *Metrics is a valid no-op receiver so services can run uninstrumented.
type Metrics struct {
	loginAttempts   *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	sessionsExpired *prometheus.CounterVec
}

// NewMetrics registers the counters with the given registerer; pass nil to
// use the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		tokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "tokens_issued_total",
			Help:      "One-time tokens issued by kind",
		}, []string{"kind"}),
		sessionsExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "sessions_expired_total",
			Help:      "Sessions expired by reason",
		}, []string{"reason"}),
	}
}

// LoginAttempt records one password or second-factor attempt outcome.
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// TokenIssued records one issued token of the given kind.
func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

// SessionExpired records one expired session with the reason it ended.
func (m *Metrics) SessionExpired(reason string) {
	if m == nil {
		return
	}
	m.sessionsExpired.WithLabelValues(reason).Inc()
}
