// Package metrics exposes Prometheus counters for the authentication
// engine. The registry is injectable so embedding applications can merge
// these metrics into their own exposition endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values used across the counters.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRequired = "2fa_required"
	ResultReuse    = "reuse_detected"
	ResultExpired  = "expired"

	MethodTOTP   = "totp"
	MethodBackup = "backup_code"

	KindToken       = "token"
	KindSession     = "session"
	KindAllSessions = "all_sessions"
)

// Metrics holds the engine's counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	logins      *prometheus.CounterVec
	twoFactor   *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	revocations *prometheus.CounterVec
	swept       *prometheus.CounterVec
}

// New registers the counters against reg. Pass
// prometheus.DefaultRegisterer for the usual global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"result"}),
		twoFactor: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "twofactor_verifications_total",
			Help:      "Second-factor verifications by method and outcome.",
		}, []string{"method", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "revocations_total",
			Help:      "Revocations by kind.",
		}, []string{"kind"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "swept_records_total",
			Help:      "Expired records removed by the sweeper.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.logins, m.twoFactor, m.refreshes, m.revocations, m.swept)
	return m
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) TwoFactor(method, result string) {
	if m == nil {
		return
	}
	m.twoFactor.WithLabelValues(method, result).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Revocation(kind string) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(kind).Inc()
}

func (m *Metrics) Swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.WithLabelValues(kind).Add(float64(n))
}
