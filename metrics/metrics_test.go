package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Login(ResultSuccess)
	m.Login(ResultSuccess)
	m.Login(ResultFailure)
	m.TwoFactor(MethodTOTP, ResultSuccess)
	m.Refresh(ResultReuse)
	m.Revocation(KindAllSessions)
	m.Swept(KindSession, 4)
	m.Swept(KindSession, 0) // no-op

	if got := testutil.ToFloat64(m.logins.WithLabelValues(ResultSuccess)); got != 2 {
		t.Fatalf("login success count = %v", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues(ResultFailure)); got != 1 {
		t.Fatalf("login failure count = %v", got)
	}
	if got := testutil.ToFloat64(m.twoFactor.WithLabelValues(MethodTOTP, ResultSuccess)); got != 1 {
		t.Fatalf("twofactor count = %v", got)
	}
	if got := testutil.ToFloat64(m.refreshes.WithLabelValues(ResultReuse)); got != 1 {
		t.Fatalf("refresh reuse count = %v", got)
	}
	if got := testutil.ToFloat64(m.swept.WithLabelValues(KindSession)); got != 4 {
		t.Fatalf("swept count = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Login(ResultSuccess)
	m.TwoFactor(MethodBackup, ResultFailure)
	m.Refresh(ResultSuccess)
	m.Revocation(KindToken)
	m.Swept(KindToken, 3)
}
