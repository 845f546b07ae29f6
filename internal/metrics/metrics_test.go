package metrics

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatal(err)
	}

	m.LoginAttempt("failed", "expired", "login")
	m.LoginAttempt("failed", "expired", "login")
	m.Lockout()
	m.ExpiryFlip()
	m.Refresh("ok")
	m.SignatureFailure("stale")

	if got := testutil.ToFloat64(m.logins.WithLabelValues("failed", "expired", "login")); got != 2 {
		t.Errorf("logins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lockouts); got != 1 {
		t.Errorf("lockouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.expiryFlips); got != 1 {
		t.Errorf("expiry flips = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.refreshes.WithLabelValues("ok")); got != 1 {
		t.Errorf("refreshes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.signatureFailures.WithLabelValues("stale")); got != 1 {
		t.Errorf("signature failures = %v, want 1", got)
	}
}

func TestRequestStarted(t *testing.T) {
	m, _ := New()
	done := m.RequestStarted()
	if got := testutil.ToFloat64(m.httpInflight); got != 1 {
		t.Errorf("inflight = %v, want 1", got)
	}
	done("GET", "/reports/{code}", 200)
	if got := testutil.ToFloat64(m.httpInflight); got != 0 {
		t.Errorf("inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/reports/{code}", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.LoginAttempt("success", "ok", "login")
	m.Lockout()
	m.ExpiryFlip()
	m.Refresh("ok")
	m.SignatureFailure("mismatch")
	m.RequestStarted()("GET", "/", 200)
	if err := m.RegisterDBStats("x", func() sql.DBStats { return sql.DBStats{} }); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m, _ := New()
	m.Lockout()
	if err := m.RegisterDBStats("store", func() sql.DBStats { return sql.DBStats{MaxOpenConnections: 10} }); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{"kaizen_lockouts_total 1", `kaizen_db_max_open_connections{db="store"} 10`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
