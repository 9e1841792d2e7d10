package secretkeeper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	sk "github.com/panyam/secretkeeper"
)

func TestMetrics_AuthAndAccounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := sk.NewMetrics(reg)
	store := newTestStore(t)
	d := newTestDirectory(t, store)
	d.Metrics = m
	local := &sk.LocalStrategy{Directory: d, Metrics: m}
	ctx := context.Background()

	mustRegister(t, d, "alice", "pw1")
	if got := testutil.ToFloat64(m.AccountsCreated.WithLabelValues(sk.ProviderLocal)); got != 1 {
		t.Errorf("Expected 1 local account created, got %v", got)
	}

	if _, err := local.Authenticate(ctx, sk.Credentials{Username: "alice", Password: "pw2"}); err == nil {
		t.Fatal("Expected wrong password to fail")
	}
	if _, err := local.Authenticate(ctx, sk.Credentials{Username: "alice", Password: "pw1"}); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got := testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues(sk.ProviderLocal, "failure")); got != 1 {
		t.Errorf("Expected 1 failed attempt, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues(sk.ProviderLocal, "success")); got != 1 {
		t.Errorf("Expected 1 successful attempt, got %v", got)
	}
}

func TestMetrics_Instrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := sk.NewMetrics(reg)

	h := m.Instrument("read_secret", http.NotFoundHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/secrets/x", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "read_secret", "404")); got != 1 {
		t.Errorf("Expected one 404 recorded, got %v", got)
	}
	if n := testutil.CollectAndCount(m.HTTPRequestDuration); n != 1 {
		t.Errorf("Expected one latency series, got %d", n)
	}
}

func TestMetrics_NilIsPassthrough(t *testing.T) {
	var m *sk.Metrics
	called := false
	h := m.Instrument("home", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Expected the wrapped handler to run")
	}

	// a directory without metrics still registers
	mustRegister(t, newTestDirectory(t, newTestStore(t)), "bob", "pw")
}
