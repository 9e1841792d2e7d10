package secretkeeper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	sk "github.com/panyam/secretkeeper"
)

// sessionRequest builds a request whose context carries the session named by token
func sessionRequest(t *testing.T, m *sk.SessionManager, path, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx, err := m.Sessions.Load(req.Context(), token)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return req.WithContext(ctx)
}

func okHandler(seen **sk.Account) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = sk.AccountFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestGate_Guard(t *testing.T) {
	store := newTestStore(t)
	alice := mustRegister(t, newTestDirectory(t, store), "alice", "pw1")
	m := sk.NewSessionManager(nil, store)
	gate := (&sk.Gate{Sessions: m, LoginURL: "/login", Logger: quietLogger()}).EnsureDefaults()

	decision, err := gate.Guard(sessionRequest(t, m, "/secrets", establish(t, m, alice)))
	if err != nil || !decision.Allowed() || decision.Account.ID != alice.ID {
		t.Errorf("Expected allow for alice, got %+v %v", decision, err)
	}

	decision, err = gate.Guard(sessionRequest(t, m, "/secrets/a%20b", ""))
	if err != nil || decision.Allowed() {
		t.Fatalf("Expected deny, got %+v %v", decision, err)
	}
	if decision.RedirectTarget != "/login?callbackURL=%2Fsecrets%2Fa%20b" {
		t.Errorf("Unexpected redirect target %q", decision.RedirectTarget)
	}

	noLogin := (&sk.Gate{Sessions: m, Logger: quietLogger()}).EnsureDefaults()
	decision, _ = noLogin.Guard(sessionRequest(t, m, "/secrets", ""))
	if decision.Allowed() || decision.RedirectTarget != "" {
		t.Errorf("Expected bare deny without a login url, got %+v", decision)
	}
}

func TestGate_GuardWithoutEnsureDefaults(t *testing.T) {
	store := newTestStore(t)
	m := sk.NewSessionManager(nil, store)
	gate := &sk.Gate{Sessions: m, LoginURL: "/login"}

	const n = 16
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = sessionRequest(t, m, "/secrets", "")
	}
	targets := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := gate.Guard(reqs[i])
			if err == nil {
				targets[i] = decision.RedirectTarget
			}
		}(i)
	}
	wg.Wait()

	for i, target := range targets {
		if target != "/login?callbackURL=%2Fsecrets" {
			t.Errorf("Request %d: unexpected redirect target %q", i, target)
		}
	}
	if gate.CallbackURLParam != "" || gate.Logger != nil {
		t.Errorf("Guard must not write to the gate, got %+v", gate)
	}
}

func TestGate_EnsureAccount(t *testing.T) {
	store := newTestStore(t)
	alice := mustRegister(t, newTestDirectory(t, store), "alice", "pw1")
	m := sk.NewSessionManager(nil, store)
	gate := (&sk.Gate{Sessions: m, LoginURL: "/login", Logger: quietLogger()}).EnsureDefaults()
	token := establish(t, m, alice)

	t.Run("allows a live session", func(t *testing.T) {
		var seen *sk.Account
		rr := httptest.NewRecorder()
		gate.EnsureAccount(okHandler(&seen)).ServeHTTP(rr, sessionRequest(t, m, "/secrets", token))
		if rr.Code != http.StatusOK || seen == nil || seen.ID != alice.ID {
			t.Errorf("Expected alice through, got %d %+v", rr.Code, seen)
		}
	})

	t.Run("redirects browsers", func(t *testing.T) {
		var seen *sk.Account
		rr := httptest.NewRecorder()
		gate.EnsureAccount(okHandler(&seen)).ServeHTTP(rr, sessionRequest(t, m, "/secrets", ""))
		if rr.Code != http.StatusFound {
			t.Errorf("Expected 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/login?callbackURL=%2Fsecrets" {
			t.Errorf("Unexpected Location %q", loc)
		}
		if seen != nil {
			t.Error("Handler must not run")
		}
	})

	t.Run("401 for api clients", func(t *testing.T) {
		var seen *sk.Account
		rr := httptest.NewRecorder()
		req := sessionRequest(t, m, "/secrets", "")
		req.Header.Set("Accept", "application/json")
		gate.EnsureAccount(okHandler(&seen)).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("500 when the store is down", func(t *testing.T) {
		broken := sk.NewSessionManager(m.Sessions, failingStore{store})
		brokenGate := (&sk.Gate{Sessions: broken, LoginURL: "/login", Logger: quietLogger()}).EnsureDefaults()
		var seen *sk.Account
		rr := httptest.NewRecorder()
		brokenGate.EnsureAccount(okHandler(&seen)).ServeHTTP(rr, sessionRequest(t, m, "/secrets", token))
		if rr.Code != http.StatusInternalServerError || seen != nil {
			t.Errorf("Expected 500, got %d", rr.Code)
		}
	})
}

func TestGate_ExtractAccount(t *testing.T) {
	store := newTestStore(t)
	alice := mustRegister(t, newTestDirectory(t, store), "alice", "pw1")
	m := sk.NewSessionManager(nil, store)
	gate := (&sk.Gate{Sessions: m, LoginURL: "/login", Logger: quietLogger()}).EnsureDefaults()

	var seen *sk.Account
	rr := httptest.NewRecorder()
	gate.ExtractAccount(okHandler(&seen)).ServeHTTP(rr, sessionRequest(t, m, "/", ""))
	if rr.Code != http.StatusOK || seen != nil {
		t.Errorf("Expected anonymous pass through, got %d %+v", rr.Code, seen)
	}

	gate.ExtractAccount(okHandler(&seen)).ServeHTTP(httptest.NewRecorder(), sessionRequest(t, m, "/", establish(t, m, alice)))
	if seen == nil || seen.ID != alice.ID {
		t.Errorf("Expected alice on context, got %+v", seen)
	}
}

func TestWithAccount(t *testing.T) {
	if sk.AccountFromContext(context.Background()) != nil {
		t.Error("Expected no account on a bare context")
	}
	ctx := sk.WithAccount(context.Background(), &sk.Account{ID: "a1"})
	if got := sk.AccountFromContext(ctx); got == nil || got.ID != "a1" {
		t.Errorf("Expected a1, got %+v", got)
	}
}
