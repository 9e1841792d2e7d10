package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sk "github.com/panyam/secretkeeper"
	"github.com/panyam/secretkeeper/client"
	"github.com/panyam/secretkeeper/stores/fs"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	app := sk.NewApp(fs.NewFSAccountStore(t.TempDir()))
	app.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	app.Directory.Hasher = &sk.PBKDF2Hasher{Iterations: 1000, KeyLength: 32, SaltLength: 16}
	app.Directory.Logger = app.Logger
	server := httptest.NewServer(app.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestClient_RegisterLoginAndSecrets(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()
	store := client.NewMemorySessionStore()
	c := client.NewClient(server.URL+"/ignored/path", store)

	if c.ServerURL() != server.URL {
		t.Errorf("ServerURL() = %q, want %q", c.ServerURL(), server.URL)
	}
	if _, err := c.ListSecrets(ctx); !errors.Is(err, client.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn before login, got %v", err)
	}

	session, err := c.Register(ctx, "alice", "pw1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if session.Token == "" || session.Username != "alice" || session.AccountID == "" {
		t.Errorf("unexpected session %+v", session)
	}
	if !c.IsLoggedIn() {
		t.Error("expected to be logged in after Register")
	}

	created, err := c.CreateSecret(ctx, "hello")
	if err != nil {
		t.Fatalf("CreateSecret() error = %v", err)
	}
	secrets, err := c.ListSecrets(ctx)
	if err != nil || len(secrets) != 1 || secrets[0] != *created {
		t.Fatalf("ListSecrets() = %+v, %v", secrets, err)
	}

	updated, err := c.UpdateSecret(ctx, created.ID, "hello again")
	if err != nil || updated.Text != "hello again" {
		t.Fatalf("UpdateSecret() = %+v, %v", updated, err)
	}
	got, err := c.GetSecret(ctx, created.ID)
	if err != nil || got.Text != "hello again" {
		t.Fatalf("GetSecret() = %+v, %v", got, err)
	}

	account, err := c.Account(ctx)
	if err != nil || account.SecretCount != 1 || !account.HasPassword {
		t.Errorf("Account() = %+v, %v", account, err)
	}

	if err := c.DeleteSecret(ctx, created.ID); err != nil {
		t.Fatalf("DeleteSecret() error = %v", err)
	}
	if err := c.DeleteSecret(ctx, created.ID); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if c.IsLoggedIn() {
		t.Error("expected to be logged out")
	}

	// the old token is dead on the server too
	store.SetSession(c.ServerURL(), session)
	if _, err := c.ListSecrets(ctx); !errors.Is(err, client.ErrNotLoggedIn) {
		t.Errorf("expected the terminated session to be rejected, got %v", err)
	}

	if _, err := c.Login(ctx, "alice", "pw1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if secrets, _ := c.ListSecrets(ctx); len(secrets) != 0 {
		t.Errorf("expected no secrets, got %+v", secrets)
	}
}

func TestClient_LoginFailures(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()
	c := client.NewClient(server.URL, client.NewMemorySessionStore())
	if _, err := c.Register(ctx, "alice", "pw1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c.Logout(ctx)

	_, err := c.Login(ctx, "alice", "wrong")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != sk.ErrCodeInvalidCreds {
		t.Errorf("expected invalid_credentials, got %v", err)
	}
	if c.IsLoggedIn() {
		t.Error("a failed login must not store a session")
	}

	_, err = c.Register(ctx, "Alice", "pw2")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a taken username, got %v", err)
	}
}

func TestClient_SessionsAreSeparate(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()
	alice := client.NewClient(server.URL, client.NewMemorySessionStore())
	bob := client.NewClient(server.URL, client.NewMemorySessionStore())
	alice.Register(ctx, "alice", "pw1")
	bob.Register(ctx, "bob", "pw2")

	secret, err := alice.CreateSecret(ctx, "alice only")
	if err != nil {
		t.Fatalf("CreateSecret() error = %v", err)
	}
	if _, err := bob.GetSecret(ctx, secret.ID); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound reading another account's secret, got %v", err)
	}
}

func TestServerSession_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", time.Now().Add(time.Hour), false},
		{"past", time.Now().Add(-time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &client.ServerSession{ExpiresAt: tt.expiresAt}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionTransport_AddsCookie(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("sid"); err == nil {
			seen = ck.Value
		}
	}))
	defer server.Close()

	session := &client.ServerSession{CookieName: "sid", Token: "tok"}
	hc := &http.Client{Transport: &client.SessionTransport{Session: func() *client.ServerSession { return session }}}
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()
	if seen != "tok" {
		t.Errorf("expected cookie tok, got %q", seen)
	}
	if len(req.Header.Values("Cookie")) != 0 {
		t.Error("the caller's request must not be modified")
	}
}
