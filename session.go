package secretkeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

// Session key holding the authenticated account id.  Nothing else about the
// account is kept in the session.
const sessionAccountKey = "accountId"

// SessionManager binds account ids to scs sessions and resolves them back to
// accounts on later requests.  The account is re-read from the store on every
// restore so it is never stale across requests.
//
// All methods except RestoreToken expect a context that scs has already loaded
// a session into (see LoadAndSave).
type SessionManager struct {
	Sessions *scs.SessionManager
	Store    AccountStore
	Logger   *slog.Logger
}

// NewSessionManager wraps sessions (or a default in-memory scs manager if nil)
func NewSessionManager(sessions *scs.SessionManager, store AccountStore) *SessionManager {
	if sessions == nil {
		sessions = scs.New()
		sessions.Lifetime = 24 * time.Hour
		sessions.Cookie.Name = "secretkeeper_session"
		sessions.Cookie.HttpOnly = true
		sessions.Cookie.SameSite = http.SameSiteLaxMode
	}
	return &SessionManager{Sessions: sessions, Store: store, Logger: slog.Default()}
}

// LoadAndSave loads the session named by the request cookie and commits it after next runs
func (m *SessionManager) LoadAndSave(next http.Handler) http.Handler {
	return m.Sessions.LoadAndSave(next)
}

// Establish binds account to the current session under a freshly issued token
// and returns that token.
func (m *SessionManager) Establish(ctx context.Context, account *Account) (string, error) {
	if account == nil || account.ID == "" {
		return "", fmt.Errorf("cannot establish a session without an account")
	}
	// token changes on every login
	if err := m.Sessions.RenewToken(ctx); err != nil {
		return "", fmt.Errorf("error renewing session token: %w", err)
	}
	m.Sessions.Put(ctx, sessionAccountKey, account.ID)
	token, _, err := m.Sessions.Commit(ctx)
	if err != nil {
		return "", StoreError("commit session", err)
	}
	return token, nil
}

// AccountID returns the id bound to the current session or "" if anonymous
func (m *SessionManager) AccountID(ctx context.Context) string {
	return m.Sessions.GetString(ctx, sessionAccountKey)
}

// Restore returns the account bound to the current session.  A nil account with
// a nil error means the session is anonymous, including when the bound account
// no longer exists.
func (m *SessionManager) Restore(ctx context.Context) (*Account, error) {
	accountId := m.AccountID(ctx)
	if accountId == "" {
		return nil, nil
	}
	account, err := m.Store.GetAccountById(ctx, accountId)
	if errors.Is(err, ErrNotFound) {
		m.Logger.Warn("session bound to unknown account", "accountId", accountId)
		m.Sessions.Remove(ctx, sessionAccountKey)
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return account, nil
}

// RestoreToken loads the session named by token (for transports without
// cookies) and restores its account.  The returned context carries the loaded
// session.
func (m *SessionManager) RestoreToken(ctx context.Context, token string) (context.Context, *Account, error) {
	ctx, err := m.Sessions.Load(ctx, token)
	if err != nil {
		return ctx, nil, StoreError("load session", err)
	}
	account, err := m.Restore(ctx)
	return ctx, account, err
}

// Terminate destroys the current session.  Its token never restores an account again.
func (m *SessionManager) Terminate(ctx context.Context) error {
	if err := m.Sessions.Destroy(ctx); err != nil {
		return StoreError("destroy session", err)
	}
	return nil
}
