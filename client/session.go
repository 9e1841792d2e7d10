// Package client talks to a secretkeeper server from the command line.  It
// signs in with a username and password, remembers the session cookie per
// server, and manages the signed in account's secrets.
package client

import (
	"time"
)

// ServerSession is a signed in session on one server
type ServerSession struct {
	CookieName string    `json:"cookie_name"`
	Token      string    `json:"token"`
	AccountID  string    `json:"account_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsExpired is true once the server side cookie has expired.  Sessions without
// an expiry never expire locally.
func (s *ServerSession) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// SessionStore keeps sessions keyed by server URL
type SessionStore interface {
	// GetSession returns nil, nil if there is no session for the server
	GetSession(serverURL string) (*ServerSession, error)

	SetSession(serverURL string, session *ServerSession) error

	RemoveSession(serverURL string) error

	// ListServers returns all server URLs with stored sessions
	ListServers() ([]string, error)

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// MemorySessionStore keeps sessions for the life of the process
type MemorySessionStore struct {
	sessions map[string]*ServerSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]*ServerSession{}}
}

func (m *MemorySessionStore) GetSession(serverURL string) (*ServerSession, error) {
	return m.sessions[serverURL], nil
}

func (m *MemorySessionStore) SetSession(serverURL string, session *ServerSession) error {
	m.sessions[serverURL] = session
	return nil
}

func (m *MemorySessionStore) RemoveSession(serverURL string) error {
	delete(m.sessions, serverURL)
	return nil
}

func (m *MemorySessionStore) ListServers() ([]string, error) {
	out := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemorySessionStore) Save() error { return nil }
