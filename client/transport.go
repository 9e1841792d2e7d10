package client

import (
	"net/http"
)

// SessionTransport attaches a session cookie to every request
type SessionTransport struct {
	Base    http.RoundTripper
	Session func() *ServerSession
}

// RoundTrip implements http.RoundTripper
func (t *SessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Session != nil {
		if s := t.Session(); s != nil && s.Token != "" {
			// never mutate the caller's request
			req = req.Clone(req.Context())
			req.AddCookie(&http.Cookie{Name: s.CookieName, Value: s.Token})
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
