package secretkeeper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type accountContextKey struct{}

// AccountFromContext returns the account the gate put on the request context, or nil
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey{}).(*Account)
	return account
}

// WithAccount returns a context carrying account
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// Decision is the outcome of a gate check.  Exactly one of Account (allow) or
// RedirectTarget (deny) is set, unless no login url is configured in which case
// a deny has neither.
type Decision struct {
	Account        *Account
	RedirectTarget string
}

func (d Decision) Allowed() bool { return d.Account != nil }

// Gate restricts handlers to requests with an authenticated session
type Gate struct {
	Sessions *SessionManager

	// Where anonymous requests are sent.  If empty a 401 is returned instead.
	LoginURL string

	// Name of the query param carrying the originally requested path
	CallbackURLParam string

	Logger *slog.Logger
}

func (g *Gate) EnsureDefaults() *Gate {
	if g.CallbackURLParam == "" {
		g.CallbackURLParam = "callbackURL"
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	return g
}

func (g *Gate) callbackURLParam() string {
	if g.CallbackURLParam != "" {
		return g.CallbackURLParam
	}
	return "callbackURL"
}

func (g *Gate) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Guard decides whether r may proceed.  Errors are store failures, never an
// anonymous session.
func (g *Gate) Guard(r *http.Request) (Decision, error) {
	account, err := g.Sessions.Restore(r.Context())
	if err != nil {
		return Decision{}, err
	}
	if account != nil {
		return Decision{Account: account}, nil
	}
	if g.LoginURL == "" {
		return Decision{}, nil
	}
	encodedUrl := strings.ReplaceAll(url.QueryEscape(r.URL.Path), "+", "%20")
	return Decision{RedirectTarget: fmt.Sprintf("%s?%s=%s", g.LoginURL, g.callbackURLParam(), encodedUrl)}, nil
}

// ExtractAccount restores the session's account (if any) onto the request
// context.  It does not enforce that one exists, use EnsureAccount for that.
func (g *Gate) ExtractAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := g.Guard(r)
		if err != nil {
			g.logger().Error("error restoring session", "err", err)
			http.Error(w, "Service unavailable", http.StatusInternalServerError)
			return
		}
		if decision.Allowed() {
			r = r.WithContext(WithAccount(r.Context(), decision.Account))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureAccount only lets requests with an authenticated session through
func (g *Gate) EnsureAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := g.Guard(r)
		if err != nil {
			g.logger().Error("error restoring session", "err", err)
			http.Error(w, "Service unavailable", http.StatusInternalServerError)
			return
		}
		if !decision.Allowed() {
			if decision.RedirectTarget != "" && !strings.Contains(r.Header.Get("Accept"), "application/json") {
				http.Redirect(w, r, decision.RedirectTarget, http.StatusFound)
			} else {
				http.Error(w, "Login required", http.StatusUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), decision.Account)))
	})
}
