package secretkeeper

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// App wires the auth flows and the secret endpoints into one http.Handler.
//
//	POST   /register                     register a local account and sign in
//	POST   /login                        local login
//	GET    /login                        where anonymous requests are sent
//	GET    /auth/{provider}              start a provider login
//	GET    /auth/{provider}/callback     provider callback
//	GET    /logout, POST /logout         end the session
//	GET    /secrets                      list secrets
//	POST   /secrets                      create a secret
//	GET    /secrets/{id}                 read a secret for editing
//	PUT    /secrets/{id}, POST ...       update a secret
//	DELETE /secrets/{id}                 delete a secret
//	POST   /secrets/{id}/delete          delete a secret (form friendly)
//	GET    /account                      the signed in account
//	POST   /account/credential           add or change the local password
//	GET    /account/link/{provider}      link another provider to the account
//
// Everything except /, /register, /login and /auth/... sits behind the Gate.
type App struct {
	router *mux.Router

	Sessions  *SessionManager
	Directory *Directory
	Secrets   *SecretManager
	Local     *LocalAuth
	Gate      *Gate
	State     *StateCodec
	Metrics   *Metrics
	Logger    *slog.Logger

	// Provider logins.  Either may be nil when not configured.
	Google *ProviderStrategy
	Github *ProviderStrategy

	// Where to go after a successful login.  Defaults to /secrets
	SuccessURL string

	// Where anonymous and failed logins are sent.  Defaults to /login
	LoginURL string

	// Where to go after logout.  Defaults to /
	HomeURL string
}

// NewApp creates an app over store with default sessions, hashing and state signing
func NewApp(store AccountStore) *App {
	directory := NewDirectory(store)
	return (&App{
		Sessions:  NewSessionManager(nil, store),
		Directory: directory,
		Secrets:   NewSecretManager(store),
	}).EnsureDefaults()
}

func (a *App) EnsureDefaults() *App {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.SuccessURL == "" {
		a.SuccessURL = "/secrets"
	}
	if a.LoginURL == "" {
		a.LoginURL = "/login"
	}
	if a.HomeURL == "" {
		a.HomeURL = "/"
	}
	if a.State == nil {
		a.State = &StateCodec{}
	}
	a.State.EnsureDefaults()
	if a.Directory != nil && a.Directory.Metrics == nil {
		a.Directory.Metrics = a.Metrics
	}
	if a.Secrets != nil && a.Secrets.Metrics == nil {
		a.Secrets.Metrics = a.Metrics
	}
	if a.Gate == nil {
		a.Gate = &Gate{Sessions: a.Sessions, LoginURL: a.LoginURL, Logger: a.Logger}
	}
	a.Gate.EnsureDefaults()
	if a.Local == nil {
		a.Local = &LocalAuth{Directory: a.Directory, Logger: a.Logger}
	}
	if a.Local.Strategy == nil {
		a.Local.Strategy = &LocalStrategy{Directory: a.Directory, Metrics: a.Metrics}
	}
	if a.Local.HandleAccount == nil {
		a.Local.HandleAccount = a.onLocalLogin
	}
	for _, s := range []*ProviderStrategy{a.Google, a.Github} {
		if s != nil && s.Metrics == nil {
			s.Metrics = a.Metrics
		}
	}
	return a
}

// Strategy returns the authentication strategy with the given name.  The set is
// fixed to local, google and github.
func (a *App) Strategy(name string) (Strategy, bool) {
	switch name {
	case ProviderLocal:
		return a.Local.Strategy, a.Local.Strategy != nil
	case ProviderGoogle:
		return a.Google, a.Google != nil
	case ProviderGithub:
		return a.Github, a.Github != nil
	}
	return nil, false
}

func (a *App) providerStrategy(name string) *ProviderStrategy {
	if name == ProviderLocal {
		return nil
	}
	s, ok := a.Strategy(name)
	if !ok {
		return nil
	}
	ps, _ := s.(*ProviderStrategy)
	return ps
}

// Handler returns the routes wrapped in the session middleware
func (a *App) Handler() http.Handler {
	return a.Sessions.LoadAndSave(a.setupRoutes().router)
}

// Router exposes the underlying router so hosts can add their own routes
func (a *App) Router() *mux.Router {
	return a.setupRoutes().router
}

func (a *App) setupRoutes() *App {
	if a.router != nil {
		return a
	}
	a.EnsureDefaults()
	r := mux.NewRouter()
	a.router = r

	open := func(name string, h http.HandlerFunc) http.Handler {
		return a.Metrics.Instrument(name, h)
	}
	gated := func(name string, h http.HandlerFunc) http.Handler {
		return a.Metrics.Instrument(name, a.Gate.EnsureAccount(h))
	}

	r.Handle("/", a.Metrics.Instrument("home", a.Gate.ExtractAccount(http.HandlerFunc(a.onHome)))).Methods(http.MethodGet)
	r.Handle("/register", open("register", a.Local.HandleSignup)).Methods(http.MethodPost)
	r.Handle("/login", open("login", a.Local.ServeHTTP)).Methods(http.MethodPost)
	r.Handle("/login", open("login_page", a.onLoginPage)).Methods(http.MethodGet)
	r.Handle("/auth/{provider}", open("begin_provider_auth", a.onBeginProviderAuth)).Methods(http.MethodGet)
	r.Handle("/auth/{provider}/callback", open("provider_callback", a.onProviderCallback)).Methods(http.MethodGet)
	r.Handle("/logout", gated("logout", a.onLogout)).Methods(http.MethodGet, http.MethodPost)

	r.Handle("/secrets", gated("list_secrets", a.onListSecrets)).Methods(http.MethodGet)
	r.Handle("/secrets", gated("create_secret", a.onCreateSecret)).Methods(http.MethodPost)
	r.Handle("/secrets/{id}", gated("read_secret", a.onReadSecret)).Methods(http.MethodGet)
	r.Handle("/secrets/{id}", gated("update_secret", a.onUpdateSecret)).Methods(http.MethodPut, http.MethodPost)
	r.Handle("/secrets/{id}", gated("delete_secret", a.onDeleteSecret)).Methods(http.MethodDelete)
	r.Handle("/secrets/{id}/delete", gated("delete_secret", a.onDeleteSecret)).Methods(http.MethodPost)

	r.Handle("/account", gated("account", a.onAccount)).Methods(http.MethodGet)
	r.Handle("/account/credential", gated("set_credential", a.Local.HandleSetCredential)).Methods(http.MethodPost)
	r.Handle("/account/link/{provider}", gated("link_provider", a.onBeginLink)).Methods(http.MethodGet)
	return a
}

func (a *App) onHome(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"authenticated": false}
	if account := AccountFromContext(r.Context()); account != nil {
		body["authenticated"] = true
		body["account"] = newAccountView(account)
	}
	writeJSON(w, http.StatusOK, body)
}

// onLoginPage is where the gate and failed provider logins land
func (a *App) onLoginPage(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"login_required": true}
	if e := r.URL.Query().Get("error"); e != "" {
		body["error"] = e
	}
	if cb := r.URL.Query().Get(a.Gate.CallbackURLParam); cb != "" {
		body[a.Gate.CallbackURLParam] = cb
	}
	writeJSON(w, http.StatusUnauthorized, body)
}

// onLocalLogin runs after a successful local login or registration
func (a *App) onLocalLogin(account *Account, w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get(a.Gate.CallbackURLParam)
	if target == "" && isFormRequest(r) {
		target = r.FormValue(a.Gate.CallbackURLParam)
	}
	a.establishAndRedirect(account, target, w, r)
}

// establishAndRedirect starts a session for account and sends the client on to
// target (if it is a local path) or SuccessURL
func (a *App) establishAndRedirect(account *Account, target string, w http.ResponseWriter, r *http.Request) {
	if _, err := a.Sessions.Establish(r.Context(), account); err != nil {
		a.Logger.Error("error establishing session", "accountId", account.ID, "err", err)
		writeAuthError(w, http.StatusInternalServerError, NewAuthError(ErrCodeInternal, "Could not start session", ""))
		return
	}
	if !isLocalRedirect(target) {
		target = a.SuccessURL
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"account": newAccountView(account), "redirect": target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (a *App) onLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Terminate(r.Context()); err != nil {
		a.Logger.Error("error terminating session", "err", err)
		http.Error(w, "Logout failed", http.StatusInternalServerError)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	target := r.URL.Query().Get("to")
	if !isLocalRedirect(target) {
		target = a.HomeURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *App) onBeginProviderAuth(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	strategy := a.providerStrategy(provider)
	if strategy == nil {
		http.NotFound(w, r)
		return
	}
	state := OAuthState{Provider: provider}
	if cb := r.URL.Query().Get(a.Gate.CallbackURLParam); isLocalRedirect(cb) {
		state.CallbackURL = cb
	}
	a.redirectToProvider(strategy, state, w, r)
}

// onBeginLink starts a provider round trip that links the identity to the
// signed in account instead of logging in
func (a *App) onBeginLink(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	strategy := a.providerStrategy(provider)
	if strategy == nil {
		http.NotFound(w, r)
		return
	}
	state := OAuthState{
		Provider:      provider,
		LinkAccountID: AccountFromContext(r.Context()).ID,
		CallbackURL:   "/account",
	}
	if cb := r.URL.Query().Get(a.Gate.CallbackURLParam); isLocalRedirect(cb) {
		state.CallbackURL = cb
	}
	a.redirectToProvider(strategy, state, w, r)
}

func (a *App) redirectToProvider(strategy *ProviderStrategy, state OAuthState, w http.ResponseWriter, r *http.Request) {
	signed, err := a.State.Issue(w, state)
	if err != nil {
		a.Logger.Error("error issuing oauth state", "err", err)
		http.Error(w, "Could not start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, strategy.Verifier.AuthCodeURL(signed), http.StatusFound)
}

func (a *App) onProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	strategy := a.providerStrategy(provider)
	if strategy == nil {
		http.NotFound(w, r)
		return
	}
	state, err := a.State.Consume(w, r, provider)
	if err == nil && r.FormValue("error") != "" {
		err = errors.New(r.FormValue("error"))
	}
	if err != nil {
		a.providerAuthFailed(provider, err, w, r)
		return
	}

	if state.LinkAccountID != "" {
		a.finishLink(strategy, state, w, r)
		return
	}

	account, err := strategy.Authenticate(r.Context(), Credentials{Code: r.FormValue("code")})
	if err != nil {
		if errors.Is(err, ErrProviderAuthFailed) {
			a.providerAuthFailed(provider, err, w, r)
		} else {
			a.Logger.Error("error resolving provider account", "provider", provider, "err", err)
			http.Error(w, "Login is temporarily unavailable", http.StatusInternalServerError)
		}
		return
	}
	a.establishAndRedirect(account, state.CallbackURL, w, r)
}

func (a *App) finishLink(strategy *ProviderStrategy, state *OAuthState, w http.ResponseWriter, r *http.Request) {
	current, err := a.Sessions.Restore(r.Context())
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusInternalServerError)
		return
	}
	if current == nil || current.ID != state.LinkAccountID {
		writeAuthError(w, http.StatusUnauthorized, NewAuthError("not_authenticated", "Sign in again to link accounts", ""))
		return
	}
	profile, err := strategy.VerifyCode(r.Context(), r.FormValue("code"))
	if err != nil {
		a.providerAuthFailed(strategy.Provider, err, w, r)
		return
	}
	_, err = a.Directory.LinkProvider(r.Context(), current.ID, strategy.Provider, profile.ExternalID)
	switch {
	case err == nil:
		http.Redirect(w, r, state.CallbackURL, http.StatusFound)
	case errors.Is(err, ErrProviderLinked):
		writeAuthError(w, http.StatusConflict, NewAuthError(ErrCodeProviderLinked, "This account is already linked to another user", "provider"))
	default:
		a.Logger.Error("error linking provider", "provider", strategy.Provider, "err", err)
		http.Error(w, "Could not link account", http.StatusInternalServerError)
	}
}

func (a *App) providerAuthFailed(provider string, err error, w http.ResponseWriter, r *http.Request) {
	a.Logger.Warn("provider login failed", "provider", provider, "err", err)
	target := a.LoginURL + "?error=" + url.QueryEscape("provider_auth_failed")
	http.Redirect(w, r, target, http.StatusFound)
}
