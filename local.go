package secretkeeper

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// HandleAccountFunc is called once a request has been authenticated as account
type HandleAccountFunc func(account *Account, w http.ResponseWriter, r *http.Request)

// AuthErrorHandler may render an auth failure itself (for example by redirecting
// back to a form).  Returning false falls back to the default JSON error.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool

// LocalAuth serves username/password login, registration and credential changes
type LocalAuth struct {
	Strategy  *LocalStrategy
	Directory *Directory

	// Checks applied on registration and credential changes
	SignupPolicy *SignupPolicy

	// Form field names
	UsernameField string
	PasswordField string

	// Called after a successful login or registration
	HandleAccount HandleAccountFunc

	// OnSignupError is called when registration fails. If nil, returns JSON error.
	OnSignupError AuthErrorHandler

	// OnLoginError is called when login fails. If nil, returns JSON error.
	OnLoginError AuthErrorHandler

	Logger *slog.Logger
}

func (a *LocalAuth) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, password, err := a.parseLoginForm(r)
	if err != nil {
		a.handleLoginError(NewAuthError(ErrCodeMissingField, err.Error(), "username"), w, r)
		return
	}

	account, err := a.Strategy.Authenticate(r.Context(), Credentials{Username: username, Password: password})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadCredential) {
			// unknown user and wrong password look the same to the client
			a.handleLoginError(NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "password"), w, r)
		} else {
			a.logger().Error("error verifying credentials", "err", err)
			a.handleLoginError(NewAuthError(ErrCodeInternal, "Login is temporarily unavailable", ""), w, r)
		}
		return
	}
	a.HandleAccount(account, w, r)
}

// HandleSetCredential adds (or replaces) a password on the signed in account.
// Mount it behind Gate.EnsureAccount.
//
// # Form Fields
//
//   - password (required): The new password
//   - username (required if the account has none): Username for local login
//
// # Responses
//
//   - 200 OK: {"success": true, "username": "..."}
//   - 400 Bad Request: {"error": "...", "code": "...", "field": "..."}
//   - 401 Unauthorized: not signed in
//   - 409 Conflict: username taken
func (a *LocalAuth) HandleSetCredential(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if account == nil {
		writeAuthError(w, http.StatusUnauthorized, NewAuthError("not_authenticated", "Login required", ""))
		return
	}
	username, password, err := a.parseCredentialsForm(r)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError("parse_error", err.Error(), ""))
		return
	}
	if username == "" {
		username = account.Username
	}
	if authErr := a.getSignupPolicy().Validate(username, password); authErr != nil {
		writeAuthError(w, http.StatusBadRequest, authErr)
		return
	}

	updated, err := a.Directory.SetLocalCredential(r.Context(), account.ID, username, password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": updated.Username})
	case errors.Is(err, ErrUsernameTaken):
		writeAuthError(w, http.StatusConflict, NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username"))
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrNotFound):
		a.logger().Error("error setting credential", "accountId", account.ID, "err", err)
		writeAuthError(w, http.StatusInternalServerError, NewAuthError(ErrCodeInternal, "Could not update credentials", ""))
	default:
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidUsername, err.Error(), "username"))
	}
}

func (a *LocalAuth) parseLoginForm(r *http.Request) (username, password string, err error) {
	username, password, err = a.parseCredentialsForm(r)
	if err != nil {
		return "", "", err
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("username and password required")
	}
	return username, password, nil
}

// parseCredentialsForm reads the username and password from a form or JSON body
func (a *LocalAuth) parseCredentialsForm(r *http.Request) (username, password string, err error) {
	usernameField := a.getUsernameField()
	passwordField := a.getPasswordField()

	if isFormRequest(r) {
		if err = r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("error parsing form")
		}
		username = r.FormValue(usernameField)
		password = r.FormValue(passwordField)
	} else {
		var data map[string]any
		if err = json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", fmt.Errorf("invalid post body")
		}
		if u, ok := data[usernameField].(string); ok {
			username = u
		}
		if p, ok := data[passwordField].(string); ok {
			password = p
		}
	}
	return strings.TrimSpace(username), password, nil
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

// handleLoginError handles login errors using the configured handler or default JSON
func (a *LocalAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	// 400 for validation errors, 401 for invalid credentials
	statusCode := http.StatusUnauthorized
	switch err.Code {
	case ErrCodeMissingField, ErrCodeInvalidUsername:
		statusCode = http.StatusBadRequest
	case ErrCodeInternal:
		statusCode = http.StatusInternalServerError
	}
	writeAuthError(w, statusCode, err)
}
