package secretkeeper

import (
	"errors"
	"net/http"
)

// HandleSignup registers a new local account and signs it in
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	username, password, err := a.parseCredentialsForm(r)
	if err != nil {
		a.handleSignupError(NewAuthError("parse_error", err.Error(), ""), w, r)
		return
	}
	if authErr := a.getSignupPolicy().Validate(username, password); authErr != nil {
		a.handleSignupError(authErr, w, r)
		return
	}

	account, err := a.Directory.RegisterLocal(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			a.handleSignupError(NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username"), w, r)
		} else {
			a.logger().Error("error registering account", "err", err)
			a.handleSignupError(NewAuthError(ErrCodeInternal, "Registration is temporarily unavailable", ""), w, r)
		}
		return
	}
	a.HandleAccount(account, w, r)
}

// getSignupPolicy returns the configured policy or default
func (a *LocalAuth) getSignupPolicy() SignupPolicy {
	if a.SignupPolicy != nil {
		return *a.SignupPolicy
	}
	return DefaultSignupPolicy()
}

// handleSignupError handles signup errors using the configured handler or default JSON
func (a *LocalAuth) handleSignupError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if a.OnSignupError != nil && a.OnSignupError(err, w, r) {
		return
	}
	statusCode := http.StatusBadRequest
	switch err.Code {
	case ErrCodeUsernameTaken:
		statusCode = http.StatusConflict
	case ErrCodeInternal:
		statusCode = http.StatusInternalServerError
	}
	writeAuthError(w, statusCode, err)
}
