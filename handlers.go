package secretkeeper

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// Form (and JSON) field names accepted for secret text
var secretTextFields = []string{"text", "secret"}

func (a *App) onAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"account": newAccountView(AccountFromContext(r.Context()))})
}

func (a *App) onListSecrets(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"secrets": a.Secrets.List(account)})
}

func (a *App) onCreateSecret(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	text, err := parseTextField(r, secretTextFields...)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError("parse_error", err.Error(), ""))
		return
	}
	if text == "" {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingField, "Secret text is required", "text"))
		return
	}
	secret, err := a.Secrets.Create(r.Context(), account, text)
	if err != nil {
		a.secretError(w, err)
		return
	}
	if !wantsJSON(r) {
		http.Redirect(w, r, a.SuccessURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"secret": secret})
}

func (a *App) onReadSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := a.Secrets.Read(AccountFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		a.secretError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secret": secret})
}

func (a *App) onUpdateSecret(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	text, err := parseTextField(r, secretTextFields...)
	if err != nil {
		writeAuthError(w, http.StatusBadRequest, NewAuthError("parse_error", err.Error(), ""))
		return
	}
	if text == "" {
		writeAuthError(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingField, "Secret text is required", "text"))
		return
	}
	secret, err := a.Secrets.Update(r.Context(), account, mux.Vars(r)["id"], text)
	if err != nil {
		a.secretError(w, err)
		return
	}
	if !wantsJSON(r) {
		http.Redirect(w, r, a.SuccessURL, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secret": secret})
}

func (a *App) onDeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := a.Secrets.Delete(r.Context(), AccountFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		a.secretError(w, err)
		return
	}
	if r.Method == http.MethodPost && !wantsJSON(r) {
		http.Redirect(w, r, a.SuccessURL, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// secretError never distinguishes "not yours" from "does not exist"
func (a *App) secretError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeAuthError(w, http.StatusNotFound, NewAuthError(ErrCodeNotFound, "Secret not found", "id"))
		return
	}
	a.Logger.Error("secret operation failed", "err", err)
	writeAuthError(w, http.StatusInternalServerError, NewAuthError(ErrCodeInternal, "Secret store unavailable", ""))
}
