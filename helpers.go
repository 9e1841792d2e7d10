package secretkeeper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("error writing response", "err", err)
	}
}

func writeAuthError(w http.ResponseWriter, status int, err *AuthError) {
	writeJSON(w, status, err)
}

func isFormRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data")
}

// wantsJSON is true for API clients.  Browser form posts get redirects instead.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return !isFormRequest(r) && r.Method != http.MethodGet
}

// isLocalRedirect only accepts absolute paths on this host
func isLocalRedirect(target string) bool {
	return strings.HasPrefix(target, "/") &&
		!strings.HasPrefix(target, "//") &&
		!strings.HasPrefix(target, "/\\")
}

// parseTextField reads the first non empty of fields from a form or JSON body
func parseTextField(r *http.Request, fields ...string) (string, error) {
	if isFormRequest(r) {
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("error parsing form")
		}
		for _, f := range fields {
			if v := r.FormValue(f); v != "" {
				return v, nil
			}
		}
		return "", nil
	}
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		return "", fmt.Errorf("invalid post body")
	}
	for _, f := range fields {
		if v, ok := data[f].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", nil
}

// accountView is the public shape of an account.  Credentials and secrets are never included.
type accountView struct {
	ID          string   `json:"id"`
	Username    string   `json:"username,omitempty"`
	Providers   []string `json:"providers"`
	HasPassword bool     `json:"has_password"`
	SecretCount int      `json:"secret_count"`
}

func newAccountView(a *Account) accountView {
	return accountView{
		ID:          a.ID,
		Username:    a.Username,
		Providers:   a.Providers(),
		HasPassword: a.HasLocalCredential(),
		SecretCount: len(a.Secrets),
	}
}
