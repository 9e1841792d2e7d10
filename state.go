package secretkeeper

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Name of the cookie holding the nonce that the state param must echo
const oauthStateCookie = "oauthstate"

// OAuthState is carried through the provider round trip in the state param
type OAuthState struct {
	Provider    string `json:"provider"`
	Nonce       string `json:"nonce"`
	CallbackURL string `json:"callback_url,omitempty"`

	// Set when a signed in account is linking another provider rather than logging in
	LinkAccountID string `json:"link_account_id,omitempty"`

	jwt.RegisteredClaims
}

// StateCodec signs and verifies OAuthState as an HS256 JWT.  The state is only
// accepted back together with the nonce cookie set when it was issued.
type StateCodec struct {
	SecretKey string
	Issuer    string
	TTL       time.Duration

	// Set the Secure flag on the nonce cookie
	SecureCookie bool
}

func (c *StateCodec) EnsureDefaults() *StateCodec {
	if c.SecretKey == "" {
		c.SecretKey = strings.TrimSpace(os.Getenv("SECRETKEEPER_STATE_KEY"))
		if c.SecretKey == "" {
			c.SecretKey = "MyTestStateSecretKey123456"
		}
	}
	if c.Issuer == "" {
		c.Issuer = "secretkeeper"
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	return c
}

// Issue sets the nonce cookie on w and returns the signed state param
func (c *StateCodec) Issue(w http.ResponseWriter, state OAuthState) (string, error) {
	c.EnsureDefaults()
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	state.Nonce = nonce
	state.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &state).SignedString([]byte(c.SecretKey))
	if err != nil {
		return "", fmt.Errorf("error signing oauth state: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    nonce,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return signed, nil
}

// Consume verifies the state param of a callback request against the nonce
// cookie and the expected provider, and clears the cookie.
func (c *StateCodec) Consume(w http.ResponseWriter, r *http.Request, provider string) (*OAuthState, error) {
	c.EnsureDefaults()
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1, Expires: time.Unix(0, 0)})

	cookie, _ := r.Cookie(oauthStateCookie)
	if cookie == nil || cookie.Value == "" {
		return nil, fmt.Errorf("%w: missing state cookie", ErrProviderAuthFailed)
	}
	var state OAuthState
	_, err := jwt.ParseWithClaims(r.FormValue("state"), &state, func(token *jwt.Token) (any, error) {
		return []byte(c.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(c.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid state: %w", ErrProviderAuthFailed, err)
	}
	if state.Nonce != cookie.Value {
		return nil, fmt.Errorf("%w: state does not match cookie", ErrProviderAuthFailed)
	}
	if state.Provider != provider {
		return nil, fmt.Errorf("%w: state issued for %q", ErrProviderAuthFailed, state.Provider)
	}
	return &state, nil
}
