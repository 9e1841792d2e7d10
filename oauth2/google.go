package oauth2

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/google"

	sk "github.com/panyam/secretkeeper"
)

const GoogleIssuer = "https://accounts.google.com"

// GoogleVerifier exchanges a Google authorization code and verifies the
// returned id_token.  The profile comes from the token claims.
type GoogleVerifier struct {
	*BaseOAuth2
	IDTokenVerifier *oidc.IDTokenVerifier
}

var _ sk.ProviderVerifier = (*GoogleVerifier)(nil)

// NewGoogleVerifier discovers Google's signing keys
func NewGoogleVerifier(ctx context.Context, clientId, clientSecret, callbackUrl string) (*GoogleVerifier, error) {
	base := NewBaseOAuth2(sk.ProviderGoogle, clientId, clientSecret, callbackUrl, google.Endpoint,
		oidc.ScopeOpenID, "email", "profile")
	provider, err := oidc.NewProvider(base.clientContext(ctx), GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	return NewGoogleVerifierWith(base, provider.Verifier(&oidc.Config{ClientID: base.ClientId})), nil
}

// NewGoogleVerifierWith uses an explicit client and id token verifier
func NewGoogleVerifierWith(base *BaseOAuth2, verifier *oidc.IDTokenVerifier) *GoogleVerifier {
	return &GoogleVerifier{BaseOAuth2: base, IDTokenVerifier: verifier}
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (g *GoogleVerifier) Verify(ctx context.Context, code string) (*sk.ExternalProfile, error) {
	token, err := g.exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sk.ErrProviderAuthFailed, err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: no id_token in token response", sk.ErrProviderAuthFailed)
	}
	idToken, err := g.IDTokenVerifier.Verify(g.clientContext(ctx), rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id_token: %v", sk.ErrProviderAuthFailed, err)
	}
	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: bad id_token claims: %v", sk.ErrProviderAuthFailed, err)
	}
	return &sk.ExternalProfile{
		ExternalID:  idToken.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}
