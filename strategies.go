package secretkeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ExternalProfile is what a provider asserts about the user after a successful code exchange
type ExternalProfile struct {
	ExternalID  string
	DisplayName string
	Email       string
}

// ProviderVerifier is the outbound side of an OAuth style provider.  Verify
// exchanges the authorization code and returns the verified profile.
type ProviderVerifier interface {
	AuthCodeURL(state string) string
	Verify(ctx context.Context, code string) (*ExternalProfile, error)
}

// Strategy proves who the caller is and resolves them to an account.  The set of
// strategies is fixed: LocalStrategy and ProviderStrategy.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (*Account, error)

	strategy()
}

// LocalStrategy authenticates a username and password against the directory
type LocalStrategy struct {
	Directory *Directory
	Metrics   *Metrics
}

func (s *LocalStrategy) Name() string { return ProviderLocal }
func (s *LocalStrategy) strategy()    {}

// Authenticate returns ErrAccountNotFound or ErrBadCredential on failure
func (s *LocalStrategy) Authenticate(ctx context.Context, creds Credentials) (account *Account, err error) {
	defer func() { s.Metrics.authAttempt(s.Name(), err) }()
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrBadCredential
	}
	return s.Directory.VerifyLocal(ctx, creds.Username, creds.Password)
}

// ProviderStrategy authenticates through an external provider.  Every profile
// the verifier returns maps to exactly one account.
type ProviderStrategy struct {
	Provider  string
	Verifier  ProviderVerifier
	Directory *Directory
	Metrics   *Metrics
	Logger    *slog.Logger
}

func NewProviderStrategy(provider string, verifier ProviderVerifier, directory *Directory) *ProviderStrategy {
	return &ProviderStrategy{
		Provider:  provider,
		Verifier:  verifier,
		Directory: directory,
		Logger:    slog.Default(),
	}
}

func (s *ProviderStrategy) Name() string { return s.Provider }
func (s *ProviderStrategy) strategy()    {}

// VerifyCode runs the provider exchange without touching the directory
func (s *ProviderStrategy) VerifyCode(ctx context.Context, code string) (*ExternalProfile, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrProviderAuthFailed)
	}
	profile, err := s.Verifier.Verify(ctx, code)
	if err != nil {
		if errors.Is(err, ErrProviderAuthFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderAuthFailed, s.Provider, err)
	}
	if profile == nil || profile.ExternalID == "" {
		return nil, fmt.Errorf("%w: %s returned no user id", ErrProviderAuthFailed, s.Provider)
	}
	return profile, nil
}

// Authenticate exchanges creds.Code and finds or creates the account for the resulting identity
func (s *ProviderStrategy) Authenticate(ctx context.Context, creds Credentials) (account *Account, err error) {
	defer func() { s.Metrics.authAttempt(s.Name(), err) }()
	profile, err := s.VerifyCode(ctx, creds.Code)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("provider verification failed", "provider", s.Provider, "err", err)
		}
		return nil, err
	}
	return s.Directory.FindOrCreateByProvider(ctx, s.Provider, profile.ExternalID, profile.DisplayName)
}
