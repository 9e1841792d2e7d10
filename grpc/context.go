// Package grpc carries secretkeeper sessions over gRPC.  Clients send the
// session token in metadata and the interceptors restore the account through
// the same sk.SessionManager the HTTP gate uses.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	sk "github.com/panyam/secretkeeper"
)

// DefaultMetadataKeySessionToken is the default gRPC metadata key for the session token
const DefaultMetadataKeySessionToken = "x-session-token"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeySessionToken is the gRPC metadata key holding the session token.
	// Defaults to "x-session-token".
	MetadataKeySessionToken string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeySessionToken: DefaultMetadataKeySessionToken,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
}

// SessionTokenFromContext extracts the session token from incoming metadata.
// Returns empty string if none was sent.
func SessionTokenFromContext(ctx context.Context) string {
	return SessionTokenFromContextWithConfig(ctx, nil)
}

func SessionTokenFromContextWithConfig(ctx context.Context, config *Config) string {
	key := DefaultMetadataKeySessionToken
	if config != nil && config.MetadataKeySessionToken != "" {
		key = config.MetadataKeySessionToken
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// SessionTokenToOutgoingContext adds the session token to outgoing gRPC context metadata.
func SessionTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return SessionTokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeySessionToken)
}

func SessionTokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, token)
}

// AccountFromContext returns the account the interceptor restored, or nil
func AccountFromContext(ctx context.Context) *sk.Account {
	return sk.AccountFromContext(ctx)
}

// IsAuthenticated returns true if the interceptor restored an account for this call.
func IsAuthenticated(ctx context.Context) bool {
	return AccountFromContext(ctx) != nil
}
