package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"

	sk "github.com/panyam/secretkeeper"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeySessionToken != DefaultMetadataKeySessionToken {
		t.Errorf("expected MetadataKeySessionToken %q, got %q", DefaultMetadataKeySessionToken, config.MetadataKeySessionToken)
	}

	empty := &Config{}
	empty.EnsureDefaults()
	if empty.MetadataKeySessionToken != DefaultMetadataKeySessionToken {
		t.Errorf("expected EnsureDefaults to fill the key, got %q", empty.MetadataKeySessionToken)
	}
}

func TestSessionTokenFromContext(t *testing.T) {
	if token := SessionTokenFromContext(context.Background()); token != "" {
		t.Errorf("expected empty token without metadata, got %q", token)
	}

	md := metadata.Pairs(DefaultMetadataKeySessionToken, "tok-1")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if token := SessionTokenFromContext(ctx); token != "tok-1" {
		t.Errorf("expected tok-1, got %q", token)
	}

	custom := &Config{MetadataKeySessionToken: "x-custom"}
	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-custom", "tok-2"))
	if token := SessionTokenFromContextWithConfig(ctx, custom); token != "tok-2" {
		t.Errorf("expected tok-2, got %q", token)
	}

	empty := &Config{}
	ctx = metadata.NewIncomingContext(context.Background(), md)
	if token := SessionTokenFromContextWithConfig(ctx, empty); token != "tok-1" {
		t.Errorf("expected the default key to be used, got %q", token)
	}
	if empty.MetadataKeySessionToken != "" {
		t.Errorf("reading a token must not modify the config, got %q", empty.MetadataKeySessionToken)
	}
}

func TestSessionTokenToOutgoingContext(t *testing.T) {
	ctx := SessionTokenToOutgoingContext(context.Background(), "tok-3")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if values := md.Get(DefaultMetadataKeySessionToken); len(values) != 1 || values[0] != "tok-3" {
		t.Errorf("unexpected metadata %v", values)
	}
}

func TestIsAuthenticated(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected anonymous context")
	}
	ctx := sk.WithAccount(context.Background(), &sk.Account{ID: "a1"})
	if !IsAuthenticated(ctx) || AccountFromContext(ctx).ID != "a1" {
		t.Error("expected account a1 on context")
	}
}
