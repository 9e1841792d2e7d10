// Package storetest holds the behaviour every sk.AccountStore must share.  Store
// packages call RunAccountStoreTests from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sk "github.com/panyam/secretkeeper"
)

// NewAccount builds an unsaved account
func NewAccount(username string, providers map[string]string) *sk.Account {
	now := time.Now().UTC().Truncate(time.Second)
	if providers == nil {
		providers = map[string]string{}
	}
	return &sk.Account{
		ID:          sk.NewID(),
		Username:    username,
		ProviderIDs: providers,
		Secrets:     []sk.Secret{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RunAccountStoreTests runs the shared suite.  newStore must return an empty store.
func RunAccountStoreTests(t *testing.T, newStore func(t *testing.T) sk.AccountStore) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount("alice", nil)
		account.Credential = &sk.Credential{Hash: "abcd", Salt: "0102"}
		if err := store.CreateAccount(ctx, account); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		got, err := store.GetAccountById(ctx, account.ID)
		if err != nil {
			t.Fatalf("GetAccountById failed: %v", err)
		}
		if got.Username != "alice" {
			t.Errorf("Expected username alice, got %q", got.Username)
		}
		if got.Credential == nil || got.Credential.Hash != "abcd" || got.Credential.Salt != "0102" {
			t.Errorf("Credential not persisted: %+v", got.Credential)
		}
		if len(got.Secrets) != 0 {
			t.Errorf("Expected no secrets, got %d", len(got.Secrets))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetAccountById(ctx, "does-not-exist"); !errors.Is(err, sk.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := store.FindAccountByUsername(ctx, "nobody"); !errors.Is(err, sk.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := store.FindAccountByProvider(ctx, "github", "1"); !errors.Is(err, sk.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		_, err := store.UpdateAccount(ctx, "does-not-exist", func(a *sk.Account) error { return nil })
		if !errors.Is(err, sk.ErrNotFound) {
			t.Errorf("Expected ErrNotFound from update, got %v", err)
		}
	})

	t.Run("FindByUsernameIsCaseInsensitive", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount("Alice", nil)
		if err := store.CreateAccount(ctx, account); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		got, err := store.FindAccountByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("FindAccountByUsername failed: %v", err)
		}
		if got.ID != account.ID || got.Username != "Alice" {
			t.Errorf("Unexpected account %+v", got)
		}
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		store := newStore(t)
		if err := store.CreateAccount(ctx, NewAccount("bob", nil)); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		err := store.CreateAccount(ctx, NewAccount("BOB", nil))
		if !errors.Is(err, sk.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("DuplicateProviderIdentity", func(t *testing.T) {
		store := newStore(t)
		first := NewAccount("", map[string]string{"github": "42"})
		if err := store.CreateAccount(ctx, first); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		err := store.CreateAccount(ctx, NewAccount("", map[string]string{"github": "42"}))
		if !errors.Is(err, sk.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}

		// same external id at another provider is a different identity
		if err := store.CreateAccount(ctx, NewAccount("", map[string]string{"google": "42"})); err != nil {
			t.Errorf("Expected distinct provider to be accepted, got %v", err)
		}

		got, err := store.FindAccountByProvider(ctx, "github", "42")
		if err != nil {
			t.Fatalf("FindAccountByProvider failed: %v", err)
		}
		if got.ID != first.ID {
			t.Errorf("Expected %s, got %s", first.ID, got.ID)
		}
	})

	t.Run("AccountsWithoutUsername", func(t *testing.T) {
		store := newStore(t)
		for i := range 3 {
			a := NewAccount("", map[string]string{"google": fmt.Sprintf("g%d", i)})
			if err := store.CreateAccount(ctx, a); err != nil {
				t.Fatalf("CreateAccount %d failed: %v", i, err)
			}
		}
	})

	t.Run("UpdateSecretsKeepsOrder", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount("carol", nil)
		if err := store.CreateAccount(ctx, account); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		for _, text := range []string{"one", "two", "three"} {
			_, err := store.UpdateAccount(ctx, account.ID, func(a *sk.Account) error {
				a.Secrets = append(a.Secrets, sk.Secret{ID: "id-" + text, Text: text})
				return nil
			})
			if err != nil {
				t.Fatalf("UpdateAccount failed: %v", err)
			}
		}
		got, err := store.GetAccountById(ctx, account.ID)
		if err != nil {
			t.Fatalf("GetAccountById failed: %v", err)
		}
		if len(got.Secrets) != 3 {
			t.Fatalf("Expected 3 secrets, got %d", len(got.Secrets))
		}
		for i, text := range []string{"one", "two", "three"} {
			if got.Secrets[i].Text != text {
				t.Errorf("Secret %d: expected %q, got %q", i, text, got.Secrets[i].Text)
			}
		}
	})

	t.Run("UpdateAbortsOnError", func(t *testing.T) {
		store := newStore(t)
		account := NewAccount("dave", nil)
		if err := store.CreateAccount(ctx, account); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		boom := errors.New("boom")
		_, err := store.UpdateAccount(ctx, account.ID, func(a *sk.Account) error {
			a.Username = "changed"
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected mutator error, got %v", err)
		}
		got, _ := store.GetAccountById(ctx, account.ID)
		if got.Username != "dave" {
			t.Errorf("Update should not have been written, username is %q", got.Username)
		}
	})

	t.Run("LinkProviderOnUpdate", func(t *testing.T) {
		store := newStore(t)
		holder := NewAccount("", map[string]string{"github": "7"})
		other := NewAccount("erin", nil)
		for _, a := range []*sk.Account{holder, other} {
			if err := store.CreateAccount(ctx, a); err != nil {
				t.Fatalf("CreateAccount failed: %v", err)
			}
		}

		_, err := store.UpdateAccount(ctx, other.ID, func(a *sk.Account) error {
			a.ProviderIDs["github"] = "7"
			return nil
		})
		if !errors.Is(err, sk.ErrDuplicate) {
			t.Fatalf("Expected ErrDuplicate linking a held identity, got %v", err)
		}

		updated, err := store.UpdateAccount(ctx, other.ID, func(a *sk.Account) error {
			a.ProviderIDs["google"] = "g-erin"
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateAccount failed: %v", err)
		}
		if id, _ := updated.ProviderID("google"); id != "g-erin" {
			t.Errorf("Expected google id g-erin, got %q", id)
		}
		got, err := store.FindAccountByProvider(ctx, "google", "g-erin")
		if err != nil || got.ID != other.ID {
			t.Errorf("Expected linked identity to resolve to %s, got %v %v", other.ID, got, err)
		}
	})

	t.Run("ClaimUsernameOnUpdate", func(t *testing.T) {
		store := newStore(t)
		taken := NewAccount("frank", nil)
		anon := NewAccount("", map[string]string{"google": "g-anon"})
		for _, a := range []*sk.Account{taken, anon} {
			if err := store.CreateAccount(ctx, a); err != nil {
				t.Fatalf("CreateAccount failed: %v", err)
			}
		}
		_, err := store.UpdateAccount(ctx, anon.ID, func(a *sk.Account) error {
			a.Username = "Frank"
			return nil
		})
		if !errors.Is(err, sk.ErrDuplicate) {
			t.Fatalf("Expected ErrDuplicate, got %v", err)
		}
		if _, err := store.UpdateAccount(ctx, anon.ID, func(a *sk.Account) error {
			a.Username = "grace"
			return nil
		}); err != nil {
			t.Fatalf("UpdateAccount failed: %v", err)
		}
		got, err := store.FindAccountByUsername(ctx, "grace")
		if err != nil || got.ID != anon.ID {
			t.Errorf("Expected grace to resolve to %s, got %v %v", anon.ID, got, err)
		}
	})

	t.Run("ConcurrentCreateSameIdentity", func(t *testing.T) {
		store := newStore(t)
		const n = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.CreateAccount(ctx, NewAccount("", map[string]string{"github": "race"}))
				if err == nil {
					mu.Lock()
					created++
					mu.Unlock()
				} else if !errors.Is(err, sk.ErrDuplicate) {
					t.Errorf("Unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if created != 1 {
			t.Errorf("Expected exactly one create to succeed, got %d", created)
		}
	})

	t.Run("ConcurrentFindOrCreate", func(t *testing.T) {
		store := newStore(t)
		d := sk.NewDirectory(store)
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

		const n = 16
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				account, err := d.FindOrCreateByProvider(ctx, "github", "race", fmt.Sprintf("racer%d", i))
				if err != nil {
					t.Errorf("FindOrCreateByProvider failed: %v", err)
					return
				}
				ids[i] = account.ID
			}()
		}
		wg.Wait()

		for i, id := range ids {
			if id != ids[0] {
				t.Errorf("Caller %d got account %q, want %q", i, id, ids[0])
			}
		}
		found, err := store.FindAccountByProvider(ctx, "github", "race")
		if err != nil {
			t.Fatalf("FindAccountByProvider failed: %v", err)
		}
		if found.ID != ids[0] {
			t.Errorf("Expected the stored identity on %q, got %q", ids[0], found.ID)
		}
	})
}
