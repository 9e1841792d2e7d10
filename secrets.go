package secretkeeper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Attempts at drawing a secret id that does not collide within the account
const maxSecretIdAttempts = 5

// SecretManager manages an account's secret collection.  Every lookup scans only
// the given account's own secrets, so an id belonging to another account is
// indistinguishable from one that does not exist.
//
// Writes re-read the latest persisted account inside AccountStore.UpdateAccount.
// On stores without transactions two concurrent writers to the same account are
// last-write-wins.
type SecretManager struct {
	Store   AccountStore
	Metrics *Metrics
	Logger  *slog.Logger

	// Defaults to NewID
	NewID func() string
}

func NewSecretManager(store AccountStore) *SecretManager {
	return (&SecretManager{Store: store}).EnsureDefaults()
}

func (m *SecretManager) EnsureDefaults() *SecretManager {
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
	if m.NewID == nil {
		m.NewID = NewID
	}
	return m
}

// List returns a copy of the account's secrets in insertion order
func (m *SecretManager) List(account *Account) []Secret {
	if account == nil || len(account.Secrets) == 0 {
		return []Secret{}
	}
	return slices.Clone(account.Secrets)
}

// Read returns the secret with the given id from the account's own collection
func (m *SecretManager) Read(account *Account, secretId string) (*Secret, error) {
	if account == nil {
		return nil, ErrSecretNotFound
	}
	idx := account.SecretIndex(secretId)
	if idx < 0 {
		return nil, ErrSecretNotFound
	}
	out := account.Secrets[idx]
	return &out, nil
}

// Create appends a new secret to the account
func (m *SecretManager) Create(ctx context.Context, account *Account, text string) (out *Secret, err error) {
	defer func() { m.Metrics.secretOp("create", err) }()
	err = m.mutate(ctx, account, func(latest *Account) error {
		id, err := m.freshId(latest)
		if err != nil {
			return err
		}
		out = &Secret{ID: id, Text: text}
		latest.Secrets = append(latest.Secrets, *out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the text of an existing secret
func (m *SecretManager) Update(ctx context.Context, account *Account, secretId, text string) (out *Secret, err error) {
	defer func() { m.Metrics.secretOp("update", err) }()
	if account == nil || account.SecretIndex(secretId) < 0 {
		return nil, ErrSecretNotFound
	}
	err = m.mutate(ctx, account, func(latest *Account) error {
		idx := latest.SecretIndex(secretId)
		if idx < 0 {
			return ErrSecretNotFound
		}
		latest.Secrets[idx].Text = text
		out = &Secret{ID: secretId, Text: text}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a secret.  The remaining secrets keep their order.
func (m *SecretManager) Delete(ctx context.Context, account *Account, secretId string) (err error) {
	defer func() { m.Metrics.secretOp("delete", err) }()
	if account == nil || account.SecretIndex(secretId) < 0 {
		return ErrSecretNotFound
	}
	return m.mutate(ctx, account, func(latest *Account) error {
		idx := latest.SecretIndex(secretId)
		if idx < 0 {
			return ErrSecretNotFound
		}
		latest.Secrets = slices.Delete(latest.Secrets, idx, idx+1)
		return nil
	})
}

// mutate persists fn against the latest copy of account and then refreshes the
// caller's copy with what was written
func (m *SecretManager) mutate(ctx context.Context, account *Account, fn AccountMutator) error {
	if account == nil {
		return ErrAccountNotFound
	}
	updated, err := m.Store.UpdateAccount(ctx, account.ID, func(latest *Account) error {
		if err := fn(latest); err != nil {
			return err
		}
		latest.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return err
	}
	account.Secrets = slices.Clone(updated.Secrets)
	account.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *SecretManager) freshId(account *Account) (string, error) {
	for range maxSecretIdAttempts {
		id := m.NewID()
		if id != "" && account.SecretIndex(id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique secret id")
}
