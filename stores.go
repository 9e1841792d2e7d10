package secretkeeper

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// Well known provider names
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderGithub = "github"
)

// Credential is a salted password hash. Both fields are hex encoded.
type Credential struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

// Secret is a single entry in an account's secret collection.
// IDs are only unique within the owning account.
type Secret struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Account is the canonical identity that every authentication mechanism resolves to.
type Account struct {
	ID string `json:"id"`

	// Empty when the account was created by a provider login whose display name was already taken
	Username string `json:"username,omitempty"`

	// Only set when local (username/password) login is enabled for this account
	Credential *Credential `json:"credential,omitempty"`

	// provider name -> external id at that provider
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`

	// Display order is insertion order
	Secrets []Secret `json:"secrets"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocalCredential returns true if the account can log in with a username and password
func (a *Account) HasLocalCredential() bool {
	return a.Credential != nil && a.Credential.Hash != "" && a.Username != ""
}

// ProviderID returns the external id this account holds at the given provider
func (a *Account) ProviderID(provider string) (string, bool) {
	id, ok := a.ProviderIDs[provider]
	return id, ok && id != ""
}

// Providers returns the sorted list of providers linked to this account
func (a *Account) Providers() []string {
	out := slices.Sorted(maps.Keys(a.ProviderIDs))
	if out == nil {
		out = []string{}
	}
	return out
}

// SecretIndex returns the position of the secret with the given id or -1
func (a *Account) SecretIndex(secretId string) int {
	return slices.IndexFunc(a.Secrets, func(s Secret) bool { return s.ID == secretId })
}

// Clone returns a deep copy so callers can mutate without aliasing a store's copy
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Credential != nil {
		c := *a.Credential
		out.Credential = &c
	}
	out.ProviderIDs = maps.Clone(a.ProviderIDs)
	out.Secrets = slices.Clone(a.Secrets)
	if out.Secrets == nil {
		out.Secrets = []Secret{}
	}
	return &out
}

// UsernameKey normalizes a username for uniqueness checks.  "Alice" and "alice"
// are the same username.
func UsernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// AccountMutator applies a change to the latest persisted copy of an account.
// Returning an error aborts the update and nothing is written.
type AccountMutator func(account *Account) error

// AccountStore is the durable record store for accounts.
//
// Implementations must reject (with ErrDuplicate) any write that would give two
// accounts the same username key or the same (provider, external id) pair.  This
// is what makes concurrent find-or-create calls converge on a single account.
type AccountStore interface {
	// CreateAccount inserts a new account.  Returns ErrDuplicate on a uniqueness violation.
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccountById returns ErrAccountNotFound if no such account exists
	GetAccountById(ctx context.Context, id string) (*Account, error)

	// FindAccountByUsername looks up an account by its (case insensitive) username
	FindAccountByUsername(ctx context.Context, username string) (*Account, error)

	// FindAccountByProvider looks up the account holding the given provider identity
	FindAccountByProvider(ctx context.Context, provider, externalId string) (*Account, error)

	// UpdateAccount loads the latest copy of the account, applies mutate and
	// persists the result.  Returns the persisted account.
	UpdateAccount(ctx context.Context, id string, mutate AccountMutator) (*Account, error)
}
