//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	sk "github.com/panyam/secretkeeper"
)

// Datastore kinds
const (
	KindAccount       = "Account"
	KindUsernameClaim = "UsernameClaim"
	KindProviderLink  = "ProviderLink"
)

// AccountEntity is the Datastore entity for accounts
type AccountEntity struct {
	Key            *datastore.Key `datastore:"__key__"`
	Username       string         `datastore:"username"`
	CredentialHash string         `datastore:"credential_hash,noindex"`
	CredentialSalt string         `datastore:"credential_salt,noindex"`
	ProviderIDs    []byte         `datastore:"provider_ids,noindex"` // JSON encoded
	Secrets        []byte         `datastore:"secrets,noindex"`      // JSON encoded
	CreatedAt      time.Time      `datastore:"created_at"`
	UpdatedAt      time.Time      `datastore:"updated_at"`
}

// ClaimEntity maps a unique key (username or provider identity) to its account
type ClaimEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *AccountEntity) ToAccount() (*sk.Account, error) {
	out := &sk.Account{
		ID:          e.Key.Name,
		Username:    e.Username,
		ProviderIDs: map[string]string{},
		Secrets:     []sk.Secret{},
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.CredentialHash != "" {
		out.Credential = &sk.Credential{Hash: e.CredentialHash, Salt: e.CredentialSalt}
	}
	if len(e.ProviderIDs) > 0 {
		if err := json.Unmarshal(e.ProviderIDs, &out.ProviderIDs); err != nil {
			return nil, err
		}
	}
	if len(e.Secrets) > 0 {
		if err := json.Unmarshal(e.Secrets, &out.Secrets); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func AccountToEntity(a *sk.Account, key *datastore.Key) (*AccountEntity, error) {
	providers, err := json.Marshal(a.ProviderIDs)
	if err != nil {
		return nil, err
	}
	secrets := a.Secrets
	if secrets == nil {
		secrets = []sk.Secret{}
	}
	secretBytes, err := json.Marshal(secrets)
	if err != nil {
		return nil, err
	}
	out := &AccountEntity{
		Key:         key,
		Username:    a.Username,
		ProviderIDs: providers,
		Secrets:     secretBytes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Credential != nil {
		out.CredentialHash = a.Credential.Hash
		out.CredentialSalt = a.Credential.Salt
	}
	return out, nil
}

// providerLinkName is the key name of a ProviderLink entity
func providerLinkName(provider, externalId string) string {
	return provider + ":" + externalId
}
