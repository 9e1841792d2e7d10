package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	sk "github.com/panyam/secretkeeper"
)

// How old an orphaned index file must be before another account may take it
const staleClaimAge = time.Minute

// fsClaim is an index file mapping a unique key (username or provider identity) to its account
type fsClaim struct {
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FSAccountStore implements sk.AccountStore using filesystem storage.
//
// # File Structure
//
//	{StoragePath}/
//	├── accounts/
//	│   └── <account id>.json          # the whole account, secrets included
//	├── usernames/
//	│   └── <lowercased username>.json # {"account_id": "..."}
//	└── providers/
//	    └── <provider>/
//	        └── <external id>.json     # {"account_id": "..."}
//
// # Concurrency Model
//
// Index files are created with O_EXCL so only one account can ever claim a
// username or provider identity, even across processes sharing the directory.
// Within a process all writes are serialized, so UpdateAccount always applies
// its mutation to the latest copy.  Across processes concurrent updates to the
// same account are last-write-wins.
type FSAccountStore struct {
	StoragePath string

	mu sync.RWMutex
}

// NewFSAccountStore creates a new filesystem-backed AccountStore
func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", url.PathEscape(id)+".json")
}

func (s *FSAccountStore) usernamePath(username string) string {
	return filepath.Join(s.StoragePath, "usernames", url.PathEscape(sk.UsernameKey(username))+".json")
}

func (s *FSAccountStore) providerPath(provider, externalId string) string {
	return filepath.Join(s.StoragePath, "providers", url.PathEscape(provider), url.PathEscape(externalId)+".json")
}

// claimPaths lists every index file the account should own
func (s *FSAccountStore) claimPaths(account *sk.Account) []string {
	var out []string
	if account.Username != "" {
		out = append(out, s.usernamePath(account.Username))
	}
	for _, provider := range account.Providers() {
		out = append(out, s.providerPath(provider, account.ProviderIDs[provider]))
	}
	return out
}

func (s *FSAccountStore) readAccount(id string) (*sk.Account, error) {
	data, err := os.ReadFile(s.accountPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sk.ErrAccountNotFound
		}
		return nil, sk.StoreError("read account", err)
	}
	var account sk.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, sk.StoreError("decode account", err)
	}
	return &account, nil
}

func (s *FSAccountStore) writeAccount(account *sk.Account) error {
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomicFile(s.accountPath(account.ID), data); err != nil {
		return sk.StoreError("write account", err)
	}
	return nil
}

func (s *FSAccountStore) readClaim(path string) (*fsClaim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sk.ErrAccountNotFound
		}
		return nil, sk.StoreError("read index", err)
	}
	var claim fsClaim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, sk.StoreError("decode index", err)
	}
	return &claim, nil
}

// claim takes the index file at path for accountId.  A claim older than
// staleClaimAge whose account was never written (a crash mid create) is taken over.
func (s *FSAccountStore) claim(path, accountId string) error {
	data, err := json.Marshal(fsClaim{AccountID: accountId, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	err = createExclusive(path, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return sk.StoreError("write index", err)
	}
	existing, err := s.readClaim(path)
	if err != nil {
		return err
	}
	if existing.AccountID == accountId {
		return nil
	}
	if _, err := os.Stat(s.accountPath(existing.AccountID)); os.IsNotExist(err) && time.Since(existing.CreatedAt) > staleClaimAge {
		if err := writeAtomicFile(path, data); err != nil {
			return sk.StoreError("write index", err)
		}
		return nil
	}
	return sk.ErrDuplicate
}

func (s *FSAccountStore) claimAll(paths []string, accountId string) error {
	for i, path := range paths {
		if err := s.claim(path, accountId); err != nil {
			s.releaseAll(paths[:i])
			return err
		}
	}
	return nil
}

func (s *FSAccountStore) releaseAll(paths []string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

// CreateAccount writes a new account after claiming its username and provider identities
func (s *FSAccountStore) CreateAccount(ctx context.Context, account *sk.Account) error {
	if account.ID == "" {
		return fmt.Errorf("account id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.accountPath(account.ID)); err == nil {
		return sk.ErrDuplicate
	}
	claims := s.claimPaths(account)
	if err := s.claimAll(claims, account.ID); err != nil {
		return err
	}
	if err := s.writeAccount(account); err != nil {
		s.releaseAll(claims)
		return err
	}
	return nil
}

func (s *FSAccountStore) GetAccountById(ctx context.Context, id string) (*sk.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readAccount(id)
}

func (s *FSAccountStore) FindAccountByUsername(ctx context.Context, username string) (*sk.Account, error) {
	if sk.UsernameKey(username) == "" {
		return nil, sk.ErrAccountNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, err := s.readClaim(s.usernamePath(username))
	if err != nil {
		return nil, err
	}
	account, err := s.readAccount(claim.AccountID)
	if err != nil {
		return nil, err
	}
	if sk.UsernameKey(account.Username) != sk.UsernameKey(username) {
		return nil, sk.ErrAccountNotFound
	}
	return account, nil
}

func (s *FSAccountStore) FindAccountByProvider(ctx context.Context, provider, externalId string) (*sk.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, err := s.readClaim(s.providerPath(provider, externalId))
	if err != nil {
		return nil, err
	}
	account, err := s.readAccount(claim.AccountID)
	if err != nil {
		return nil, err
	}
	if id, ok := account.ProviderID(provider); !ok || id != externalId {
		return nil, sk.ErrAccountNotFound
	}
	return account, nil
}

// UpdateAccount applies mutate to the latest copy of the account.  New index
// claims are taken before the account is written and stale ones released after.
func (s *FSAccountStore) UpdateAccount(ctx context.Context, id string, mutate sk.AccountMutator) (*sk.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readAccount(id)
	if err != nil {
		return nil, err
	}
	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.ID = id

	oldClaims := s.claimPaths(current)
	newClaims := s.claimPaths(updated)
	var added, removed []string
	for _, p := range newClaims {
		if !slices.Contains(oldClaims, p) {
			added = append(added, p)
		}
	}
	for _, p := range oldClaims {
		if !slices.Contains(newClaims, p) {
			removed = append(removed, p)
		}
	}

	if err := s.claimAll(added, id); err != nil {
		return nil, err
	}
	if err := s.writeAccount(updated); err != nil {
		s.releaseAll(added)
		return nil, err
	}
	s.releaseAll(removed)
	return updated.Clone(), nil
}
