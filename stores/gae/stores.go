//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"

	sk "github.com/panyam/secretkeeper"
)

// AccountStore implements sk.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

// claimKeys returns the claim keys an account holds
func (s *AccountStore) claimKeys(a *sk.Account) map[string]*datastore.Key {
	out := map[string]*datastore.Key{}
	if key := sk.UsernameKey(a.Username); key != "" {
		k := s.namespacedKey(KindUsernameClaim, key)
		out[k.String()] = k
	}
	for provider, externalId := range a.ProviderIDs {
		if externalId == "" {
			continue
		}
		k := s.namespacedKey(KindProviderLink, providerLinkName(provider, externalId))
		out[k.String()] = k
	}
	return out
}

// claim writes a claim for accountId, failing with ErrDuplicate when another
// account already holds it
func claim(tx *datastore.Transaction, key *datastore.Key, accountId string, now time.Time) error {
	var existing ClaimEntity
	err := tx.Get(key, &existing)
	switch {
	case err == nil && existing.AccountID != accountId:
		return sk.ErrDuplicate
	case err == nil:
		return nil
	case err != datastore.ErrNoSuchEntity:
		return err
	}
	_, err = tx.Put(key, &ClaimEntity{AccountID: accountId, CreatedAt: now})
	return err
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return sk.ErrAccountNotFound
	case errors.Is(err, sk.ErrDuplicate), errors.Is(err, sk.ErrNotFound):
		return err
	default:
		return sk.StoreError(op, err)
	}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *sk.Account) error {
	key := s.namespacedKey(KindAccount, account.ID)
	entity, err := AccountToEntity(account, key)
	if err != nil {
		return sk.StoreError("encode account", err)
	}
	now := time.Now()
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		if err := tx.Get(key, &existing); err == nil {
			return sk.ErrDuplicate
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}
		for _, ck := range s.claimKeys(account) {
			if err := claim(tx, ck, account.ID, now); err != nil {
				return err
			}
		}
		_, err := tx.Put(key, entity)
		return err
	})
	return translate("create account", err)
}

func (s *AccountStore) GetAccountById(ctx context.Context, id string) (*sk.Account, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, id), &entity); err != nil {
		return nil, translate("get account", err)
	}
	account, err := entity.ToAccount()
	if err != nil {
		return nil, sk.StoreError("decode account", err)
	}
	return account, nil
}

// resolveClaim follows a claim to its account
func (s *AccountStore) resolveClaim(ctx context.Context, op string, key *datastore.Key) (*sk.Account, error) {
	var c ClaimEntity
	if err := s.client.Get(ctx, key, &c); err != nil {
		return nil, translate(op, err)
	}
	return s.GetAccountById(ctx, c.AccountID)
}

func (s *AccountStore) FindAccountByUsername(ctx context.Context, username string) (*sk.Account, error) {
	key := sk.UsernameKey(username)
	if key == "" {
		return nil, sk.ErrAccountNotFound
	}
	return s.resolveClaim(ctx, "find account by username", s.namespacedKey(KindUsernameClaim, key))
}

func (s *AccountStore) FindAccountByProvider(ctx context.Context, provider, externalId string) (*sk.Account, error) {
	key := s.namespacedKey(KindProviderLink, providerLinkName(provider, externalId))
	return s.resolveClaim(ctx, "find provider link", key)
}

// UpdateAccount applies mutate inside a transaction.  Datastore retries the
// function on contention so mutate may run more than once.
func (s *AccountStore) UpdateAccount(ctx context.Context, id string, mutate sk.AccountMutator) (*sk.Account, error) {
	key := s.namespacedKey(KindAccount, id)
	var mutateErr error
	var result *sk.Account
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity AccountEntity
		if err := tx.Get(key, &entity); err != nil {
			return err
		}
		current, err := entity.ToAccount()
		if err != nil {
			return err
		}
		updated := current.Clone()
		if mutateErr = mutate(updated); mutateErr != nil {
			return mutateErr
		}
		updated.ID = id
		updated.UpdatedAt = time.Now()

		now := time.Now()
		oldClaims, newClaims := s.claimKeys(current), s.claimKeys(updated)
		for name, ck := range newClaims {
			if _, held := oldClaims[name]; held {
				continue
			}
			if err := claim(tx, ck, id, now); err != nil {
				return err
			}
		}
		for name, ck := range oldClaims {
			if _, kept := newClaims[name]; kept {
				continue
			}
			if err := tx.Delete(ck); err != nil {
				return err
			}
		}

		newEntity, err := AccountToEntity(updated, key)
		if err != nil {
			return err
		}
		if _, err := tx.Put(key, newEntity); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if mutateErr != nil {
		return nil, mutateErr
	}
	if err != nil {
		return nil, translate("update account", err)
	}
	return result, nil
}
