//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	sk "github.com/panyam/secretkeeper"
)

// AutoMigrate runs database migrations for all account tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&ProviderLinkModel{},
	)
}

// isDuplicateKey matches gorm's translated error as well as the raw driver
// messages when the db was opened without TranslateError
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return sk.ErrAccountNotFound
	case isDuplicateKey(err):
		return sk.ErrDuplicate
	default:
		return sk.StoreError(op, err)
	}
}

// AccountStore implements sk.AccountStore using GORM
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *sk.Account) error {
	model := AccountToModel(account)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		for _, provider := range account.Providers() {
			link := &ProviderLinkModel{
				Provider:   provider,
				ExternalID: account.ProviderIDs[provider],
				AccountID:  account.ID,
			}
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate("create account", err)
	}
	account.CreatedAt, account.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (s *AccountStore) GetAccountById(ctx context.Context, id string) (*sk.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate("get account", err)
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) FindAccountByUsername(ctx context.Context, username string) (*sk.Account, error) {
	key := sk.UsernameKey(username)
	if key == "" {
		return nil, sk.ErrAccountNotFound
	}
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "username_key = ?", key).Error; err != nil {
		return nil, translate("find account by username", err)
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) FindAccountByProvider(ctx context.Context, provider, externalId string) (*sk.Account, error) {
	var link ProviderLinkModel
	err := s.db.WithContext(ctx).First(&link, "provider = ? AND external_id = ?", provider, externalId).Error
	if err != nil {
		return nil, translate("find provider link", err)
	}
	return s.GetAccountById(ctx, link.AccountID)
}

// UpdateAccount locks the account row (where the database supports it), applies
// mutate and rewrites the row and its provider links in one transaction.
func (s *AccountStore) UpdateAccount(ctx context.Context, id string, mutate sk.AccountMutator) (*sk.Account, error) {
	var mutateErr error
	var result *sk.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AccountModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		current := model.ToAccount()
		updated := current.Clone()
		if mutateErr = mutate(updated); mutateErr != nil {
			return mutateErr
		}
		updated.ID = id

		for provider, externalId := range current.ProviderIDs {
			if updated.ProviderIDs[provider] == externalId {
				continue
			}
			if err := tx.Delete(&ProviderLinkModel{}, "provider = ? AND external_id = ?", provider, externalId).Error; err != nil {
				return err
			}
		}
		for provider, externalId := range updated.ProviderIDs {
			if externalId == "" || current.ProviderIDs[provider] == externalId {
				continue
			}
			link := &ProviderLinkModel{Provider: provider, ExternalID: externalId, AccountID: id}
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}

		newModel := AccountToModel(updated)
		if err := tx.Save(newModel).Error; err != nil {
			return err
		}
		result = newModel.ToAccount()
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
