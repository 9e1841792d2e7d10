//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	sk "github.com/panyam/secretkeeper"
)

func scanJSON(value any, out any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, out)
	case string:
		return json.Unmarshal([]byte(v), out)
	default:
		return fmt.Errorf("cannot scan %T into a JSON column", value)
	}
}

func jsonDataType(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// StringMap is a helper type for storing map[string]string as JSON in GORM
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *StringMap) Scan(value any) error {
	*m = StringMap{}
	return scanJSON(value, m)
}

func (StringMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonDataType(db)
}

// SecretList stores an account's secrets as a JSON array
type SecretList []sk.Secret

func (l SecretList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *SecretList) Scan(value any) error {
	*l = SecretList{}
	return scanJSON(value, l)
}

func (SecretList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonDataType(db)
}

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID             string     `gorm:"primaryKey;size:64"`
	Username       *string    `gorm:"size:255"`
	UsernameKey    *string    `gorm:"size:255;uniqueIndex:uq_accounts_username_key"`
	CredentialHash string     `gorm:"size:2048"`
	CredentialSalt string     `gorm:"size:256"`
	ProviderIDs    StringMap  `gorm:"not null"`
	Secrets        SecretList `gorm:"not null"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *sk.Account {
	out := &sk.Account{
		ID:          m.ID,
		ProviderIDs: map[string]string(m.ProviderIDs),
		Secrets:     []sk.Secret(m.Secrets),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Username != nil {
		out.Username = *m.Username
	}
	if m.CredentialHash != "" {
		out.Credential = &sk.Credential{Hash: m.CredentialHash, Salt: m.CredentialSalt}
	}
	if out.ProviderIDs == nil {
		out.ProviderIDs = map[string]string{}
	}
	if out.Secrets == nil {
		out.Secrets = []sk.Secret{}
	}
	return out
}

func AccountToModel(a *sk.Account) *AccountModel {
	m := &AccountModel{
		ID:          a.ID,
		ProviderIDs: StringMap(a.ProviderIDs),
		Secrets:     SecretList(a.Secrets),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Username != "" {
		username, key := a.Username, sk.UsernameKey(a.Username)
		m.Username, m.UsernameKey = &username, &key
	}
	if a.Credential != nil {
		m.CredentialHash = a.Credential.Hash
		m.CredentialSalt = a.Credential.Salt
	}
	return m
}

// ProviderLinkModel is the GORM model for the (provider, external id) -> account index
type ProviderLinkModel struct {
	Provider   string    `gorm:"primaryKey;size:32"`
	ExternalID string    `gorm:"primaryKey;size:255"`
	AccountID  string    `gorm:"size:64;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProviderLinkModel) TableName() string {
	return "provider_links"
}
