//go:build !wasm
// +build !wasm

package gae

import (
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sk "github.com/panyam/secretkeeper"
	"github.com/panyam/secretkeeper/stores/storetest"
)

func TestAccountEntity_RoundTrip(t *testing.T) {
	account := storetest.NewAccount("Judy", map[string]string{"github": "99"})
	account.Credential = &sk.Credential{Hash: "ff", Salt: "00"}
	account.Secrets = []sk.Secret{{ID: "s1", Text: "hello"}, {ID: "s2", Text: "world"}}

	key := datastore.NameKey(KindAccount, account.ID, nil)
	entity, err := AccountToEntity(account, key)
	require.NoError(t, err)

	back, err := entity.ToAccount()
	require.NoError(t, err)
	assert.Equal(t, account.ID, back.ID)
	assert.Equal(t, account.Username, back.Username)
	assert.Equal(t, account.ProviderIDs, back.ProviderIDs)
	assert.Equal(t, account.Secrets, back.Secrets)
	assert.Equal(t, *account.Credential, *back.Credential)
}

func TestAccountEntity_EmptyFields(t *testing.T) {
	entity := &AccountEntity{Key: datastore.NameKey(KindAccount, "a1", nil)}
	back, err := entity.ToAccount()
	require.NoError(t, err)
	assert.Nil(t, back.Credential)
	assert.NotNil(t, back.ProviderIDs)
	assert.NotNil(t, back.Secrets)
	assert.Empty(t, back.Secrets)
}

func TestAccountStore_ClaimKeys(t *testing.T) {
	store := NewAccountStore(nil, "tenant")
	account := storetest.NewAccount("Alice", map[string]string{"google": "g-1", "github": ""})

	keys := store.claimKeys(account)
	require.Len(t, keys, 2)

	names := map[string]string{}
	for _, k := range keys {
		assert.Equal(t, "tenant", k.Namespace)
		names[k.Kind] = k.Name
	}
	assert.Equal(t, "alice", names[KindUsernameClaim])
	assert.Equal(t, "google:g-1", names[KindProviderLink])
}
