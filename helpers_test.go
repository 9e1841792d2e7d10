package secretkeeper_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	sk "github.com/panyam/secretkeeper"
	"github.com/panyam/secretkeeper/stores/fs"
)

// fastHasher keeps the suite quick.  Production uses NewPBKDF2Hasher.
func fastHasher() *sk.PBKDF2Hasher {
	return &sk.PBKDF2Hasher{Iterations: 1000, KeyLength: 32, SaltLength: 16}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *fs.FSAccountStore {
	t.Helper()
	return fs.NewFSAccountStore(t.TempDir())
}

func newTestDirectory(t *testing.T, store sk.AccountStore) *sk.Directory {
	t.Helper()
	return (&sk.Directory{Store: store, Hasher: fastHasher(), Logger: quietLogger()}).EnsureDefaults()
}

func mustRegister(t *testing.T, d *sk.Directory, username, password string) *sk.Account {
	t.Helper()
	account, err := d.RegisterLocal(context.Background(), username, password)
	if err != nil {
		t.Fatalf("RegisterLocal(%q) failed: %v", username, err)
	}
	return account
}

// failingStore fails every read, as a store whose backend is down would
type failingStore struct {
	sk.AccountStore
}

func (failingStore) GetAccountById(ctx context.Context, id string) (*sk.Account, error) {
	return nil, sk.StoreError("get account", io.ErrUnexpectedEOF)
}

func (failingStore) FindAccountByUsername(ctx context.Context, username string) (*sk.Account, error) {
	return nil, sk.StoreError("find account by username", io.ErrUnexpectedEOF)
}
