package secretkeeper_test

import (
	"context"
	"errors"
	"testing"

	sk "github.com/panyam/secretkeeper"
)

func setupSecrets(t *testing.T) (*sk.SecretManager, *sk.Directory, sk.AccountStore) {
	t.Helper()
	store := newTestStore(t)
	m := sk.NewSecretManager(store)
	m.Logger = quietLogger()
	return m, newTestDirectory(t, store), store
}

func TestSecretManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, d, store := setupSecrets(t)
	alice := mustRegister(t, d, "alice", "pw1")

	if got := m.List(alice); len(got) != 0 {
		t.Fatalf("Expected empty list, got %v", got)
	}

	created, err := m.Create(ctx, alice, "hello")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" || created.Text != "hello" {
		t.Fatalf("Unexpected secret %+v", created)
	}

	read, err := m.Read(alice, created.ID)
	if err != nil || read.Text != "hello" {
		t.Fatalf("Read: got %+v %v", read, err)
	}

	updated, err := m.Update(ctx, alice, created.ID, "goodbye")
	if err != nil || updated.Text != "goodbye" {
		t.Fatalf("Update: got %+v %v", updated, err)
	}

	stored, err := store.GetAccountById(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetAccountById failed: %v", err)
	}
	if len(stored.Secrets) != 1 || stored.Secrets[0].Text != "goodbye" {
		t.Errorf("Expected update to be persisted, got %+v", stored.Secrets)
	}

	if err := m.Delete(ctx, alice, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := m.List(alice); len(got) != 0 {
		t.Errorf("Expected empty list after delete, got %v", got)
	}
	if _, err := m.Read(alice, created.ID); !errors.Is(err, sk.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSecretManager_OrderAndIds(t *testing.T) {
	ctx := context.Background()
	m, d, _ := setupSecrets(t)
	alice := mustRegister(t, d, "alice", "pw1")

	seen := map[string]bool{}
	for _, text := range []string{"one", "two", "three"} {
		s, err := m.Create(ctx, alice, text)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if seen[s.ID] {
			t.Errorf("Duplicate id %s", s.ID)
		}
		seen[s.ID] = true
	}
	list := m.List(alice)
	if len(list) != 3 || list[0].Text != "one" || list[2].Text != "three" {
		t.Fatalf("Expected insertion order, got %+v", list)
	}

	if err := m.Delete(ctx, alice, list[1].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	list = m.List(alice)
	if len(list) != 2 || list[0].Text != "one" || list[1].Text != "three" {
		t.Errorf("Expected remaining order kept, got %+v", list)
	}

	// List hands out a copy
	list[0].Text = "mutated"
	if m.List(alice)[0].Text != "one" {
		t.Error("List must not expose the account's slice")
	}
}

func TestSecretManager_CollidingIdIsRedrawn(t *testing.T) {
	ctx := context.Background()
	m, d, _ := setupSecrets(t)
	alice := mustRegister(t, d, "alice", "pw1")

	ids := []string{"fixed", "fixed", "fresh"}
	m.NewID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first, _ := m.Create(ctx, alice, "a")
	second, err := m.Create(ctx, alice, "b")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID != "fixed" || second.ID != "fresh" {
		t.Errorf("Expected ids fixed and fresh, got %s and %s", first.ID, second.ID)
	}
}

func TestSecretManager_CrossAccountIsNotFound(t *testing.T) {
	ctx := context.Background()
	m, d, store := setupSecrets(t)
	alice := mustRegister(t, d, "alice", "pw1")
	bob := mustRegister(t, d, "bob", "pw2")

	secret, err := m.Create(ctx, alice, "alice's secret")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := m.Read(bob, secret.ID); !errors.Is(err, sk.ErrNotFound) {
		t.Errorf("Read: expected ErrNotFound, got %v", err)
	}
	if _, err := m.Update(ctx, bob, secret.ID, "pwned"); !errors.Is(err, sk.ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := m.Delete(ctx, bob, secret.ID); !errors.Is(err, sk.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
	// indistinguishable from an id that never existed
	_, missing := m.Read(bob, "never-existed")
	_, foreign := m.Read(bob, secret.ID)
	if missing.Error() != foreign.Error() {
		t.Errorf("Expected identical errors, got %q and %q", missing, foreign)
	}

	stored, _ := store.GetAccountById(ctx, alice.ID)
	if len(stored.Secrets) != 1 || stored.Secrets[0].Text != "alice's secret" {
		t.Errorf("Alice's secret changed: %+v", stored.Secrets)
	}
}

func TestSecretManager_StaleCopiesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	m, d, store := setupSecrets(t)
	alice := mustRegister(t, d, "alice", "pw1")

	first, _ := store.GetAccountById(ctx, alice.ID)
	second, _ := store.GetAccountById(ctx, alice.ID)
	if _, err := m.Create(ctx, first, "from first"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Create(ctx, second, "from second"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, _ := store.GetAccountById(ctx, alice.ID)
	if len(stored.Secrets) != 2 {
		t.Errorf("Expected both writes to land, got %+v", stored.Secrets)
	}
	if len(second.Secrets) != 2 {
		t.Errorf("Expected the caller's copy to be refreshed, got %+v", second.Secrets)
	}
}
