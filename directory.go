package secretkeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// How many times FindOrCreateByProvider retries after losing an insert race
const maxCreateAttempts = 3

// Directory resolves credentials and provider identities to accounts.  It is the
// only place where accounts are created.
type Directory struct {
	Store   AccountStore
	Hasher  Hasher
	Metrics *Metrics
	Logger  *slog.Logger

	// Generates account ids.  Defaults to NewID
	NewID func() string

	// Defaults to time.Now
	Now func() time.Time
}

func NewDirectory(store AccountStore) *Directory {
	return (&Directory{Store: store}).EnsureDefaults()
}

func (d *Directory) EnsureDefaults() *Directory {
	if d.Hasher == nil {
		d.Hasher = NewPBKDF2Hasher()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewID == nil {
		d.NewID = NewID
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d *Directory) newAccount() *Account {
	now := d.Now()
	return &Account{
		ID:          d.NewID(),
		ProviderIDs: map[string]string{},
		Secrets:     []Secret{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RegisterLocal creates an account with a local credential.  Returns
// ErrUsernameTaken if the username (compared case insensitively) is in use.
func (d *Directory) RegisterLocal(ctx context.Context, username, plaintext string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username required")
	}
	if _, err := d.Store.FindAccountByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	cred, err := d.Hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	account := d.newAccount()
	account.Username = username
	account.Credential = &cred
	if err := d.Store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// lost a race with another registration of the same name
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	d.Metrics.accountCreated(ProviderLocal)
	d.Logger.Info("registered local account", "accountId", account.ID)
	return account, nil
}

// VerifyLocal returns the account for username if plaintext matches its credential
func (d *Directory) VerifyLocal(ctx context.Context, username, plaintext string) (*Account, error) {
	account, err := d.Store.FindAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if account.Credential == nil || !d.Hasher.Verify(plaintext, account.Credential.Hash, account.Credential.Salt) {
		return nil, ErrBadCredential
	}
	return account, nil
}

// FindOrCreateByProvider returns the account holding (provider, externalId),
// creating it if needed.  An existing account is returned unchanged.  A new
// account takes displayNameHint as its username unless another account holds
// that name, in which case the username stays unset.
//
// Safe to call concurrently for the same identity: the store rejects the second
// insert and the loser re-reads the winner's account.
func (d *Directory) FindOrCreateByProvider(ctx context.Context, provider, externalId, displayNameHint string) (*Account, error) {
	if provider == "" || externalId == "" {
		return nil, fmt.Errorf("%w: missing provider identity", ErrProviderAuthFailed)
	}
	username := strings.TrimSpace(displayNameHint)
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		account, err := d.Store.FindAccountByProvider(ctx, provider, externalId)
		if err == nil {
			return account, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if username != "" {
			if _, err := d.Store.FindAccountByUsername(ctx, username); err == nil {
				username = ""
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}

		account = d.newAccount()
		account.Username = username
		account.ProviderIDs[provider] = externalId
		err = d.Store.CreateAccount(ctx, account)
		if err == nil {
			d.Metrics.accountCreated(provider)
			d.Logger.Info("created account from provider", "provider", provider, "accountId", account.ID)
			return account, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}

		// Either someone else created this identity (the next lookup finds it)
		// or the hinted username was claimed in the meantime.
		if existing, ferr := d.Store.FindAccountByProvider(ctx, provider, externalId); ferr == nil {
			return existing, nil
		}
		username = ""
	}
	return nil, fmt.Errorf("could not create account for %s identity after %d attempts: %w", provider, maxCreateAttempts, ErrDuplicate)
}

// LinkProvider attaches a provider identity to an existing account.  Linking an
// identity the account already holds is a no-op.  Returns ErrProviderLinked if
// another account holds it.
func (d *Directory) LinkProvider(ctx context.Context, accountId, provider, externalId string) (*Account, error) {
	if provider == "" || externalId == "" {
		return nil, fmt.Errorf("%w: missing provider identity", ErrProviderAuthFailed)
	}
	holder, err := d.Store.FindAccountByProvider(ctx, provider, externalId)
	if err == nil {
		if holder.ID == accountId {
			return holder, nil
		}
		return nil, ErrProviderLinked
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account, err := d.Store.UpdateAccount(ctx, accountId, func(a *Account) error {
		if a.ProviderIDs == nil {
			a.ProviderIDs = map[string]string{}
		}
		if current, ok := a.ProviderID(provider); ok && current != externalId {
			return fmt.Errorf("%w: account already has a different %s identity", ErrProviderLinked, provider)
		}
		a.ProviderIDs[provider] = externalId
		a.UpdatedAt = d.Now()
		return nil
	})
	if errors.Is(err, ErrDuplicate) {
		return nil, ErrProviderLinked
	}
	if err == nil {
		d.Logger.Info("linked provider", "provider", provider, "accountId", accountId)
	}
	return account, err
}

// SetLocalCredential enables (or changes) password login for an account.  An
// account without a username must claim one here, an account with one can only
// restate it.  A username taken from a provider display name that is not a
// valid login name (for example "Alice Smith") may be replaced by a valid one.
func (d *Directory) SetLocalCredential(ctx context.Context, accountId, username, plaintext string) (*Account, error) {
	username = strings.TrimSpace(username)
	cred, err := d.Hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	account, err := d.Store.UpdateAccount(ctx, accountId, func(a *Account) error {
		loginName := defaultUsernamePattern.MatchString(a.Username)
		switch {
		case username == "" && !loginName:
			return fmt.Errorf("username required")
		case !loginName:
			a.Username = username
		case username != "" && UsernameKey(username) != UsernameKey(a.Username):
			return fmt.Errorf("username cannot be changed once set")
		}
		a.Credential = &cred
		a.UpdatedAt = d.Now()
		return nil
	})
	if errors.Is(err, ErrDuplicate) {
		return nil, ErrUsernameTaken
	}
	return account, err
}
