package secretkeeper

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Credentials is the input handed to a Strategy.  Local login uses Username and
// Password, provider logins use Code.
type Credentials struct {
	Username string
	Password string

	// Authorization code returned by the provider on its callback
	Code string
}

// Hasher derives and checks password hashes.  Verify never errors: a malformed
// hash or salt simply does not match.
type Hasher interface {
	Hash(plaintext string) (Credential, error)
	Verify(plaintext, hash, salt string) bool
}

// PBKDF2Hasher hashes with PBKDF2-HMAC-SHA256 and a random per-credential salt
type PBKDF2Hasher struct {
	Iterations int
	KeyLength  int
	SaltLength int
}

// NewPBKDF2Hasher returns a hasher with the defaults
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return (&PBKDF2Hasher{}).EnsureDefaults()
}

func (h *PBKDF2Hasher) EnsureDefaults() *PBKDF2Hasher {
	if h.Iterations <= 0 {
		h.Iterations = 25000
	}
	if h.KeyLength <= 0 {
		h.KeyLength = 512
	}
	if h.SaltLength <= 0 {
		h.SaltLength = 32
	}
	return h
}

func (h *PBKDF2Hasher) Hash(plaintext string) (Credential, error) {
	salt := make([]byte, h.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(plaintext), salt, h.Iterations, h.KeyLength, sha256.New)
	return Credential{
		Hash: hex.EncodeToString(key),
		Salt: hex.EncodeToString(salt),
	}, nil
}

func (h *PBKDF2Hasher) Verify(plaintext, hash, salt string) bool {
	expected, err := hex.DecodeString(hash)
	if err != nil || len(expected) == 0 {
		return false
	}
	saltBytes, err := hex.DecodeString(salt)
	if err != nil || len(saltBytes) == 0 {
		return false
	}
	// key length follows the stored hash, not h.KeyLength
	key := pbkdf2.Key([]byte(plaintext), saltBytes, h.Iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// SignupPolicy is the set of checks applied to a username and password before an account is registered
type SignupPolicy struct {
	MinPasswordLength int

	// Defaults to letters, digits, dots, underscores and hyphens (1-64 chars)
	UsernamePattern *regexp.Regexp
}

var defaultUsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]{1,64}$`)

// DefaultSignupPolicy only requires a non empty password
func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{MinPasswordLength: 1}
}

func (p SignupPolicy) GetMinPasswordLength() int {
	if p.MinPasswordLength <= 0 {
		return 1
	}
	return p.MinPasswordLength
}

func (p SignupPolicy) GetUsernamePattern() *regexp.Regexp {
	if p.UsernamePattern == nil {
		return defaultUsernamePattern
	}
	return p.UsernamePattern
}

// Validate checks the username and password and returns nil if both are acceptable
func (p SignupPolicy) Validate(username, password string) *AuthError {
	if strings.TrimSpace(username) == "" {
		return NewAuthError(ErrCodeMissingField, "Username is required", "username")
	}
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if !p.GetUsernamePattern().MatchString(username) {
		return NewAuthError(ErrCodeInvalidUsername, "Username may only contain letters, numbers, dots, underscores, @ and hyphens", "username")
	}
	if minLen := p.GetMinPasswordLength(); len(password) < minLen {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", minLen), "password")
	}
	return nil
}
