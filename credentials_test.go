package secretkeeper_test

import (
	"strings"
	"testing"

	sk "github.com/panyam/secretkeeper"
)

func TestPBKDF2Hasher_HashAndVerify(t *testing.T) {
	h := fastHasher()
	cred, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if cred.Hash == "" || cred.Salt == "" {
		t.Fatalf("Expected hash and salt, got %+v", cred)
	}
	if len(cred.Hash) != 2*32 || len(cred.Salt) != 2*16 {
		t.Errorf("Expected hex of the configured lengths, got %d and %d chars", len(cred.Hash), len(cred.Salt))
	}
	if !h.Verify("pw1", cred.Hash, cred.Salt) {
		t.Error("Expected matching password to verify")
	}
	if h.Verify("pw2", cred.Hash, cred.Salt) {
		t.Error("Expected wrong password to fail")
	}
	if h.Verify("", cred.Hash, cred.Salt) {
		t.Error("Expected empty password to fail")
	}
}

func TestPBKDF2Hasher_SaltsDiffer(t *testing.T) {
	h := fastHasher()
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a.Salt == b.Salt || a.Hash == b.Hash {
		t.Error("Expected fresh salt per hash")
	}
}

func TestPBKDF2Hasher_MalformedStoredValues(t *testing.T) {
	h := fastHasher()
	cred, _ := h.Hash("pw")
	if h.Verify("pw", "not-hex", cred.Salt) {
		t.Error("Expected malformed hash to fail")
	}
	if h.Verify("pw", cred.Hash, "zz") {
		t.Error("Expected malformed salt to fail")
	}
}

func TestPBKDF2Hasher_Defaults(t *testing.T) {
	h := sk.NewPBKDF2Hasher()
	if h.Iterations != 25000 || h.KeyLength != 512 || h.SaltLength != 32 {
		t.Errorf("Unexpected defaults %+v", h)
	}
	// a hash made with other parameters still verifies by its own length
	short := fastHasher()
	cred, _ := short.Hash("pw")
	verifier := &sk.PBKDF2Hasher{Iterations: short.Iterations}
	verifier.EnsureDefaults()
	if !verifier.Verify("pw", cred.Hash, cred.Salt) {
		t.Error("Expected verification to follow the stored key length")
	}
}

func TestSignupPolicy_Validate(t *testing.T) {
	strict := sk.SignupPolicy{MinPasswordLength: 8}
	tests := []struct {
		name     string
		policy   sk.SignupPolicy
		username string
		password string
		wantCode string
	}{
		{"valid default", sk.DefaultSignupPolicy(), "alice", "pw1", ""},
		{"missing username", sk.DefaultSignupPolicy(), "", "pw1", sk.ErrCodeMissingField},
		{"missing password", sk.DefaultSignupPolicy(), "alice", "", sk.ErrCodeMissingField},
		{"bad characters", sk.DefaultSignupPolicy(), "al ice", "pw1", sk.ErrCodeInvalidUsername},
		{"too long", sk.DefaultSignupPolicy(), strings.Repeat("a", 65), "pw1", sk.ErrCodeInvalidUsername},
		{"short password", strict, "alice", "short", sk.ErrCodeWeakPassword},
		{"long enough", strict, "alice", "longenough", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate(tt.username, tt.password)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Expected valid, got %v", err)
				}
				return
			}
			if err == nil || err.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %v", tt.wantCode, err)
			}
		})
	}
}
