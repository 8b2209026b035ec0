package password

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()

	h, err := New(Config{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return h
}

func legacyArgon2Hash(t *testing.T, plain string) string {
	t.Helper()

	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte(plain), salt, 1, minMemoryKB, 1, 32)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=1,p=1$%s$%s",
		argon2.Version,
		minMemoryKB,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("TestPassword123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$04$") {
		t.Fatalf("unexpected bcrypt prefix: %s", hash)
	}
	if !h.Verify("TestPassword123!", hash) {
		t.Fatal("expected password verification to succeed")
	}
	if h.Verify("WrongPassword123!", hash) {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestHashRejectsInvalidInput(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected empty password to be rejected")
	}
	if _, err := h.Hash(strings.Repeat("a", MaxPasswordBytes+1)); err == nil {
		t.Fatal("expected oversized password to be rejected")
	}
}

func TestVerifyMalformedHashesReturnFalse(t *testing.T) {
	h := newTestHasher(t)

	cases := []string{
		"",
		"plaintext",
		"$2a$",
		"$2a$04$short",
		"$argon2id$v=19$m=65536,t=3,p=2$bad",
		"$argon2id$v=18$m=65536,t=3,p=2$MDEyMzQ1Njc4OWFiY2RlZg$AAAA",
		"$argon2id$v=19$m=99999999,t=3,p=2$MDEyMzQ1Njc4OWFiY2RlZg$AAAA",
		"$scrypt$ln=15,r=8,p=1$salt$hash",
	}
	for _, encoded := range cases {
		if h.Verify("anything", encoded) {
			t.Fatalf("expected false for %q", encoded)
		}
	}
}

func TestVerifyLegacyArgon2(t *testing.T) {
	h := newTestHasher(t)
	legacy := legacyArgon2Hash(t, "legacy-password")

	if !h.Verify("legacy-password", legacy) {
		t.Fatal("expected legacy argon2id hash to verify")
	}
	if h.Verify("other-password", legacy) {
		t.Fatal("expected legacy argon2id mismatch to fail")
	}
	if !h.NeedsRehash(legacy) {
		t.Fatal("expected legacy argon2id hash to need rehash")
	}
}

func TestNeedsRehashOnLowerCost(t *testing.T) {
	weak := newTestHasher(t)
	hash, err := weak.Hash("rehash-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strong, err := New(Config{Cost: bcrypt.MinCost + 1})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if !strong.NeedsRehash(hash) {
		t.Fatal("expected lower-cost hash to need rehash")
	}
	if weak.NeedsRehash(hash) {
		t.Fatal("expected same-cost hash to be current")
	}
	if weak.NeedsRehash("garbage") {
		t.Fatal("expected unparseable hash to report false")
	}
}

func TestNewRejectsInvalidCost(t *testing.T) {
	if _, err := New(Config{Cost: bcrypt.MaxCost + 1}); err == nil {
		t.Fatal("expected invalid cost to be rejected")
	}
	h, err := New(Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if h.Cost() != DefaultCost {
		t.Fatalf("expected default cost %d, got %d", DefaultCost, h.Cost())
	}
}
