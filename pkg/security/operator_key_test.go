package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/keyshop-backend/pkg/security"
)

func testParams() security.ArgonParams {
	return security.ArgonParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
}

func TestHashAndVerifyOperatorKey(t *testing.T) {
	hash, err := security.HashOperatorKey("very-secure-key", testParams())
	if err != nil {
		t.Fatalf("HashOperatorKey returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.VerifyOperatorKey("very-secure-key", hash)
	if err != nil {
		t.Fatalf("VerifyOperatorKey returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyOperatorKey failed for the correct key")
	}

	ok, err = security.VerifyOperatorKey("bogus-key", hash)
	if err != nil {
		t.Fatalf("VerifyOperatorKey returned error for wrong key: %v", err)
	}
	if ok {
		t.Fatal("VerifyOperatorKey returned true for incorrect key")
	}
}

func TestHashOperatorKeyRejectsEmpty(t *testing.T) {
	if _, err := security.HashOperatorKey("", testParams()); err == nil {
		t.Fatal("expected empty key to fail")
	}
}

func TestVerifyOperatorKeyBadHash(t *testing.T) {
	if _, err := security.VerifyOperatorKey("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestGenerateOperatorKey(t *testing.T) {
	key, err := security.GenerateOperatorKey(32)
	if err != nil {
		t.Fatalf("GenerateOperatorKey: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(key))
	}
	if _, err := security.GenerateOperatorKey(0); err == nil {
		t.Fatal("expected zero length to fail")
	}
}

func TestDefaultArgonParams(t *testing.T) {
	params := security.DefaultArgonParams(0)
	if params.Memory != 64*1024 || params.KeyLen != 32 {
		t.Fatalf("unexpected defaults %+v", params)
	}
}
