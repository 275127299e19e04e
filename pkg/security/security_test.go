package security_test

import (
	"strings"
	"testing"

	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/security"
)

var testCfg = config.APIKeyConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerify(t *testing.T) {
	hash, err := security.Hash("very-secure-secret", testCfg)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.Verify("very-secure-secret", hash)
	if err != nil || !ok {
		t.Fatalf("Verify failed for correct secret ok=%v err=%v", ok, err)
	}
	ok, err = security.Verify("bogus", hash)
	if err != nil || ok {
		t.Fatalf("Verify accepted wrong secret ok=%v err=%v", ok, err)
	}
	if _, err := security.Verify("x", "$bcrypt$nope"); err != security.ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if _, err := security.Hash("", testCfg); err == nil {
		t.Fatal("expected empty secret to fail")
	}
}

func TestGenerateAndParseAPIKey(t *testing.T) {
	key, err := security.GenerateAPIKey(testCfg)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	prefix, secret, err := security.ParseAPIKey(key.Plaintext)
	if err != nil {
		t.Fatalf("ParseAPIKey: %v", err)
	}
	if prefix != key.Prefix {
		t.Fatalf("prefix mismatch %q vs %q", prefix, key.Prefix)
	}
	ok, err := security.Verify(secret, key.Hash)
	if err != nil || !ok {
		t.Fatalf("generated secret should verify ok=%v err=%v", ok, err)
	}

	for _, bad := range []string{"", "ink_abc", "sk_abc_def", "ink__def", "ink_abc_def_ghi"} {
		if _, _, err := security.ParseAPIKey(bad); err != security.ErrMalformedAPIKey {
			t.Fatalf("expected malformed error for %q, got %v", bad, err)
		}
	}
}
