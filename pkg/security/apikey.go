package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/inkroute/inkroute-backend/pkg/config"
)

const apiKeyScheme = "ink"

// ErrMalformedAPIKey is returned when a presented key does not have the ink_<prefix>_<secret> shape.
var ErrMalformedAPIKey = errors.New("malformed api key")

// APIKey is a freshly generated store key. Plaintext is shown once; only Prefix and Hash are persisted.
type APIKey struct {
	Plaintext string
	Prefix    string
	Hash      string
}

// GenerateAPIKey mints a new key and its argon2id hash.
func GenerateAPIKey(cfg config.APIKeyConfig) (APIKey, error) {
	prefix, err := randomHex(6)
	if err != nil {
		return APIKey{}, err
	}
	secret, err := randomHex(24)
	if err != nil {
		return APIKey{}, err
	}
	hash, err := Hash(secret, cfg)
	if err != nil {
		return APIKey{}, err
	}
	return APIKey{
		Plaintext: fmt.Sprintf("%s_%s_%s", apiKeyScheme, prefix, secret),
		Prefix:    prefix,
		Hash:      hash,
	}, nil
}

// ParseAPIKey splits a presented key into its lookup prefix and secret.
func ParseAPIKey(raw string) (prefix, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) != 3 || parts[0] != apiKeyScheme || parts[1] == "" || parts[2] == "" {
		return "", "", ErrMalformedAPIKey
	}
	return parts[1], parts[2], nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
