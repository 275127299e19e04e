// Package dedupe claims delivery and event ids in Redis so a message is handled at most once per TTL.
package dedupe

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the subset of the Redis client the guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WebhookKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

// Guard marks ids as seen per scope using SETNX with a TTL.
type Guard struct {
	store Store
	ttl   time.Duration
}

func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim returns true when the caller is the first to see id within scope.
func (g *Guard) Claim(ctx context.Context, scope, id string) (bool, error) {
	key, err := g.key(scope, id)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, "1", g.ttl)
}

// Release forgets a claim so a failed delivery can be retried.
func (g *Guard) Release(ctx context.Context, scope, id string) error {
	key, err := g.key(scope, id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(scope, id string) (string, error) {
	scope = strings.TrimSpace(scope)
	id = strings.TrimSpace(id)
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if id == "" {
		return "", errors.New("id is required")
	}
	return g.store.WebhookKey(scope, id), nil
}
