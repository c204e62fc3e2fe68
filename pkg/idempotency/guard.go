package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stocksync-backend/pkg/redis"
)

// Guard claims short-lived keys in Redis with SETNX so that concurrent
// deliveries of the same external id are not processed twice at once.
// Keys follow the `ss:idempotency:<scope>:inflight:<key>` pattern.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Acquire returns true when the caller now owns the key. A false result means
// another caller holds it and has not released it or let it expire.
func (g *Guard) Acquire(ctx context.Context, scope, key string) (bool, error) {
	k, err := g.inflightKey(scope, key)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, k, "1", g.ttl)
}

// Release drops the key so the next delivery can be processed.
func (g *Guard) Release(ctx context.Context, scope, key string) error {
	k, err := g.inflightKey(scope, key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, k)
}

func (g *Guard) inflightKey(scope, key string) (string, error) {
	scope = strings.TrimSpace(scope)
	key = strings.TrimSpace(key)
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if key == "" {
		return "", errors.New("key is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("%s:inflight", scope), key), nil
}
