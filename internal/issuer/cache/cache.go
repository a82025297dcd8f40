// Package cache keeps a short-lived Redis copy of ledger role answers so an
// issuer authorization check survives a ledger outage without hammering the
// local database. Entries are written only from fresh ledger answers and
// evicted the moment the ledger contradicts them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"credlock/internal/platform/redis"
	"credlock/pkg/domain"
)

const keyPrefix = "credlock:issuer-role:"

// RoleCache caches ledger role answers per wallet.
type RoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a role cache. A nil client yields a nil cache, which every
// method treats as a miss, so callers need no Redis-configured check.
func New(client *redis.Client, ttl time.Duration) *RoleCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RoleCache{client: client, ttl: ttl}
}

// Get returns the cached role answer and whether one was present.
func (c *RoleCache) Get(ctx context.Context, wallet domain.WalletAddress) (bool, bool, error) {
	if c == nil {
		return false, false, nil
	}
	val, err := c.client.Get(ctx, keyPrefix+wallet.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("role cache get: %w", err)
	}
	return val == "1", true, nil
}

// Set stores a fresh ledger answer.
func (c *RoleCache) Set(ctx context.Context, wallet domain.WalletAddress, authorized bool) error {
	if c == nil {
		return nil
	}
	val := "0"
	if authorized {
		val = "1"
	}
	if err := c.client.Set(ctx, keyPrefix+wallet.String(), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("role cache set: %w", err)
	}
	return nil
}

// Evict drops the cached answer for a wallet.
func (c *RoleCache) Evict(ctx context.Context, wallet domain.WalletAddress) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, keyPrefix+wallet.String()).Err(); err != nil {
		return fmt.Errorf("role cache evict: %w", err)
	}
	return nil
}
