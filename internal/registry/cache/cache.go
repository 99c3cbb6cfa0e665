// Package cache provides a read-through Redis cache for identity lookups.
// Writes go through the stores; the facade invalidates cached entries after
// every mutation so reads serve the latest committed state.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"attest/internal/registry/models"
	id "attest/pkg/domain"
)

const identityKeyPrefix = "registry:identity:"

// Loader fetches an identity from the authoritative store on cache miss.
type Loader func(ctx context.Context) (*models.Identity, error)

// IdentityCache caches identity read models with a TTL. A nil *IdentityCache
// is valid and degrades to calling the loader directly.
type IdentityCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func New(client *redis.Client, ttl time.Duration) *IdentityCache {
	if client == nil {
		return nil
	}
	return &IdentityCache{client: client, ttl: ttl}
}

// Get returns the cached identity or loads and caches it. Concurrent misses
// for the same principal collapse into a single load.
func (c *IdentityCache) Get(ctx context.Context, principal id.Principal, load Loader) (*models.Identity, error) {
	if c == nil {
		return load(ctx)
	}
	key := identityKeyPrefix + principal.String()

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var identity models.Identity
		if err := json.Unmarshal(payload, &identity); err == nil {
			return &identity, nil
		}
		// Corrupt entry: fall through to reload and overwrite.
	} else if !errors.Is(err, redis.Nil) {
		// Cache unavailable: serve from the store rather than failing reads.
		return load(ctx)
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		identity, err := load(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(identity)
		if err != nil {
			return nil, fmt.Errorf("encode identity for cache: %w", err)
		}
		// Best effort: a failed SET just means the next read loads again.
		_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
		return identity, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Identity), nil
}

// Invalidate drops the cached entry after a mutation.
func (c *IdentityCache) Invalidate(ctx context.Context, principal id.Principal) {
	if c == nil {
		return
	}
	_ = c.client.Del(ctx, identityKeyPrefix+principal.String()).Err()
}
