package preheat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MetadataCache stores serialized metadata objects (programs, program
// stages, tracked entity and relationship types) between imports.
type MetadataCache interface {
	// GetMany returns the cached entries found for uids, keyed by uid.
	GetMany(ctx context.Context, tenant, kind string, uids []string) (map[string][]byte, error)
	SetMany(ctx context.Context, tenant, kind string, entries map[string][]byte) error
}

// NopCache never caches anything.
type NopCache struct{}

func (NopCache) GetMany(context.Context, string, string, []string) (map[string][]byte, error) {
	return nil, nil
}

func (NopCache) SetMany(context.Context, string, string, map[string][]byte) error {
	return nil
}

// RedisCache keeps metadata as plain string keys with a TTL so that
// metadata changes propagate without explicit invalidation.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "tracker:preheat", ttl: ttl}
}

func (c *RedisCache) key(tenant, kind, uid string) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, tenant, kind, uid)
}

func (c *RedisCache) GetMany(ctx context.Context, tenant, kind string, uids []string) (map[string][]byte, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = c.key(tenant, kind, uid)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", kind, err)
	}
	out := make(map[string][]byte, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[uids[i]] = []byte(s)
	}
	return out, nil
}

func (c *RedisCache) SetMany(ctx context.Context, tenant, kind string, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for uid, data := range entries {
		pipe.Set(ctx, c.key(tenant, kind, uid), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", kind, err)
	}
	return nil
}

// cached resolves uids through the cache first and fetches the rest,
// writing fetched entries back. Cache failures are logged and degrade to a
// full fetch.
func cached[T any](
	ctx context.Context,
	cache MetadataCache,
	logger zerolog.Logger,
	tenant, kind string,
	uids []string,
	uidOf func(*T) string,
	fetch func(ctx context.Context, uids []string) ([]*T, error),
) ([]*T, int, error) {
	if len(uids) == 0 {
		return nil, 0, nil
	}

	var out []*T
	hits, err := cache.GetMany(ctx, tenant, kind, uids)
	if err != nil {
		logger.Warn().Err(err).Str("kind", kind).Msg("metadata cache read failed")
		hits = nil
	}

	missing := make([]string, 0, len(uids))
	for _, uid := range uids {
		data, ok := hits[uid]
		if !ok {
			missing = append(missing, uid)
			continue
		}
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			missing = append(missing, uid)
			continue
		}
		out = append(out, v)
	}
	hitCount := len(out)

	if len(missing) == 0 {
		return out, hitCount, nil
	}

	fetched, err := fetch(ctx, missing)
	if err != nil {
		return nil, hitCount, err
	}
	entries := make(map[string][]byte, len(fetched))
	for _, v := range fetched {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		entries[uidOf(v)] = data
	}
	if err := cache.SetMany(ctx, tenant, kind, entries); err != nil {
		logger.Warn().Err(err).Str("kind", kind).Msg("metadata cache write failed")
	}

	return append(out, fetched...), hitCount, nil
}
