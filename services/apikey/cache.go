package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"keywarden/pkg/rediskey"
)

// Fingerprint derives the cache key from the ENTIRE presented key string.
// Keying on key_id alone would let any request bearing a previously seen
// key_id skip secret verification on a hit, so the secret portion is always
// part of the digest. The raw string itself is never stored.
func Fingerprint(presented string) string {
	sum := sha256.Sum256([]byte(presented))
	return hex.EncodeToString(sum[:])
}

// Cache is the verification-cache contract: fingerprint of the full
// presented string as key, TTL-bounded entity as value. Backends also keep a
// per-entity index so mutating operations can evict without knowing the
// fingerprint.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*ApiKey, bool)
	Set(ctx context.Context, fingerprint string, entity *ApiKey)
	InvalidateEntity(ctx context.Context, entityID string)
}

// noopCache never hits and never stores. It stands in when the cache
// backend is disabled so callers do not need a nil check.
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*ApiKey, bool) { return nil, false }
func (noopCache) Set(context.Context, string, *ApiKey)        {}
func (noopCache) InvalidateEntity(context.Context, string)    {}

type memoryEntry struct {
	entity   *ApiKey
	storedAt time.Time
}

// MemoryCache is a mutex-guarded in-process Cache with TTL eviction on read.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
	}
}

func (c *MemoryCache) Get(ctx context.Context, fingerprint string) (*ApiKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[fingerprint]
	if !ok || (c.ttl > 0 && time.Since(v.storedAt) > c.ttl) {
		return nil, false
	}
	return clone(v.entity), true
}

func (c *MemoryCache) Set(ctx context.Context, fingerprint string, entity *ApiKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[fingerprint] = memoryEntry{entity: clone(entity), storedAt: time.Now()}
}

func (c *MemoryCache) InvalidateEntity(ctx context.Context, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, v := range c.items {
		if v.entity.ID == entityID {
			delete(c.items, fp)
		}
	}
}

// RedisCache stores verified entities in Redis under
// "apikey:verified:{fingerprint}" and keeps "apikey:entity:{id}" as a set of
// fingerprints for eviction by entity.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*ApiKey, bool) {
	raw, err := c.rdb.Get(ctx, rediskey.BuildVerifiedKey(fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			zap.L().Warn("apikey cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var entity ApiKey
	if err := json.Unmarshal(raw, &entity); err != nil {
		zap.L().Warn("apikey cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return &entity, true
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, entity *ApiKey) {
	raw, err := json.Marshal(entity)
	if err != nil {
		zap.L().Warn("apikey cache marshal failed", zap.Error(err))
		return
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, rediskey.BuildVerifiedKey(fingerprint), raw, c.ttl)
	pipe.SAdd(ctx, rediskey.BuildEntityIndexKey(entity.ID), fingerprint)
	pipe.Expire(ctx, rediskey.BuildEntityIndexKey(entity.ID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("apikey cache write failed", zap.Error(err))
	}
}

func (c *RedisCache) InvalidateEntity(ctx context.Context, entityID string) {
	indexKey := rediskey.BuildEntityIndexKey(entityID)
	fingerprints, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		zap.L().Warn("apikey cache invalidation failed", zap.Error(err))
		return
	}

	keys := make([]string, 0, len(fingerprints)+1)
	for _, fp := range fingerprints {
		keys = append(keys, rediskey.BuildVerifiedKey(fp))
	}
	keys = append(keys, indexKey)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		zap.L().Warn("apikey cache invalidation failed", zap.Error(err))
	}
}
