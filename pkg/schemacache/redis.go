package schemacache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// redisKeyPrefix namespaces cache entries so the engine can share a
// Redis database with other services.
const redisKeyPrefix = "schemaguard:schema:"

// redisTier is the shared fast tier. It serves exact fingerprint hits
// only; similarity scans stay on the memory and persistent tiers, where
// the tuple sets are already resident.
type redisTier struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisTier(client *redis.Client, ttl time.Duration) *redisTier {
	return &redisTier{client: client, ttl: ttl}
}

func (t *redisTier) Get(ctx context.Context, hash string) (models.CacheEntry, bool, error) {
	payload, err := t.client.Get(ctx, redisKeyPrefix+hash).Bytes()
	if err == redis.Nil {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("decode cached entry: %w", err)
	}
	return entry, true, nil
}

func (t *redisTier) Put(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := t.client.Set(ctx, redisKeyPrefix+entry.Fingerprint, payload, t.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
