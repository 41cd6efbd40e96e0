package schemacache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/apperrors"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// Outcome says how a lookup was satisfied.
type Outcome string

const (
	OutcomeExact   Outcome = "exact"
	OutcomeSimilar Outcome = "similar"
)

// Hit is a successful lookup: the cached entry plus how it was found.
// Similarity is 1.0 for exact hits.
type Hit struct {
	Entry      models.CacheEntry
	Outcome    Outcome
	Tier       string
	Similarity float64
}

// Stats reports tier occupancy and lookup counters for the stats surface.
type Stats struct {
	MemoryEntries int   `json:"memory_entries"`
	ExactHits     int64 `json:"exact_hits"`
	SimilarHits   int64 `json:"similar_hits"`
	Misses        int64 `json:"misses"`
	Degraded      int64 `json:"degraded"`
}

// PersistentStore is the persistent tier contract, implemented by the
// Postgres cache entry repository. GetByHash returns apperrors.ErrNotFound
// for unknown fingerprints.
type PersistentStore interface {
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	GetByHash(ctx context.Context, hash string) (*models.CacheEntry, error)
	ListFingerprints(ctx context.Context, createdAfter time.Time, limit int) ([]models.SchemaFingerprint, error)
	Touch(ctx context.Context, hash string, usedAt time.Time) error
}

// SchemaCache stores and retrieves classified schemas. Tier failures are
// absorbed: a broken tier degrades lookups to misses and stores to the
// remaining tiers, and classification proceeds either way.
type SchemaCache interface {
	Fingerprint(schema models.Schema, regulations []models.Regulation, region, tenant string) models.SchemaFingerprint
	Lookup(ctx context.Context, fingerprint models.SchemaFingerprint) (Hit, bool)
	Store(ctx context.Context, fingerprint models.SchemaFingerprint, results []models.FieldAnalysisResult)
	Adapt(entry models.CacheEntry, schema models.Schema) ([]models.FieldAnalysisResult, []models.ColumnMetadata)
	Stats(ctx context.Context) Stats
}

// listFingerprintsLimit bounds one persistent-tier similarity scan.
const listFingerprintsLimit = 512

type multiTierCache struct {
	memory     *memoryTier
	redis      *redisTier
	persistent PersistentStore

	similarityThreshold float64
	ttl                 time.Duration
	now                 func() time.Time
	logger              *zap.Logger

	mu          sync.Mutex
	exactHits   int64
	similarHits int64
	misses      int64
	degraded    int64
}

var _ SchemaCache = (*multiTierCache)(nil)

// New builds the cache from configuration. redisClient and persistent may
// be nil; the corresponding tiers are then disabled and the cache runs on
// memory alone.
func New(cfg *config.CacheConfig, redisClient *redis.Client, persistent PersistentStore, logger *zap.Logger) SchemaCache {
	return NewWithClock(cfg, redisClient, persistent, logger, time.Now)
}

// NewWithClock is New with an injected clock for eviction and TTL tests.
func NewWithClock(cfg *config.CacheConfig, redisClient *redis.Client, persistent PersistentStore, logger *zap.Logger, now func() time.Time) SchemaCache {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute

	c := &multiTierCache{
		memory:              newMemoryTier(cfg.MaxEntries, ttl, now),
		persistent:          persistent,
		similarityThreshold: cfg.SimilarityThreshold,
		ttl:                 ttl,
		now:                 now,
		logger:              logger.Named("schema-cache"),
	}
	if redisClient != nil {
		c.redis = newRedisTier(redisClient, ttl)
	}
	return c
}

// Fingerprint computes the request-scoped schema identity.
func (c *multiTierCache) Fingerprint(schema models.Schema, regulations []models.Regulation, region, tenant string) models.SchemaFingerprint {
	return Fingerprint(schema, regulations, region, tenant)
}

// Lookup walks memory, Redis, and Postgres for an exact fingerprint hit,
// then falls back to a similarity scan over stored fingerprints. A tier
// error is logged and the walk continues with the next tier.
func (c *multiTierCache) Lookup(ctx context.Context, fingerprint models.SchemaFingerprint) (Hit, bool) {
	if entry, ok := c.memory.Get(fingerprint.Hash); ok {
		c.count(&c.exactHits)
		return Hit{Entry: entry, Outcome: OutcomeExact, Tier: "memory", Similarity: 1.0}, true
	}

	if c.redis != nil {
		entry, ok, err := c.redis.Get(ctx, fingerprint.Hash)
		if err != nil {
			c.degrade("redis lookup failed", fingerprint.Hash, err)
		} else if ok && !entry.Expired(c.now(), c.ttl) {
			entry.Touch(c.now())
			c.memory.Put(entry)
			c.count(&c.exactHits)
			return Hit{Entry: entry, Outcome: OutcomeExact, Tier: "redis", Similarity: 1.0}, true
		}
	}

	if c.persistent != nil {
		entry, err := c.persistent.GetByHash(ctx, fingerprint.Hash)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			c.degrade("persistent lookup failed", fingerprint.Hash, err)
		case !entry.Expired(c.now(), c.ttl):
			entry.Touch(c.now())
			if touchErr := c.persistent.Touch(ctx, entry.Fingerprint, entry.LastUsedAt); touchErr != nil {
				c.logger.Warn("Cache touch failed", zap.Error(touchErr))
			}
			c.promote(ctx, *entry)
			c.count(&c.exactHits)
			return Hit{Entry: *entry, Outcome: OutcomeExact, Tier: "postgres", Similarity: 1.0}, true
		}
	}

	if hit, ok := c.lookupSimilar(ctx, fingerprint); ok {
		c.count(&c.similarHits)
		return hit, true
	}

	c.count(&c.misses)
	return Hit{}, false
}

// lookupSimilar scans stored fingerprints for the best Jaccard match at
// or above the threshold, preferring the memory tier's candidates.
func (c *multiTierCache) lookupSimilar(ctx context.Context, fingerprint models.SchemaFingerprint) (Hit, bool) {
	candidates := c.memory.Fingerprints()

	if c.persistent != nil {
		stored, err := c.persistent.ListFingerprints(ctx, c.now().Add(-c.ttl), listFingerprintsLimit)
		if err != nil {
			c.degrade("persistent fingerprint scan failed", fingerprint.Hash, err)
		} else {
			candidates = append(candidates, stored...)
		}
	}

	bestHash := ""
	bestScore := 0.0
	for _, candidate := range candidates {
		if candidate.Hash == fingerprint.Hash {
			continue
		}
		score := Jaccard(fingerprint.Tuples, candidate.Tuples)
		if score >= c.similarityThreshold && score > bestScore {
			bestHash, bestScore = candidate.Hash, score
		}
	}
	if bestHash == "" {
		return Hit{}, false
	}

	if entry, ok := c.memory.Get(bestHash); ok {
		return Hit{Entry: entry, Outcome: OutcomeSimilar, Tier: "memory", Similarity: bestScore}, true
	}
	if c.persistent != nil {
		entry, err := c.persistent.GetByHash(ctx, bestHash)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				c.degrade("persistent lookup failed", bestHash, err)
			}
			return Hit{}, false
		}
		if entry.Expired(c.now(), c.ttl) {
			return Hit{}, false
		}
		return Hit{Entry: *entry, Outcome: OutcomeSimilar, Tier: "postgres", Similarity: bestScore}, true
	}
	return Hit{}, false
}

// Store upserts the classified schema into every configured tier. Tier
// failures are logged; the entry remains available from the tiers that
// accepted it.
func (c *multiTierCache) Store(ctx context.Context, fingerprint models.SchemaFingerprint, results []models.FieldAnalysisResult) {
	now := c.now()
	entry := models.CacheEntry{
		Fingerprint: fingerprint.Hash,
		Tuples:      fingerprint.Tuples,
		Results:     results,
		CreatedAt:   now,
		LastUsedAt:  now,
	}

	c.memory.Put(entry)

	if c.redis != nil {
		if err := c.redis.Put(ctx, entry); err != nil {
			c.degrade("redis store failed", entry.Fingerprint, err)
		}
	}
	if c.persistent != nil {
		if err := c.persistent.Upsert(ctx, &entry); err != nil {
			c.degrade("persistent store failed", entry.Fingerprint, err)
		}
	}
}

// Adapt remaps a cached entry's results onto the new schema. A column
// matches when its table, name, and data type line up with a cached
// result; everything else is returned as leftover for fresh
// classification. Adapted results keep their analysis but carry the new
// column metadata and the cache flag.
func (c *multiTierCache) Adapt(entry models.CacheEntry, schema models.Schema) ([]models.FieldAnalysisResult, []models.ColumnMetadata) {
	cached := make(map[string]models.FieldAnalysisResult, len(entry.Results))
	for _, result := range entry.Results {
		cached[result.Column.Tuple()] = result
	}

	adapted := make([]models.FieldAnalysisResult, 0, len(entry.Results))
	var leftover []models.ColumnMetadata
	for _, col := range schema.OrderedColumns() {
		result, ok := cached[col.Tuple()]
		if !ok {
			leftover = append(leftover, col)
			continue
		}
		result.Column = col
		result.FromCache = true
		adapted = append(adapted, result)
	}
	return adapted, leftover
}

// Stats reports occupancy and counters.
func (c *multiTierCache) Stats(_ context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		MemoryEntries: c.memory.Len(),
		ExactHits:     c.exactHits,
		SimilarHits:   c.similarHits,
		Misses:        c.misses,
		Degraded:      c.degraded,
	}
}

// promote copies a persistent-tier hit into the faster tiers.
func (c *multiTierCache) promote(ctx context.Context, entry models.CacheEntry) {
	c.memory.Put(entry)
	if c.redis != nil {
		if err := c.redis.Put(ctx, entry); err != nil {
			c.degrade("redis store failed", entry.Fingerprint, err)
		}
	}
}

func (c *multiTierCache) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

func (c *multiTierCache) degrade(msg, hash string, err error) {
	c.count(&c.degraded)
	c.logger.Warn("Cache tier degraded, continuing without it",
		zap.String("reason", msg),
		zap.String("fingerprint", hash),
		zap.Error(err))
}
