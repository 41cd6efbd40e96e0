package schemacache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemaguard-io/schemaguard-engine/pkg/apperrors"
	"github.com/schemaguard-io/schemaguard-engine/pkg/config"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// fakeStore is an in-memory PersistentStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
	touched []string

	upsertErr error
	getErr    error
	listErr   error
}

var _ PersistentStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]models.CacheEntry)}
}

func (s *fakeStore) Upsert(_ context.Context, entry *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.entries[entry.Fingerprint] = *entry
	return nil
}

func (s *fakeStore) GetByHash(_ context.Context, hash string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[hash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &entry, nil
}

func (s *fakeStore) ListFingerprints(_ context.Context, createdAfter time.Time, _ int) ([]models.SchemaFingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	fingerprints := make([]models.SchemaFingerprint, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.CreatedAt.After(createdAfter) {
			fingerprints = append(fingerprints, models.SchemaFingerprint{
				Hash:   entry.Fingerprint,
				Tuples: entry.Tuples,
			})
		}
	}
	return fingerprints, nil
}

func (s *fakeStore) Touch(_ context.Context, hash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, hash)
	return nil
}

func testCacheConfig() *config.CacheConfig {
	return &config.CacheConfig{MaxEntries: 64, TTLMinutes: 60, SimilarityThreshold: 0.95}
}

func newTestCache(store PersistentStore, client *redis.Client, clock *fakeClock) SchemaCache {
	return NewWithClock(testCacheConfig(), client, store, zap.NewNop(), clock.Now)
}

// wideSchema builds a single-table schema with n varchar columns. With
// renameFirst set, the first column gets a different name, which keeps
// the other n-1 tuples intact.
func wideSchema(n int, renameFirst bool) models.Schema {
	cols := make([]models.ColumnMetadata, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("col_%02d", i)
		if renameFirst && i == 0 {
			name = "col_renamed"
		}
		cols = append(cols, models.ColumnMetadata{
			TableName:       "wide",
			ColumnName:      name,
			DataType:        "varchar",
			OrdinalPosition: i + 1,
		})
	}
	return models.Schema{"wide": cols}
}

func resultsFor(schema models.Schema) []models.FieldAnalysisResult {
	cols := schema.OrderedColumns()
	results := make([]models.FieldAnalysisResult, 0, len(cols))
	for _, col := range cols {
		results = append(results, models.FieldAnalysisResult{
			Column:     col,
			PIIType:    models.PIITypeNonSensitive,
			RiskLevel:  models.RiskLevelNone,
			Confidence: 0.15,
			Stage:      models.StageDefault,
		})
	}
	return results
}

func TestCache_StoreThenExactHit(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	schema := sampleSchema()
	fp := cache.Fingerprint(schema, []models.Regulation{models.RegulationGDPR}, "", "")
	cache.Store(ctx, fp, resultsFor(schema))

	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, OutcomeExact, hit.Outcome)
	assert.Equal(t, "memory", hit.Tier)
	assert.Equal(t, 1.0, hit.Similarity)
	assert.Equal(t, fp.Hash, hit.Entry.Fingerprint)
	assert.Len(t, hit.Entry.Results, 4)

	stats := cache.Stats(ctx)
	assert.Equal(t, 1, stats.MemoryEntries)
	assert.Equal(t, int64(1), stats.ExactHits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestCache_MissOnUnknownFingerprint(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	fp := cache.Fingerprint(sampleSchema(), nil, "", "")
	_, ok := cache.Lookup(ctx, fp)
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats(ctx).Misses)
}

func TestCache_ExpiredEntryMisses(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cache := newTestCache(nil, nil, clock)

	schema := sampleSchema()
	fp := cache.Fingerprint(schema, nil, "", "")
	cache.Store(ctx, fp, resultsFor(schema))

	clock.Advance(61 * time.Minute)
	_, ok := cache.Lookup(ctx, fp)
	assert.False(t, ok)
}

func TestCache_SimilarHitOnRenamedColumn(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	stored := wideSchema(40, false)
	storedFp := cache.Fingerprint(stored, nil, "", "")
	cache.Store(ctx, storedFp, resultsFor(stored))

	renamed := wideSchema(40, true)
	renamedFp := cache.Fingerprint(renamed, nil, "", "")
	require.NotEqual(t, storedFp.Hash, renamedFp.Hash)

	hit, ok := cache.Lookup(ctx, renamedFp)
	require.True(t, ok)
	assert.Equal(t, OutcomeSimilar, hit.Outcome)
	assert.Equal(t, "memory", hit.Tier)
	assert.InDelta(t, 39.0/41.0, hit.Similarity, 1e-9)
	assert.Equal(t, storedFp.Hash, hit.Entry.Fingerprint)

	stats := cache.Stats(ctx)
	assert.Equal(t, int64(1), stats.SimilarHits)
	assert.Equal(t, int64(0), stats.ExactHits)
}

func TestCache_SimilarMissBelowThreshold(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	// One rename out of ten columns is 9/11, well under the 0.95 default.
	stored := wideSchema(10, false)
	cache.Store(ctx, cache.Fingerprint(stored, nil, "", ""), resultsFor(stored))

	renamed := wideSchema(10, true)
	_, ok := cache.Lookup(ctx, cache.Fingerprint(renamed, nil, "", ""))
	assert.False(t, ok)
}

func TestCache_PersistentTierServesAndPromotes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock()

	schema := sampleSchema()
	seeder := newTestCache(store, nil, clock)
	fp := seeder.Fingerprint(schema, nil, "", "")
	seeder.Store(ctx, fp, resultsFor(schema))

	// A fresh cache instance has an empty memory tier and must fall
	// through to the store.
	cache := newTestCache(store, nil, clock)
	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, OutcomeExact, hit.Outcome)
	assert.Equal(t, "postgres", hit.Tier)
	assert.Equal(t, int64(1), hit.Entry.HitCount)
	assert.Contains(t, store.touched, fp.Hash)

	hit, ok = cache.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, "memory", hit.Tier)
}

func TestCache_SimilarHitFromPersistentTier(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock()

	stored := wideSchema(40, false)
	seeder := newTestCache(store, nil, clock)
	seeder.Store(ctx, seeder.Fingerprint(stored, nil, "", ""), resultsFor(stored))

	cache := newTestCache(store, nil, clock)
	renamed := wideSchema(40, true)
	hit, ok := cache.Lookup(ctx, cache.Fingerprint(renamed, nil, "", ""))
	require.True(t, ok)
	assert.Equal(t, OutcomeSimilar, hit.Outcome)
	assert.Equal(t, "postgres", hit.Tier)
	assert.InDelta(t, 39.0/41.0, hit.Similarity, 1e-9)
}

func TestCache_RedisTierServesAndPromotes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := newFakeClock()
	schema := sampleSchema()

	seeder := newTestCache(nil, client, clock)
	fp := seeder.Fingerprint(schema, nil, "", "")
	seeder.Store(ctx, fp, resultsFor(schema))

	cache := newTestCache(nil, client, clock)
	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, OutcomeExact, hit.Outcome)
	assert.Equal(t, "redis", hit.Tier)
	assert.Len(t, hit.Entry.Results, len(resultsFor(schema)))

	hit, ok = cache.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, "memory", hit.Tier)
}

func TestCache_BrokenTiersDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	store.listErr = errors.New("connection refused")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	cache := newTestCache(store, client, newFakeClock())
	fp := cache.Fingerprint(sampleSchema(), nil, "", "")

	_, ok := cache.Lookup(ctx, fp)
	assert.False(t, ok)

	stats := cache.Stats(ctx)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.Degraded)
}

func TestCache_StoreSurvivesBrokenPersistentTier(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.upsertErr = errors.New("deadline exceeded")

	cache := newTestCache(store, nil, newFakeClock())
	schema := sampleSchema()
	fp := cache.Fingerprint(schema, nil, "", "")
	cache.Store(ctx, fp, resultsFor(schema))

	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, "memory", hit.Tier)
	assert.Equal(t, int64(1), cache.Stats(ctx).Degraded)
}

func TestCache_AdaptRemapsMatchingColumns(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	schema := sampleSchema()
	fp := cache.Fingerprint(schema, nil, "", "")
	cache.Store(ctx, fp, resultsFor(schema))
	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)

	// Same column set: everything adapts, nothing is left over.
	adapted, leftover := cache.Adapt(hit.Entry, schema)
	assert.Len(t, adapted, 4)
	assert.Empty(t, leftover)
	for _, result := range adapted {
		assert.True(t, result.FromCache)
	}
}

func TestCache_AdaptReportsChangedColumnsAsLeftover(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	schema := sampleSchema()
	fp := cache.Fingerprint(schema, nil, "", "")
	cache.Store(ctx, fp, resultsFor(schema))
	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)

	changed := sampleSchema()
	// A data type change makes the tuple differ, so the cached result no
	// longer applies to the column.
	changed["users"][1].DataType = "text"
	changed["orders"] = append(changed["orders"], models.ColumnMetadata{
		TableName: "orders", ColumnName: "shipping_phone", DataType: "varchar", OrdinalPosition: 3,
	})

	adapted, leftover := cache.Adapt(hit.Entry, changed)
	assert.Len(t, adapted, 3)
	require.Len(t, leftover, 2)

	leftoverNames := []string{leftover[0].ColumnName, leftover[1].ColumnName}
	assert.Contains(t, leftoverNames, "email_address")
	assert.Contains(t, leftoverNames, "shipping_phone")
}

func TestCache_AdaptCarriesNewColumnMetadata(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(nil, nil, newFakeClock())

	schema := sampleSchema()
	fp := cache.Fingerprint(schema, nil, "", "")
	cache.Store(ctx, fp, resultsFor(schema))
	hit, ok := cache.Lookup(ctx, fp)
	require.True(t, ok)

	annotated := sampleSchema()
	for i := range annotated["users"] {
		annotated["users"][i].IsPrimaryKey = annotated["users"][i].ColumnName == "id"
	}

	adapted, leftover := cache.Adapt(hit.Entry, annotated)
	assert.Empty(t, leftover)
	for _, result := range adapted {
		if result.Column.TableName == "users" && result.Column.ColumnName == "id" {
			assert.True(t, result.Column.IsPrimaryKey)
		}
	}
}
