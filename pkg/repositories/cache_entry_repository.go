package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/schemaguard-io/schemaguard-engine/pkg/apperrors"
	"github.com/schemaguard-io/schemaguard-engine/pkg/database"
	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// CacheEntryRepository provides data access for the persistent schema
// cache tier.
type CacheEntryRepository interface {
	Upsert(ctx context.Context, entry *models.CacheEntry) error
	GetByHash(ctx context.Context, hash string) (*models.CacheEntry, error)
	ListFingerprints(ctx context.Context, createdAfter time.Time, limit int) ([]models.SchemaFingerprint, error)
	Touch(ctx context.Context, hash string, usedAt time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type cacheEntryRepository struct {
	db *database.DB
}

// NewCacheEntryRepository creates a new CacheEntryRepository.
func NewCacheEntryRepository(db *database.DB) CacheEntryRepository {
	return &cacheEntryRepository{db: db}
}

var _ CacheEntryRepository = (*cacheEntryRepository)(nil)

func (r *cacheEntryRepository) Upsert(ctx context.Context, entry *models.CacheEntry) error {
	payload, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("failed to encode cached results: %w", err)
	}

	// A conflicting upsert means the schema was reclassified; the entry is
	// replaced wholesale but keeps its accumulated hit count.
	query := `
		INSERT INTO engine_schema_cache (
			fingerprint, tuples, results, created_at, last_used_at, hit_count
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fingerprint)
		DO UPDATE SET
			tuples = EXCLUDED.tuples,
			results = EXCLUDED.results,
			created_at = EXCLUDED.created_at,
			last_used_at = EXCLUDED.last_used_at`

	_, err = r.db.Pool.Exec(ctx, query,
		entry.Fingerprint, entry.Tuples, payload,
		entry.CreatedAt, entry.LastUsedAt, entry.HitCount)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

func (r *cacheEntryRepository) GetByHash(ctx context.Context, hash string) (*models.CacheEntry, error) {
	query := `
		SELECT fingerprint, tuples, results, created_at, last_used_at, hit_count
		FROM engine_schema_cache
		WHERE fingerprint = $1`

	var entry models.CacheEntry
	var payload []byte
	err := r.db.Pool.QueryRow(ctx, query, hash).Scan(
		&entry.Fingerprint, &entry.Tuples, &payload,
		&entry.CreatedAt, &entry.LastUsedAt, &entry.HitCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := json.Unmarshal(payload, &entry.Results); err != nil {
		return nil, fmt.Errorf("failed to decode cached results: %w", err)
	}

	return &entry, nil
}

func (r *cacheEntryRepository) ListFingerprints(ctx context.Context, createdAfter time.Time, limit int) ([]models.SchemaFingerprint, error) {
	query := `
		SELECT fingerprint, tuples
		FROM engine_schema_cache
		WHERE created_at > $1
		ORDER BY last_used_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, createdAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := make([]models.SchemaFingerprint, 0)
	for rows.Next() {
		var fp models.SchemaFingerprint
		if err := rows.Scan(&fp.Hash, &fp.Tuples); err != nil {
			return nil, fmt.Errorf("failed to scan cache fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache fingerprints: %w", err)
	}

	return fingerprints, nil
}

func (r *cacheEntryRepository) Touch(ctx context.Context, hash string, usedAt time.Time) error {
	query := `
		UPDATE engine_schema_cache
		SET last_used_at = $2, hit_count = hit_count + 1
		WHERE fingerprint = $1`

	// A missing row is fine; the entry may have been cleaned up since the
	// lookup that is recording the hit.
	if _, err := r.db.Pool.Exec(ctx, query, hash, usedAt); err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}

	return nil
}

func (r *cacheEntryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM engine_schema_cache WHERE created_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	return result.RowsAffected(), nil
}
