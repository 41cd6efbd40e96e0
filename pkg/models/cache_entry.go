package models

import "time"

// SchemaFingerprint is the stable identity of one schema under one request
// scope. Hash covers the sorted column tuples plus regulation, region, and
// tenant salts; Tuples is retained for similarity comparison against other
// fingerprints.
type SchemaFingerprint struct {
	Hash   string   `json:"hash"`
	Tuples []string `json:"tuples"`
}

// CacheEntry stores one classified schema for reuse. Entries are immutable
// except for the usage counters; eviction is LRU with a TTL on creation age.
type CacheEntry struct {
	Fingerprint string                `json:"fingerprint"`
	Tuples      []string              `json:"tuples"`
	Results     []FieldAnalysisResult `json:"results"`
	CreatedAt   time.Time             `json:"created_at"`
	LastUsedAt  time.Time             `json:"last_used_at"`
	HitCount    int64                 `json:"hit_count"`
}

// Touch records a cache hit.
func (e *CacheEntry) Touch(now time.Time) {
	e.LastUsedAt = now
	e.HitCount++
}

// Expired reports whether the entry's creation age exceeds ttl.
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > ttl
}
