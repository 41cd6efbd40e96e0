package schemacache

import (
	"container/list"
	"sync"
	"time"

	"github.com/schemaguard-io/schemaguard-engine/pkg/models"
)

// memoryTier is the bounded in-process cache tier. Eviction is least
// recently used once capacity is reached; entries expire on creation age.
// Safe for concurrent use.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	// order holds *models.CacheEntry values, most recently used in front.
	order    *list.List
	elements map[string]*list.Element
}

func newMemoryTier(capacity int, ttl time.Duration, now func() time.Time) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		order:    list.New(),
		elements: make(map[string]*list.Element, capacity),
	}
}

// Get returns the live entry for the hash, recording the hit. Expired
// entries are removed on access and report a miss.
func (t *memoryTier) Get(hash string) (models.CacheEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	element, ok := t.elements[hash]
	if !ok {
		return models.CacheEntry{}, false
	}

	entry := element.Value.(*models.CacheEntry)
	if entry.Expired(t.now(), t.ttl) {
		t.order.Remove(element)
		delete(t.elements, hash)
		return models.CacheEntry{}, false
	}

	entry.Touch(t.now())
	t.order.MoveToFront(element)
	return *entry, true
}

// Put upserts the entry and evicts the least recently used entries past
// capacity.
func (t *memoryTier) Put(entry models.CacheEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if element, ok := t.elements[entry.Fingerprint]; ok {
		*element.Value.(*models.CacheEntry) = entry
		t.order.MoveToFront(element)
		return
	}

	t.elements[entry.Fingerprint] = t.order.PushFront(&entry)

	for t.order.Len() > t.capacity {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		t.order.Remove(oldest)
		delete(t.elements, oldest.Value.(*models.CacheEntry).Fingerprint)
	}
}

// Fingerprints returns the hash and tuple set of every live entry, for
// similarity scans. Expired entries are skipped, not removed; removal
// happens on access or eviction.
func (t *memoryTier) Fingerprints() []models.SchemaFingerprint {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	fingerprints := make([]models.SchemaFingerprint, 0, t.order.Len())
	for element := t.order.Front(); element != nil; element = element.Next() {
		entry := element.Value.(*models.CacheEntry)
		if entry.Expired(now, t.ttl) {
			continue
		}
		fingerprints = append(fingerprints, models.SchemaFingerprint{
			Hash:   entry.Fingerprint,
			Tuples: entry.Tuples,
		})
	}
	return fingerprints
}

// Len returns the number of resident entries, expired included.
func (t *memoryTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
