// Package cachestore implements the result cache: an LRU of QueryResult
// values keyed on canonical query text plus the set of files the query's
// ScanPlan witnessed, with TTL expiry and mtime-based staleness detection.
// The LRU primitive is hashicorp/golang-lru/v2, the same package the
// examples pack uses for O(1) bounded caches; witness/TTL/staleness are
// layered on top since golang-lru has no notion of either.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/irouter/qrouter/core"
)

// entry is the value stored per cache key.
type entry struct {
	result          core.QueryResult
	witnessPaths    []string
	witnessMaxMTime time.Time
	storedAt        time.Time
}

// LookupResult is the three-way outcome of a Get: the key was absent
// (Miss), present but no longer usable (Stale, either TTL-expired or its
// witness files changed underneath it), or present and fresh (Hit).
type LookupResult int

const (
	Miss LookupResult = iota
	Hit
	Stale
)

func (r LookupResult) String() string {
	switch r {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Stats reports cumulative cache accounting since construction; Clear does
// not reset it.
type Stats struct {
	Hits              int64
	Misses            int64
	Evictions         int64
	Invalidated       int64
	Expirations       int64
	StaleInvalidations int64
}

// HitRate returns Hits/(Hits+Misses), matching spec.md section 4.4's
// invariant literally; expirations and staleness invalidations are reported
// separately and do not enter this ratio.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a fixed-capacity, TTL-bounded result cache. All operations are
// guarded by a single mutex; entries are small (a RowSet reference plus
// witness metadata) so lock contention is not expected to dominate.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *entry]
	ttl   time.Duration // 0 disables expiry
	stats Stats
}

// DefaultTTL matches spec.md section 4.4: 3,600,000 ms (one hour), the
// default applied when a caller passes a negative ttl to New.
const DefaultTTL = time.Hour

// New builds a Cache with the given capacity (number of entries) and TTL.
// A zero ttl disables time-based expiry, stored exactly as given, per
// spec.md section 4.4 ("a configuration value of 0 disables TTL
// expiration"); a negative ttl applies DefaultTTL instead, letting a caller
// distinguish "use the default" from "explicitly disable expiry". Capacity
// must be positive.
func New(capacity int, ttl time.Duration) (*Cache, error) {
	if ttl < 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl}
	inner, err := lru.NewWithEvict[string, *entry](capacity, func(_ string, _ *entry) {
		c.stats.Evictions++
	})
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

// Key computes the cache key for a canonical query text and the sorted set
// of file paths its ScanPlan witnessed: sha256(canonical || '\0' || sorted
// witness paths joined by '\0'), per spec.md section 4.4.
func Key(canonicalText string, witnessPaths []string) string {
	sorted := append([]string(nil), witnessPaths...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(canonicalText))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up a cached result by key, returning one of Hit, Miss, or Stale
// per spec.md section 4.4's get(key, current_witness_mtime) contract. Miss
// means no entry exists for key. Stale means an entry exists but is no
// longer usable, either because its TTL expired (counted in Expirations) or
// because currentMaxMTime — the freshest mtime the caller observed across
// the query's witness files just now — is newer than the mtime stored with
// the entry (counted in StaleInvalidations); either way the entry is
// evicted since staleness is discovered lazily rather than pushed. Only Hit
// carries a usable result.
func (c *Cache) Get(key string, currentMaxMTime time.Time) (core.QueryResult, LookupResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return core.QueryResult{}, Miss
	}

	if c.ttl > 0 && time.Since(e.storedAt) > c.ttl {
		c.lru.Remove(key)
		c.stats.Expirations++
		return core.QueryResult{}, Stale
	}
	if currentMaxMTime.After(e.witnessMaxMTime) {
		c.lru.Remove(key)
		c.stats.StaleInvalidations++
		return core.QueryResult{}, Stale
	}

	c.stats.Hits++
	result := e.result
	result.FromCache = true
	return result, Hit
}

// Peek reports whether key currently holds a fresh, unexpired entry without
// affecting hit/miss statistics or evicting a stale one. Used by Explain,
// which must observe cache state without mutating it.
func (c *Cache) Peek(key string, currentMaxMTime time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	if c.ttl > 0 && time.Since(e.storedAt) > c.ttl {
		return false
	}
	return !currentMaxMTime.After(e.witnessMaxMTime)
}

// Put stores result under key with the given witness file set and the
// freshest mtime observed among them at store time.
func (c *Cache) Put(key string, result core.QueryResult, witnessPaths []string, witnessMaxMTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, &entry{
		result:          result,
		witnessPaths:    append([]string(nil), witnessPaths...),
		witnessMaxMTime: witnessMaxMTime,
		storedAt:        time.Now(),
	})
}

// Invalidate removes every cached entry that witnessed any file under
// tablePathPrefix, used when the engine detects a table's partition index
// changed out from under a cached plan.
func (c *Cache) Invalidate(tablePathPrefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []string
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		for _, p := range e.witnessPaths {
			if strings.HasPrefix(p, tablePathPrefix) {
				toRemove = append(toRemove, key)
				break
			}
		}
	}
	for _, key := range toRemove {
		c.lru.Remove(key)
	}
	c.stats.Invalidated += int64(len(toRemove))
	return len(toRemove)
}

// Clear empties the cache entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns a snapshot of cumulative cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
