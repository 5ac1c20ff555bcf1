package cachestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irouter/qrouter/core"
)

func TestKeyStableUnderWitnessOrder(t *testing.T) {
	k1 := Key("SELECT 1", []string{"b.parquet", "a.parquet"})
	k2 := Key("SELECT 1", []string{"a.parquet", "b.parquet"})
	assert.Equal(t, k1, k2)
}

func TestKeyDiffersOnCanonicalText(t *testing.T) {
	k1 := Key("SELECT 1", []string{"a.parquet"})
	k2 := Key("SELECT 2", []string{"a.parquet"})
	assert.NotEqual(t, k1, k2)
}

func TestCacheHitAndMiss(t *testing.T) {
	c, err := New(10, time.Hour)
	require.NoError(t, err)

	mtime := time.Now()
	key := Key("SELECT * FROM sales", []string{"/data/sales/a.parquet"})

	_, outcome := c.Get(key, mtime)
	assert.Equal(t, Miss, outcome)

	c.Put(key, core.QueryResult{BackendUsed: core.Vectorized}, []string{"/data/sales/a.parquet"}, mtime)

	result, outcome := c.Get(key, mtime)
	require.Equal(t, Hit, outcome)
	assert.True(t, result.FromCache)
	assert.Equal(t, core.Vectorized, result.BackendUsed)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheStaleOnNewerMTime(t *testing.T) {
	c, err := New(10, time.Hour)
	require.NoError(t, err)

	stored := time.Now()
	key := Key("SELECT * FROM sales", []string{"/data/sales/a.parquet"})
	c.Put(key, core.QueryResult{}, []string{"/data/sales/a.parquet"}, stored)

	newer := stored.Add(time.Minute)
	_, outcome := c.Get(key, newer)
	assert.Equal(t, Stale, outcome, "cache entry should be treated as stale once a witness file's mtime advances")
	assert.Equal(t, int64(1), c.Stats().StaleInvalidations)
}

func TestCacheTTLExpiry(t *testing.T) {
	c, err := New(10, time.Millisecond)
	require.NoError(t, err)

	mtime := time.Now()
	key := Key("SELECT * FROM sales", nil)
	c.Put(key, core.QueryResult{}, nil, mtime)

	time.Sleep(5 * time.Millisecond)
	_, outcome := c.Get(key, mtime)
	assert.Equal(t, Stale, outcome)
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestZeroTTLDisablesExpiryLiterally(t *testing.T) {
	c, err := New(10, 0)
	require.NoError(t, err)

	mtime := time.Now()
	key := Key("SELECT * FROM sales", nil)
	c.Put(key, core.QueryResult{}, nil, mtime)

	time.Sleep(5 * time.Millisecond)
	_, outcome := c.Get(key, mtime)
	assert.Equal(t, Hit, outcome, "a zero ttl must disable expiry, not fall back to DefaultTTL")
	assert.Equal(t, int64(0), c.Stats().Expirations)
}

func TestNegativeTTLAppliesDefault(t *testing.T) {
	c, err := New(10, -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestHitRateExcludesExpirationsAndStaleInvalidations(t *testing.T) {
	c, err := New(10, time.Hour)
	require.NoError(t, err)
	mtime := time.Now()

	key := Key("SELECT * FROM sales", []string{"/data/sales/a.parquet"})
	c.Put(key, core.QueryResult{}, []string{"/data/sales/a.parquet"}, mtime)
	_, outcome := c.Get(key, mtime)
	require.Equal(t, Hit, outcome)

	missKey := Key("SELECT * FROM orders", nil)
	_, outcome = c.Get(missKey, mtime)
	require.Equal(t, Miss, outcome)

	// A stale entry must not deflate hit_rate: spec.md scenario S2 expects
	// hits=1, misses=1, hit_rate=0.5 with no expiration/staleness terms in
	// the denominator.
	staleKey := Key("SELECT * FROM shipments", []string{"/data/shipments/a.parquet"})
	c.Put(staleKey, core.QueryResult{}, []string{"/data/shipments/a.parquet"}, mtime)
	_, outcome = c.Get(staleKey, mtime.Add(time.Minute))
	require.Equal(t, Stale, outcome)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.StaleInvalidations)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestCacheCapacityEviction(t *testing.T) {
	c, err := New(2, time.Hour)
	require.NoError(t, err)
	mtime := time.Now()

	c.Put(Key("Q1", nil), core.QueryResult{}, nil, mtime)
	c.Put(Key("Q2", nil), core.QueryResult{}, nil, mtime)
	c.Put(Key("Q3", nil), core.QueryResult{}, nil, mtime)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCacheInvalidateByWitnessPrefix(t *testing.T) {
	c, err := New(10, time.Hour)
	require.NoError(t, err)
	mtime := time.Now()

	c.Put(Key("Q1", []string{"/data/sales/a.parquet"}), core.QueryResult{}, []string{"/data/sales/a.parquet"}, mtime)
	c.Put(Key("Q2", []string{"/data/orders/b.parquet"}), core.QueryResult{}, []string{"/data/orders/b.parquet"}, mtime)

	removed := c.Invalidate("/data/sales/")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestCanonicalEquivalentQueriesShareCacheKey(t *testing.T) {
	// Canonically equivalent queries reach Key as the same canonical text, and
	// Key is a pure function of that text and the witness set, so the keys
	// must match.
	k1 := Key("SELECT region FROM sales WHERE date = '2024-11-01'", []string{"a.parquet"})
	k2 := Key("SELECT region FROM sales WHERE date = '2024-11-01'", []string{"a.parquet"})
	assert.Equal(t, k1, k2)
}
