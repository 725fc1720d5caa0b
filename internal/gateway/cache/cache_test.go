package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwire/gateway/internal/gateway/configuration"
	"github.com/promptwire/gateway/internal/gateway/transport"
)

// newTestStore creates a store with a controllable clock.
func newTestStore(maxEntries int, ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(configuration.CacheConfig{
		MaxEntries:    maxEntries,
		DefaultTTL:    ttl,
		SweepInterval: time.Minute,
	})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	s.now = func() time.Time { return *clock }
	return s, clock
}

func testResponse(content string) *transport.Response {
	return &transport.Response{
		Content:    content,
		Provider:   "test-provider",
		TokensUsed: 10,
	}
}

func TestStore_LookupMiss(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	resp, ok := s.Lookup("absent")
	assert.False(t, ok)
	assert.Nil(t, resp)
}

func TestStore_StoreThenLookup(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	s.Store("fp", testResponse("hello"), 0)

	resp, ok := s.Lookup("fp")
	require.True(t, ok)
	assert.Equal(t, "hello", resp.Content)
	assert.True(t, resp.Cached, "lookup marks the response as a cache hit")
}

// TestStore_NoSlidingExpiration verifies expiry stays anchored to creation
// time: intermediate lookups never extend an entry's lifetime.
func TestStore_NoSlidingExpiration(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)

	s.Store("fp", testResponse("hello"), 10*time.Second)

	// Access just before expiry; the hit must not push expiry out.
	*clock = clock.Add(9 * time.Second)
	_, ok := s.Lookup("fp")
	require.True(t, ok)

	*clock = clock.Add(2 * time.Second) // 11s after creation
	resp, ok := s.Lookup("fp")
	assert.False(t, ok, "entry must expire ttl after creation despite the intermediate access")
	assert.Nil(t, resp)

	// Expired entry was removed lazily on read.
	assert.Zero(t, s.Stats().Entries)
}

func TestStore_DefaultTTLApplied(t *testing.T) {
	s, clock := newTestStore(10, 30*time.Second)

	s.Store("fp", testResponse("hello"), 0)

	*clock = clock.Add(29 * time.Second)
	_, ok := s.Lookup("fp")
	assert.True(t, ok)

	*clock = clock.Add(2 * time.Second)
	_, ok = s.Lookup("fp")
	assert.False(t, ok)
}

// TestStore_EvictionByLastAccess verifies capacity eviction removes the
// entries least recently accessed, not the oldest created: an early entry
// that was touched recently survives while an untouched newer one is
// evicted.
func TestStore_EvictionByLastAccess(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)

	for i := 0; i < 10; i++ {
		s.Store(fmt.Sprintf("fp-%d", i), testResponse("payload"), 0)
		*clock = clock.Add(time.Second)
	}

	// Touch the oldest-created entry so its last-access becomes newest.
	_, ok := s.Lookup("fp-0")
	require.True(t, ok)

	// Capacity insert evicts 10% = 1 entry: fp-1 now has the oldest
	// last-access.
	s.Store("fp-new", testResponse("payload"), 0)

	_, ok = s.Lookup("fp-0")
	assert.True(t, ok, "recently accessed entry survives despite earliest creation")
	_, ok = s.Lookup("fp-1")
	assert.False(t, ok, "entry with oldest last-access is evicted")
	_, ok = s.Lookup("fp-new")
	assert.True(t, ok)
}

func TestStore_EvictionCount(t *testing.T) {
	s, clock := newTestStore(20, time.Hour)

	for i := 0; i < 20; i++ {
		s.Store(fmt.Sprintf("fp-%d", i), testResponse("payload"), 0)
		*clock = clock.Add(time.Second)
	}

	s.Store("fp-new", testResponse("payload"), 0)

	// 10% of capacity 20 = 2 evicted, then one insert.
	assert.Equal(t, 19, s.Stats().Entries)
	assert.Equal(t, int64(2), s.Stats().Evictions)
}

func TestStore_InvalidateAll(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	s.Store("alpha", testResponse("a"), 0)
	s.Store("beta", testResponse("b"), 0)

	removed := s.Invalidate("")
	assert.Equal(t, 2, removed)
	assert.Zero(t, s.Stats().Entries)
}

func TestStore_InvalidateByPattern(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	s.Store("alpha-1", testResponse("a"), 0)
	s.Store("alpha-2", testResponse("a"), 0)
	s.Store("beta-1", testResponse("b"), 0)

	removed := s.Invalidate("alpha")
	assert.Equal(t, 2, removed)

	_, ok := s.Lookup("beta-1")
	assert.True(t, ok)
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)

	s.Store("short", testResponse("a"), 10*time.Second)
	s.Store("long", testResponse("b"), time.Hour)

	*clock = clock.Add(30 * time.Second)

	removed := s.sweepExpired()
	assert.Equal(t, 1, removed)

	_, ok := s.Lookup("long")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Stats().Entries)
}

func TestStore_Stats(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)

	s.Store("a", testResponse("12345"), 0)
	*clock = clock.Add(10 * time.Second)
	s.Store("b", testResponse("1234567890"), 0)

	_, _ = s.Lookup("a")
	_, _ = s.Lookup("a")
	_, _ = s.Lookup("missing")

	stats := s.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(15), stats.TotalBytes)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 20.0, stats.Utilization, 1e-9)
	assert.InDelta(t, 1.0, stats.AvgAccessCount, 1e-9)
	assert.Equal(t, 10*time.Second, stats.OldestAge)
	assert.Equal(t, time.Duration(0), stats.NewestAge)
}

// TestStore_CachedResponseIsolated verifies a stored response cannot be
// mutated through the pointer handed back on a hit.
func TestStore_CachedResponseIsolated(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	original := testResponse("immutable")
	s.Store("fp", original, 0)
	original.Content = "mutated after store"

	resp, ok := s.Lookup("fp")
	require.True(t, ok)
	assert.Equal(t, "immutable", resp.Content)

	resp.Content = "mutated after lookup"
	again, _ := s.Lookup("fp")
	assert.Equal(t, "immutable", again.Content)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(50, time.Hour)

	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				key := fmt.Sprintf("fp-%d", j%60)
				s.Store(key, testResponse("payload"), 0)
				s.Lookup(key)
			}
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	assert.LessOrEqual(t, stats.Entries, 50)
}
