// Package cache provides the in-memory response cache keyed by request
// fingerprint. Entries carry a fixed TTL measured from creation; access
// never extends expiry. Capacity pressure evicts the entries least
// recently accessed, and a background sweep removes expired entries
// independent of lookups.
package cache

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/promptwire/gateway/internal/gateway/configuration"
	"github.com/promptwire/gateway/internal/gateway/transport"
)

// evictFraction is the share of capacity removed in one eviction pass,
// selected by oldest last-access time.
const evictFraction = 0.10

// entry is one cached response with its bookkeeping fields.
type entry struct {
	key         string
	response    *transport.Response
	createdAt   time.Time
	ttl         time.Duration
	accessCount int64
	lastAccess  time.Time
}

// expired reports whether the entry's fixed lifetime has elapsed.
// Expiry is always createdAt+ttl; lastAccess plays no part.
func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Store is the shared response cache. A single mutex guards the entry map;
// all bookkeeping is O(entries) worst case with no suspension points, so
// every lookup/store/evict sequence is atomic with respect to other
// requests. The background sweep takes the same lock with bounded work.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxEntries int
	defaultTTL time.Duration

	sweepInterval time.Duration
	sweepMu       sync.Mutex
	sweepTicker   *time.Ticker
	sweepStop     chan struct{}
	sweepDone     sync.WaitGroup

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	logger *slog.Logger

	// now is swappable for deterministic expiry tests.
	now func() time.Time
}

// NewStore creates a response cache. Call Start to run the background
// sweep and Stop during shutdown.
func NewStore(cfg configuration.CacheConfig) *Store {
	return &Store{
		entries:       make(map[string]*entry),
		maxEntries:    cfg.MaxEntries,
		defaultTTL:    cfg.DefaultTTL,
		sweepInterval: cfg.SweepInterval,
		logger:        slog.Default().With("component", "cache"),
		now:           time.Now,
	}
}

// Lookup returns the cached response for a fingerprint, or a miss. An
// expired entry is removed on read and reported as a miss. Hits bump the
// access counter and last-access time; they never extend expiry.
func (s *Store) Lookup(fingerprint string) (*transport.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fingerprint]
	if !ok {
		s.misses.Add(1)
		return nil, false
	}

	now := s.now()
	if e.expired(now) {
		delete(s.entries, fingerprint)
		s.misses.Add(1)
		return nil, false
	}

	e.accessCount++
	e.lastAccess = now
	s.hits.Add(1)

	resp := e.response.Clone()
	resp.Cached = true
	return resp, true
}

// Store inserts a response under a fingerprint. A non-positive ttl selects
// the default. At capacity the least recently accessed ~10% of entries are
// evicted first.
func (s *Store) Store(fingerprint string, resp *transport.Response, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[fingerprint]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLeastAccessed()
	}

	now := s.now()
	s.entries[fingerprint] = &entry{
		key:        fingerprint,
		response:   resp.Clone(),
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	}
}

// evictLeastAccessed removes the entries with the oldest last-access time.
// Eviction is driven by recency of access, not creation. Caller holds mu.
func (s *Store) evictLeastAccessed() {
	count := int(float64(s.maxEntries) * evictFraction)
	if count < 1 {
		count = 1
	}

	victims := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].lastAccess.Before(victims[j].lastAccess)
	})

	if count > len(victims) {
		count = len(victims)
	}
	for _, e := range victims[:count] {
		delete(s.entries, e.key)
	}
	s.evictions.Add(int64(count))

	s.logger.Debug("evicted least-accessed entries", "count", count, "remaining", len(s.entries))
}

// Invalidate removes entries. An empty pattern clears everything; otherwise
// every entry whose key contains the substring is removed. Returns the
// number of entries removed.
func (s *Store) Invalidate(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pattern == "" {
		removed := len(s.entries)
		s.entries = make(map[string]*entry)
		s.logger.Info("cache cleared", "removed", removed)
		return removed
	}

	removed := 0
	for key := range s.entries {
		if strings.Contains(key, pattern) {
			delete(s.entries, key)
			removed++
		}
	}
	s.logger.Info("cache invalidated by pattern", "removed", removed)
	return removed
}

// sweepExpired removes every currently-expired entry. Runs under the same
// lock as foreground traffic; one pass is O(entries), bounded by capacity.
func (s *Store) sweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Start launches the background sweep that removes expired entries on a
// fixed interval, bounding memory without waiting for access-triggered
// eviction. Idempotent.
func (s *Store) Start() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepTicker != nil {
		return
	}

	s.sweepStop = make(chan struct{})
	s.sweepTicker = time.NewTicker(s.sweepInterval)

	s.sweepDone.Add(1)
	go s.sweepLoop()

	s.logger.Info("cache sweep started", "interval", s.sweepInterval)
}

// Stop terminates the background sweep and waits for it to finish.
// Idempotent.
func (s *Store) Stop() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepTicker == nil {
		return
	}

	close(s.sweepStop)
	s.sweepTicker.Stop()
	s.sweepDone.Wait()

	s.sweepTicker = nil
	s.logger.Info("cache sweep stopped")
}

func (s *Store) sweepLoop() {
	defer s.sweepDone.Done()

	for {
		select {
		case <-s.sweepTicker.C:
			if removed := s.sweepExpired(); removed > 0 {
				s.logger.Debug("sweep removed expired entries", "count", removed)
			}
		case <-s.sweepStop:
			return
		}
	}
}
