package cache

import "time"

// Stats is a point-in-time snapshot of cache health. Used for diagnostics
// and the admin surface, never for correctness decisions.
type Stats struct {
	// Entries is the current entry count.
	Entries int `json:"entries"`
	// TotalBytes is the summed payload size of cached responses.
	TotalBytes int64 `json:"total_bytes"`
	// OldestAge is the age of the oldest entry by creation time.
	OldestAge time.Duration `json:"oldest_age_seconds"`
	// NewestAge is the age of the newest entry by creation time.
	NewestAge time.Duration `json:"newest_age_seconds"`
	// AvgAccessCount is the mean access counter across entries.
	AvgAccessCount float64 `json:"avg_access_count"`
	// Utilization is the entry count as a percentage of capacity.
	Utilization float64 `json:"utilization_pct"`

	// Hits, Misses, and Evictions are lifetime counters.
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Stats returns current cache metrics. Counters are read atomically; entry
// inspection runs under the store lock.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Entries:   len(s.entries),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
	if s.maxEntries > 0 {
		stats.Utilization = float64(len(s.entries)) / float64(s.maxEntries) * 100
	}

	if len(s.entries) == 0 {
		return stats
	}

	now := s.now()
	var oldest, newest time.Time
	var totalAccess int64
	for _, e := range s.entries {
		stats.TotalBytes += int64(len(e.response.Content))
		totalAccess += e.accessCount
		if oldest.IsZero() || e.createdAt.Before(oldest) {
			oldest = e.createdAt
		}
		if newest.IsZero() || e.createdAt.After(newest) {
			newest = e.createdAt
		}
	}
	stats.OldestAge = now.Sub(oldest)
	stats.NewestAge = now.Sub(newest)
	stats.AvgAccessCount = float64(totalAccess) / float64(len(s.entries))

	return stats
}
