package metrics

import "sync/atomic"

// CacheMetric counts hits and misses of one cache tier.
type CacheMetric struct {
	name   string
	hits   atomic.Int64
	misses atomic.Int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Name returns the metric name.
func (m *CacheMetric) Name() string {
	return m.name
}

// Hit records a cache hit.
func (m *CacheMetric) Hit() {
	if !Enabled() {
		return
	}
	m.hits.Add(1)
	cacheRequests.WithLabelValues(m.name, "hit").Inc()
}

// Miss records a cache miss.
func (m *CacheMetric) Miss() {
	if !Enabled() {
		return
	}
	m.misses.Add(1)
	cacheRequests.WithLabelValues(m.name, "miss").Inc()
}

// Hits returns the number of recorded hits.
func (m *CacheMetric) Hits() int64 {
	return m.hits.Load()
}

// Misses returns the number of recorded misses.
func (m *CacheMetric) Misses() int64 {
	return m.misses.Load()
}

// HitRate returns hits / (hits + misses), or 0 with no requests.
func (m *CacheMetric) HitRate() float64 {
	h, mi := m.Hits(), m.Misses()
	if h+mi == 0 {
		return 0
	}
	return float64(h) / float64(h+mi)
}

// Reset clears the counters.
func (m *CacheMetric) Reset() {
	m.hits.Store(0)
	m.misses.Store(0)
}

// CacheStats is a snapshot of a CacheMetric.
type CacheStats struct {
	Name    string  `json:"name"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns a snapshot of the counters.
func (m *CacheMetric) Stats() CacheStats {
	return CacheStats{Name: m.name, Hits: m.Hits(), Misses: m.Misses(), HitRate: m.HitRate()}
}

// Cache tiers.
var (
	LowResCache  = newCacheMetric("low")
	HighResCache = newCacheMetric("high")
)

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{LowResCache, HighResCache}
}
