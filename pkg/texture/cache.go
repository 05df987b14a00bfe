package texture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/metrics"
	"github.com/vanderheijden86/photocluster/pkg/sched"
)

// DefaultFetchTimeout bounds a single image fetch.
const DefaultFetchTimeout = 15 * time.Second

// Options configures a Cache.
type Options struct {
	// LowResSize is the edge length of thumbnails (default 64).
	LowResSize int
	// FetchTimeout bounds each fetch (default 15s).
	FetchTimeout time.Duration
}

// Stats is a snapshot of the cache contents.
type Stats struct {
	LowEntries    int  `json:"low_entries"`
	HighEntries   int  `json:"high_entries"`
	LowInFlight   int  `json:"low_in_flight"`
	QueueLen      int  `json:"queue_len"`
	QueueRunning  bool `json:"queue_running"`
	HighProcessed int  `json:"high_processed"`
	Failures      int  `json:"failures"`
}

// Cache is the two-tier texture cache.
//
// Entries are write-once per (url, tier): once stored they are never
// replaced or fetched again until Purge tears the whole cache down.
// Failed loads are never stored, so a later request retries.
//
// Callbacks passed to GetOrLoad* run on the scheduler's loop.
type Cache struct {
	fetcher Fetcher
	sched   sched.Scheduler
	lowSize int
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	low      map[string]*Handle
	high     map[string]*Handle
	lowWait  map[string][]func(*Handle)
	epoch    uint64
	failures int

	queue *Queue
}

// NewCache returns an empty cache loading through f on s.
func NewCache(f Fetcher, s sched.Scheduler, opts Options) *Cache {
	if opts.LowResSize <= 0 {
		opts.LowResSize = DefaultLowResSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fetcher: f,
		sched:   s,
		lowSize: opts.LowResSize,
		timeout: opts.FetchTimeout,
		ctx:     ctx,
		cancel:  cancel,
		low:     make(map[string]*Handle),
		high:    make(map[string]*Handle),
		lowWait: make(map[string][]func(*Handle)),
	}
	c.queue = newQueue(c, s)
	return c
}

// Queue returns the high-resolution load queue.
func (c *Cache) Queue() *Queue {
	return c.queue
}

// LowRes returns the cached thumbnail for url without loading it.
func (c *Cache) LowRes(url string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.low[url]
	return h, ok
}

// HighRes returns the cached full-size texture for url without loading it.
func (c *Cache) HighRes(url string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.high[url]
	return h, ok
}

// GetOrLoadLowRes returns the cached thumbnail for url. On a miss it
// returns the placeholder and decodes a thumbnail in the background;
// onReady (which may be nil) then receives the result on the loop.
// Concurrent misses for one URL share a single fetch and decode.
//
// If a full-size texture for url landed while the thumbnail was loading,
// onReady receives the full-size handle so a late thumbnail never
// downgrades what is displayed.
func (c *Cache) GetOrLoadLowRes(url string, onReady func(*Handle)) *Handle {
	c.mu.Lock()
	if h, ok := c.low[url]; ok {
		c.mu.Unlock()
		metrics.LowResCache.Hit()
		return h
	}
	waiters, inFlight := c.lowWait[url]
	c.lowWait[url] = append(waiters, onReady)
	epoch := c.epoch
	c.mu.Unlock()

	metrics.LowResCache.Miss()
	if !inFlight {
		c.sched.Go(func() { c.loadLow(url, epoch) })
	}
	return placeholder
}

// GetOrLoadHighRes returns the cached full-size texture for url. On a miss
// it returns the placeholder and enqueues a load request for nodeID;
// onReady then receives the result on the loop.
func (c *Cache) GetOrLoadHighRes(url string, priority int, nodeID string, onReady func(*Handle)) *Handle {
	if h, ok := c.HighRes(url); ok {
		metrics.HighResCache.Hit()
		return h
	}
	metrics.HighResCache.Miss()
	c.queue.Enqueue(Request{URL: url, Priority: priority, NodeID: nodeID, OnReady: onReady})
	return placeholder
}

// Purge releases every entry and drops pending requests. Loads already in
// flight finish but are not stored, and their callbacks are dropped.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.low = make(map[string]*Handle)
	c.high = make(map[string]*Handle)
	c.lowWait = make(map[string][]func(*Handle))
	c.epoch++
	c.mu.Unlock()
	c.queue.Clear()
}

// Close cancels in-flight fetches. The cache must not be used afterwards.
func (c *Cache) Close() {
	c.cancel()
}

// Busy reports whether any load is pending or in flight.
func (c *Cache) Busy() bool {
	c.mu.Lock()
	inFlight := len(c.lowWait)
	c.mu.Unlock()
	return inFlight > 0 || !c.queue.Idle()
}

// Stats returns a snapshot of the cache contents.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		LowEntries:  len(c.low),
		HighEntries: len(c.high),
		LowInFlight: len(c.lowWait),
		Failures:    c.failures,
	}
	c.mu.Unlock()
	s.QueueLen = c.queue.Len()
	s.QueueRunning = !c.queue.Idle()
	s.HighProcessed = c.queue.Processed()
	return s
}

func (c *Cache) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// load fetches and decodes url. It blocks and must run off the loop.
func (c *Cache) load(url string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	stop := metrics.FetchTimer()
	data, err := c.fetcher.Fetch(ctx, url)
	stop()
	if err != nil {
		return nil, &LoadError{Kind: FetchFailure, URL: url, Cause: err}
	}
	img, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Kind: DecodeFailure, URL: url, Cause: err}
	}
	return img, nil
}

func (c *Cache) loadLow(url string, epoch uint64) {
	img, err := c.load(url)
	var h *Handle
	if err == nil {
		h = &Handle{URL: url, Tier: TierLow, Image: Downsample(img, c.lowSize)}
	}
	c.sched.Post(func() { c.finishLow(url, epoch, h, err) })
}

func (c *Cache) finishLow(url string, epoch uint64, h *Handle, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	waiters := c.lowWait[url]
	delete(c.lowWait, url)

	deliver := h
	if err != nil {
		deliver = placeholder
	} else {
		if _, ok := c.high[url]; ok {
			// The full-size texture is already showing.
			c.mu.Unlock()
			debug.Log("cache: thumbnail for %s arrived after full size, dropped", url)
			return
		}
		if existing, ok := c.low[url]; ok {
			deliver = existing
		} else {
			c.low[url] = h
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.reportFailure(err)
	}
	for _, fn := range waiters {
		if fn != nil {
			fn(deliver)
		}
	}
}

// storeHigh records a full-size texture unless the cache was purged since
// the load started. It returns the handle callers should use.
func (c *Cache) storeHigh(url string, img image.Image, epoch uint64) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.high[url]; ok {
		return existing
	}
	h := &Handle{URL: url, Tier: TierHigh, Image: img}
	if epoch == c.epoch {
		c.high[url] = h
	}
	return h
}

func (c *Cache) reportFailure(err error) {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()

	var le *LoadError
	if errors.As(err, &le) {
		metrics.RecordFailure(le.Kind.String())
	}
	debug.Log("texture: %v", err)
}
