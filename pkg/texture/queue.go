package texture

import (
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/metrics"
	"github.com/vanderheijden86/photocluster/pkg/sched"
)

// Request asks for the full-size texture of a node.
type Request struct {
	// ID correlates log lines; assigned on Enqueue when empty.
	ID       string
	URL      string
	Priority int
	NodeID   string
	// OnReady receives the loaded handle, or the placeholder on failure.
	OnReady func(*Handle)
}

type queued struct {
	req Request
	seq uint64
}

// byPriority orders the pending list: highest priority first, then
// enqueue order.
func byPriority(a, b *queued) bool {
	if a.req.Priority != b.req.Priority {
		return a.req.Priority > b.req.Priority
	}
	return a.seq < b.seq
}

// Queue is the priority-ordered list of pending full-size loads, drained
// by a single sequential worker running on the scheduler loop.
//
// At most one request per node is pending: enqueueing for a node that is
// already queued replaces the earlier request. The worker handles one
// fetch at a time and yields to the loop after each one.
type Queue struct {
	cache *Cache
	sched sched.Scheduler

	mu        sync.Mutex
	pending   *btree.BTreeG[*queued]
	byNode    map[string]*queued
	seq       uint64
	running   bool
	processed int
	onIdle    []func()
}

func newQueue(c *Cache, s sched.Scheduler) *Queue {
	return &Queue{
		cache:   c,
		sched:   s,
		pending: btree.NewBTreeGOptions(byPriority, btree.Options{NoLocks: true}),
		byNode:  make(map[string]*queued),
	}
}

// Enqueue adds req, replacing any pending request for the same node, and
// starts the worker if it is idle. The worker starts on the next loop
// turn, so requests enqueued together are served in priority order.
func (q *Queue) Enqueue(req Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	q.mu.Lock()
	if old, ok := q.byNode[req.NodeID]; ok {
		q.pending.Delete(old)
	}
	q.seq++
	item := &queued{req: req, seq: q.seq}
	q.pending.Set(item)
	q.byNode[req.NodeID] = item
	depth := q.pending.Len()
	start := !q.running
	q.running = true
	q.mu.Unlock()

	metrics.SetQueueDepth(depth)
	debug.Log("queue: enqueue %s node=%s prio=%d url=%s depth=%d", req.ID, req.NodeID, req.Priority, req.URL, depth)
	if start {
		q.sched.Post(q.drain)
	}
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Idle reports whether the worker is stopped with nothing pending.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.running
}

// Processed returns the number of requests served, including cache hits
// and failures.
func (q *Queue) Processed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

// Pending returns the pending requests in service order.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, 0, q.pending.Len())
	q.pending.Scan(func(item *queued) bool {
		out = append(out, item.req)
		return true
	})
	return out
}

// Clear drops every pending request. A fetch already in flight still
// completes.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending.Clear()
	q.byNode = make(map[string]*queued)
	q.mu.Unlock()
	metrics.SetQueueDepth(0)
}

// OnIdle registers fn to run on the loop each time the worker stops
// because the pending list is empty.
func (q *Queue) OnIdle(fn func()) {
	q.mu.Lock()
	q.onIdle = append(q.onIdle, fn)
	q.mu.Unlock()
}

// pop removes the highest-priority request. When the list is empty it
// marks the worker stopped so the next Enqueue restarts it.
func (q *Queue) pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.pending.PopMin()
	if !ok {
		q.running = false
		return Request{}, false
	}
	if q.byNode[item.req.NodeID] == item {
		delete(q.byNode, item.req.NodeID)
	}
	return item.req, true
}

// drain is the worker loop. Requests whose texture is already cached are
// answered inline; the first one that needs a fetch ends this turn, and
// the worker resumes from finish.
func (q *Queue) drain() {
	for {
		req, ok := q.pop()
		metrics.SetQueueDepth(q.Len())
		if !ok {
			debug.Log("queue: idle")
			q.mu.Lock()
			hooks := append([]func(){}, q.onIdle...)
			q.mu.Unlock()
			for _, fn := range hooks {
				fn()
			}
			return
		}
		if h, ok := q.cache.HighRes(req.URL); ok {
			q.served(req, h)
			continue
		}

		epoch := q.cache.currentEpoch()
		q.sched.Go(func() {
			img, err := q.cache.load(req.URL)
			q.sched.Post(func() { q.finish(req, epoch, img, err) })
		})
		return
	}
}

func (q *Queue) finish(req Request, epoch uint64, img image.Image, err error) {
	switch {
	case epoch != q.cache.currentEpoch():
		debug.Log("queue: dropped %s node=%s, cache purged during fetch", req.ID, req.NodeID)
	case err != nil:
		q.cache.reportFailure(err)
		q.served(req, placeholder)
	default:
		q.served(req, q.cache.storeHigh(req.URL, img, epoch))
	}

	// Yield before the next item instead of draining recursively.
	q.sched.Post(q.drain)
}

func (q *Queue) served(req Request, h *Handle) {
	q.mu.Lock()
	q.processed++
	q.mu.Unlock()

	debug.Log("queue: served %s node=%s tier=%s", req.ID, req.NodeID, h.Tier)
	if req.OnReady != nil {
		req.OnReady(h)
	}
}
