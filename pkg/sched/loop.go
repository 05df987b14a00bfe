package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	pcdebug "github.com/vanderheijden86/photocluster/pkg/debug"
)

// DefaultWorkers bounds the number of concurrent Go calls.
const DefaultWorkers = 8

// Loop is a Scheduler backed by one goroutine draining an unbounded task
// list. Background work is bounded by a weighted semaphore.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	timers  map[*time.Timer]struct{}
	closed  bool

	wake chan struct{}
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	bg     errgroup.Group
	sem    *semaphore.Weighted
}

// NewLoop starts a loop allowing at most workers concurrent Go calls.
func NewLoop(workers int) *Loop {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
	go l.run()
	return l
}

// Post implements Scheduler. Posting to a closed loop is a no-op.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	l.mu.Unlock()
}

// After implements Scheduler.
func (l *Loop) After(d time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.timers[t] = struct{}{}
}

// Go implements Scheduler.
func (l *Loop) Go(work func()) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.bg.Go(func() error {
		if err := l.sem.Acquire(l.ctx, 1); err != nil {
			return nil
		}
		defer l.sem.Release(1)
		l.guard("background", work)
		return nil
	})
}

// Do runs fn on the loop and waits for it to finish. It must not be
// called from a task already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return fmt.Errorf("loop closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops timers, waits for background work and stops the loop.
// Tasks posted after Close are dropped.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for t := range l.timers {
		t.Stop()
	}
	l.timers = nil
	l.mu.Unlock()

	l.cancel()
	err := l.bg.Wait()
	l.mu.Lock()
	close(l.wake)
	l.mu.Unlock()
	<-l.done
	return err
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.guard("task", fn)
		}
		if len(batch) > 0 {
			continue
		}
		if _, ok := <-l.wake; !ok {
			return
		}
	}
}

func (l *Loop) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			pcdebug.Log("sched: recovered panic in %s: %v\n%s", kind, r, debug.Stack())
		}
	}()
	fn()
}
