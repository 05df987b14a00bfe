package watcher

import (
	"sync"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
)

// Reloader re-reads a dataset whenever its file changes. Loading runs as
// background work on the scheduler; apply and onError run on the loop.
type Reloader struct {
	watcher *Watcher
	sched   sched.Scheduler
	load    func() (*model.Dataset, error)
	apply   func(old, next *model.Dataset)
	onError func(error)

	mu      sync.Mutex
	current *model.Dataset
	loads   int
}

// NewReloader watches path. current is the dataset already shown; apply
// receives it together with each reloaded dataset.
func NewReloader(path string, s sched.Scheduler, current *model.Dataset,
	load func() (*model.Dataset, error), apply func(old, next *model.Dataset),
	onError func(error), opts ...WatcherOption) (*Reloader, error) {
	if onError == nil {
		onError = func(error) {}
	}
	r := &Reloader{sched: s, load: load, apply: apply, onError: onError, current: current}
	opts = append(opts, WithScheduler(s), WithOnChange(r.reload), WithOnError(onError))
	w, err := NewWatcher(path, opts...)
	if err != nil {
		return nil, err
	}
	r.watcher = w
	return r, nil
}

// Start begins watching.
func (r *Reloader) Start() error {
	return r.watcher.Start()
}

// Stop stops watching.
func (r *Reloader) Stop() {
	r.watcher.Stop()
}

// Watcher returns the underlying file watcher.
func (r *Reloader) Watcher() *Watcher {
	return r.watcher
}

// Current returns the most recently applied dataset.
func (r *Reloader) Current() *model.Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Loads returns the number of completed reloads, failed ones included.
func (r *Reloader) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func (r *Reloader) reload() {
	r.sched.Go(func() {
		ds, err := r.load()
		r.sched.Post(func() {
			r.mu.Lock()
			r.loads++
			old := r.current
			if err == nil {
				r.current = ds
			}
			r.mu.Unlock()

			if err != nil {
				debug.Log("watcher: reload %s failed: %v", r.watcher.Path(), err)
				r.onError(err)
				return
			}
			r.apply(old, ds)
		})
	})
}
