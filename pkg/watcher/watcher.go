// Package watcher reloads a dataset file when it changes on disk.
//
// Events come from fsnotify on the directory holding the file, so atomic
// saves (write to temp, rename over) are seen. On network filesystems, or
// when PC_FORCE_POLLING is set, the watcher polls the file's size and
// modification time instead. Either way a burst of events is debounced and
// the file is re-examined once before anyone is told about it.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/sched"
)

// DefaultPollInterval is the stat interval in polling mode.
const DefaultPollInterval = 2 * time.Second

// ForcePollingEnvVar forces polling mode when set to a true value.
const ForcePollingEnvVar = "PC_FORCE_POLLING"

var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// Mode is how a Watcher observes its file.
type Mode int

const (
	ModeNotify Mode = iota
	ModePoll
)

func (m Mode) String() string {
	if m == ModePoll {
		return "poll"
	}
	return "notify"
}

// WatcherOption configures a Watcher.
type WatcherOption func(*settings)

type settings struct {
	debounce  time.Duration
	poll      time.Duration
	forcePoll bool
	onChange  func()
	onError   func(error)
	sched     sched.Scheduler
}

// WithDebounceDuration sets the quiet period before a change is reported.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(s *settings) { s.debounce = d }
}

// WithPollInterval sets the stat interval in polling mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(s *settings) { s.poll = d }
}

// WithOnChange sets the callback invoked when the file changes.
func WithOnChange(fn func()) WatcherOption {
	return func(s *settings) { s.onChange = fn }
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(s *settings) { s.onError = fn }
}

// WithScheduler delivers callbacks on s instead of the watcher's
// goroutines. The streaming core is not safe for concurrent use, so
// reloads should run on its loop.
func WithScheduler(s sched.Scheduler) WatcherOption {
	return func(o *settings) { o.sched = s }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(s *settings) { s.forcePoll = force }
}

// fileState is what polling compares between ticks.
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (s fileState) differs(o fileState) bool {
	return s.exists != o.exists || s.size != o.size || !s.modTime.Equal(o.modTime)
}

// statFile reports a missing file as a state, not an error.
func statFile(path string) (fileState, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}, nil
	case os.IsNotExist(err):
		return fileState{}, nil
	case os.IsPermission(err):
		return fileState{}, fmt.Errorf("%w: %s", ErrPermission, path)
	default:
		return fileState{}, err
	}
}

// Watcher monitors one dataset file.
type Watcher struct {
	path      string
	cfg       settings
	debouncer *Debouncer
	changes   chan struct{}

	mu       sync.RWMutex
	mode     Mode
	fsType   FilesystemType
	last     fileState
	notifier *fsnotify.Watcher
	cancel   context.CancelFunc
	reported int
}

// NewWatcher creates a watcher for path. Nothing is observed until Start.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg := settings{
		debounce: DefaultDebounceDuration,
		poll:     DefaultPollInterval,
		onChange: func() {},
		onError:  func(error) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.poll <= 0 {
		cfg.poll = DefaultPollInterval
	}
	return &Watcher{
		path:      abs,
		cfg:       cfg,
		debouncer: NewDebouncer(cfg.debounce),
		changes:   make(chan struct{}, 1),
	}, nil
}

// Start begins watching. A file that does not exist yet is fine; its
// creation counts as a change.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrAlreadyStarted
	}
	st, err := statFile(w.path)
	if err != nil {
		return err
	}
	w.last = st
	w.fsType = DetectFilesystemType(w.path)
	w.mode = w.chooseMode()

	ctx, cancel := context.WithCancel(context.Background())
	if w.mode == ModeNotify {
		n, err := fsnotify.NewWatcher()
		if err == nil {
			err = n.Add(filepath.Dir(w.path))
			if err != nil {
				n.Close()
			}
		}
		if err != nil {
			debug.Log("watcher: fsnotify unavailable for %s: %v", w.path, err)
			w.mode = ModePoll
		} else {
			w.notifier = n
			go w.runNotify(ctx, n)
		}
	}
	if w.mode == ModePoll {
		go w.runPoll(ctx)
	}
	w.cancel = cancel
	debug.Log("watcher: %s fs=%s mode=%s", w.path, w.fsType, w.mode)
	return nil
}

func (w *Watcher) chooseMode() Mode {
	if w.cfg.forcePoll || envBool(ForcePollingEnvVar) || isRemoteFilesystem(w.fsType) {
		return ModePoll
	}
	return ModeNotify
}

// Stop stops watching. The Changed channel stays open and a later Start
// resumes from the file's state at that time.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}
	w.cancel()
	w.cancel = nil
	if w.notifier != nil {
		w.notifier.Close()
		w.notifier = nil
	}
	w.debouncer.Cancel()
}

// IsStarted reports whether the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cancel != nil
}

// Mode returns how the file is observed. Valid after Start.
func (w *Watcher) Mode() Mode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode
}

// IsPolling reports whether the watcher fell back to polling.
func (w *Watcher) IsPolling() bool {
	return w.Mode() == ModePoll
}

// Changed receives after each reported change. It holds at most one
// pending signal.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changes
}

// Changes returns the number of changes reported so far.
func (w *Watcher) Changes() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reported
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// FilesystemType returns the classification made by Start.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// PollInterval returns the stat interval used in polling mode.
func (w *Watcher) PollInterval() time.Duration {
	return w.cfg.poll
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func (w *Watcher) runNotify(ctx context.Context, n *fsnotify.Watcher) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}
			// Remove and Rename are often half of an atomic save; settle
			// decides once the burst is over.
			w.debouncer.Trigger(func() { w.settle(true) })
		case err, ok := <-n.Errors:
			if !ok {
				return
			}
			w.deliverError(err)
		}
	}
}

func (w *Watcher) runPoll(ctx context.Context) {
	t := time.NewTicker(w.cfg.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st, err := statFile(w.path)
			if err != nil {
				w.deliverError(err)
				continue
			}
			w.mu.RLock()
			moved := st.differs(w.last)
			w.mu.RUnlock()
			if moved {
				w.debouncer.Trigger(func() { w.settle(false) })
			}
		}
	}
}

// settle re-examines the file after a quiet period. sawEvent reports that
// fsnotify saw a write, which counts even when size and mtime look equal.
func (w *Watcher) settle(sawEvent bool) {
	st, err := statFile(w.path)
	if err != nil {
		w.deliverError(err)
		return
	}

	w.mu.Lock()
	if w.cancel == nil {
		// Stop raced with the debouncer.
		w.mu.Unlock()
		return
	}
	prev := w.last
	w.last = st
	var changed, removed bool
	switch {
	case !st.exists:
		removed = prev.exists
	case sawEvent || st.differs(prev):
		changed = true
		w.reported++
	}
	w.mu.Unlock()

	switch {
	case removed:
		w.deliverError(ErrFileRemoved)
	case changed:
		debug.Log("watcher: %s changed (%d bytes)", w.path, st.size)
		w.deliver(w.cfg.onChange)
		select {
		case w.changes <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) deliverError(err error) {
	debug.Log("watcher: %s: %v", w.path, err)
	w.deliver(func() { w.cfg.onError(err) })
}

func (w *Watcher) deliver(fn func()) {
	if w.cfg.sched != nil {
		w.cfg.sched.Post(fn)
		return
	}
	fn()
}
