package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
	"github.com/vanderheijden86/photocluster/pkg/testutil"
)

// datasetFile writes an initial dataset document into a temp dir.
func datasetFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.json")
	writeFile(t, path, `{"nodes":[]}`)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// startWatcher starts a fast polling watcher and stops it at cleanup.
func startWatcher(t *testing.T, path string, opts ...WatcherOption) *Watcher {
	t.Helper()
	base := []WatcherOption{
		WithDebounceDuration(10 * time.Millisecond),
		WithPollInterval(20 * time.Millisecond),
	}
	w, err := NewWatcher(path, append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDebouncer(t *testing.T) {
	t.Run("coalesces a burst", func(t *testing.T) {
		d := NewDebouncer(40 * time.Millisecond)
		var calls atomic.Int32
		for i := 0; i < 8; i++ {
			d.Trigger(func() { calls.Add(1) })
			time.Sleep(5 * time.Millisecond)
		}
		eventually(t, time.Second, "debounced call", func() bool { return calls.Load() > 0 })
		time.Sleep(60 * time.Millisecond)
		if got := calls.Load(); got != 1 {
			t.Errorf("calls = %d, want 1", got)
		}
	})

	t.Run("cancel drops the pending call", func(t *testing.T) {
		d := NewDebouncer(30 * time.Millisecond)
		var called atomic.Bool
		d.Trigger(func() { called.Store(true) })
		d.Cancel()
		time.Sleep(60 * time.Millisecond)
		if called.Load() {
			t.Error("cancelled callback ran")
		}
	})

	t.Run("latest trigger wins and restarts the quiet period", func(t *testing.T) {
		d := NewDebouncer(80 * time.Millisecond)
		var last atomic.Int32
		d.Trigger(func() { last.Store(1) })
		time.Sleep(40 * time.Millisecond)
		d.Trigger(func() { last.Store(2) })
		time.Sleep(60 * time.Millisecond)
		if got := last.Load(); got != 0 {
			t.Fatalf("ran before the quiet period ended (got %d)", got)
		}
		eventually(t, time.Second, "latest callback", func() bool { return last.Load() == 2 })
	})

	t.Run("zero means default", func(t *testing.T) {
		if got := NewDebouncer(0).Duration(); got != DefaultDebounceDuration {
			t.Errorf("Duration = %v, want %v", got, DefaultDebounceDuration)
		}
	})
}

func TestWatcher_ReportsRewrite(t *testing.T) {
	for _, poll := range []bool{false, true} {
		t.Run(map[bool]string{false: "notify", true: "poll"}[poll], func(t *testing.T) {
			path := datasetFile(t)
			var changes atomic.Int32
			w := startWatcher(t, path, WithForcePoll(poll), WithOnChange(func() { changes.Add(1) }))
			if w.IsPolling() != poll {
				t.Fatalf("IsPolling = %v, want %v", w.IsPolling(), poll)
			}

			time.Sleep(30 * time.Millisecond)
			writeFile(t, path, `{"nodes":[{"id":"a"}]}`)
			eventually(t, 2*time.Second, "change callback", func() bool { return changes.Load() > 0 })

			select {
			case <-w.Changed():
			case <-time.After(time.Second):
				t.Error("Changed channel not signalled")
			}
			if w.Changes() == 0 {
				t.Error("Changes counter not advanced")
			}
		})
	}
}

func TestWatcher_AtomicSaveIsAChange(t *testing.T) {
	path := datasetFile(t)
	var changes atomic.Int32
	var errs atomic.Int32
	startWatcher(t, path,
		WithDebounceDuration(50*time.Millisecond),
		WithOnChange(func() { changes.Add(1) }),
		WithOnError(func(error) { errs.Add(1) }),
	)
	time.Sleep(30 * time.Millisecond)

	tmp := path + ".tmp"
	writeFile(t, tmp, `{"nodes":[{"id":"b"}]}`)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, "change after rename", func() bool { return changes.Load() > 0 })
	if errs.Load() != 0 {
		t.Errorf("rename over the file reported %d errors", errs.Load())
	}
}

func TestWatcher_RemovalReportedOnce(t *testing.T) {
	path := datasetFile(t)
	var (
		mu   sync.Mutex
		errs []error
	)
	startWatcher(t, path, WithForcePoll(true), WithOnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}))
	time.Sleep(30 * time.Millisecond)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	eventually(t, 2*time.Second, "removal error", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], ErrFileRemoved) {
		t.Errorf("errors = %v, want one ErrFileRemoved", errs)
	}
}

func TestWatcher_CreationCountsAsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.json")
	var changes atomic.Int32
	startWatcher(t, path, WithForcePoll(true), WithOnChange(func() { changes.Add(1) }))

	writeFile(t, path, `{"nodes":[]}`)
	eventually(t, 2*time.Second, "creation", func() bool { return changes.Load() == 1 })
}

func TestWatcher_ModeSelection(t *testing.T) {
	t.Run("env forces polling", func(t *testing.T) {
		t.Setenv(ForcePollingEnvVar, "yes")
		w := startWatcher(t, datasetFile(t))
		if w.Mode() != ModePoll {
			t.Errorf("Mode = %s, want poll", w.Mode())
		}
	})

	t.Run("remote filesystem polls", func(t *testing.T) {
		orig := detectFilesystemTypeFunc
		detectFilesystemTypeFunc = func(string) FilesystemType { return FSTypeSMB }
		t.Cleanup(func() { detectFilesystemTypeFunc = orig })

		w := startWatcher(t, datasetFile(t))
		if !w.IsPolling() {
			t.Error("expected polling on a remote filesystem")
		}
		if got := w.FilesystemType(); got != FSTypeSMB {
			t.Errorf("FilesystemType = %s, want smb", got)
		}
	})

	t.Run("mode names", func(t *testing.T) {
		if ModeNotify.String() != "notify" || ModePoll.String() != "poll" {
			t.Errorf("names = %s/%s", ModeNotify, ModePoll)
		}
	})
}

func TestWatcher_Lifecycle(t *testing.T) {
	path := datasetFile(t)
	w, err := NewWatcher(path, WithPollInterval(750*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	abs, _ := filepath.Abs(path)
	if w.Path() != abs {
		t.Errorf("Path = %s, want %s", w.Path(), abs)
	}
	if w.PollInterval() != 750*time.Millisecond {
		t.Errorf("PollInterval = %v", w.PollInterval())
	}
	if w.IsStarted() {
		t.Fatal("started before Start")
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	w.Stop()
	w.Stop()
	if w.IsStarted() {
		t.Error("still started after Stop")
	}
	if err := w.Start(); err != nil {
		t.Errorf("restart: %v", err)
	}
	w.Stop()
}

func TestWatcher_NoCallbackAfterStop(t *testing.T) {
	path := datasetFile(t)
	var changes atomic.Int32
	w := startWatcher(t, path,
		WithForcePoll(true),
		WithDebounceDuration(80*time.Millisecond),
		WithOnChange(func() { changes.Add(1) }),
	)
	time.Sleep(30 * time.Millisecond)
	writeFile(t, path, `{"nodes":[{"id":"late"}]}`)
	time.Sleep(40 * time.Millisecond)
	w.Stop()

	time.Sleep(150 * time.Millisecond)
	if changes.Load() != 0 {
		t.Error("change delivered after Stop")
	}
}

func TestFilesystemType_String(t *testing.T) {
	tests := []struct {
		fsType FilesystemType
		want   string
	}{
		{FSTypeUnknown, "unknown"},
		{FSTypeLocal, "local"},
		{FSTypeNFS, "nfs"},
		{FSTypeSMB, "smb"},
		{FSTypeSSHFS, "sshfs"},
		{FSTypeFUSE, "fuse"},
		{FilesystemType(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.fsType.String(); got != tt.want {
			t.Errorf("FilesystemType(%d) = %q, want %q", tt.fsType, got, tt.want)
		}
	}
}

func TestDetectFilesystemType(t *testing.T) {
	if got := DetectFilesystemType(""); got != FSTypeUnknown {
		t.Errorf("empty path = %s, want unknown", got)
	}
	// A missing file is classified by its directory.
	_ = DetectFilesystemType(filepath.Join(t.TempDir(), "missing.json"))
}

func TestEnvBool(t *testing.T) {
	for value, want := range map[string]bool{
		"1": true, "true": true, "TRUE": true, "yes": true, "Y": true, " on ": true,
		"0": false, "false": false, "no": false, "": false, "maybe": false,
	} {
		t.Setenv("PC_TEST_BOOL", value)
		if got := envBool("PC_TEST_BOOL"); got != want {
			t.Errorf("envBool(%q) = %v, want %v", value, got, want)
		}
	}
}

// waitPending polls until the manual scheduler has queued work.
func waitPending(t *testing.T, s *sched.Manual) {
	t.Helper()
	eventually(t, 2*time.Second, "scheduled work", func() bool { return s.Pending() > 0 })
}

func TestWatcher_DeliversOnScheduler(t *testing.T) {
	path := datasetFile(t)
	s := sched.NewManual()
	var changes atomic.Int32
	startWatcher(t, path, WithForcePoll(true), WithScheduler(s), WithOnChange(func() { changes.Add(1) }))

	time.Sleep(30 * time.Millisecond)
	writeFile(t, path, `{"nodes":[{"id":"x"}]}`)

	waitPending(t, s)
	if changes.Load() != 0 {
		t.Fatal("callback ran off the loop")
	}
	s.RunPending()
	if changes.Load() != 1 {
		t.Errorf("changes on the loop = %d, want 1", changes.Load())
	}
}

func TestReloader_AppliesReloadedDataset(t *testing.T) {
	path := datasetFile(t)
	first := testutil.Dataset(testutil.DefaultConfig())
	cfg := testutil.DefaultConfig()
	cfg.Nodes = 20
	second := testutil.Dataset(cfg)

	s := sched.NewManual()
	var applied [][2]*model.Dataset
	r, err := NewReloader(path, s, first,
		func() (*model.Dataset, error) { return second, nil },
		func(old, next *model.Dataset) { applied = append(applied, [2]*model.Dataset{old, next}) },
		nil,
		WithDebounceDuration(10*time.Millisecond),
		WithPollInterval(20*time.Millisecond),
		WithForcePoll(true),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	time.Sleep(30 * time.Millisecond)
	writeFile(t, path, `{"nodes":[{"id":"v2"}]}`)
	waitPending(t, s)
	s.RunPending()

	if len(applied) != 1 {
		t.Fatalf("applies = %d, want 1", len(applied))
	}
	if applied[0][0] != first || applied[0][1] != second {
		t.Error("apply received the wrong datasets")
	}
	if r.Current() != second || r.Loads() != 1 {
		t.Errorf("Current/Loads not updated: loads=%d", r.Loads())
	}
	if r.Watcher().Changes() != 1 {
		t.Errorf("watcher changes = %d, want 1", r.Watcher().Changes())
	}
}

func TestReloader_LoadErrorKeepsCurrent(t *testing.T) {
	path := datasetFile(t)
	first := testutil.Dataset(testutil.DefaultConfig())
	loadErr := errors.New("truncated json")

	s := sched.NewManual()
	var gotErr error
	r, err := NewReloader(path, s, first,
		func() (*model.Dataset, error) { return nil, loadErr },
		func(old, next *model.Dataset) { t.Error("apply called after a failed load") },
		func(err error) { gotErr = err },
		WithDebounceDuration(10*time.Millisecond),
		WithPollInterval(20*time.Millisecond),
		WithForcePoll(true),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	time.Sleep(30 * time.Millisecond)
	writeFile(t, path, `{"nodes":[`)
	waitPending(t, s)
	s.RunPending()

	if !errors.Is(gotErr, loadErr) {
		t.Errorf("error = %v, want %v", gotErr, loadErr)
	}
	if r.Current() != first || r.Loads() != 1 {
		t.Errorf("current replaced or loads wrong (loads=%d)", r.Loads())
	}
}
