package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManual_RunsTasksInPostOrder(t *testing.T) {
	m := NewManual()
	var got []int
	m.Post(func() { got = append(got, 1) })
	m.Post(func() {
		got = append(got, 2)
		m.Post(func() { got = append(got, 4) })
	})
	m.Go(func() { got = append(got, 3) })

	if n := m.RunPending(); n != 4 {
		t.Fatalf("expected 4 tasks, ran %d", n)
	}
	want := []int{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestManual_TimersFireOnAdvance(t *testing.T) {
	m := NewManual()
	var fired []string
	m.After(500*time.Millisecond, func() { fired = append(fired, "late") })
	m.After(100*time.Millisecond, func() { fired = append(fired, "early") })
	m.After(100*time.Millisecond, func() { fired = append(fired, "early2") })

	m.Advance(99 * time.Millisecond)
	if len(fired) != 0 {
		t.Fatalf("nothing should fire yet, got %v", fired)
	}
	m.Advance(time.Millisecond)
	if len(fired) != 2 || fired[0] != "early" || fired[1] != "early2" {
		t.Fatalf("expected early timers in registration order, got %v", fired)
	}
	if m.PendingTimers() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", m.PendingTimers())
	}
	m.Advance(time.Second)
	if len(fired) != 3 {
		t.Fatalf("expected all timers fired, got %v", fired)
	}
	if got := m.Now(); !got.Equal(time.Unix(0, 0).Add(1100 * time.Millisecond)) {
		t.Fatalf("clock = %v", got)
	}
}

func TestManual_TimerScheduledFromTimer(t *testing.T) {
	m := NewManual()
	count := 0
	m.After(10*time.Millisecond, func() {
		count++
		m.After(10*time.Millisecond, func() { count++ })
	})
	m.Advance(25 * time.Millisecond)
	if count != 2 {
		t.Fatalf("expected chained timer to fire, count=%d", count)
	}
}

func TestLoop_SerializesTasks(t *testing.T) {
	l := NewLoop(4)
	defer l.Close()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		l.Go(func() {
			l.Post(func() {
				defer wg.Done()
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()
				time.Sleep(time.Microsecond)
				mu.Lock()
				running--
				mu.Unlock()
			})
		})
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("loop tasks overlapped: max concurrency %d", maxSeen)
	}
}

func TestLoop_AfterAndDo(t *testing.T) {
	l := NewLoop(1)
	defer l.Close()

	var fired atomic.Bool
	l.After(10*time.Millisecond, func() { fired.Store(true) })

	deadline := time.Now().Add(2 * time.Second)
	for !fired.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !fired.Load() {
		t.Fatal("timer did not fire")
	}

	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatal("Do did not run fn")
	}
}

func TestLoop_PanicIsRecovered(t *testing.T) {
	l := NewLoop(1)
	defer l.Close()

	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatal("loop stopped after panic")
	}
}

func TestLoop_CloseDropsLaterWork(t *testing.T) {
	l := NewLoop(1)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	l.Post(func() { t.Error("task ran after close") })
	l.Go(func() { t.Error("work ran after close") })
	l.After(time.Millisecond, func() { t.Error("timer ran after close") })
	time.Sleep(20 * time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
