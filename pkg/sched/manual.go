package sched

import (
	"sort"
	"sync"
	"time"
)

type manualTimer struct {
	at  time.Time
	seq int
	fn  func()
}

// Manual is a deterministic Scheduler driven by the caller. Go work is
// queued like any other task and runs on the caller's goroutine, and
// timers fire only when the virtual clock is advanced.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	tasks  []func()
	timers []manualTimer
	seq    int
}

// NewManual returns a Manual scheduler whose clock starts at the Unix epoch.
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

// Post implements Scheduler.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, fn)
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now.Add(d), seq: m.seq, fn: fn})
}

// Go implements Scheduler.
func (m *Manual) Go(work func()) {
	m.Post(work)
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// PendingTimers returns the number of timers that have not fired.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Step runs the oldest queued task. It reports false when nothing was queued.
func (m *Manual) Step() bool {
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.tasks[0]
	m.tasks = m.tasks[1:]
	m.mu.Unlock()
	fn()
	return true
}

// RunPending runs tasks until the queue is empty, including tasks posted
// while running. It returns the number of tasks run.
func (m *Manual) RunPending() int {
	n := 0
	for m.Step() {
		n++
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in order and
// draining the task queue after each.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	m.RunPending()
	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at.Equal(m.timers[j].at) {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at.Before(m.timers[j].at)
		})
		if len(m.timers) == 0 || m.timers[0].at.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		next := m.timers[0]
		m.timers = m.timers[1:]
		m.now = next.at
		m.mu.Unlock()

		next.fn()
		m.RunPending()
	}
}
