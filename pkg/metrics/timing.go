// Package metrics provides instrumentation for the texture streaming core.
//
// Two layers are kept side by side:
//   - in-process timing and cache counters, collected with atomic
//     operations and printed by pcv --debug on exit
//   - Prometheus collectors exported by pcv --metrics-addr
//
// Collection is enabled by default but can be disabled via PC_METRICS=0.
//
//	func decode() {
//	    defer metrics.Timer(metrics.TextureDecode)()
//	}
package metrics

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("PC_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled turns collection on or off.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric accumulates durations of one operation. Safe for
// concurrent use.
type TimingMetric struct {
	name  string
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
	min   atomic.Int64 // math.MaxInt64 until the first sample
}

func newTimingMetric(name string) *TimingMetric {
	m := &TimingMetric{name: name}
	m.min.Store(math.MaxInt64)
	return m
}

// Record adds one sample.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := int64(d)
	m.count.Add(1)
	m.total.Add(ns)
	for {
		cur := m.max.Load()
		if ns <= cur || m.max.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := m.min.Load()
		if ns >= cur || m.min.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string {
	return m.name
}

// Count returns the number of samples.
func (m *TimingMetric) Count() int64 {
	return m.count.Load()
}

// Stats returns a snapshot. Min is zero when nothing was recorded.
func (m *TimingMetric) Stats() TimingStats {
	s := TimingStats{
		Name:  m.name,
		Count: m.count.Load(),
		Total: time.Duration(m.total.Load()),
		Max:   time.Duration(m.max.Load()),
	}
	if s.Count > 0 {
		s.Avg = s.Total / time.Duration(s.Count)
		s.Min = time.Duration(m.min.Load())
	}
	return s
}

// Reset clears all samples.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.total.Store(0)
	m.max.Store(0)
	m.min.Store(math.MaxInt64)
}

// TimingStats is a snapshot of a TimingMetric.
type TimingStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

func (s TimingStats) String() string {
	return fmt.Sprintf("%-18s n=%-6d avg=%-10v min=%-10v max=%v", s.Name, s.Count, s.Avg, s.Min, s.Max)
}

// Timer starts timing m and returns the function that stops it:
//
//	defer metrics.Timer(metrics.LayoutCompute)()
func Timer(m *TimingMetric) func() {
	return timeInto(m, nil)
}

// timeInto is Timer with an extra observer for the elapsed time.
func timeInto(m *TimingMetric, observe func(time.Duration)) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		m.Record(d)
		if observe != nil {
			observe(d)
		}
	}
}

// Timed operations of the streaming core.
var (
	TextureFetch    = newTimingMetric("texture_fetch")
	TextureDecode   = newTimingMetric("texture_decode")
	LowResDownscale = newTimingMetric("low_res_downscale")
	DatasetLoad     = newTimingMetric("dataset_load")
	LayoutCompute   = newTimingMetric("layout_compute")
	FrameRender     = newTimingMetric("frame_render")
)

// AllTimingMetrics returns every timed operation.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{TextureFetch, TextureDecode, LowResDownscale, DatasetLoad, LayoutCompute, FrameRender}
}

// ResetAll clears timing and cache metrics.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, m := range AllCacheMetrics() {
		m.Reset()
	}
}

// Report writes one line per timing metric with samples and one per cache
// tier with requests.
func Report(w io.Writer) {
	for _, m := range AllTimingMetrics() {
		if m.Count() > 0 {
			fmt.Fprintln(w, m.Stats())
		}
	}
	for _, m := range AllCacheMetrics() {
		if s := m.Stats(); s.Hits+s.Misses > 0 {
			fmt.Fprintf(w, "cache %-12s hits=%d misses=%d rate=%.0f%%\n", s.Name, s.Hits, s.Misses, s.HitRate*100)
		}
	}
}
