package metrics

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTimingMetric_Record(t *testing.T) {
	m := newTimingMetric("test")
	m.Record(2 * time.Millisecond)
	m.Record(4 * time.Millisecond)

	s := m.Stats()
	if s.Count != 2 {
		t.Fatalf("count = %d, want 2", s.Count)
	}
	if s.Min != 2*time.Millisecond || s.Max != 4*time.Millisecond || s.Avg != 3*time.Millisecond {
		t.Fatalf("unexpected stats %+v", s)
	}
	m.Reset()
	if s := m.Stats(); s.Count != 0 || s.Min != 0 || s.Max != 0 {
		t.Fatalf("reset did not clear metric: %+v", s)
	}
	m.Record(7 * time.Millisecond)
	if s := m.Stats(); s.Min != 7*time.Millisecond {
		t.Fatalf("min after reset = %v, want 7ms", s.Min)
	}
}

func TestTimer_DisabledIsNoop(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("off")
	Timer(m)()
	if m.Count() != 0 {
		t.Fatalf("disabled timer recorded %d samples", m.Count())
	}
}

func TestCacheMetric_HitRate(t *testing.T) {
	m := newCacheMetric("unit")
	if m.HitRate() != 0 {
		t.Fatalf("empty hit rate should be 0")
	}
	m.Hit()
	m.Hit()
	m.Hit()
	m.Miss()
	if got := m.HitRate(); got != 0.75 {
		t.Fatalf("hit rate = %v, want 0.75", got)
	}
	if s := m.Stats(); s.Hits != 3 || s.Misses != 1 || s.Name != "unit" {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestFetchTimer_RecordsTiming(t *testing.T) {
	TextureFetch.Reset()
	FetchTimer()()
	if TextureFetch.Count() != 1 {
		t.Fatalf("fetch timer did not record")
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordFailure("fetch")
	SetQueueDepth(3)
	LowResCache.Miss()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"photocluster_texture_failures_total",
		"photocluster_load_queue_depth 3",
		"photocluster_texture_cache_requests_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestReport_SkipsEmptyMetrics(t *testing.T) {
	ResetAll()
	defer ResetAll()
	LayoutCompute.Record(time.Millisecond)
	HighResCache.Hit()

	var buf bytes.Buffer
	Report(&buf)
	out := buf.String()
	if !strings.Contains(out, "layout_compute") || !strings.Contains(out, "cache high") {
		t.Errorf("report missing recorded metrics:\n%s", out)
	}
	if strings.Contains(out, "frame_render") || strings.Contains(out, "cache low") {
		t.Errorf("report lists metrics without samples:\n%s", out)
	}
}
