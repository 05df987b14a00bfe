package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocluster_texture_cache_requests_total",
			Help: "Texture cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	loadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocluster_texture_failures_total",
			Help: "Texture loads resolved to the placeholder, by failure kind",
		},
		[]string{"kind"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photocluster_load_queue_depth",
			Help: "Pending high-resolution load requests",
		},
	)

	fetchSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "photocluster_texture_fetch_seconds",
			Help: "Duration of image fetches",
			// From a local file read up to a slow remote origin.
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
	)
)

// RecordFailure counts a texture load that fell back to the placeholder.
func RecordFailure(kind string) {
	if !Enabled() {
		return
	}
	loadFailures.WithLabelValues(kind).Inc()
}

// SetQueueDepth publishes the number of pending high-resolution loads.
func SetQueueDepth(n int) {
	if !Enabled() {
		return
	}
	queueDepth.Set(float64(n))
}

// FetchTimer times an image fetch into both the in-process metric and the
// Prometheus histogram.
func FetchTimer() func() {
	return timeInto(TextureFetch, func(d time.Duration) {
		fetchSeconds.Observe(d.Seconds())
	})
}

// Handler serves the registered Prometheus collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
