package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Object store metrics
	ObjectsPresentTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keg_objects_present_total",
			Help: "Total number of objects present in the local store by kind",
		},
		[]string{"kind"},
	)

	FragmentsQuarantinedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keg_fragments_quarantined_total",
			Help: "Total number of encrypted fragments awaiting an Armadillo key",
		},
	)

	// Fetch metrics
	KeysFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_keys_fetched_total",
			Help: "Total number of keys fetched from a remote CDN by drain",
		},
		[]string{"drain"},
	)

	KeysSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_keys_skipped_total",
			Help: "Total number of keys skipped because they were already present locally",
		},
		[]string{"drain"},
	)

	KeysQuarantinedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_keys_quarantined_total",
			Help: "Total number of keys quarantined pending an Armadillo decryption key",
		},
		[]string{"drain"},
	)

	KeysFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_keys_failed_total",
			Help: "Total number of key fetches that failed verification or transport",
		},
		[]string{"drain", "reason"},
	)

	DrainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keg_drain_duration_seconds",
			Help:    "Time taken to fully service a drain",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"drain"},
	)

	DrainQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keg_drain_queue_depth",
			Help: "Number of keys enqueued on a drain's queue at the moment it was last drained",
		},
		[]string{"drain"},
	)

	// Remote metrics
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_remote_requests_total",
			Help: "Total number of requests issued to a remote by protocol and status",
		},
		[]string{"remote", "protocol", "status"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keg_remote_request_duration_seconds",
			Help:    "Remote request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"remote", "protocol"},
	)

	BytesDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_bytes_downloaded_total",
			Help: "Total bytes downloaded from a remote CDN by object kind",
		},
		[]string{"kind"},
	)

	// Fetcher phase metrics
	FetchPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keg_fetch_phase_duration_seconds",
			Help:    "Time taken to complete a fetch phase (config, metadata, data)",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"phase"},
	)

	BuildsFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keg_builds_fetched_total",
			Help: "Total number of builds fully fetched",
		},
	)

	BuildsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keg_builds_failed_total",
			Help: "Total number of builds that failed to fetch",
		},
	)

	// Verification metrics
	IntegrityFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keg_integrity_failures_total",
			Help: "Total number of objects that failed integrity verification by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ObjectsPresentTotal)
	prometheus.MustRegister(FragmentsQuarantinedTotal)
	prometheus.MustRegister(KeysFetchedTotal)
	prometheus.MustRegister(KeysSkippedTotal)
	prometheus.MustRegister(KeysQuarantinedTotal)
	prometheus.MustRegister(KeysFailedTotal)
	prometheus.MustRegister(DrainDuration)
	prometheus.MustRegister(DrainQueueDepth)
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(BytesDownloadedTotal)
	prometheus.MustRegister(FetchPhaseDuration)
	prometheus.MustRegister(BuildsFetchedTotal)
	prometheus.MustRegister(BuildsFailedTotal)
	prometheus.MustRegister(IntegrityFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
