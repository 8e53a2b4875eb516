package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	FoldersTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftshare_folders_tracked",
			Help: "Total number of folders currently tracked",
		},
	)

	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driftshare_jobs_total",
			Help: "Total number of upload/download jobs by kind and state",
		},
		[]string{"kind", "state"},
	)

	SegmentsPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftshare_segments_posted_total",
			Help: "Total number of segments posted to the article network, by outcome",
		},
		[]string{"outcome"}, // success, failed
	)

	BytesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftshare_bytes_uploaded_total",
			Help: "Total ciphertext bytes posted as article bodies",
		},
	)

	BytesDownloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftshare_bytes_downloaded_total",
			Help: "Total plaintext bytes reconstructed to disk",
		},
	)

	UploadRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftshare_upload_retries_total",
			Help: "Total number of upload job retries across all servers",
		},
	)

	// Share metrics
	SharesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftshare_shares_published_total",
			Help: "Total number of shares published by access tier",
		},
		[]string{"tier"},
	)

	SharesRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftshare_shares_revoked_total",
			Help: "Total number of shares revoked",
		},
	)

	SharesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftshare_shares_active",
			Help: "Current number of non-revoked shares",
		},
	)

	// Article network metrics
	ServerConnectionsInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driftshare_server_connections_in_use",
			Help: "Pooled connections currently leased, per server",
		},
		[]string{"server"},
	)

	ArticlePostDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftshare_article_post_duration_seconds",
			Help:    "Time taken to post one article, including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	ArticleFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftshare_article_fetch_duration_seconds",
			Help:    "Time taken to fetch one article",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Manifest metrics
	ManifestBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftshare_manifest_build_duration_seconds",
			Help:    "Time taken to build and seal an index manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	SlowQueriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftshare_store_slow_queries",
			Help: "Number of slow store queries retained in the ring buffer",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FoldersTracked,
		JobsTotal,
		SegmentsPostedTotal,
		BytesUploadedTotal,
		BytesDownloadedTotal,
		UploadRetriesTotal,
		SharesPublishedTotal,
		SharesRevokedTotal,
		SharesActive,
		ServerConnectionsInUse,
		ArticlePostDuration,
		ArticleFetchDuration,
		ManifestBuildDuration,
		SlowQueriesTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a convenience wrapper for timing an operation and recording its
// duration to a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
