// file: internal/metrics/metrics.go
// version: 1.2.0
// guid: 7d4b9e2a-5c1f-4a8d-b3e6-0f9c2a7d5b84

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	scansStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "scans_started_total",
		Help:      "Total number of scan operations started by type",
	}, []string{"type"})
	scansCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "scans_completed_total",
		Help:      "Total number of scan operations successfully completed by type",
	}, []string{"type"})
	scansFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "scans_failed_total",
		Help:      "Total number of scan operations failed by type",
	}, []string{"type"})
	scansCanceled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "scans_canceled_total",
		Help:      "Total number of scan operations canceled by type",
	}, []string{"type"})
	scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "music_catalog",
		Name:      "scan_duration_seconds",
		Help:      "Histogram of scan operation durations in seconds by type",
		Buckets:   prometheus.ExponentialBuckets(0.05, 1.6, 12),
	}, []string{"type"})

	songsIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "songs_indexed_total",
		Help:      "Total number of songs added to the catalog by scans",
	})
	songsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "songs_removed_total",
		Help:      "Total number of songs removed from the catalog",
	})
	extractionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "extraction_failures_total",
		Help:      "Total number of files whose metadata could not be parsed",
	})

	enrichmentFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "enrichment_fetches_total",
		Help:      "Total number of remote artist lookups by source",
	}, []string{"source"})
	enrichmentFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "enrichment_failures_total",
		Help:      "Total number of failed remote artist lookups by source",
	}, []string{"source"})
	imagesCached = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "music_catalog",
		Name:      "artist_images_cached_total",
		Help:      "Total number of artist images downloaded to the local cache",
	})

	songsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "music_catalog",
		Name:      "songs_total",
		Help:      "Current total number of songs in the catalog",
	})
	artistsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "music_catalog",
		Name:      "artists_total",
		Help:      "Current total number of artists in the catalog",
	})
	albumsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "music_catalog",
		Name:      "albums_total",
		Help:      "Current total number of albums in the catalog",
	})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(scansStarted, scansCompleted, scansFailed, scansCanceled, scanDuration,
			songsIndexed, songsRemoved, extractionFailures,
			enrichmentFetches, enrichmentFailures, imagesCached,
			songsGauge, artistsGauge, albumsGauge)
	})
}

// Scan lifecycle helpers
func IncScanStarted(scanType string)   { scansStarted.WithLabelValues(scanType).Inc() }
func IncScanCompleted(scanType string) { scansCompleted.WithLabelValues(scanType).Inc() }
func IncScanFailed(scanType string)    { scansFailed.WithLabelValues(scanType).Inc() }
func IncScanCanceled(scanType string)  { scansCanceled.WithLabelValues(scanType).Inc() }
func ObserveScanDuration(scanType string, d time.Duration) {
	scanDuration.WithLabelValues(scanType).Observe(d.Seconds())
}

// Scan result counters
func AddSongsIndexed(n int) { songsIndexed.Add(float64(n)) }
func AddSongsRemoved(n int) { songsRemoved.Add(float64(n)) }
func IncExtractionFailure() { extractionFailures.Inc() }

// Enrichment counters
func IncEnrichmentFetch(source string)   { enrichmentFetches.WithLabelValues(source).Inc() }
func IncEnrichmentFailure(source string) { enrichmentFailures.WithLabelValues(source).Inc() }
func IncImageCached()                    { imagesCached.Inc() }

// Gauges
func SetSongs(n int)   { songsGauge.Set(float64(n)) }
func SetArtists(n int) { artistsGauge.Set(float64(n)) }
func SetAlbums(n int)  { albumsGauge.Set(float64(n)) }
