// Package metrics provides Prometheus metrics for the telemetry copier.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the telemetry copier.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// File metrics
	FilesProcessed *prometheus.CounterVec
	FilesSkipped   *prometheus.CounterVec
	FilesFailed    *prometheus.CounterVec

	// Archive metrics
	TracksProcessed prometheus.Counter
	ArchivesFailed  prometheus.Counter

	// Row metrics
	RowsRead    *prometheus.CounterVec
	RowsWritten *prometheus.CounterVec
	EventRows   *prometheus.CounterVec
	Chunks      prometheus.Counter

	// Timing metrics
	FileDuration    *prometheus.HistogramVec
	ArchiveDuration prometheus.Histogram

	// Size metrics
	OutputBytes *prometheus.HistogramVec

	// Pipeline metrics
	InFlightFiles prometheus.Gauge

	// Error metrics
	StorageErrors  *prometheus.CounterVec
	MetadataErrors prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init registers the metrics on the default registry and makes them
// available through Get. Call this once at startup.
func Init(namespace string) *Metrics {
	defaultMetrics = New(prometheus.DefaultRegisterer, namespace)
	return defaultMetrics
}

// New creates metrics registered on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "telemetry_copier"
	}
	f := promauto.With(reg)

	return &Metrics{
		FilesProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Total number of CSV files converted",
			},
			[]string{"track", "mode"},
		),
		FilesSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Total number of CSV files skipped (output already exists)",
			},
			[]string{"track"},
		),
		FilesFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Total number of CSV files that failed conversion",
			},
			[]string{"track", "stage"},
		),
		TracksProcessed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracks_processed_total",
				Help:      "Total number of track archives processed",
			},
		),
		ArchivesFailed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archives_failed_total",
				Help:      "Total number of archives that could not be extracted",
			},
		),
		RowsRead: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_read_total",
				Help:      "Total number of CSV data rows read",
			},
			[]string{"track"},
		),
		RowsWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total number of rows written after downsampling",
			},
			[]string{"track"},
		),
		EventRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_rows_total",
				Help:      "Total number of rows retained as speed events",
			},
			[]string{"track"},
		),
		Chunks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_processed_total",
				Help:      "Total number of chunks downsampled",
			},
		),
		FileDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_duration_seconds",
				Help:      "Time to convert a single CSV file",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"mode"},
		),
		ArchiveDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_duration_seconds",
				Help:      "Time to process a whole track archive",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~7m
			},
		),
		OutputBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_bytes",
				Help:      "Size of written output files in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
			},
			[]string{"format"},
		),
		InFlightFiles: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_files",
				Help:      "Number of files currently being converted",
			},
		),
		StorageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of output write errors",
			},
			[]string{"backend"},
		),
		MetadataErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metadata_errors_total",
				Help:      "Total number of catalog write errors",
			},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// FileResult is what the copier reports for one converted file.
type FileResult struct {
	Track       string
	Format      string
	Downsampled bool
	RowsIn      int
	RowsOut     int
	EventRows   int
	Chunks      int
	Bytes       int
	Seconds     float64
}

func mode(downsampled bool) string {
	if downsampled {
		return "downsampled"
	}
	return "passthrough"
}

// ObserveFile records a successfully converted file.
func (m *Metrics) ObserveFile(r FileResult) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(r.Track, mode(r.Downsampled)).Inc()
	m.RowsRead.WithLabelValues(r.Track).Add(float64(r.RowsIn))
	m.RowsWritten.WithLabelValues(r.Track).Add(float64(r.RowsOut))
	m.EventRows.WithLabelValues(r.Track).Add(float64(r.EventRows))
	m.Chunks.Add(float64(r.Chunks))
	m.FileDuration.WithLabelValues(mode(r.Downsampled)).Observe(r.Seconds)
	m.OutputBytes.WithLabelValues(r.Format).Observe(float64(r.Bytes))
}

// IncFilesSkipped increments the files skipped counter.
func (m *Metrics) IncFilesSkipped(track string) {
	if m == nil {
		return
	}
	m.FilesSkipped.WithLabelValues(track).Inc()
}

// IncFilesFailed increments the files failed counter.
func (m *Metrics) IncFilesFailed(track, stage string) {
	if m == nil {
		return
	}
	m.FilesFailed.WithLabelValues(track, stage).Inc()
}

// IncTracksProcessed increments the tracks processed counter.
func (m *Metrics) IncTracksProcessed() {
	if m == nil {
		return
	}
	m.TracksProcessed.Inc()
}

// IncArchivesFailed increments the failed archives counter.
func (m *Metrics) IncArchivesFailed() {
	if m == nil {
		return
	}
	m.ArchivesFailed.Inc()
}

// ObserveArchiveDuration records the time spent on one archive.
func (m *Metrics) ObserveArchiveDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ArchiveDuration.Observe(seconds)
}

// AddInFlightFiles adjusts the in-flight files gauge.
func (m *Metrics) AddInFlightFiles(delta float64) {
	if m == nil {
		return
	}
	m.InFlightFiles.Add(delta)
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(backend string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(backend).Inc()
}

// IncMetadataErrors increments the metadata errors counter.
func (m *Metrics) IncMetadataErrors() {
	if m == nil {
		return
	}
	m.MetadataErrors.Inc()
}
