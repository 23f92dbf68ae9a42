package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFile(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.ObserveFile(FileResult{
		Track:       "barber",
		Format:      "json",
		Downsampled: true,
		RowsIn:      10000,
		RowsOut:     1012,
		EventRows:   12,
		Chunks:      2,
		Bytes:       4096,
		Seconds:     0.5,
	})
	m.ObserveFile(FileResult{Track: "barber", Format: "json", RowsIn: 20, RowsOut: 20})

	if got := testutil.ToFloat64(m.FilesProcessed.WithLabelValues("barber", "downsampled")); got != 1 {
		t.Errorf("downsampled files = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FilesProcessed.WithLabelValues("barber", "passthrough")); got != 1 {
		t.Errorf("passthrough files = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RowsRead.WithLabelValues("barber")); got != 10020 {
		t.Errorf("rows read = %v, want 10020", got)
	}
	if got := testutil.ToFloat64(m.RowsWritten.WithLabelValues("barber")); got != 1032 {
		t.Errorf("rows written = %v, want 1032", got)
	}
	if got := testutil.ToFloat64(m.Chunks); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
}

func TestFailureCounters(t *testing.T) {
	m := New(prometheus.NewRegistry(), "")

	m.IncFilesFailed("vir", "parse")
	m.IncFilesFailed("vir", "parse")
	m.IncFilesSkipped("vir")
	m.IncArchivesFailed()
	m.IncStorageErrors("local")

	if got := testutil.ToFloat64(m.FilesFailed.WithLabelValues("vir", "parse")); got != 2 {
		t.Errorf("failed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FilesSkipped.WithLabelValues("vir")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ArchivesFailed); got != 1 {
		t.Errorf("archives failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StorageErrors.WithLabelValues("local")); got != 1 {
		t.Errorf("storage errors = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveFile(FileResult{Track: "x"})
	m.IncFilesFailed("x", "parse")
	m.IncFilesSkipped("x")
	m.IncTracksProcessed()
	m.IncArchivesFailed()
	m.ObserveArchiveDuration(1)
	m.AddInFlightFiles(1)
	m.IncStorageErrors("local")
	m.IncMetadataErrors()
}
