package metadata

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewWriterWithoutDSNIsNoop(t *testing.T) {
	w, err := NewWriter(context.Background(), CatalogConfig{})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	if err := w.RecordConversion(context.Background(), ConversionRecord{Track: "barber"}); err != nil {
		t.Errorf("RecordConversion failed: %v", err)
	}
	if err := w.RecordQuality(context.Background(), QualityRecord{Track: "barber"}); err != nil {
		t.Errorf("RecordQuality failed: %v", err)
	}
}

func TestNewWriterRejectsBadDSN(t *testing.T) {
	_, err := NewWriter(context.Background(), CatalogConfig{PostgresDSN: "postgres://%zz"})
	if err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"_meta_tracks", "_meta_conversions", "_meta_quality"} {
		if !strings.Contains(schemaSQL, table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}

// Runs against a real database when TC_TEST_POSTGRES_DSN is set.
func TestPostgresWriterIntegration(t *testing.T) {
	dsn := os.Getenv("TC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TC_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	w, err := NewPostgresWriter(ctx, CatalogConfig{PostgresDSN: dsn})
	if err != nil {
		t.Fatalf("NewPostgresWriter failed: %v", err)
	}
	defer w.Close()

	track := "itest-" + time.Now().Format("20060102150405.000000000")
	rec := ConversionRecord{
		RunID:           "run-1",
		Track:           track,
		ArchiveChecksum: "sha256:aaa",
		SourceFile:      "R1_telemetry.csv",
		SourceBytes:     1024,
		StorageKey:      track + "/R1_telemetry.json",
		Format:          "json",
		RowsIn:          100,
		RowsOut:         12,
		Downsampled:     true,
		Checksum:        "sha256:bbb",
		ByteSize:        512,
		ProducerVersion: "test",
	}
	if err := w.RecordConversion(ctx, rec); err != nil {
		t.Fatalf("RecordConversion failed: %v", err)
	}

	got, err := w.LastChecksum(ctx, track, "R1_telemetry.csv")
	if err != nil {
		t.Fatalf("LastChecksum failed: %v", err)
	}
	if got != "sha256:bbb" {
		t.Errorf("checksum = %q, want sha256:bbb", got)
	}

	if err := w.RecordQuality(ctx, QualityRecord{
		RunID: "run-1", Track: track, ArchiveChecksum: "sha256:aaa",
		SourceFile: "R1_telemetry.csv", Stage: "validate", Passed: true,
	}); err != nil {
		t.Fatalf("RecordQuality failed: %v", err)
	}
}
