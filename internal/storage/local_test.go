package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Track:     "barber",
		Archive:   ArchiveInfo{Ref: "barber.zip", Checksum: "sha256:abc123"},
		RunID:     "run-1",
		Total:     2,
		Processed: 1,
		Files: []FileEntry{{
			Source:      "R1_telemetry.csv",
			Output:      "barber/R1_telemetry.json",
			Format:      "json",
			RowsIn:      100,
			RowsOut:     12,
			Downsampled: true,
			Checksum:    "sha256:def456",
			ByteSize:    42,
		}},
		Failures:  []FailureEntry{{Source: "broken.csv", Stage: "parse", Error: "bad row"}},
		Producer:  ProducerInfo{Name: "telemetry-copier", Version: "test"},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOutputRefKey(t *testing.T) {
	ref := OutputRef{Track: "barber", Name: "R1_telemetry", Ext: ".json"}
	if got := ref.Key(""); got != "barber/R1_telemetry.json" {
		t.Errorf("Key = %s", got)
	}
	if got := ref.Key("out/"); got != "out/barber/R1_telemetry.json" {
		t.Errorf("Key with prefix = %s", got)
	}
	if got := ManifestKey("", "barber"); got != "barber/_manifest.json" {
		t.Errorf("ManifestKey = %s", got)
	}
}

func TestLocalStoreWrites(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "output")

	store, err := NewLocalStore(tmpDir, "")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	ctx := context.Background()
	ref := OutputRef{Track: "barber", Name: "R1_telemetry", Ext: ".json"}

	exists, err := store.Exists(ctx, ref)
	if err != nil || exists {
		t.Fatalf("Exists before write = %v, %v", exists, err)
	}

	data := []byte("[]\n")
	if err := store.WriteObject(ctx, ref, data); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}

	path := filepath.Join(tmpDir, "barber", "R1_telemetry.json")
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("content = %q, want %q", got, data)
	}

	exists, err = store.Exists(ctx, ref)
	if err != nil || !exists {
		t.Errorf("Exists after write = %v, %v", exists, err)
	}

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Join(tmpDir, "barber"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	if err := store.WriteManifest(ctx, "barber", sampleManifest()); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(tmpDir, "barber", ManifestName))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	var decoded Manifest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if decoded.Track != "barber" || len(decoded.Files) != 1 || decoded.Files[0].RowsOut != 12 {
		t.Errorf("decoded manifest = %+v", decoded)
	}

	uri := store.URI(store.Key(ref))
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, "barber/R1_telemetry.json") {
		t.Errorf("URI = %s", uri)
	}
}

func TestLocalStoreWriteError(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewLocalStore(tmpDir, "")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	// A regular file where the track directory should be
	if err := os.WriteFile(filepath.Join(tmpDir, "blocked"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	err = store.WriteObject(context.Background(), OutputRef{Track: "blocked", Name: "a", Ext: ".json"}, []byte("[]"))
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if we.Key != "blocked/a.json" {
		t.Errorf("key = %s", we.Key)
	}
}

func TestBucketStoreWrites(t *testing.T) {
	ctx := context.Background()
	store := NewBucketStore(memblob.OpenBucket(nil), "mem://telemetry", "converted/")
	defer store.Close()

	ref := OutputRef{Track: "sebring", Name: "lap_end", Ext: ".json.zst"}
	if err := store.WriteObject(ctx, ref, []byte("payload")); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}

	key := store.Key(ref)
	if key != "converted/sebring/lap_end.json.zst" {
		t.Errorf("key = %s", key)
	}
	got, err := store.ReadObject(ctx, key)
	if err != nil || string(got) != "payload" {
		t.Errorf("ReadObject = %q, %v", got, err)
	}

	exists, err := store.Exists(ctx, ref)
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
	exists, err = store.Exists(ctx, OutputRef{Track: "sebring", Name: "missing", Ext: ".json"})
	if err != nil || exists {
		t.Errorf("Exists(missing) = %v, %v", exists, err)
	}

	if err := store.WriteManifest(ctx, "sebring", sampleManifest()); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	if _, err := store.ReadObject(ctx, "converted/sebring/_manifest.json"); err != nil {
		t.Errorf("manifest missing: %v", err)
	}

	if uri := store.URI(key); uri != "mem://telemetry/converted/sebring/lap_end.json.zst" {
		t.Errorf("URI = %s", uri)
	}
}

func TestNewOutputStore(t *testing.T) {
	ctx := context.Background()

	store, err := NewOutputStore(ctx, StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	store.Close()

	store, err = NewOutputStore(ctx, StorageConfig{Backend: "bucket", BucketURL: "mem://"})
	if err != nil {
		t.Fatalf("bucket backend: %v", err)
	}
	store.Close()

	bad := []StorageConfig{
		{Backend: "local"},
		{Backend: "gcs"},
		{Backend: "s3"},
		{Backend: "bucket"},
		{Backend: "ftp"},
	}
	for _, cfg := range bad {
		if _, err := NewOutputStore(ctx, cfg); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestS3BucketURL(t *testing.T) {
	if got := S3BucketURL("tracks", "", ""); got != "s3://tracks" {
		t.Errorf("plain = %s", got)
	}
	got := S3BucketURL("tracks", "https://s3.example.com", "us-west-000")
	want := "s3://tracks?endpoint=https%3A%2F%2Fs3.example.com&region=us-west-000&s3ForcePathStyle=true"
	if got != want {
		t.Errorf("custom endpoint = %s, want %s", got, want)
	}
}
