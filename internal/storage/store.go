package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ManifestName is the per-track manifest object name.
const ManifestName = "_manifest.json"

// OutputRef describes where a converted file is stored.
type OutputRef struct {
	Track string // track directory, e.g. "barber-motorsports-park"
	Name  string // source file name without extension
	Ext   string // ".json", ".json.zst", ".parquet"
}

// Key returns the storage key for this output.
func (r OutputRef) Key(prefix string) string {
	return prefix + r.Track + "/" + r.Name + r.Ext
}

// ManifestKey returns the storage key of a track manifest.
func ManifestKey(prefix, track string) string {
	return prefix + track + "/" + ManifestName
}

// Manifest describes the outputs written for one track.
type Manifest struct {
	Track     string         `json:"track"`
	Archive   ArchiveInfo    `json:"archive"`
	RunID     string         `json:"run_id"`
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Files     []FileEntry    `json:"files"`
	Failures  []FailureEntry `json:"failures,omitempty"`
	Producer  ProducerInfo   `json:"producer"`
	CreatedAt time.Time      `json:"created_at"`
}

// ArchiveInfo identifies the archive a track was converted from.
type ArchiveInfo struct {
	Ref      string `json:"ref"`
	Checksum string `json:"checksum"`
}

// FileEntry describes a single converted file.
type FileEntry struct {
	Source      string `json:"source"`
	Output      string `json:"output"`
	Format      string `json:"format"`
	RowsIn      int    `json:"rows_in"`
	RowsOut     int    `json:"rows_out"`
	Downsampled bool   `json:"downsampled"`
	Chunks      int    `json:"chunks,omitempty"`
	EventRows   int    `json:"event_rows,omitempty"`
	Checksum    string `json:"checksum"`
	ByteSize    int64  `json:"byte_size"`
}

// FailureEntry records a file that was not converted.
type FailureEntry struct {
	Source string `json:"source"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// ProducerInfo describes the software that produced the outputs.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as indented JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// OutputStore abstracts writing converted files to storage.
type OutputStore interface {
	// WriteObject writes encoded bytes for one converted file.
	WriteObject(ctx context.Context, ref OutputRef, data []byte) error

	// WriteManifest writes the track manifest.
	WriteManifest(ctx context.Context, track string, manifest *Manifest) error

	// Exists checks if an output already exists.
	Exists(ctx context.Context, ref OutputRef) (bool, error)

	// Key returns the full storage key for ref.
	Key(ref OutputRef) string

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// WriteError reports an output that could not be written.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3" | "bucket"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// Any gocloud bucket URL (file://, mem://, ...)
	BucketURL string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// NewOutputStore creates a storage backend based on configuration.
func NewOutputStore(ctx context.Context, cfg StorageConfig) (OutputStore, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(ctx, cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	case "bucket":
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("BucketURL required for bucket backend")
		}
		return OpenBucketStore(ctx, cfg.BucketURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
