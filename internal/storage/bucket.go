package storage

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	"gocloud.dev/gcerrors"
)

// BucketStore writes converted files to a gocloud bucket. GCS and S3 stores
// are BucketStores opened with the matching driver.
type BucketStore struct {
	bucket  *blob.Bucket
	baseURI string // e.g. "gs://my-bucket"
	prefix  string
}

// OpenBucketStore opens any gocloud bucket URL.
func OpenBucketStore(ctx context.Context, bucketURL, prefix string) (*BucketStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	base := bucketURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return NewBucketStore(bucket, base, prefix), nil
}

// NewBucketStore wraps an open bucket. The store takes ownership of bucket.
func NewBucketStore(bucket *blob.Bucket, baseURI, prefix string) *BucketStore {
	return &BucketStore{
		bucket:  bucket,
		baseURI: strings.TrimSuffix(baseURI, "/"),
		prefix:  prefix,
	}
}

// Key returns the storage key for ref.
func (s *BucketStore) Key(ref OutputRef) string {
	return ref.Key(s.prefix)
}

// WriteObject writes bytes to the bucket.
func (s *BucketStore) WriteObject(ctx context.Context, ref OutputRef, data []byte) error {
	key := s.Key(ref)
	if err := s.write(ctx, key, data, contentType(ref.Ext)); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// WriteManifest writes a manifest file to the bucket.
func (s *BucketStore) WriteManifest(ctx context.Context, track string, manifest *Manifest) error {
	key := ManifestKey(s.prefix, track)

	data, err := manifest.MarshalJSON()
	if err != nil {
		return &WriteError{Key: key, Err: fmt.Errorf("marshal manifest: %w", err)}
	}

	if err := s.write(ctx, key, data, "application/json"); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

func (s *BucketStore) write(ctx context.Context, key string, data []byte, ct string) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: ct})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// Exists checks if an output already exists.
func (s *BucketStore) Exists(ctx context.Context, ref OutputRef) (bool, error) {
	ok, err := s.bucket.Exists(ctx, s.Key(ref))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	}
	return ok, err
}

// ReadObject returns the bytes stored under key.
func (s *BucketStore) ReadObject(ctx context.Context, key string) ([]byte, error) {
	return s.bucket.ReadAll(ctx, key)
}

// URI returns the canonical URI for the given key.
func (s *BucketStore) URI(key string) string {
	return s.baseURI + "/" + key
}

// Close releases the bucket.
func (s *BucketStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func contentType(ext string) string {
	switch {
	case strings.HasSuffix(ext, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(ext, ".parquet"):
		return "application/vnd.apache.parquet"
	default:
		return "application/json"
	}
}
