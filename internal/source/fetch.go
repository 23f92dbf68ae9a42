package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// IsRemote reports whether ref is a bucket URL rather than a local path.
func IsRemote(ref string) bool {
	return strings.Contains(ref, "://")
}

// Fetch makes the archive named by ref available as a local file. Plain
// paths are returned as-is after a stat. Bucket URLs (s3://, gs://, file://,
// mem://) are downloaded into dir.
//
// For S3-compatible endpoints pass the usual gocloud query parameters:
//
//	s3://bucket/tracks/sebring.zip?region=us-west-000&endpoint=https://...
func Fetch(ctx context.Context, ref, dir string) (string, error) {
	if !IsRemote(ref) {
		info, err := os.Stat(ref)
		if err != nil {
			return "", &ExtractionError{Archive: ref, Err: err}
		}
		if info.IsDir() {
			return "", &ExtractionError{Archive: ref, Err: fmt.Errorf("%s is a directory", ref)}
		}
		return ref, nil
	}

	bucketURL, key, err := splitObjectURL(ref)
	if err != nil {
		return "", &ExtractionError{Archive: ref, Err: err}
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return "", &ExtractionError{Archive: ref, Err: fmt.Errorf("open bucket %s: %w", bucketURL, err)}
	}
	defer bucket.Close()

	local, err := download(ctx, bucket, key, dir)
	if err != nil {
		return "", &ExtractionError{Archive: ref, Err: err}
	}
	slog.Debug("fetched archive", "component", "source", "ref", ref, "path", local)
	return local, nil
}

func download(ctx context.Context, bucket *blob.Bucket, key, dir string) (string, error) {
	reader, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("open object %s: %w", key, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	local := filepath.Join(dir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(local)
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("close %s: %w", local, err)
	}
	return local, nil
}

// splitObjectURL separates a bucket URL from the object key.
//
//	s3://tracks/2024/vir.zip?region=x -> s3://tracks?region=x, 2024/vir.zip
//	file:///srv/in/vir.zip            -> file:///srv/in, vir.zip
func splitObjectURL(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse archive url: %w", err)
	}

	if u.Scheme == "file" {
		dir, key := path.Split(u.Path)
		if key == "" {
			return "", "", fmt.Errorf("archive url %s has no object name", ref)
		}
		bucket := url.URL{Scheme: "file", Path: strings.TrimSuffix(dir, "/"), RawQuery: u.RawQuery}
		return bucket.String(), key, nil
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("archive url %s must name a bucket and an object", ref)
	}
	bucket := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	return bucket.String(), key, nil
}
