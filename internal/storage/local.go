package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore writes converted files to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

// Key returns the storage key for ref.
func (s *LocalStore) Key(ref OutputRef) string {
	return ref.Key(s.prefix)
}

// Path returns the filesystem path for a storage key.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

// WriteObject writes bytes to the local filesystem.
func (s *LocalStore) WriteObject(ctx context.Context, ref OutputRef, data []byte) error {
	key := s.Key(ref)
	if err := s.writeFile(s.Path(key), data); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// WriteManifest writes a manifest file to the local filesystem.
func (s *LocalStore) WriteManifest(ctx context.Context, track string, manifest *Manifest) error {
	key := ManifestKey(s.prefix, track)

	data, err := manifest.MarshalJSON()
	if err != nil {
		return &WriteError{Key: key, Err: fmt.Errorf("marshal manifest: %w", err)}
	}

	if err := s.writeFile(s.Path(key), data); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// writeFile writes atomically using temp file + rename.
func (s *LocalStore) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp." + uuid.New().String()
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		// Clean up temp file on rename failure
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}

	return nil
}

// Exists checks if an output already exists.
func (s *LocalStore) Exists(ctx context.Context, ref OutputRef) (bool, error) {
	_, err := os.Stat(s.Path(s.Key(ref)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath, err := filepath.Abs(s.Path(key))
	if err != nil {
		absPath = s.Path(key)
	}
	return "file://" + filepath.ToSlash(absPath)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
