package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Extract unpacks the zip at archivePath into destDir, which is created if
// needed. Entries whose names would land outside destDir are rejected.
// Any failure is an *ExtractionError; a partially written destDir is left
// for the caller to clean up.
func Extract(ctx context.Context, archivePath, destDir string) (*Archive, error) {
	fail := func(err error) (*Archive, error) {
		return nil, &ExtractionError{Archive: archivePath, Err: err}
	}

	checksum, err := Checksum(archivePath)
	if err != nil {
		return fail(err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fail(fmt.Errorf("open zip: %w", err))
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fail(fmt.Errorf("create extraction dir: %w", err))
	}
	root, err := filepath.Abs(destDir)
	if err != nil {
		return fail(err)
	}

	entries := 0
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		target, err := entryPath(root, f.Name)
		if err != nil {
			return fail(err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fail(fmt.Errorf("create dir %s: %w", f.Name, err))
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return fail(err)
		}
		entries++
	}

	slog.Debug("extracted archive", "component", "source", "archive", archivePath, "entries", entries)

	return &Archive{
		Path:     archivePath,
		Track:    TrackName(archivePath),
		Dir:      destDir,
		Checksum: checksum,
		Entries:  entries,
	}, nil
}

// entryPath resolves a zip entry name under root.
func entryPath(root, name string) (string, error) {
	clean := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, string(filepath.Separator)) {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal entry path %q", name)
	}
	return target, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return out.Close()
}

// Checksum returns the sha256 of a file as "sha256:<hex>".
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
