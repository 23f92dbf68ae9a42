package tables

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// Supported artifact compression codecs.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Encode serializes t in the given format.
func Encode(t *Table, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return MarshalJSON(t)
	case FormatParquet:
		var buf bytes.Buffer
		if err := EncodeParquet(&buf, t); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// Extension returns the file extension for a format and compression pair.
func Extension(format, compression string) string {
	ext := ".json"
	if strings.EqualFold(format, FormatParquet) {
		ext = ".parquet"
	}
	if strings.EqualFold(compression, CompressionZstd) {
		ext += ".zst"
	}
	return ext
}

// Compress frames data with the configured codec.
func Compress(data []byte, compression string) ([]byte, error) {
	switch strings.ToLower(compression) {
	case CompressionNone, "":
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
	default:
		return nil, fmt.Errorf("unknown compression: %s", compression)
	}
}

// Decompress reverses Compress.
func Decompress(data []byte, compression string) ([]byte, error) {
	switch strings.ToLower(compression) {
	case CompressionNone, "":
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression: %s", compression)
	}
}

// ComputeChecksum computes a SHA256 checksum for the given data.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
