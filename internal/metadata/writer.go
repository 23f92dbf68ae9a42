package metadata

import (
	"context"
)

type CatalogConfig struct {
	PostgresDSN string
}

// Writer records conversion lineage in a catalog.
type Writer interface {
	RecordConversion(ctx context.Context, rec ConversionRecord) error
	RecordQuality(ctx context.Context, rec QualityRecord) error
	Close() error
}

// NewWriter returns a PostgreSQL writer when a DSN is configured and a
// no-op writer otherwise.
func NewWriter(ctx context.Context, cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(ctx, cfg)
}

type noopWriter struct{}

func (noopWriter) RecordConversion(_ context.Context, _ ConversionRecord) error { return nil }
func (noopWriter) RecordQuality(_ context.Context, _ QualityRecord) error { return nil }
func (noopWriter) Close() error { return nil }
