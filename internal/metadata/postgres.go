package metadata

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool       *pgxpool.Pool
	cfg        CatalogConfig
	mu         sync.RWMutex
	trackCache map[string]int64 // cache track IDs
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(ctx context.Context, cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool:       pool,
		cfg:        cfg,
		trackCache: make(map[string]int64),
	}

	// Initialize schema
	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.Info("connected to PostgreSQL catalog", "component", "metadata")
	return w, nil
}

// initSchema creates the _meta_* tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	_, err := w.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// EnsureTrack registers or retrieves a track entry for an archive version.
func (w *PostgresWriter) EnsureTrack(ctx context.Context, track, archiveChecksum string) (int64, error) {
	// Check cache first
	cacheKey := track + "@" + archiveChecksum
	w.mu.RLock()
	if id, ok := w.trackCache[cacheKey]; ok {
		w.mu.RUnlock()
		return id, nil
	}
	w.mu.RUnlock()

	query := `
		INSERT INTO _meta_tracks (track, archive_checksum)
		VALUES ($1, $2)
		ON CONFLICT (track, archive_checksum)
		DO UPDATE SET updated_at = NOW()
		RETURNING id
	`

	var id int64
	if err := w.pool.QueryRow(ctx, query, track, archiveChecksum).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure track: %w", err)
	}

	w.mu.Lock()
	w.trackCache[cacheKey] = id
	w.mu.Unlock()

	return id, nil
}

// RecordConversion writes a lineage record for a converted file.
func (w *PostgresWriter) RecordConversion(ctx context.Context, rec ConversionRecord) error {
	trackID, err := w.EnsureTrack(ctx, rec.Track, rec.ArchiveChecksum)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO _meta_conversions (
			track_id, run_id, source_file, source_bytes, format,
			storage_key, storage_uri, rows_in, rows_out, event_rows,
			downsampled, checksum, byte_size, producer_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (track_id, source_file, format)
		DO UPDATE SET
			run_id = EXCLUDED.run_id,
			rows_in = EXCLUDED.rows_in,
			rows_out = EXCLUDED.rows_out,
			event_rows = EXCLUDED.event_rows,
			checksum = EXCLUDED.checksum,
			byte_size = EXCLUDED.byte_size,
			created_at = NOW()
	`

	var storageURI *string
	if rec.StorageURI != "" {
		storageURI = &rec.StorageURI
	}

	_, err = w.pool.Exec(ctx, query,
		trackID,
		rec.RunID,
		rec.SourceFile,
		rec.SourceBytes,
		rec.Format,
		rec.StorageKey,
		storageURI,
		rec.RowsIn,
		rec.RowsOut,
		rec.EventRows,
		rec.Downsampled,
		rec.Checksum,
		rec.ByteSize,
		rec.ProducerVersion,
	)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}

	slog.Debug("recorded lineage", "component", "metadata", "track", rec.Track, "file", rec.SourceFile)
	return nil
}

// RecordQuality records a validation result.
func (w *PostgresWriter) RecordQuality(ctx context.Context, rec QualityRecord) error {
	trackID, err := w.EnsureTrack(ctx, rec.Track, rec.ArchiveChecksum)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO _meta_quality (track_id, run_id, source_file, stage, passed, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (track_id, run_id, source_file)
		DO UPDATE SET
			stage = EXCLUDED.stage,
			passed = EXCLUDED.passed,
			error_message = EXCLUDED.error_message,
			created_at = NOW()
	`

	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}

	_, err = w.pool.Exec(ctx, query,
		trackID,
		rec.RunID,
		rec.SourceFile,
		rec.Stage,
		rec.Passed,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("record quality: %w", err)
	}
	return nil
}

// LastChecksum returns the checksum of the most recent conversion of a
// source file, or "" if it was never converted.
func (w *PostgresWriter) LastChecksum(ctx context.Context, track, sourceFile string) (string, error) {
	query := `
		SELECT c.checksum
		FROM _meta_conversions c
		JOIN _meta_tracks t ON t.id = c.track_id
		WHERE t.track = $1 AND c.source_file = $2
		ORDER BY c.created_at DESC
		LIMIT 1
	`

	var checksum string
	err := w.pool.QueryRow(ctx, query, track, sourceFile).Scan(&checksum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get last checksum: %w", err)
	}
	return checksum, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
