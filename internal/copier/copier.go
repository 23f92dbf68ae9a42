// Package copier converts track archives of telemetry CSV files into JSON
// outputs, downsampling large telemetry logs on the way.
package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/withObsrvr/telemetry-copier/internal/checkpoint"
	"github.com/withObsrvr/telemetry-copier/internal/config"
	"github.com/withObsrvr/telemetry-copier/internal/logging"
	"github.com/withObsrvr/telemetry-copier/internal/metadata"
	"github.com/withObsrvr/telemetry-copier/internal/metrics"
	"github.com/withObsrvr/telemetry-copier/internal/source"
	"github.com/withObsrvr/telemetry-copier/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

const producerName = "telemetry-copier"

const tracerName = "github.com/withObsrvr/telemetry-copier/internal/copier"

// Copier orchestrates the conversion of track archives.
type Copier struct {
	cfg          config.Config
	store        storage.OutputStore
	meta         metadata.Writer
	checkpoint   checkpoint.Manager
	converter    *Converter
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	runID        string
	writeRetries int
	writeBackoff time.Duration
	log          *slog.Logger // structured logger
}

// New creates a Copier writing to store. A nil meta disables the catalog.
func New(cfg config.Config, store storage.OutputStore, meta metadata.Writer) *Copier {
	log := logging.Component("copier")

	// Create checkpoint manager
	cpMgr, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		log.Warn("failed to create checkpoint manager", "error", err)
		cpMgr, _ = checkpoint.NewManager(checkpoint.Config{})
	}

	if meta == nil {
		meta, _ = metadata.NewWriter(context.Background(), metadata.CatalogConfig{})
	}

	workers := max(cfg.Perf.Workers, 1)
	cfg.Perf.Workers = workers

	return &Copier{
		cfg:        cfg,
		store:      store,
		meta:       meta,
		checkpoint: cpMgr,
		converter: NewConverter(
			NewClassifier(cfg.TelemetryKeywords),
			cfg.DownsampleRate,
			cfg.ChunkRows,
			cfg.SizeThresholdBytes(),
		),
		metrics:      metrics.Get(),
		tracer:       otel.Tracer(tracerName),
		runID:        uuid.NewString(),
		writeRetries: 3,
		writeBackoff: 200 * time.Millisecond,
		log:          log,
	}
}

// RunID identifies this copier's outputs in manifests and the catalog.
func (c *Copier) RunID() string {
	return c.runID
}

// ProcessSingle converts one archive. A failure to fetch or extract the
// archive is returned as an error; per-file failures are reported in the
// result.
func (c *Copier) ProcessSingle(ctx context.Context, archiveRef string) (*TrackResult, error) {
	c.log.Info("starting single-track mode", "archive", archiveRef, "run_id", c.runID)
	return c.processArchive(ctx, archiveRef, nil)
}

// ProcessAll converts every archive in order. Archives that cannot be
// extracted are recorded and skipped; only cancellation stops the batch.
func (c *Copier) ProcessAll(ctx context.Context, archiveRefs []string) (*RunResult, error) {
	c.log.Info("starting batch mode",
		"archives", len(archiveRefs),
		"run_id", c.runID,
		"workers", c.cfg.Perf.Workers,
		"resume", c.cfg.Checkpoint.Resume,
	)

	run := &RunResult{RunID: c.runID}
	cp := c.loadCheckpoint(ctx)
	startTime := time.Now()

	for _, ref := range archiveRefs {
		if err := ctx.Err(); err != nil {
			return run, err
		}

		res, err := c.processArchive(ctx, ref, cp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if res != nil {
					run.Tracks = append(run.Tracks, res)
				}
				return run, ctxErr
			}
			c.log.Error("archive failed", "archive", ref, "error", err)
			c.metrics.IncArchivesFailed()
			run.ArchiveFailures = append(run.ArchiveFailures, ArchiveFailure{Archive: ref, Err: err})
			continue
		}

		run.Tracks = append(run.Tracks, res)
		if !res.Resumed {
			c.saveCheckpoint(ctx, cp, res)
		}
	}

	c.log.Info("batch complete",
		"tracks", len(run.Tracks),
		"archive_failures", len(run.ArchiveFailures),
		"processed", run.Processed(),
		"total", run.Total(),
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)
	return run, nil
}

// processArchive fetches, extracts and converts one archive. cp is consulted
// for resume decisions and may be nil.
func (c *Copier) processArchive(ctx context.Context, ref string, cp *checkpoint.Checkpoint) (*TrackResult, error) {
	startTime := time.Now()
	track := source.TrackName(ref)

	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
	log := logging.TrackLogger(ctx, track)

	ctx, span := c.tracer.Start(ctx, "copier.track", trace.WithAttributes(
		attribute.String("track", track),
		attribute.String("archive", ref),
	))
	defer span.End()

	if c.cfg.WorkDir != "" {
		if err := os.MkdirAll(c.cfg.WorkDir, 0755); err != nil {
			return nil, &source.ExtractionError{Archive: ref, Err: fmt.Errorf("create work dir: %w", err)}
		}
	}
	workDir, err := os.MkdirTemp(c.cfg.WorkDir, "telemetry-copier-*")
	if err != nil {
		return nil, &source.ExtractionError{Archive: ref, Err: fmt.Errorf("create work dir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	archive, err := c.openArchive(ctx, ref, workDir, cp, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return nil, err
	}
	if archive == nil {
		return &TrackResult{Track: track, Archive: ref, Checksum: c.resumedChecksum(cp, track), Resumed: true}, nil
	}

	files, err := source.Discover(archive.Dir)
	if err != nil {
		return nil, &source.ExtractionError{Archive: ref, Err: fmt.Errorf("discover csv files: %w", err)}
	}

	result := &TrackResult{
		Track:    track,
		Archive:  ref,
		Checksum: archive.Checksum,
		Total:    len(files),
	}
	log.Info("processing track", "files", len(files), "checksum", archive.Checksum)

	run := newTrackRun(result, archive, log)
	tasks := make([]FileTask, len(files))
	for i, f := range files {
		tasks[i] = FileTask{Index: i, Track: track, File: f}
	}

	err = c.processFiles(ctx, run, tasks)
	if cerr := archive.Cleanup(); cerr != nil {
		log.Warn("failed to remove extracted files", "dir", archive.Dir, "error", cerr)
	}
	if err != nil {
		result.Duration = time.Since(startTime)
		return result, err
	}

	if err := c.store.WriteManifest(ctx, track, buildManifest(c, run)); err != nil {
		log.Error("failed to write manifest", "error", err)
		c.metrics.IncStorageErrors(c.cfg.Storage.Backend)
	}

	result.Duration = time.Since(startTime)
	c.metrics.IncTracksProcessed()
	c.metrics.ObserveArchiveDuration(result.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("files.total", result.Total),
		attribute.Int("files.processed", result.Processed),
		attribute.Int("files.failed", result.Failed()),
	)

	log.Info("track complete",
		"processed", result.Processed,
		"total", result.Total,
		"skipped", result.Skipped,
		"failed", result.Failed(),
		"elapsed", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// openArchive makes the archive available locally and extracts it under
// workDir. It returns a nil archive when the checkpoint marks the track as
// already converted.
func (c *Copier) openArchive(ctx context.Context, ref, workDir string, cp *checkpoint.Checkpoint, log *slog.Logger) (*source.Archive, error) {
	path, err := source.Fetch(ctx, ref, filepath.Join(workDir, "download"))
	if err != nil {
		return nil, err
	}

	if c.cfg.Checkpoint.Resume && cp != nil {
		checksum, err := source.Checksum(path)
		if err == nil && cp.Completed(source.TrackName(ref), checksum) {
			log.Info("skipping track (completed in checkpoint)", "checksum", checksum)
			return nil, nil
		}
	}

	archive, err := source.Extract(ctx, path, filepath.Join(workDir, "extract"))
	if err != nil {
		return nil, err
	}
	archive.Ref = ref
	return archive, nil
}

func (c *Copier) resumedChecksum(cp *checkpoint.Checkpoint, track string) string {
	if cp == nil {
		return ""
	}
	return cp.Tracks[track].Checksum
}

// processFiles converts every task, sequentially or through the worker
// pipeline. Only cancellation is returned as an error.
func (c *Copier) processFiles(ctx context.Context, run *trackRun, tasks []FileTask) error {
	if c.cfg.Perf.Workers > 1 && len(tasks) > 1 {
		return NewPipeline(c, run, c.cfg.Perf.Workers).Run(ctx, tasks)
	}
	return c.runSequential(ctx, run, tasks)
}

// runSequential converts files one at a time in discovery order.
func (c *Copier) runSequential(ctx context.Context, run *trackRun, tasks []FileTask) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			run.log.Info("stopping track", "reason", err, "processed", run.result.Processed, "total", run.result.Total)
			return err
		}
		c.commitFile(ctx, run, c.buildTask(ctx, task, run.log))
	}
	return nil
}

// loadCheckpoint returns the stored checkpoint, or a fresh one.
func (c *Copier) loadCheckpoint(ctx context.Context) *checkpoint.Checkpoint {
	cp, err := c.checkpoint.Load(ctx)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			c.log.Warn("failed to load checkpoint, starting fresh", "error", err)
		}
		return checkpoint.New(c.runID)
	}
	c.log.Info("loaded checkpoint", "tracks", len(cp.Tracks), "previous_run_id", cp.RunID)
	cp.RunID = c.runID
	return cp
}

// saveCheckpoint records a finished track.
func (c *Copier) saveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, res *TrackResult) {
	cp.Record(res.Track, checkpoint.TrackEntry{
		Archive:     res.Archive,
		Checksum:    res.Checksum,
		Total:       res.Total,
		Processed:   res.Processed,
		Failed:      res.Failed(),
		CompletedAt: time.Now().UTC(),
	})
	if err := c.checkpoint.Save(ctx, cp); err != nil {
		c.log.Warn("failed to save checkpoint", "track", res.Track, "error", err)
	}
}
