package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/withObsrvr/telemetry-copier/internal/logging"
	"github.com/withObsrvr/telemetry-copier/internal/metrics"
	"github.com/withObsrvr/telemetry-copier/internal/source"
	"github.com/withObsrvr/telemetry-copier/internal/storage"
	"github.com/withObsrvr/telemetry-copier/internal/tables"
)

// trackRun is the mutable state of one track. Only the goroutine that
// commits results touches it.
type trackRun struct {
	result  *TrackResult
	archive *source.Archive
	entries []storage.FileEntry
	written map[string]string // output key -> source file that wrote it
	log     *slog.Logger
}

func newTrackRun(result *TrackResult, archive *source.Archive, log *slog.Logger) *trackRun {
	return &trackRun{
		result:  result,
		archive: archive,
		written: make(map[string]string),
		log:     log,
	}
}

// outputRefs returns one output per configured format.
func (c *Copier) outputRefs(track string, f source.CSVFile) []storage.OutputRef {
	refs := make([]storage.OutputRef, 0, len(c.cfg.Output.Formats))
	for _, format := range c.formats() {
		refs = append(refs, storage.OutputRef{
			Track: track,
			Name:  f.Stem(),
			Ext:   tables.Extension(format, c.cfg.Output.Compression),
		})
	}
	return refs
}

func (c *Copier) formats() []string {
	if len(c.cfg.Output.Formats) == 0 {
		return []string{tables.FormatJSON}
	}
	return c.cfg.Output.Formats
}

// outputsExist reports whether every output of a file is already stored.
func (c *Copier) outputsExist(ctx context.Context, refs []storage.OutputRef) bool {
	for _, ref := range refs {
		exists, err := c.store.Exists(ctx, ref)
		if err != nil {
			c.log.Warn("existence check failed", "key", c.store.Key(ref), "error", err)
			return false
		}
		if !exists {
			return false
		}
	}
	return true
}

// buildTask converts one file without writing anything. It is safe to call
// from several goroutines.
func (c *Copier) buildTask(ctx context.Context, task FileTask, base *slog.Logger) FileResult {
	if c.cfg.Output.SkipExisting && c.outputsExist(ctx, c.outputRefs(task.Track, task.File)) {
		return FileResult{Task: task, Skipped: true}
	}

	c.metrics.AddInFlightFiles(1)
	defer c.metrics.AddInFlightFiles(-1)

	built, err := c.buildFile(ctx, task, logging.FileLogger(base, task.File.Rel, task.File.Size))
	return FileResult{Task: task, Built: built, Err: err}
}

// buildFile parses, converts, encodes and validates a file. Failures are
// returned as *FileFailure.
func (c *Copier) buildFile(ctx context.Context, task FileTask, log *slog.Logger) (*BuiltFile, error) {
	ctx, span := c.tracer.Start(ctx, "copier.file", trace.WithAttributes(
		attribute.String("track", task.Track),
		attribute.String("file", task.File.Rel),
		attribute.Int64("size_bytes", task.File.Size),
	))
	defer span.End()

	fail := func(stage string, err error) (*BuiltFile, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		return nil, &FileFailure{File: task.File.Rel, Stage: stage, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageParse, err)
	}

	startTime := time.Now()
	conv, err := c.converter.ConvertFile(task.File.Path, task.File.Name, task.File.Size)
	if err != nil {
		return fail(StageParse, err)
	}
	if conv.Downsampled {
		log.Debug("downsampled telemetry",
			"rows_in", conv.RowsIn,
			"rows_out", conv.RowsOut(),
			"chunks", len(conv.Chunks),
			"event_rows", conv.EventRows(),
			"reduction_pct", math.Round(conv.Reduction()*1000)/10,
		)
	}

	refs := c.outputRefs(task.Track, task.File)
	formats := c.formats()
	outputs := make([]BuiltOutput, 0, len(refs))
	for i, ref := range refs {
		data, err := tables.Encode(conv.Table, formats[i])
		if err != nil {
			return fail(StageEncode, fmt.Errorf("encode %s: %w", formats[i], err))
		}
		data, err = tables.Compress(data, c.cfg.Output.Compression)
		if err != nil {
			return fail(StageEncode, fmt.Errorf("compress %s: %w", formats[i], err))
		}
		outputs = append(outputs, BuiltOutput{
			Ref:      ref,
			Format:   formats[i],
			Data:     data,
			Checksum: tables.ComputeChecksum(data),
		})
	}

	validation := ValidateConversion(conv, outputs)
	for _, w := range validation.Warnings {
		log.Warn("validation warning", "warning", w)
	}
	if err := validation.Err(); err != nil {
		return fail(StageValidate, err)
	}

	span.SetAttributes(
		attribute.Int("rows.in", conv.RowsIn),
		attribute.Int("rows.out", conv.RowsOut()),
		attribute.Bool("downsampled", conv.Downsampled),
	)

	return &BuiltFile{
		Task:       task,
		Conversion: conv,
		Outputs:    outputs,
		BuildTime:  time.Since(startTime),
	}, nil
}

// commitFile folds one result into the track, writing built outputs. Results
// must be committed in discovery order.
func (c *Copier) commitFile(ctx context.Context, run *trackRun, res FileResult) {
	switch {
	case res.Err != nil:
		c.recordFailure(ctx, run, res.Task, res.Err)

	case res.Skipped:
		c.recordSkip(run, res.Task)

	default:
		// A file earlier in this track may have claimed the same output key
		// after the worker's existence check.
		if c.cfg.Output.SkipExisting && c.claimed(run, res.Built) && c.outputsExist(ctx, c.outputRefs(res.Task.Track, res.Task.File)) {
			c.recordSkip(run, res.Task)
			return
		}
		if err := c.publishFile(ctx, run, res.Built); err != nil {
			c.recordFailure(ctx, run, res.Task, err)
		}
	}
}

func (c *Copier) claimed(run *trackRun, built *BuiltFile) bool {
	for _, out := range built.Outputs {
		if _, ok := run.written[c.store.Key(out.Ref)]; ok {
			return true
		}
	}
	return false
}

func (c *Copier) recordSkip(run *trackRun, task FileTask) {
	run.result.Skipped++
	c.metrics.IncFilesSkipped(task.Track)
	run.log.Info("skipping file (outputs exist)", "file", task.File.Rel)
}

func (c *Copier) recordFailure(ctx context.Context, run *trackRun, task FileTask, err error) {
	var ff *FileFailure
	if !errors.As(err, &ff) {
		ff = &FileFailure{File: task.File.Rel, Stage: StageParse, Err: err}
	}
	run.result.Failures = append(run.result.Failures, ff)
	c.metrics.IncFilesFailed(task.Track, ff.Stage)
	run.log.Error("file failed", "file", ff.File, "stage", ff.Stage, "error", ff.Err)

	rec := buildQualityRecord(c, run, task)
	rec.Stage = ff.Stage
	rec.ErrorMessage = ff.Err.Error()
	if err := c.meta.RecordQuality(ctx, rec); err != nil {
		c.metadataError(run.log, "record quality", err)
	}
}

// publishFile writes every output of a built file, then records lineage.
func (c *Copier) publishFile(ctx context.Context, run *trackRun, built *BuiltFile) error {
	task := built.Task
	log := logging.FileLogger(run.log, task.File.Rel, task.File.Size)
	startTime := time.Now()

	keys := make([]string, 0, len(built.Outputs))
	for _, out := range built.Outputs {
		key := c.store.Key(out.Ref)
		if prev, ok := run.written[key]; ok {
			log.Warn("output key already written by another file in this track, overwriting",
				"key", key, "previous", prev)
		}
		if err := c.writeWithRetry(ctx, out, log); err != nil {
			c.metrics.IncStorageErrors(c.cfg.Storage.Backend)
			return &FileFailure{File: task.File.Rel, Stage: StageWrite, Err: err}
		}
		run.written[key] = task.File.Rel
		keys = append(keys, key)
	}

	conv := built.Conversion
	run.result.Processed++
	run.result.Files = append(run.result.Files, fileReport(built, keys))
	run.entries = append(run.entries, fileEntries(built, keys)...)

	for i, out := range built.Outputs {
		if err := c.meta.RecordConversion(ctx, buildConversionRecord(c, run, built, out, keys[i])); err != nil {
			c.metadataError(log, "record conversion", err)
		}
	}
	if err := RecordQualityResult(ctx, c.meta, buildQualityRecord(c, run, task), ValidationResult{Passed: true}); err != nil {
		c.metadataError(log, "record quality", err)
	}

	bytes := 0
	for _, out := range built.Outputs {
		bytes += len(out.Data)
	}
	c.metrics.ObserveFile(metrics.FileResult{
		Track:       task.Track,
		Format:      built.Outputs[0].Format,
		Downsampled: conv.Downsampled,
		RowsIn:      conv.RowsIn,
		RowsOut:     conv.RowsOut(),
		EventRows:   conv.EventRows(),
		Chunks:      len(conv.Chunks),
		Bytes:       bytes,
		Seconds:     (built.BuildTime + time.Since(startTime)).Seconds(),
	})

	log.Info("converted file",
		"outputs", keys,
		"rows_in", conv.RowsIn,
		"rows_out", conv.RowsOut(),
		"downsampled", conv.Downsampled,
		"progress", fmt.Sprintf("%d/%d", run.result.Processed, run.result.Total),
	)
	return nil
}

// writeWithRetry writes one output, backing off exponentially between
// attempts.
func (c *Copier) writeWithRetry(ctx context.Context, out BuiltOutput, log *slog.Logger) error {
	attempts := max(c.writeRetries, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = c.store.WriteObject(ctx, out.Ref, out.Data); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		log.Warn("write failed, retrying", "key", c.store.Key(out.Ref), "attempt", attempt+1, "error", err)

		backoff := c.writeBackoff * time.Duration(1<<attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *Copier) metadataError(log *slog.Logger, op string, err error) {
	log.Warn("catalog write failed", "op", op, "error", err)
	c.metrics.IncMetadataErrors()
}
