package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/telemetry-copier/internal/copier"
)

// FailureSummary is one failed file or archive.
type FailureSummary struct {
	File  string `json:"file"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

// TrackSummary is the printable result of one track.
type TrackSummary struct {
	Track      string              `json:"track"`
	Archive    string              `json:"archive"`
	Total      int                 `json:"total"`
	Processed  int                 `json:"processed"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	Resumed    bool                `json:"resumed,omitempty"`
	DurationMS int64               `json:"duration_ms"`
	Files      []copier.FileReport `json:"files,omitempty"`
	Failures   []FailureSummary    `json:"failures,omitempty"`
	verbose    bool
}

func newTrackSummary(res *copier.TrackResult, verbose bool) TrackSummary {
	s := TrackSummary{
		Track:      res.Track,
		Archive:    res.Archive,
		Total:      res.Total,
		Processed:  res.Processed,
		Skipped:    res.Skipped,
		Failed:     res.Failed(),
		Resumed:    res.Resumed,
		DurationMS: res.Duration.Milliseconds(),
		Files:      res.Files,
		verbose:    verbose,
	}
	for _, f := range res.Failures {
		s.Failures = append(s.Failures, FailureSummary{File: f.File, Stage: f.Stage, Error: f.Err.Error()})
	}
	return s
}

func (s TrackSummary) String() string {
	var b strings.Builder
	if s.Resumed {
		fmt.Fprintf(&b, "%s: already converted, skipped\n", s.Track)
		return b.String()
	}
	fmt.Fprintf(&b, "%s: processed %d/%d files", s.Track, s.Processed, s.Total)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", s.Skipped)
	}
	fmt.Fprintf(&b, " in %s\n", (time.Duration(s.DurationMS) * time.Millisecond).String())
	if s.verbose {
		for _, f := range s.Files {
			mode := "copied"
			if f.Downsampled {
				mode = fmt.Sprintf("downsampled, %d event rows", f.EventRows)
			}
			fmt.Fprintf(&b, "  %s -> %s (%d -> %d rows, %s)\n",
				f.Source, strings.Join(f.Outputs, ", "), f.RowsIn, f.RowsOut, mode)
		}
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "  FAILED %s [%s]: %s\n", f.File, f.Stage, f.Error)
	}
	return b.String()
}

// RunSummary is the printable result of a batch.
type RunSummary struct {
	RunID           string           `json:"run_id"`
	Total           int              `json:"total"`
	Processed       int              `json:"processed"`
	Tracks          []TrackSummary   `json:"tracks"`
	ArchiveFailures []FailureSummary `json:"archive_failures,omitempty"`
}

func newRunSummary(run *copier.RunResult, verbose bool) RunSummary {
	s := RunSummary{
		RunID:     run.RunID,
		Total:     run.Total(),
		Processed: run.Processed(),
		Tracks:    make([]TrackSummary, 0, len(run.Tracks)),
	}
	for _, t := range run.Tracks {
		s.Tracks = append(s.Tracks, newTrackSummary(t, verbose))
	}
	for _, f := range run.ArchiveFailures {
		s.ArchiveFailures = append(s.ArchiveFailures, FailureSummary{File: f.Archive, Error: f.Err.Error()})
	}
	return s
}

func (s RunSummary) String() string {
	var b strings.Builder
	for _, t := range s.Tracks {
		b.WriteString(t.String())
	}
	for _, f := range s.ArchiveFailures {
		fmt.Fprintf(&b, "FAILED archive %s: %s\n", f.File, f.Error)
	}
	fmt.Fprintf(&b, "total: processed %d/%d files across %d tracks", s.Processed, s.Total, len(s.Tracks))
	if n := len(s.ArchiveFailures); n > 0 {
		fmt.Fprintf(&b, ", %d archives failed", n)
	}
	b.WriteString("\n")
	return b.String()
}
