package copier

import (
	"fmt"
	"time"

	"github.com/withObsrvr/telemetry-copier/internal/source"
	"github.com/withObsrvr/telemetry-copier/internal/storage"
)

// Failure stages reported for a file.
const (
	StageParse    = "parse"
	StageValidate = "validate"
	StageEncode   = "encode"
	StageWrite    = "write"
)

// FileTask is one CSV file of a track. Index is the file's position in
// discovery order and drives result sequencing.
type FileTask struct {
	Index int
	Track string
	File  source.CSVFile
}

// BuiltOutput is one encoded artifact of a file, not yet written.
type BuiltOutput struct {
	Ref      storage.OutputRef
	Format   string
	Data     []byte
	Checksum string
}

// BuiltFile is the in-memory result of converting a file. Workers produce
// these; the sequencer publishes them.
type BuiltFile struct {
	Task       FileTask
	Conversion *Conversion
	Outputs    []BuiltOutput
	BuildTime  time.Duration
}

// FileResult is returned from workers to the sequencer.
type FileResult struct {
	Task    FileTask
	Built   *BuiltFile
	Skipped bool
	Err     error
}

// FileFailure reports a file that could not be converted.
type FileFailure struct {
	File  string // path relative to the archive root
	Stage string // parse, validate, encode or write
	Err   error
}

func (f *FileFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.File, f.Stage, f.Err)
}

func (f *FileFailure) Unwrap() error { return f.Err }

// FileReport describes a converted file.
type FileReport struct {
	Source      string   `json:"source"`
	Outputs     []string `json:"outputs"`
	RowsIn      int      `json:"rows_in"`
	RowsOut     int      `json:"rows_out"`
	Downsampled bool     `json:"downsampled"`
	Chunks      int      `json:"chunks,omitempty"`
	EventRows   int      `json:"event_rows,omitempty"`
}

// TrackResult summarises one archive.
type TrackResult struct {
	Track     string
	Archive   string
	Checksum  string
	Total     int // CSV files discovered
	Processed int // files written
	Skipped   int // files left alone because their outputs exist
	Files     []FileReport
	Failures  []*FileFailure
	Resumed   bool // archive skipped because a checkpoint marks it complete
	Duration  time.Duration
}

// Failed reports the number of files that failed.
func (r *TrackResult) Failed() int {
	return len(r.Failures)
}

// ArchiveFailure reports an archive that could not be processed at all.
type ArchiveFailure struct {
	Archive string
	Err     error
}

// RunResult summarises a batch over several archives.
type RunResult struct {
	RunID           string
	Tracks          []*TrackResult
	ArchiveFailures []ArchiveFailure
}

// Total returns the number of files discovered across converted tracks.
func (r *RunResult) Total() int {
	n := 0
	for _, t := range r.Tracks {
		n += t.Total
	}
	return n
}

// Processed returns the number of files written across tracks.
func (r *RunResult) Processed() int {
	n := 0
	for _, t := range r.Tracks {
		n += t.Processed
	}
	return n
}

// Failed reports whether any archive or file failed.
func (r *RunResult) Failed() bool {
	if len(r.ArchiveFailures) > 0 {
		return true
	}
	for _, t := range r.Tracks {
		if t.Failed() > 0 {
			return true
		}
	}
	return false
}
