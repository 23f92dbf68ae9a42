package copier

import (
	"time"

	"github.com/withObsrvr/telemetry-copier/internal/metadata"
	"github.com/withObsrvr/telemetry-copier/internal/storage"
)

// buildManifest creates the manifest for a finished track.
func buildManifest(c *Copier, run *trackRun) *storage.Manifest {
	res := run.result
	failures := make([]storage.FailureEntry, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, storage.FailureEntry{
			Source: f.File,
			Stage:  f.Stage,
			Error:  f.Err.Error(),
		})
	}

	files := run.entries
	if files == nil {
		files = []storage.FileEntry{}
	}

	return &storage.Manifest{
		Track: res.Track,
		Archive: storage.ArchiveInfo{
			Ref:      res.Archive,
			Checksum: res.Checksum,
		},
		RunID:     c.runID,
		Total:     res.Total,
		Processed: res.Processed,
		Skipped:   res.Skipped,
		Files:     files,
		Failures:  failures,
		Producer: storage.ProducerInfo{
			Name:    producerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// fileEntries creates one manifest entry per written output.
func fileEntries(built *BuiltFile, keys []string) []storage.FileEntry {
	conv := built.Conversion
	entries := make([]storage.FileEntry, len(built.Outputs))
	for i, out := range built.Outputs {
		entries[i] = storage.FileEntry{
			Source:      built.Task.File.Rel,
			Output:      keys[i],
			Format:      out.Format,
			RowsIn:      conv.RowsIn,
			RowsOut:     conv.RowsOut(),
			Downsampled: conv.Downsampled,
			Chunks:      len(conv.Chunks),
			EventRows:   conv.EventRows(),
			Checksum:    out.Checksum,
			ByteSize:    int64(len(out.Data)),
		}
	}
	return entries
}

func fileReport(built *BuiltFile, keys []string) FileReport {
	conv := built.Conversion
	return FileReport{
		Source:      built.Task.File.Rel,
		Outputs:     keys,
		RowsIn:      conv.RowsIn,
		RowsOut:     conv.RowsOut(),
		Downsampled: conv.Downsampled,
		Chunks:      len(conv.Chunks),
		EventRows:   conv.EventRows(),
	}
}

// buildConversionRecord creates a catalog lineage record for one output.
func buildConversionRecord(c *Copier, run *trackRun, built *BuiltFile, out BuiltOutput, key string) metadata.ConversionRecord {
	conv := built.Conversion
	return metadata.ConversionRecord{
		RunID:           c.runID,
		Track:           run.result.Track,
		ArchiveChecksum: run.result.Checksum,
		SourceFile:      built.Task.File.Rel,
		SourceBytes:     built.Task.File.Size,
		StorageKey:      key,
		StorageURI:      c.store.URI(key),
		Format:          out.Format,
		RowsIn:          int64(conv.RowsIn),
		RowsOut:         int64(conv.RowsOut()),
		EventRows:       int64(conv.EventRows()),
		Downsampled:     conv.Downsampled,
		Checksum:        out.Checksum,
		ByteSize:        int64(len(out.Data)),
		ProducerVersion: Version,
		CreatedAt:       time.Now().UTC(),
	}
}

// buildQualityRecord creates the catalog quality record skeleton for a file.
func buildQualityRecord(c *Copier, run *trackRun, task FileTask) metadata.QualityRecord {
	return metadata.QualityRecord{
		RunID:           c.runID,
		Track:           run.result.Track,
		ArchiveChecksum: run.result.Checksum,
		SourceFile:      task.File.Rel,
	}
}
