package metadata

import (
	"time"
)

// ConversionRecord is the lineage of one converted file.
type ConversionRecord struct {
	RunID           string
	Track           string
	ArchiveChecksum string
	SourceFile      string
	SourceBytes     int64
	StorageKey      string
	StorageURI      string
	Format          string
	RowsIn          int64
	RowsOut         int64
	EventRows       int64
	Downsampled     bool
	Checksum        string
	ByteSize        int64
	ProducerVersion string
	CreatedAt       time.Time
}

// QualityRecord is the result of post-conversion validation for one file.
type QualityRecord struct {
	RunID           string
	Track           string
	ArchiveChecksum string
	SourceFile      string
	Stage           string
	Passed          bool
	ErrorMessage    string
}
