package copier

import (
	"fmt"

	"github.com/withObsrvr/telemetry-copier/internal/downsample"
	"github.com/withObsrvr/telemetry-copier/internal/tables"
)

// Converter turns parsed CSV tables into the rows that get written.
type Converter struct {
	Classifier     *Classifier
	Rate           int   // downsampling stride
	ChunkRows      int   // rows per independently downsampled chunk
	ThresholdBytes int64 // telemetry files above this size are downsampled
}

// NewConverter returns a converter with the given policy. Non-positive
// values fall back to the defaults.
func NewConverter(classifier *Classifier, rate, chunkRows int, thresholdBytes int64) *Converter {
	if classifier == nil {
		classifier = defaultClassifier
	}
	if rate < 1 {
		rate = downsample.DefaultRate
	}
	if chunkRows < 1 {
		chunkRows = 10000
	}
	return &Converter{
		Classifier:     classifier,
		Rate:           rate,
		ChunkRows:      chunkRows,
		ThresholdBytes: thresholdBytes,
	}
}

// ChunkSummary describes one downsampled chunk and where its rows ended up.
type ChunkSummary struct {
	Stats downsample.Stats
	First tables.Row // first input row of the chunk
	Last  tables.Row // last input row of the chunk
	Start int        // output row index of the chunk's first kept row
}

// Conversion is the outcome of converting one CSV file.
type Conversion struct {
	Table       *tables.Table
	RowsIn      int
	Downsampled bool
	Chunks      []ChunkSummary // empty for pass-through files
}

// RowsOut returns the number of rows that will be written.
func (c *Conversion) RowsOut() int {
	return c.Table.Len()
}

// Reduction returns the fraction of input rows dropped.
func (c *Conversion) Reduction() float64 {
	return downsample.Stats{InputRows: c.RowsIn, OutputRows: c.RowsOut()}.Reduction()
}

// EventRows returns the number of rows kept for speed events.
func (c *Conversion) EventRows() int {
	n := 0
	for _, ch := range c.Chunks {
		n += ch.Stats.EventRows
	}
	return n
}

// Convert applies the conversion policy to an already parsed table. Large
// telemetry tables are split into ChunkRows slices, each downsampled on its
// own, and the results concatenated in chunk order.
func (cv *Converter) Convert(t *tables.Table, sourceName string, sizeBytes int64) (*Conversion, error) {
	if !cv.Classifier.ShouldDownsample(sourceName, sizeBytes, cv.ThresholdBytes) {
		return &Conversion{Table: t, RowsIn: t.Len()}, nil
	}

	acc := newChunkAccumulator(cv.Rate)
	n := t.Len()
	if n == 0 {
		acc.add(t)
	}
	for lo := 0; lo < n; lo += cv.ChunkRows {
		hi := min(lo+cv.ChunkRows, n)
		acc.add(t.Slice(lo, hi))
	}
	return acc.finish()
}

// ConvertFile parses path and applies the conversion policy. Files that are
// downsampled are streamed chunk by chunk so the whole file is never held
// in memory before reduction.
func (cv *Converter) ConvertFile(path, sourceName string, sizeBytes int64) (*Conversion, error) {
	if !cv.Classifier.ShouldDownsample(sourceName, sizeBytes, cv.ThresholdBytes) {
		t, err := tables.ReadCSV(path)
		if err != nil {
			return nil, err
		}
		return &Conversion{Table: t, RowsIn: t.Len()}, nil
	}

	acc := newChunkAccumulator(cv.Rate)
	err := tables.ReadCSVChunks(path, cv.ChunkRows, func(c tables.Chunk) error {
		acc.add(c.Table)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc.finish()
}

// chunkAccumulator downsamples chunks as they arrive.
type chunkAccumulator struct {
	rate    int
	rowsIn  int
	rowsOut int
	parts   []*tables.Table
	chunks  []ChunkSummary
}

func newChunkAccumulator(rate int) *chunkAccumulator {
	return &chunkAccumulator{rate: rate}
}

func (a *chunkAccumulator) add(chunk *tables.Table) {
	out, stats := downsample.DownsampleWithStats(chunk, a.rate)
	summary := ChunkSummary{Stats: stats, Start: a.rowsOut}
	if n := chunk.Len(); n > 0 {
		summary.First = chunk.Rows[0]
		summary.Last = chunk.Rows[n-1]
	}
	a.parts = append(a.parts, out)
	a.chunks = append(a.chunks, summary)
	a.rowsIn += stats.InputRows
	a.rowsOut += stats.OutputRows
}

func (a *chunkAccumulator) finish() (*Conversion, error) {
	out, err := tables.Concat(a.parts...)
	if err != nil {
		return nil, fmt.Errorf("join chunks: %w", err)
	}
	return &Conversion{
		Table:       out,
		RowsIn:      a.rowsIn,
		Downsampled: true,
		Chunks:      a.chunks,
	}, nil
}
