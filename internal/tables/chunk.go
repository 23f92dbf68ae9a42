package tables

// Chunk is a contiguous slice of a CSV file parsed as its own table.
type Chunk struct {
	Index  int // position of the chunk within the file
	Offset int // row index of the first row in the file
	Table  *Table
}

// ChunkBuilder batches raw records into chunks of a fixed row count.
// A size of zero means a single chunk holding every record.
type ChunkBuilder struct {
	columns []string
	size    int
	buf     [][]string
	index   int
	offset  int
}

func NewChunkBuilder(columns []string, size int) *ChunkBuilder {
	return &ChunkBuilder{columns: columns, size: size}
}

func (b *ChunkBuilder) Add(record []string) {
	b.buf = append(b.buf, record)
}

func (b *ChunkBuilder) Ready() bool {
	return b.size > 0 && len(b.buf) >= b.size
}

// Pending reports whether records are buffered.
func (b *ChunkBuilder) Pending() bool {
	return len(b.buf) > 0
}

// Emitted reports whether at least one chunk has been flushed.
func (b *ChunkBuilder) Emitted() bool {
	return b.index > 0
}

// Flush infers column kinds for the buffered records and resets the buffer.
func (b *ChunkBuilder) Flush() Chunk {
	c := Chunk{
		Index:  b.index,
		Offset: b.offset,
		Table:  FromRecords(b.columns, b.buf),
	}
	b.index++
	b.offset += len(b.buf)
	b.buf = nil
	return c
}
