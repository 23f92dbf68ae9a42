package copier

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/withObsrvr/telemetry-copier/internal/tables"
)

// constantSpeedTable builds n rows of (idx, Speed) with a constant speed.
func constantSpeedTable(n int) *tables.Table {
	records := make([][]string, n)
	for i := range records {
		records[i] = []string{strconv.Itoa(i), "100"}
	}
	return tables.FromRecords([]string{"idx", "Speed"}, records)
}

// constantSpeedCSV renders the same rows as constantSpeedTable.
func constantSpeedCSV(n int) string {
	var b strings.Builder
	b.WriteString("idx,Speed\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,100\n", i)
	}
	return b.String()
}

func idxColumn(t *testing.T, tbl *tables.Table) []int64 {
	t.Helper()
	col := tbl.ColumnIndex("idx")
	if col < 0 {
		t.Fatal("idx column missing")
	}
	out := make([]int64, tbl.Len())
	for i, row := range tbl.Rows {
		out[i] = row[col].Int
	}
	return out
}

func TestConvertChunkedDownsample(t *testing.T) {
	cv := NewConverter(nil, 10, 5000, 0)
	conv, err := cv.Convert(constantSpeedTable(10000), "R1_telemetry.csv", 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if !conv.Downsampled {
		t.Fatal("expected downsampled conversion")
	}
	if conv.RowsIn != 10000 {
		t.Errorf("RowsIn = %d, want 10000", conv.RowsIn)
	}
	// Each 5000-row chunk keeps 0, 10, ..., 4990 plus its last row.
	if conv.RowsOut() != 1002 {
		t.Errorf("RowsOut = %d, want 1002", conv.RowsOut())
	}
	if len(conv.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(conv.Chunks))
	}
	if conv.Chunks[1].Start != 501 {
		t.Errorf("second chunk starts at %d, want 501", conv.Chunks[1].Start)
	}

	idx := idxColumn(t, conv.Table)
	for i := 1; i < len(idx); i++ {
		if idx[i] <= idx[i-1] {
			t.Fatalf("rows out of order at %d: %d after %d", i, idx[i], idx[i-1])
		}
	}
	if idx[500] != 4999 || idx[501] != 5000 || idx[len(idx)-1] != 9999 {
		t.Errorf("chunk boundaries = %d, %d, last %d", idx[500], idx[501], idx[len(idx)-1])
	}

	if got, want := conv.Reduction(), 1-1002.0/10000; math.Abs(got-want) > 1e-9 {
		t.Errorf("Reduction = %v, want %v", got, want)
	}
}

// jitterTable builds 2000 rows in two halves. The first alternates 100/101
// with one spike to 106 at row 505; the second alternates 100/150.
func jitterTable() *tables.Table {
	records := make([][]string, 2000)
	for i := range records {
		speed := 100 + i%2
		switch {
		case i == 505:
			speed = 106
		case i >= 1000:
			speed = 100 + 50*(i%2)
		}
		records[i] = []string{strconv.Itoa(i), strconv.Itoa(speed)}
	}
	return tables.FromRecords([]string{"idx", "Speed"}, records)
}

func TestConvertPercentileIsPerChunk(t *testing.T) {
	conv, err := NewConverter(nil, 10, 1000, 0).Convert(jitterTable(), "R1_telemetry.csv", 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(conv.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(conv.Chunks))
	}

	// Chunk 0 deltas are mostly 1 with two 6s around the spike.
	first := conv.Chunks[0].Stats
	if first.Threshold != 1 || first.EventRows != 2 {
		t.Errorf("chunk 0 threshold = %v, events = %d, want 1 and 2", first.Threshold, first.EventRows)
	}
	// Chunk 1 deltas are all 50, so nothing exceeds its own threshold.
	second := conv.Chunks[1].Stats
	if second.Threshold != 50 || second.EventRows != 0 {
		t.Errorf("chunk 1 threshold = %v, events = %d, want 50 and 0", second.Threshold, second.EventRows)
	}

	// 100 stride rows + last row + rows 505 and 506, then 100 + last row.
	if conv.RowsOut() != 204 {
		t.Errorf("RowsOut = %d, want 204", conv.RowsOut())
	}
	kept := make(map[int64]bool)
	for _, v := range idxColumn(t, conv.Table) {
		kept[v] = true
	}
	if !kept[505] || !kept[506] {
		t.Error("spike rows 505 and 506 should be kept as events")
	}

	// One chunk over the whole table: the 50-deltas dominate the
	// percentile and the spike is no longer an event.
	whole, err := NewConverter(nil, 10, 5000, 0).Convert(jitterTable(), "R1_telemetry.csv", 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(whole.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(whole.Chunks))
	}
	if got := whole.Chunks[0].Stats; got.Threshold != 50 || got.EventRows != 0 {
		t.Errorf("single chunk threshold = %v, events = %d, want 50 and 0", got.Threshold, got.EventRows)
	}
	if whole.RowsOut() != 201 {
		t.Errorf("single chunk RowsOut = %d, want 201", whole.RowsOut())
	}
	for _, v := range idxColumn(t, whole.Table) {
		if v == 505 || v == 506 {
			t.Errorf("row %d kept without per-chunk percentile", v)
		}
	}
}

func TestConvertPassThrough(t *testing.T) {
	cv := NewConverter(nil, 10, 5000, 1024)
	tbl := constantSpeedTable(100)

	tests := []struct {
		name string
		size int64
	}{
		{"results_summary.csv", 1 << 30},
		{"R1_telemetry.csv", 1024},
	}
	for _, tt := range tests {
		conv, err := cv.Convert(tbl, tt.name, tt.size)
		if err != nil {
			t.Fatalf("Convert(%s) failed: %v", tt.name, err)
		}
		if conv.Downsampled {
			t.Errorf("%s: unexpected downsampling", tt.name)
		}
		if conv.Table != tbl {
			t.Errorf("%s: pass-through should return the parsed table", tt.name)
		}
		if len(conv.Chunks) != 0 {
			t.Errorf("%s: chunks = %d, want 0", tt.name, len(conv.Chunks))
		}
	}
}

func TestConvertEmptyTelemetryTable(t *testing.T) {
	cv := NewConverter(nil, 10, 5000, 0)
	conv, err := cv.Convert(tables.FromRecords([]string{"speed"}, nil), "sensor.csv", 10)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if conv.RowsOut() != 0 || len(conv.Chunks) != 1 {
		t.Errorf("rows = %d, chunks = %d", conv.RowsOut(), len(conv.Chunks))
	}
	if len(conv.Table.Columns) != 1 {
		t.Errorf("columns = %v", conv.Table.Columns)
	}
}

func TestConvertFileStreamsChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "R1_lap_end.csv")
	if err := os.WriteFile(path, []byte(constantSpeedCSV(2500)), 0644); err != nil {
		t.Fatal(err)
	}

	cv := NewConverter(nil, 10, 1000, 0)
	conv, err := cv.ConvertFile(path, "R1_lap_end.csv", 10)
	if err != nil {
		t.Fatalf("ConvertFile failed: %v", err)
	}

	// 1000 -> 101, 1000 -> 101, 500 -> 51
	if conv.RowsOut() != 253 {
		t.Errorf("RowsOut = %d, want 253", conv.RowsOut())
	}
	if len(conv.Chunks) != 3 {
		t.Errorf("chunks = %d, want 3", len(conv.Chunks))
	}

	// Same rows as converting the fully parsed table.
	inMemory, err := cv.Convert(constantSpeedTable(2500), "R1_lap_end.csv", 10)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	got, want := idxColumn(t, conv.Table), idxColumn(t, inMemory.Table)
	if len(got) != len(want) {
		t.Fatalf("streamed %d rows, in-memory %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("row %d: streamed idx %d, in-memory idx %d", i, got[i], want[i])
		}
	}
}

func TestConvertFileParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n1,2,3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cv := NewConverter(nil, 10, 1000, 0)
	_, err := cv.ConvertFile(path, "telemetry.csv", 100)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if _, ok := err.(*tables.ParseError); !ok {
		t.Errorf("error type = %T, want *tables.ParseError", err)
	}
}
