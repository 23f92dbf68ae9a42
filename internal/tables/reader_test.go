package tables

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReadCSVInfersKinds(t *testing.T) {
	path := writeCSV(t, "lap,speed,driver,empty\n1,100,ann,\n2,101.5,bob,\n3,,cat,\n")

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	want := []Kind{KindInt, KindFloat, KindString, KindNull}
	for i, k := range want {
		if table.Kinds[i] != k {
			t.Errorf("column %s kind = %s, want %s", table.Columns[i], table.Kinds[i], k)
		}
	}
	if table.Len() != 3 {
		t.Fatalf("rows = %d, want 3", table.Len())
	}
	if !table.Rows[2][1].IsNull() {
		t.Errorf("empty speed cell should be null, got %+v", table.Rows[2][1])
	}
	if got := table.Rows[1][1].Float; got != 101.5 {
		t.Errorf("speed = %v, want 101.5", got)
	}
}

func TestReadCSVStripsBOMAndNormalizesHeader(t *testing.T) {
	path := writeCSV(t, "\ufeffa,,a\n1,2,3\n")

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	want := []string{"a", "Unnamed: 1", "a.1"}
	for i, c := range want {
		if table.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, table.Columns[i], c)
		}
	}
}

func TestReadCSVDuplicateHeadersStayUnique(t *testing.T) {
	tests := []struct {
		header string
		want   []string
	}{
		{"a,a,a.1", []string{"a", "a.2", "a.1"}},
		{"a,a.1,a", []string{"a", "a.1", "a.2"}},
		{"a,a,a", []string{"a", "a.1", "a.2"}},
		{"a.1,a,a", []string{"a.1", "a", "a.2"}},
	}
	for _, tt := range tests {
		path := writeCSV(t, tt.header+"\n1,2,3\n")
		table, err := ReadCSV(path)
		if err != nil {
			t.Fatalf("ReadCSV(%q) failed: %v", tt.header, err)
		}
		if strings.Join(table.Columns, "|") != strings.Join(tt.want, "|") {
			t.Errorf("header %q: columns = %v, want %v", tt.header, table.Columns, tt.want)
		}

		data, err := Encode(table, FormatParquet)
		if err != nil {
			t.Fatalf("Encode parquet failed: %v", err)
		}
		f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("OpenFile failed: %v", err)
		}
		if got := len(f.Schema().Columns()); got != 3 {
			t.Errorf("header %q: parquet columns = %d, want 3", tt.header, got)
		}
	}
}

func TestReadCSVShortRowsArePadded(t *testing.T) {
	path := writeCSV(t, "a,b,c\n1,2\n")

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if !table.Rows[0][2].IsNull() {
		t.Errorf("missing trailing field should be null")
	}
}

func TestReadCSVRejectsLongRows(t *testing.T) {
	path := writeCSV(t, "a,b\n1,2\n3,4,5\n")

	_, err := ReadCSV(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Line != 3 {
		t.Errorf("line = %d, want 3", pe.Line)
	}
}

func TestReadCSVEmptyFile(t *testing.T) {
	path := writeCSV(t, "")

	_, err := ReadCSV(path)
	if !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", err)
	}
}

func TestReadCSVHeaderOnly(t *testing.T) {
	path := writeCSV(t, "a,b\n")

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if table.Len() != 0 || len(table.Columns) != 2 {
		t.Errorf("got %d rows / %d columns, want 0 / 2", table.Len(), len(table.Columns))
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestReadCSVChunks(t *testing.T) {
	var b strings.Builder
	b.WriteString("i,speed\n")
	for i := 0; i < 25; i++ {
		b.WriteString(strconv.Itoa(i) + "," + strconv.Itoa(i*2) + "\n")
	}
	path := writeCSV(t, b.String())

	var chunks []Chunk
	err := ReadCSVChunks(path, 10, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCSVChunks failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	wantLen := []int{10, 10, 5}
	wantOffset := []int{0, 10, 20}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d index = %d", i, c.Index)
		}
		if c.Table.Len() != wantLen[i] {
			t.Errorf("chunk %d len = %d, want %d", i, c.Table.Len(), wantLen[i])
		}
		if c.Offset != wantOffset[i] {
			t.Errorf("chunk %d offset = %d, want %d", i, c.Offset, wantOffset[i])
		}
		if c.Table.Rows[0][0].Int != int64(wantOffset[i]) {
			t.Errorf("chunk %d first row = %d, want %d", i, c.Table.Rows[0][0].Int, wantOffset[i])
		}
	}
}

func TestReadCSVChunksExactMultiple(t *testing.T) {
	path := writeCSV(t, "a\n1\n2\n3\n4\n")

	count := 0
	err := ReadCSVChunks(path, 2, func(c Chunk) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCSVChunks failed: %v", err)
	}
	if count != 2 {
		t.Errorf("chunks = %d, want 2", count)
	}
}

func TestReadCSVChunksStopsOnCallbackError(t *testing.T) {
	path := writeCSV(t, "a\n1\n2\n3\n")
	stop := errors.New("stop")

	err := ReadCSVChunks(path, 1, func(c Chunk) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestConcatWidensKinds(t *testing.T) {
	a := FromRecords([]string{"x"}, [][]string{{"1"}})
	b := FromRecords([]string{"x"}, [][]string{{"1.5"}})
	c := FromRecords([]string{"x"}, [][]string{{""}})

	out, err := Concat(a, b, c)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	if out.Kinds[0] != KindFloat {
		t.Errorf("kind = %s, want float", out.Kinds[0])
	}
	if out.Len() != 3 {
		t.Errorf("rows = %d, want 3", out.Len())
	}

	d := FromRecords([]string{"y"}, [][]string{{"1"}})
	if _, err := Concat(a, d); err == nil {
		t.Error("Concat should reject mismatched headers")
	}
}
