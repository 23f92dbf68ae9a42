package tables

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ParseError reports a CSV file that could not be read into a table.
type ParseError struct {
	Path string
	Line int // 0 when the failure is not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrMissingHeader is returned for files without a header row.
var ErrMissingHeader = errors.New("no header row")

// ReadCSV loads a whole CSV file into one table.
func ReadCSV(path string) (*Table, error) {
	var out *Table
	err := ReadCSVChunks(path, 0, func(c Chunk) error {
		out = c.Table
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadCSVChunks streams a CSV file as tables of at most chunkRows rows,
// calling fn for each in file order. Column kinds are inferred per chunk.
// A file with a header and no rows yields a single empty chunk.
func ReadCSVChunks(path string, chunkRows int, fn func(Chunk) error) error {
	f, err := os.Open(path)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	return readChunks(path, f, chunkRows, fn)
}

func readChunks(path string, src io.Reader, chunkRows int, fn func(Chunk) error) error {
	// UTF-8 and UTF-16 exports with a BOM are common from Windows loggers.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(transform.NewReader(src, dec))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return &ParseError{Path: path, Err: ErrMissingHeader}
	}
	if err != nil {
		return &ParseError{Path: path, Line: csvErrorLine(err), Err: err}
	}
	columns := normalizeHeader(header)

	builder := NewChunkBuilder(columns, chunkRows)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ParseError{Path: path, Line: csvErrorLine(err), Err: err}
		}
		if len(record) > len(columns) {
			line, _ := r.FieldPos(0)
			return &ParseError{
				Path: path,
				Line: line,
				Err:  fmt.Errorf("expected %d fields, saw %d", len(columns), len(record)),
			}
		}

		builder.Add(record)
		if builder.Ready() {
			if err := fn(builder.Flush()); err != nil {
				return err
			}
		}
	}

	if builder.Pending() || !builder.Emitted() {
		return fn(builder.Flush())
	}
	return nil
}

// normalizeHeader names blank columns and disambiguates duplicates so every
// column can be addressed by name in the output records. A duplicate gets the
// first ".N" suffix that is neither taken nor another column's header.
func normalizeHeader(header []string) []string {
	names := make([]string, len(header))
	reserved := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		names[i] = name
		reserved[name] = true
	}

	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	next := make(map[string]int, len(names))
	for i, name := range names {
		if used[name] {
			base := name
			for {
				next[base]++
				name = fmt.Sprintf("%s.%d", base, next[base])
				if !used[name] && !reserved[name] {
					break
				}
			}
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func csvErrorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
