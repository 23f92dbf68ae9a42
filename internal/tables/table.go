// Package tables holds the in-memory telemetry table model together with
// the CSV reader and the JSON/parquet encoders that move tables in and out
// of the copier.
package tables

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a cell or column.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Numeric reports whether the column kind holds numbers.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// Value is a single scalar cell.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

func NullValue() Value { return Value{} }
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Float64 returns the numeric value of the cell. NaN counts as missing.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		if math.IsNaN(v.Float) {
			return 0, false
		}
		return v.Float, true
	default:
		return 0, false
	}
}

// String renders the cell as text.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// Row is one record, aligned with Table.Columns.
type Row []Value

// Table is an ordered sequence of rows. Row order encodes time.
type Table struct {
	Columns []string
	Kinds   []Kind
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Select returns a table holding the rows at idx, in the order given.
// Rows are shared with t, not copied.
func (t *Table) Select(idx []int) *Table {
	out := &Table{
		Columns: t.Columns,
		Kinds:   t.Kinds,
		Rows:    make([]Row, len(idx)),
	}
	for i, j := range idx {
		out.Rows[i] = t.Rows[j]
	}
	return out
}

// Slice returns rows [lo, hi) sharing the underlying storage.
func (t *Table) Slice(lo, hi int) *Table {
	return &Table{Columns: t.Columns, Kinds: t.Kinds, Rows: t.Rows[lo:hi]}
}

// Concat joins tables in order. All parts must share the same header.
// Column kinds are widened so the result describes every part.
func Concat(parts ...*Table) (*Table, error) {
	if len(parts) == 0 {
		return &Table{}, nil
	}
	first := parts[0]
	out := &Table{
		Columns: first.Columns,
		Kinds:   append([]Kind(nil), first.Kinds...),
	}
	total := 0
	for _, p := range parts {
		total += p.Len()
	}
	out.Rows = make([]Row, 0, total)

	for n, p := range parts {
		if !sameHeader(first.Columns, p.Columns) {
			return nil, fmt.Errorf("concat part %d: header mismatch", n)
		}
		for i, k := range p.Kinds {
			out.Kinds[i] = widen(out.Kinds[i], k)
		}
		out.Rows = append(out.Rows, p.Rows...)
	}
	return out, nil
}

func sameHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func widen(a, b Kind) Kind {
	switch {
	case a == b:
		return a
	case a == KindNull:
		return b
	case b == KindNull:
		return a
	case a.Numeric() && b.Numeric():
		return KindFloat
	default:
		return KindString
	}
}

// FromRecords builds a table from raw CSV fields, inferring one kind per
// column. Empty cells are null in every kind.
func FromRecords(columns []string, records [][]string) *Table {
	kinds := make([]Kind, len(columns))
	for c := range columns {
		kinds[c] = inferKind(records, c)
	}

	rows := make([]Row, len(records))
	for r, rec := range records {
		row := make(Row, len(columns))
		for c := range columns {
			var raw string
			if c < len(rec) {
				raw = rec[c]
			}
			row[c] = parseCell(raw, kinds[c])
		}
		rows[r] = row
	}
	return &Table{Columns: columns, Kinds: kinds, Rows: rows}
}

func inferKind(records [][]string, col int) Kind {
	kind := KindNull
	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		s := strings.TrimSpace(rec[col])
		if s == "" {
			continue
		}
		switch kind {
		case KindNull, KindInt:
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				kind = KindInt
				continue
			}
			if _, err := strconv.ParseFloat(s, 64); err == nil {
				kind = KindFloat
				continue
			}
			return KindString
		case KindFloat:
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return KindString
			}
		}
	}
	return kind
}

func parseCell(raw string, kind Kind) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return NullValue()
	}
	switch kind {
	case KindInt:
		v, _ := strconv.ParseInt(s, 10, 64)
		return IntValue(v)
	case KindFloat:
		v, _ := strconv.ParseFloat(s, 64)
		return FloatValue(v)
	default:
		return StringValue(raw)
	}
}
