package tables

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// parquetBatch is the number of rows handed to the writer per call.
const parquetBatch = 1024

// ParquetSchema derives a flat schema with one optional leaf per column.
func ParquetSchema(t *Table) *parquet.Schema {
	group := make(parquet.Group, len(t.Columns))
	for i, name := range t.Columns {
		group[name] = parquet.Optional(parquetLeaf(t.Kinds[i]))
	}
	return parquet.NewSchema("telemetry", group)
}

func parquetLeaf(k Kind) parquet.Node {
	switch k {
	case KindInt:
		return parquet.Int(64)
	case KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	default:
		return parquet.String()
	}
}

// EncodeParquet writes t as a zstd-compressed parquet file.
func EncodeParquet(w io.Writer, t *Table) error {
	schema := ParquetSchema(t)

	// Group fields are stored sorted by name, so leaf order differs from
	// column order.
	leaf := make(map[string]int, len(t.Columns))
	for i, path := range schema.Columns() {
		leaf[path[0]] = i
	}

	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Zstd))

	batch := make([]parquet.Row, 0, parquetBatch)
	for _, r := range t.Rows {
		row := make(parquet.Row, len(t.Columns))
		for c, name := range t.Columns {
			col := leaf[name]
			var v Value
			if c < len(r) {
				v = r[c]
			}
			if pv, ok := parquetValue(v, t.Kinds[c]); ok {
				row[col] = pv.Level(0, 1, col)
			} else {
				row[col] = parquet.NullValue().Level(0, 0, col)
			}
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if _, err := pw.WriteRows(batch); err != nil {
				return fmt.Errorf("write parquet rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := pw.WriteRows(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// parquetValue converts a cell to the physical type of its column.
func parquetValue(v Value, column Kind) (parquet.Value, bool) {
	if v.IsNull() {
		return parquet.Value{}, false
	}
	switch column {
	case KindInt:
		if v.Kind != KindInt {
			return parquet.Value{}, false
		}
		return parquet.Int64Value(v.Int), true
	case KindFloat:
		f, ok := v.Float64()
		if !ok {
			return parquet.Value{}, false
		}
		return parquet.DoubleValue(f), true
	default:
		return parquet.ByteArrayValue([]byte(v.String())), true
	}
}
