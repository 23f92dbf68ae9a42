package tables

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
)

// EncodeJSON writes t as an array of records with two-space indentation.
// Keys follow the original column order; empty cells and non-finite floats
// become null.
func EncodeJSON(w io.Writer, t *Table) error {
	data, err := MarshalJSON(t)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// MarshalJSON returns the JSON encoding of t, newline terminated.
func MarshalJSON(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	q := newQuoter()

	if t.Len() == 0 {
		buf.WriteString("[]\n")
		return buf.Bytes(), nil
	}

	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		k, err := q.quote(c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	buf.WriteString("[\n")
	for r, row := range t.Rows {
		if len(keys) == 0 {
			buf.WriteString("  {}")
		} else {
			buf.WriteString("  {\n")
			for c := range keys {
				buf.WriteString("    ")
				buf.Write(keys[c])
				buf.WriteString(": ")
				var v Value
				if c < len(row) {
					v = row[c]
				}
				if err := appendValue(&buf, q, v); err != nil {
					return nil, err
				}
				if c < len(keys)-1 {
					buf.WriteByte(',')
				}
				buf.WriteByte('\n')
			}
			buf.WriteString("  }")
		}
		if r < len(t.Rows)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}

func appendValue(buf *bytes.Buffer, q *quoter, v Value) error {
	switch v.Kind {
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.Int, 10))
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			buf.WriteString("null")
			return nil
		}
		b, err := json.Marshal(v.Float)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		b, err := q.quote(v.Str)
		if err != nil {
			return err
		}
		buf.Write(b)
	default:
		buf.WriteString("null")
	}
	return nil
}

// quoter produces JSON string literals without HTML escaping.
type quoter struct {
	scratch bytes.Buffer
	enc     *json.Encoder
}

func newQuoter() *quoter {
	q := &quoter{}
	q.enc = json.NewEncoder(&q.scratch)
	q.enc.SetEscapeHTML(false)
	return q
}

func (q *quoter) quote(s string) ([]byte, error) {
	q.scratch.Reset()
	if err := q.enc.Encode(s); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(q.scratch.Bytes(), []byte("\n"))
	return append([]byte(nil), out...), nil
}
