// Package downsample reduces telemetry tables while keeping the rows that
// carry racing events.
//
// A reduced table keeps every rate-th row, the first and last rows, and
// every row whose speed changed by more than the table's 90th-percentile
// speed delta. Rows are never reordered, synthesised or modified.
package downsample

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/withObsrvr/telemetry-copier/internal/tables"
)

// DefaultRate keeps one row in ten outside of events.
const DefaultRate = 10

// EventQuantile is the delta quantile above which a row is an event.
const EventQuantile = 0.90

var speedMarkers = []string{"speed", "velocity"}

// Stats describes a single downsampling pass.
type Stats struct {
	InputRows   int
	OutputRows  int
	EventRows   int     // rows flagged by the speed heuristic
	SpeedColumn string  // empty when no usable speed column exists
	Threshold   float64 // delta threshold, NaN when not computed
}

// Reduction returns the fraction of rows dropped.
func (s Stats) Reduction() float64 {
	if s.InputRows == 0 {
		return 0
	}
	return 1 - float64(s.OutputRows)/float64(s.InputRows)
}

// Downsample returns the reduced table for t.
func Downsample(t *tables.Table, rate int) *tables.Table {
	out, _ := DownsampleWithStats(t, rate)
	return out
}

// DownsampleWithStats is Downsample plus a description of what was kept.
// Tables with at most rate rows are returned unchanged.
func DownsampleWithStats(t *tables.Table, rate int) (*tables.Table, Stats) {
	n := t.Len()
	stats := Stats{InputRows: n, OutputRows: n, Threshold: math.NaN()}
	if n <= rate || n < 2 {
		return t, stats
	}

	keep, events := retention(t, rate, &stats)
	out := t.Select(keep)
	stats.OutputRows = out.Len()
	stats.EventRows = events
	return out, stats
}

// RetentionSet returns the ascending row indices Downsample keeps.
func RetentionSet(t *tables.Table, rate int) []int {
	n := t.Len()
	if n <= rate || n < 2 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	var stats Stats
	keep, _ := retention(t, rate, &stats)
	return keep
}

func retention(t *tables.Table, rate int, stats *Stats) ([]int, int) {
	if rate < 1 {
		rate = 1
	}
	n := t.Len()
	marked := make([]bool, n)

	events := 0
	if col, ok := SpeedColumn(t); ok {
		stats.SpeedColumn = t.Columns[col]
		deltas := Deltas(t, col)
		threshold, ok := Quantile(deltas, EventQuantile)
		if ok {
			stats.Threshold = threshold
			for i, d := range deltas {
				if !math.IsNaN(d) && d > threshold {
					marked[i] = true
					events++
				}
			}
		}
	}

	for i := 0; i < n; i += rate {
		marked[i] = true
	}
	marked[0] = true
	marked[n-1] = true

	keep := make([]int, 0, n/rate+events+2)
	for i, m := range marked {
		if m {
			keep = append(keep, i)
		}
	}
	return keep, events
}

// SpeedColumn returns the first numeric column whose name contains "speed"
// or "velocity", ignoring case. Only the first name match is considered;
// a non-numeric first match disables event detection.
func SpeedColumn(t *tables.Table) (int, bool) {
	fold := cases.Fold()
	for i, name := range t.Columns {
		folded := fold.String(name)
		for _, marker := range speedMarkers {
			if strings.Contains(folded, marker) {
				return i, t.Kinds[i].Numeric()
			}
		}
	}
	return -1, false
}

// Deltas returns |v[i] - v[i-1]| for column col. Entry 0, and entries next
// to a missing value, are NaN.
func Deltas(t *tables.Table, col int) []float64 {
	out := make([]float64, t.Len())
	if len(out) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(out); i++ {
		prev, ok1 := t.Rows[i-1][col].Float64()
		cur, ok2 := t.Rows[i][col].Float64()
		if !ok1 || !ok2 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Abs(cur - prev)
	}
	return out
}

// Quantile returns the q-th quantile of the non-NaN values using linear
// interpolation between closest ranks. It reports false when no values
// remain.
func Quantile(values []float64, q float64) (float64, bool) {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return math.NaN(), false
	}
	sort.Float64s(xs)

	pos := q * float64(len(xs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return xs[lo], true
	}
	frac := pos - float64(lo)
	return xs[lo] + (xs[hi]-xs[lo])*frac, true
}
