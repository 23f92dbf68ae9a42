package copier

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/withObsrvr/telemetry-copier/internal/metadata"
	"github.com/withObsrvr/telemetry-copier/internal/tables"
)

// ValidationResult contains the outcome of conversion validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	RowCount int64
	ByteSize int64
}

// Err returns the validation errors as one error, or nil if validation
// passed.
func (r ValidationResult) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("validation failed: %s", strings.Join(r.Errors, "; "))
}

// ValidateConversion performs quality checks on a converted file before it
// is written. This validates:
// - Row counts (output never exceeds input)
// - Chunk boundaries (downsampled chunks keep their first and last rows)
// - Encoded outputs (non-empty, sha256 checksums)
func ValidateConversion(conv *Conversion, outputs []BuiltOutput) ValidationResult {
	result := ValidationResult{
		Passed: true,
	}
	fail := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		result.Passed = false
	}

	if conv == nil || conv.Table == nil {
		fail("no conversion output")
		return result
	}
	rowsOut := conv.RowsOut()
	result.RowCount = int64(rowsOut)

	// Check 1: Output row count within input
	if rowsOut > conv.RowsIn {
		fail("output has %d rows, input had %d", rowsOut, conv.RowsIn)
	}

	// Check 2: Pass-through keeps every row
	if !conv.Downsampled && rowsOut != conv.RowsIn {
		fail("pass-through changed row count: %d -> %d", conv.RowsIn, rowsOut)
	}

	// Check 3: Chunk boundaries
	if conv.Downsampled {
		chunkIn, chunkOut := 0, 0
		for i, ch := range conv.Chunks {
			chunkIn += ch.Stats.InputRows
			chunkOut += ch.Stats.OutputRows
			if ch.Stats.InputRows == 0 {
				continue
			}
			end := ch.Start + ch.Stats.OutputRows
			if ch.Start < 0 || end > rowsOut || ch.Stats.OutputRows == 0 {
				fail("chunk %d rows [%d, %d) outside output of %d rows", i, ch.Start, end, rowsOut)
				continue
			}
			if !rowsEqual(conv.Table.Rows[ch.Start], ch.First) {
				fail("chunk %d lost its first row", i)
			}
			if !rowsEqual(conv.Table.Rows[end-1], ch.Last) {
				fail("chunk %d lost its last row", i)
			}
		}
		if chunkIn != conv.RowsIn {
			fail("chunks cover %d input rows, file had %d", chunkIn, conv.RowsIn)
		}
		if chunkOut != rowsOut {
			fail("chunks account for %d output rows, output has %d", chunkOut, rowsOut)
		}
	}

	// Check 4: Encoded outputs
	if len(outputs) == 0 {
		fail("no encoded outputs")
	}
	for _, out := range outputs {
		if len(out.Data) == 0 {
			fail("empty %s output", out.Format)
		}
		result.ByteSize += int64(len(out.Data))
		if !strings.HasPrefix(out.Checksum, "sha256:") {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("checksum for %s may be in non-standard format: %s",
					out.Format, out.Checksum[:min(20, len(out.Checksum))]))
		}
	}

	return result
}

func rowsEqual(a, b tables.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Kind != y.Kind || x.Int != y.Int || x.Str != y.Str {
			return false
		}
		if math.Float64bits(x.Float) != math.Float64bits(y.Float) {
			return false
		}
	}
	return true
}

// RecordQualityResult records the validation result to the metadata catalog.
func RecordQualityResult(ctx context.Context, meta metadata.Writer, base metadata.QualityRecord, result ValidationResult) error {
	if meta == nil {
		return nil
	}
	rec := base
	rec.Stage = StageValidate
	rec.Passed = result.Passed
	if !result.Passed {
		rec.ErrorMessage = strings.Join(result.Errors, "; ")
	}
	return meta.RecordQuality(ctx, rec)
}
