package copier

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/withObsrvr/telemetry-copier/internal/downsample"
	"github.com/withObsrvr/telemetry-copier/internal/tables"
)

// Report describes the structure of one CSV file.
type Report struct {
	Path            string   `json:"path"`
	Columns         []string `json:"columns"`
	Kinds           []string `json:"kinds"`
	Rows            int      `json:"rows"`
	SizeBytes       int64    `json:"size_bytes"`
	SizeMB          float64  `json:"size_mb"`
	Telemetry       bool     `json:"telemetry"`
	SpeedColumn     string   `json:"speed_column,omitempty"`
	WouldDownsample bool     `json:"would_downsample"`
	EstimatedRows   int      `json:"estimated_rows"`
}

// Inspect parses a CSV file and reports how it would be converted. Column
// kinds are inferred over the whole file.
func (cv *Converter) Inspect(path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	t, err := tables.ReadCSV(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	kinds := make([]string, len(t.Kinds))
	for i, k := range t.Kinds {
		kinds[i] = k.String()
	}

	r := &Report{
		Path:            path,
		Columns:         t.Columns,
		Kinds:           kinds,
		Rows:            t.Len(),
		SizeBytes:       info.Size(),
		SizeMB:          float64(info.Size()) / (1024 * 1024),
		Telemetry:       cv.Classifier.IsTelemetry(name),
		WouldDownsample: cv.Classifier.ShouldDownsample(name, info.Size(), cv.ThresholdBytes),
		EstimatedRows:   t.Len(),
	}
	if col, ok := downsample.SpeedColumn(t); ok {
		r.SpeedColumn = t.Columns[col]
	}
	if r.WouldDownsample {
		conv, err := cv.Convert(t, name, info.Size())
		if err != nil {
			return nil, err
		}
		r.EstimatedRows = conv.RowsOut()
	}
	return r, nil
}

// Inspect reports how the copier would convert the CSV file at path.
func (c *Copier) Inspect(path string) (*Report, error) {
	return c.converter.Inspect(path)
}
