package copier

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultKeywords mark a CSV file as telemetry when found in its name.
var DefaultKeywords = []string{"telemetry", "lap_end", "sensor", "vehicle"}

// Classifier decides which CSV files are telemetry logs.
type Classifier struct {
	keywords []string // case-folded
}

// NewClassifier returns a classifier for the given keywords. An empty list
// selects DefaultKeywords.
func NewClassifier(keywords []string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	fold := cases.Fold()
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			folded = append(folded, fold.String(k))
		}
	}
	return &Classifier{keywords: folded}
}

var defaultClassifier = NewClassifier(nil)

// IsTelemetry reports whether name contains one of the default keywords,
// ignoring case.
func IsTelemetry(name string) bool {
	return defaultClassifier.IsTelemetry(name)
}

// IsTelemetry reports whether name contains one of c's keywords, ignoring
// case.
func (c *Classifier) IsTelemetry(name string) bool {
	folded := cases.Fold().String(name)
	for _, k := range c.keywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// ShouldDownsample reports whether a file is telemetry and strictly larger
// than thresholdBytes.
func (c *Classifier) ShouldDownsample(name string, sizeBytes, thresholdBytes int64) bool {
	return c.IsTelemetry(name) && sizeBytes > thresholdBytes
}
