package report

import (
	"errors"
	"fmt"

	"igbenford/pkg/benford"
)

// DefaultLabel is the title used when a report has no label
const DefaultLabel = "Follower count distribution by first digit (Benford's Law)"

// Sink renders one analysis
type Sink interface {
	Emit(label string, hist benford.DigitHistogram, result benford.Result) error
}

// MultiSink emits to every sink in order and joins their failures
type MultiSink []Sink

// Emit calls every sink even when an earlier one fails
func (m MultiSink) Emit(label string, hist benford.DigitHistogram, result benford.Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(label, hist, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitAnalysis is a convenience wrapper passing an Analysis to s
func EmitAnalysis(s Sink, label string, analysis benford.Analysis) error {
	return s.Emit(label, analysis.Histogram, analysis.Result)
}

// row is one digit line shared by the renderers
type row struct {
	digit         int
	observed      int
	observedShare float64
	expectedShare float64
	expectedCount float64
}

func buildRows(hist benford.DigitHistogram) []row {
	total := hist.Total()
	expected := benford.ExpectedCounts(total)
	rows := make([]row, 0, benford.Digits)
	for d := 1; d <= benford.Digits; d++ {
		r := row{
			digit:         d,
			observed:      hist.Count(d),
			expectedShare: benford.ExpectedProportion(d),
			expectedCount: expected[d-1],
		}
		if total > 0 {
			r.observedShare = float64(r.observed) / float64(total)
		}
		rows = append(rows, r)
	}
	return rows
}

func labelOrDefault(label string) string {
	if label == "" {
		return DefaultLabel
	}
	return label
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func formatPValue(p float64) string {
	if p < 1e-4 {
		return fmt.Sprintf("%.3e", p)
	}
	return fmt.Sprintf("%.4f", p)
}
