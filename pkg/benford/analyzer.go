package benford

import (
	"fmt"

	"igbenford/pkg/dataset"
)

// Result is the outcome of the goodness-of-fit test
type Result struct {
	ChiSquared       float64 `json:"chi_squared"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	CriticalValue    float64 `json:"critical_value"`
	PValue           float64 `json:"p_value"`
	Confidence       float64 `json:"confidence"`
	Conforms         bool    `json:"conforms"`
}

// Analysis bundles the observed histogram, the expected counts and the test
// result.
type Analysis struct {
	Total     int
	Histogram DigitHistogram
	Expected  [Digits]float64
	Result    Result
}

// Verdict returns the human readable conclusion
func (r Result) Verdict() string {
	if r.Conforms {
		return "Conforms to Benford's Law"
	}
	return "Does not conform to Benford's Law"
}

// Analyzer runs the Benford test. It holds no state between calls.
type Analyzer struct {
	confidence float64
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithConfidence sets the confidence level of the critical value
func WithConfidence(c float64) Option {
	return func(a *Analyzer) {
		if c > 0 && c < 1 {
			a.confidence = c
		}
	}
}

// NewAnalyzer creates an analyzer at 95% confidence unless overridden
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{confidence: 0.95}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the leading-digit histogram of snap and tests it against
// Benford's distribution. An empty snapshot yields ErrNoData and a metric
// below 1 yields *InvalidMetricError.
func (a *Analyzer) Analyze(snap dataset.Snapshot) (Analysis, error) {
	if snap.Len() == 0 {
		return Analysis{}, ErrNoData
	}

	var hist DigitHistogram
	for i := 0; i < snap.Len(); i++ {
		s := snap.At(i)
		d, err := LeadingDigit(s.Metric)
		if err != nil {
			return Analysis{}, &InvalidMetricError{Identifier: s.Identifier, Metric: s.Metric}
		}
		hist.counts[d-1]++
	}

	return a.AnalyzeHistogram(hist)
}

// AnalyzeHistogram tests an already built histogram
func (a *Analyzer) AnalyzeHistogram(hist DigitHistogram) (Analysis, error) {
	total := hist.Total()
	if total == 0 {
		return Analysis{}, ErrNoData
	}

	expected := ExpectedCounts(total)
	chi := chiSquaredStatistic(hist.observed(), expected)
	critical := CriticalValue(DegreesOfFreedom, a.confidence)
	if critical <= 0 {
		return Analysis{}, fmt.Errorf("invalid critical value %v at confidence %v", critical, a.confidence)
	}

	return Analysis{
		Total:     total,
		Histogram: hist,
		Expected:  expected,
		Result: Result{
			ChiSquared:       chi,
			DegreesOfFreedom: DegreesOfFreedom,
			CriticalValue:    critical,
			PValue:           PValue(chi, DegreesOfFreedom),
			Confidence:       a.confidence,
			Conforms:         chi < critical,
		},
	}, nil
}
