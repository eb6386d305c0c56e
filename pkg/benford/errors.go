package benford

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when a dataset has no samples to analyze
var ErrNoData = errors.New("no data to analyze")

// InvalidMetricError is returned for metrics without a leading digit
type InvalidMetricError struct {
	Identifier string
	Metric     int64
}

func (e *InvalidMetricError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("metric %d has no leading digit in 1-9", e.Metric)
	}
	return fmt.Sprintf("%s: metric %d has no leading digit in 1-9", e.Identifier, e.Metric)
}

// CheckMetric reports whether metric can take part in the analysis
func CheckMetric(identifier string, metric int64) error {
	if metric < 1 {
		return &InvalidMetricError{Identifier: identifier, Metric: metric}
	}
	return nil
}
