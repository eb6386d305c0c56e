package benford

import (
	"math"
	"strconv"
)

// Digits is the number of possible leading digits
const Digits = 9

// DegreesOfFreedom of the goodness-of-fit test over nine digit classes
const DegreesOfFreedom = Digits - 1

var expectedProportions = func() [Digits]float64 {
	var p [Digits]float64
	for d := 1; d <= Digits; d++ {
		p[d-1] = math.Log10(1 + 1/float64(d))
	}
	return p
}()

// ExpectedProportion returns log10(1 + 1/d) for d in 1..9 and 0 otherwise
func ExpectedProportion(d int) float64 {
	if d < 1 || d > Digits {
		return 0
	}
	return expectedProportions[d-1]
}

// ExpectedCounts scales the Benford proportions to total samples
func ExpectedCounts(total int) [Digits]float64 {
	var e [Digits]float64
	for i, p := range expectedProportions {
		e[i] = float64(total) * p
	}
	return e
}

// LeadingDigit returns the first character of the metric's decimal form
func LeadingDigit(metric int64) (int, error) {
	if err := CheckMetric("", metric); err != nil {
		return 0, err
	}
	return int(strconv.FormatInt(metric, 10)[0] - '0'), nil
}

// DigitHistogram counts samples by leading digit. Every digit 1..9 is
// present, possibly with a zero count.
type DigitHistogram struct {
	counts [Digits]int
}

// Count returns the number of samples led by d
func (h DigitHistogram) Count(d int) int {
	if d < 1 || d > Digits {
		return 0
	}
	return h.counts[d-1]
}

// Total returns the number of samples in the histogram
func (h DigitHistogram) Total() int {
	n := 0
	for _, c := range h.counts {
		n += c
	}
	return n
}

// Counts returns the histogram as a map with all nine keys
func (h DigitHistogram) Counts() map[int]int {
	m := make(map[int]int, Digits)
	for d := 1; d <= Digits; d++ {
		m[d] = h.counts[d-1]
	}
	return m
}

func (h DigitHistogram) observed() [Digits]float64 {
	var o [Digits]float64
	for i, c := range h.counts {
		o[i] = float64(c)
	}
	return o
}

// BuildHistogram counts the leading digits of metrics
func BuildHistogram(metrics []int64) (DigitHistogram, error) {
	var h DigitHistogram
	for _, m := range metrics {
		d, err := LeadingDigit(m)
		if err != nil {
			return DigitHistogram{}, err
		}
		h.counts[d-1]++
	}
	return h, nil
}
