package benford

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igbenford/pkg/dataset"
)

func snapshotOf(t *testing.T, metrics ...int64) dataset.Snapshot {
	t.Helper()
	d := dataset.New()
	for i, m := range metrics {
		require.NoError(t, d.Append(dataset.MetricSample{Identifier: string(rune('a'+i%26)) + string(rune('0'+i/26)), Metric: m}))
	}
	return d.Snapshot()
}

func TestExpectedProportions(t *testing.T) {
	var sum float64
	for d := 1; d <= 9; d++ {
		p := ExpectedProportion(d)
		assert.InDelta(t, math.Log10(1+1/float64(d)), p, 1e-15)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 0.30103, ExpectedProportion(1), 1e-5)
	assert.InDelta(t, 0.04576, ExpectedProportion(9), 1e-5)
	assert.Zero(t, ExpectedProportion(0))
	assert.Zero(t, ExpectedProportion(10))
}

func TestExpectedCountsSumToTotal(t *testing.T) {
	for _, total := range []int{1, 9, 10, 137, 100000} {
		var sum float64
		for _, e := range ExpectedCounts(total) {
			sum += e
		}
		assert.InEpsilon(t, float64(total), sum, 1e-6, "total=%d", total)
	}
}

func TestLeadingDigit(t *testing.T) {
	tests := []struct {
		metric int64
		want   int
	}{
		{1, 1},
		{9, 9},
		{10, 1},
		{523, 5},
		{999999999, 9},
		{math.MaxInt64, 9},
	}
	for _, tt := range tests {
		d, err := LeadingDigit(tt.metric)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d, "metric %d", tt.metric)
	}

	for _, bad := range []int64{0, -5} {
		_, err := LeadingDigit(bad)
		var invalid *InvalidMetricError
		assert.ErrorAs(t, err, &invalid)
	}
}

func TestBuildHistogram(t *testing.T) {
	h, err := BuildHistogram([]int64{111, 523, 199, 287, 134, 612, 765, 998, 102})
	require.NoError(t, err)

	assert.Equal(t, map[int]int{1: 4, 2: 1, 3: 0, 4: 0, 5: 1, 6: 1, 7: 1, 8: 0, 9: 1}, h.Counts())
	assert.Equal(t, 9, h.Total())
	assert.Zero(t, h.Count(0))

	_, err = BuildHistogram([]int64{5, 0})
	assert.Error(t, err)
}

func TestAnalyzeScenarioA(t *testing.T) {
	snap := snapshotOf(t, 111, 523, 199, 287, 134, 612, 765, 998, 102)

	analysis, err := NewAnalyzer().Analyze(snap)
	require.NoError(t, err)

	assert.Equal(t, 9, analysis.Total)
	assert.Equal(t, 4, analysis.Histogram.Count(1))
	assert.Equal(t, 0, analysis.Histogram.Count(3))

	r := analysis.Result
	assert.InDelta(t, 4.94381457243763, r.ChiSquared, 1e-9)
	assert.Equal(t, 8, r.DegreesOfFreedom)
	assert.InDelta(t, 15.507313055865453, r.CriticalValue, 1e-9)
	assert.InDelta(t, 0.7635640980923698, r.PValue, 1e-6)
	assert.True(t, r.Conforms)
	assert.Equal(t, "Conforms to Benford's Law", r.Verdict())
}

func TestAnalyzeScenarioB(t *testing.T) {
	snap := snapshotOf(t, 900, 901, 902, 903, 904, 905, 906, 907, 908)

	analysis, err := NewAnalyzer().Analyze(snap)
	require.NoError(t, err)

	r := analysis.Result
	assert.Equal(t, 9, analysis.Histogram.Count(9))
	assert.InDelta(t, 187.68910794104542, r.ChiSquared, 1e-9)
	assert.False(t, r.Conforms)
	assert.Less(t, r.PValue, 1e-30)
	assert.GreaterOrEqual(t, r.PValue, 0.0)
	assert.Equal(t, "Does not conform to Benford's Law", r.Verdict())
}

func TestAnalyzeEmpty(t *testing.T) {
	_, err := NewAnalyzer().Analyze(dataset.New().Snapshot())
	assert.ErrorIs(t, err, ErrNoData)

	_, err = NewAnalyzer().AnalyzeHistogram(DigitHistogram{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestAnalyzeZeroMetric(t *testing.T) {
	snap := snapshotOf(t, 12, 0, 7)

	_, err := NewAnalyzer().Analyze(snap)
	var invalid *InvalidMetricError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "b0", invalid.Identifier)
	assert.Equal(t, int64(0), invalid.Metric)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	snap := snapshotOf(t, 111, 523, 199, 287, 134, 612, 765, 998, 102)
	a := NewAnalyzer()

	first, err := a.Analyze(snap)
	require.NoError(t, err)
	second, err := a.Analyze(snap)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyzeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewAnalyzer()

	for run := 0; run < 200; run++ {
		n := 1 + rng.Intn(200)
		metrics := make([]int64, n)
		for i := range metrics {
			metrics[i] = 1 + rng.Int63n(10_000_000)
		}
		snap := snapshotOf(t, metrics...)

		analysis, err := a.Analyze(snap)
		require.NoError(t, err)

		assert.Equal(t, snap.Len(), analysis.Histogram.Total())

		var expectedSum float64
		for _, e := range analysis.Expected {
			expectedSum += e
		}
		assert.InEpsilon(t, float64(n), expectedSum, 1e-6)

		r := analysis.Result
		assert.GreaterOrEqual(t, r.ChiSquared, 0.0)
		assert.False(t, math.IsNaN(r.ChiSquared))
		assert.Equal(t, CriticalValue95, r.CriticalValue)
		assert.Equal(t, r.ChiSquared < r.CriticalValue, r.Conforms)
		assert.GreaterOrEqual(t, r.PValue, 0.0)
		assert.LessOrEqual(t, r.PValue, 1.0)
	}
}

func TestChiSquaredZeroOnlyOnExactMatch(t *testing.T) {
	expected := ExpectedCounts(1000)
	assert.Zero(t, chiSquaredStatistic(expected, expected))

	observed := expected
	observed[0] += 1
	observed[8] -= 1
	assert.Greater(t, chiSquaredStatistic(observed, expected), 0.0)
}

func TestCriticalValue(t *testing.T) {
	assert.Equal(t, CriticalValue95, CriticalValue(8, 0.95))
	assert.InDelta(t, CriticalValue95, CriticalValue(8, 0.9500000001), 1e-6)
	assert.InDelta(t, 20.090235029663233, CriticalValue(8, 0.99), 1e-6)
	assert.InDelta(t, 13.361566136511726, CriticalValue(8, 0.90), 1e-6)
}

func TestPValue(t *testing.T) {
	assert.Equal(t, 1.0, PValue(0, 8))
	assert.InDelta(t, 0.05, PValue(CriticalValue95, 8), 1e-9)
	// closed form for df=8: exp(-x/2) * sum_{i<4} (x/2)^i / i!
	x := 4.94381457243763
	h := x / 2
	closed := math.Exp(-h) * (1 + h + h*h/2 + h*h*h/6)
	assert.InDelta(t, closed, PValue(x, 8), 1e-9)
}

func TestWithConfidence(t *testing.T) {
	snap := snapshotOf(t, 111, 523, 199, 287, 134, 612, 765, 998, 102)

	analysis, err := NewAnalyzer(WithConfidence(0.99)).Analyze(snap)
	require.NoError(t, err)
	assert.InDelta(t, 20.090235029663233, analysis.Result.CriticalValue, 1e-6)
	assert.Equal(t, 0.99, analysis.Result.Confidence)

	// out of range is ignored
	assert.Equal(t, 0.95, NewAnalyzer(WithConfidence(1.5)).confidence)
}
