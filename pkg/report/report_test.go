package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igbenford/pkg/benford"
	"igbenford/pkg/dataset"
)

func analysisOf(t *testing.T, metrics ...int64) benford.Analysis {
	t.Helper()
	samples := make([]dataset.MetricSample, len(metrics))
	for i, m := range metrics {
		samples[i] = dataset.MetricSample{Identifier: string(rune('a' + i)), Metric: m}
	}
	analysis, err := benford.NewAnalyzer().Analyze(dataset.NewSnapshot(samples...))
	require.NoError(t, err)
	return analysis
}

func TestMarkdownSink(t *testing.T) {
	analysis := analysisOf(t, 111, 523, 199, 287, 134, 612, 765, 998, 102)

	var buf bytes.Buffer
	sink := NewMarkdownSink(&buf).WithSource("alice_followers.csv")
	sink.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, EmitAnalysis(sink, "", analysis))

	out := buf.String()
	assert.Contains(t, out, "# "+DefaultLabel)
	assert.Contains(t, out, "alice_followers.csv")
	assert.Contains(t, out, "2024-05-01 12:00:00 UTC")
	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, "Observed first digits")
	assert.Contains(t, out, "4.9438")
	assert.Contains(t, out, "15.5073")
	assert.Contains(t, out, "Conforms to Benford's Law")
	assert.NotContains(t, out, "Does not conform")
}

func TestMarkdownSinkNonConforming(t *testing.T) {
	analysis := analysisOf(t, 900, 901, 902, 903, 904, 905, 906, 907, 908)

	var buf bytes.Buffer
	require.NoError(t, EmitAnalysis(NewMarkdownSink(&buf), "custom title", analysis))

	out := buf.String()
	assert.Contains(t, out, "# custom title")
	assert.Contains(t, out, "187.6891")
	assert.Contains(t, out, "Does not conform to Benford's Law")
}

func TestMarkdownFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benford_alice.md")
	sink := NewMarkdownFileSink(path)
	assert.Equal(t, path, sink.Path())

	require.NoError(t, EmitAnalysis(sink, "", analysisOf(t, 1, 2, 3)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), DefaultLabel)
}

func TestTerminalSink(t *testing.T) {
	analysis := analysisOf(t, 111, 523, 199, 287, 134, 612, 765, 998, 102)

	var buf bytes.Buffer
	require.NoError(t, EmitAnalysis(NewTerminalSink(&buf), "", analysis))

	out := buf.String()
	assert.Contains(t, out, DefaultLabel)
	assert.Contains(t, out, "44.4%")
	assert.Contains(t, out, "30.1%")
	assert.Contains(t, out, "Samples")
	assert.Contains(t, out, "Conforms to Benford's Law")

	// one observed and one expected line per digit
	assert.Equal(t, 9, strings.Count(out, "%  ("))
}

func TestBar(t *testing.T) {
	assert.Equal(t, strings.Repeat(" ", barWidth), bar(0, "#"))
	assert.Equal(t, strings.Repeat("#", barWidth), bar(1, "#"))
	assert.Equal(t, strings.Repeat("#", barWidth), bar(1.5, "#"))
	assert.Equal(t, 20, strings.Count(bar(0.5, "#"), "#"))
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(string, benford.DigitHistogram, benford.Result) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiSinkCallsEverySink(t *testing.T) {
	first := &failingSink{}
	var buf bytes.Buffer
	multi := MultiSink{first, NewTerminalSink(&buf)}

	err := EmitAnalysis(multi, "", analysisOf(t, 1, 2, 3))
	require.Error(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Contains(t, buf.String(), "Samples")
}

func TestFormatPValue(t *testing.T) {
	assert.Equal(t, "0.7636", formatPValue(0.7635640980923698))
	assert.Equal(t, "2.490e-36", formatPValue(2.49e-36))
}
