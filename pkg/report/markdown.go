package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"igbenford/pkg/benford"
	"igbenford/pkg/storage"
)

// MarkdownSink writes the report as a Markdown document. With a path the
// file is replaced atomically; otherwise the document goes to the writer.
type MarkdownSink struct {
	path   string
	output io.Writer
	source string
	now    func() time.Time
}

// NewMarkdownSink creates a sink writing to output
func NewMarkdownSink(output io.Writer) *MarkdownSink {
	return &MarkdownSink{output: output, now: time.Now}
}

// NewMarkdownFileSink creates a sink writing to the file at path
func NewMarkdownFileSink(path string) *MarkdownSink {
	return &MarkdownSink{path: path, now: time.Now}
}

// WithSource records the dataset artifact the report was built from
func (s *MarkdownSink) WithSource(source string) *MarkdownSink {
	s.source = source
	return s
}

// Path returns the target file, empty when writing to a stream
func (s *MarkdownSink) Path() string {
	return s.path
}

// Emit renders the report
func (s *MarkdownSink) Emit(label string, hist benford.DigitHistogram, result benford.Result) error {
	if s.path == "" {
		return s.render(s.output, label, hist, result)
	}
	if err := storage.WriteAtomic(s.path, func(w io.Writer) error {
		return s.render(w, label, hist, result)
	}); err != nil {
		return fmt.Errorf("failed to write report %s: %w", s.path, err)
	}
	return nil
}

func (s *MarkdownSink) render(w io.Writer, label string, hist benford.DigitHistogram, result benford.Result) error {
	md := markdown.NewMarkdown(w)

	md.H1(labelOrDefault(label))
	md.PlainText("")

	info := [][]string{
		{"Samples", strconv.Itoa(hist.Total())},
		{"Generated", s.now().Format("2006-01-02 15:04:05 MST")},
	}
	if s.source != "" {
		info = append(info, []string{"Source", "`" + s.source + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   info,
	})
	md.PlainText("")

	writeDistribution(md, hist)
	writeTest(md, result)

	return md.Build()
}

func writeDistribution(md *markdown.Markdown, hist benford.DigitHistogram) {
	md.H2("First digit distribution")
	md.PlainText("")

	rows := buildRows(hist)
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			strconv.Itoa(r.digit),
			strconv.Itoa(r.observed),
			formatPercent(r.observedShare),
			formatPercent(r.expectedShare),
			fmt.Sprintf("%.2f", r.expectedCount),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Digit", "Observed", "Observed %", "Benford %", "Expected"},
		Rows:   table,
	})
	md.PlainText("")

	if hist.Total() == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Observed first digits"),
		piechart.WithShowData(true),
	)
	for _, r := range rows {
		if r.observed > 0 {
			chart.LabelAndIntValue(strconv.Itoa(r.digit), uint64(r.observed))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func writeTest(md *markdown.Markdown, result benford.Result) {
	md.H2("Chi-squared goodness of fit")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Statistic", "Value"},
		Rows: [][]string{
			{"Chi-squared", fmt.Sprintf("%.4f", result.ChiSquared)},
			{"Degrees of freedom", strconv.Itoa(result.DegreesOfFreedom)},
			{fmt.Sprintf("Critical value (%s)", formatPercent(result.Confidence)), fmt.Sprintf("%.4f", result.CriticalValue)},
			{"p-value", formatPValue(result.PValue)},
		},
	})
	md.PlainText("")

	if result.Conforms {
		md.Tip(result.Verdict())
	} else {
		md.Warningf("%s", result.Verdict())
	}
	md.PlainText("")
}
