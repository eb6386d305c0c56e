package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"igbenford/pkg/benford"
)

const barWidth = 40

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	alertRed    = lipgloss.Color("#FF0000")
	dimWhite    = lipgloss.Color("#B0B0B0")
)

// TerminalSink prints the histogram as horizontal bars, observed share
// against the Benford expectation
type TerminalSink struct {
	output io.Writer
	styles terminalStyles
}

type terminalStyles struct {
	title    lipgloss.Style
	digit    lipgloss.Style
	observed lipgloss.Style
	expected lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	pass     lipgloss.Style
	fail     lipgloss.Style
}

// NewTerminalSink creates a sink printing to output. Colors are only
// emitted when output is a terminal.
func NewTerminalSink(output io.Writer) *TerminalSink {
	r := lipgloss.NewRenderer(output)
	return &TerminalSink{
		output: output,
		styles: terminalStyles{
			title: r.NewStyle().
				Foreground(neonMagenta).
				Bold(true).
				Padding(1, 0, 1, 0),
			digit:    r.NewStyle().Foreground(neonCyan).Bold(true),
			observed: r.NewStyle().Foreground(neonGreen),
			expected: r.NewStyle().Foreground(dimWhite).Faint(true),
			label:    r.NewStyle().Foreground(neonCyan).Bold(true),
			value:    r.NewStyle().Foreground(neonYellow),
			pass:     r.NewStyle().Foreground(neonGreen).Bold(true),
			fail:     r.NewStyle().Foreground(alertRed).Bold(true),
		},
	}
}

// Emit prints the report
func (s *TerminalSink) Emit(label string, hist benford.DigitHistogram, result benford.Result) error {
	var b strings.Builder
	st := s.styles

	b.WriteString(st.title.Render(labelOrDefault(label)))
	b.WriteString("\n")

	for _, r := range buildRows(hist) {
		fmt.Fprintf(&b, "%s %s %6s  (%d)\n",
			st.digit.Render(fmt.Sprintf("%d", r.digit)),
			st.observed.Render(bar(r.observedShare, "█")),
			formatPercent(r.observedShare),
			r.observed,
		)
		fmt.Fprintf(&b, "  %s %6s\n",
			st.expected.Render(bar(r.expectedShare, "░")),
			formatPercent(r.expectedShare),
		)
	}
	b.WriteString("\n")

	stat := func(name, value string) {
		fmt.Fprintf(&b, "%s: %s\n", st.label.Render(name), st.value.Render(value))
	}
	stat("Samples", fmt.Sprintf("%d", hist.Total()))
	stat("Chi-squared", fmt.Sprintf("%.4f", result.ChiSquared))
	stat(fmt.Sprintf("Critical value (%s)", formatPercent(result.Confidence)), fmt.Sprintf("%.4f", result.CriticalValue))
	stat("p-value", formatPValue(result.PValue))

	verdict := st.fail
	if result.Conforms {
		verdict = st.pass
	}
	b.WriteString(verdict.Render(result.Verdict()))
	b.WriteString("\n")

	_, err := io.WriteString(s.output, b.String())
	return err
}

// bar scales a proportion to barWidth cells
func bar(share float64, cell string) string {
	n := int(share*barWidth + 0.5)
	if n > barWidth {
		n = barWidth
	}
	if n < 0 {
		n = 0
	}
	return strings.Repeat(cell, n) + strings.Repeat(" ", barWidth-n)
}
