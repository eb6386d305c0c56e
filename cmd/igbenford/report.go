package main

import (
	"fmt"
	"io"

	"igbenford/pkg/benford"
	"igbenford/pkg/report"
)

// emitReport writes the analysis to the terminal and, when reportPath is
// set, to a Markdown file. source names the data the analysis came from.
func emitReport(out io.Writer, analysis benford.Analysis, reportPath, source string) error {
	sinks := report.MultiSink{report.NewTerminalSink(out)}
	if reportPath != "" {
		sinks = append(sinks, report.NewMarkdownFileSink(reportPath).WithSource(source))
	}

	if err := report.EmitAnalysis(sinks, report.DefaultLabel, analysis); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if reportPath != "" {
		fmt.Fprintf(out, "report saved to %s\n", reportPath)
	}
	return nil
}
