// Package ui provides console output for collection runs: colored status
// lines and the per-entity progress of a run.
package ui

import (
	"fmt"
	"io"
	"os"
)

// Output is where the Print helpers write
var Output io.Writer = os.Stdout

var colorEnabled = os.Getenv("NO_COLOR") == ""

// SetColor turns ANSI colors of the Print helpers and color functions on or off
func SetColor(enabled bool) {
	colorEnabled = enabled
}

// Color functions for terminal output
var (
	Cyan    = colorize("36")
	Yellow  = colorize("33")
	Red     = colorize("31")
	Green   = colorize("32")
	Magenta = colorize("35")
	Dim     = colorize("2")
)

func colorize(code string) func(string) string {
	return func(text string) string {
		if !colorEnabled {
			return text
		}
		return "\033[" + code + "m" + text + "\033[0m"
	}
}

// withDetail appends the first of details as ": detail"
func withDetail(msg string, details []interface{}) string {
	if len(details) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, details[0])
}

// PrintError prints an error message in red
func PrintError(msg string, details ...interface{}) {
	fmt.Fprintln(Output, Red(withDetail(msg, details)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, details ...interface{}) {
	fmt.Fprintln(Output, Yellow(withDetail(msg, details)))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Output, Green(msg))
}

// PrintInfo prints a labelled value
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(Output, Magenta(msg))
}
