// Package report renders the outcome of a Benford analysis.
//
// A Sink receives the digit histogram, the test result and a label. The
// Markdown sink writes a shareable document with a mermaid chart; the
// terminal sink prints styled bars next to the Benford expectation.
package report
