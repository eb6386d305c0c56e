package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"igbenford/pkg/collector"
	"igbenford/pkg/dataset"
)

// Progress prints one line per entity of a collection run. It implements
// collector.Observer.
type Progress struct {
	mu        sync.Mutex
	out       io.Writer
	color     bool
	root      string
	total     int
	collected int
	skipped   int
	startTime time.Time
	now       func() time.Time
}

var _ collector.Observer = (*Progress)(nil)

// NewProgress creates a progress printer. Colors are used when color is
// true.
func NewProgress(out io.Writer, color bool) *Progress {
	return &Progress{out: out, color: color, now: time.Now}
}

func (p *Progress) paint(f func(string) string, s string) string {
	if !p.color {
		return s
	}
	return f(s)
}

// RunStarted prints the size of the run
func (p *Progress) RunStarted(root string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.root = root
	p.total = total
	p.startTime = p.now()
	fmt.Fprintf(p.out, "%s %d followers of @%s\n",
		p.paint(Magenta, "Processing"), total, root)
}

// EntityStarted prints "i/N: processing <user>..."
func (p *Progress) EntityStarted(index, total int, entity dataset.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%d/%d: processing %s...\n", index+1, total, p.paint(Cyan, entity.String()))
}

// EntityRetried prints a failed attempt that will be retried
func (p *Progress) EntityRetried(entity dataset.Entity, attempt, maxAttempts int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s %s after attempt %d/%d: %v\n",
		p.paint(Yellow, "retrying"), entity, attempt, maxAttempts, err)
}

// EntityCollected records an accepted sample
func (p *Progress) EntityCollected(index int, sample dataset.MetricSample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.collected++
}

// EntitySkipped prints why an entity was left out
func (p *Progress) EntitySkipped(index int, entity dataset.Entity, kind string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped++
	fmt.Fprintf(p.out, "%s %s (%s): %v\n", p.paint(Yellow, "skipping"), entity, kind, err)
}

// Counts returns the collected and skipped totals so far
func (p *Progress) Counts() (collected, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collected, p.skipped
}

// Finish prints the run summary and where the data was saved. With no
// sample collected the snapshot holds only its header, and the summary says
// so.
func (p *Progress) Finish(artifact string, interrupted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.startTime)
	status := p.paint(Green, "✓")
	if interrupted {
		status = p.paint(Yellow, "⚠ interrupted,")
	}
	fmt.Fprintf(p.out, "\n%s %d of %d collected, %d skipped in %s\n",
		status, p.collected, p.total, p.skipped, formatDuration(elapsed))
	if p.collected == 0 {
		fmt.Fprintf(p.out, "no data collected, %s holds no samples\n", artifact)
		return
	}
	fmt.Fprintf(p.out, "partial data saved to %s\n", artifact)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
