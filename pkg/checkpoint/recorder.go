package checkpoint

import (
	"sync"

	"igbenford/pkg/collector"
	"igbenford/pkg/dataset"
)

// Recorder keeps the journal current while a pipeline runs. It satisfies
// collector.Observer. Journal write failures are logged and never stop the
// run.
type Recorder struct {
	manager  *Manager
	runID    string
	artifact string

	mu      sync.Mutex
	journal *Journal
}

var _ collector.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder for a run writing its snapshot to artifact
func NewRecorder(m *Manager, runID, artifact string) *Recorder {
	return &Recorder{manager: m, runID: runID, artifact: artifact}
}

// Journal returns the journal of the run, nil before RunStarted
func (r *Recorder) Journal() *Journal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.journal
}

// RunStarted creates the journal
func (r *Recorder) RunStarted(root string, total int) {
	j, err := r.manager.StartRun(r.runID, root, r.artifact, total)
	if err != nil {
		r.warn("Failed to start run journal", err)
		return
	}
	r.mu.Lock()
	r.journal = j
	r.mu.Unlock()
}

// EntityStarted is a no-op; the journal only tracks outcomes
func (r *Recorder) EntityStarted(index, total int, entity dataset.Entity) {}

// EntityRetried is a no-op; retries are logged by the collector
func (r *Recorder) EntityRetried(entity dataset.Entity, attempt, maxAttempts int, err error) {}

// EntityCollected counts a success
func (r *Recorder) EntityCollected(index int, sample dataset.MetricSample) {
	if j := r.Journal(); j != nil {
		if err := r.manager.RecordSuccess(j, sample.Identifier); err != nil {
			r.warn("Failed to record success", err)
		}
	}
}

// EntitySkipped counts a skip and its reason
func (r *Recorder) EntitySkipped(index int, entity dataset.Entity, kind string, err error) {
	if j := r.Journal(); j != nil {
		if rerr := r.manager.RecordSkip(j, entity.String(), kind, err); rerr != nil {
			r.warn("Failed to record skip", rerr)
		}
	}
}

// Finish stamps the final status. Without a journal (the entity list
// failed) one is created first so the failure is still visible.
func (r *Recorder) Finish(root, status string, cause error) error {
	j := r.Journal()
	if j == nil {
		var err error
		if j, err = r.manager.StartRun(r.runID, root, r.artifact, 0); err != nil {
			return err
		}
		r.mu.Lock()
		r.journal = j
		r.mu.Unlock()
	}
	return r.manager.Finish(j, status, cause)
}

func (r *Recorder) warn(msg string, err error) {
	r.manager.logger.WithError(err).WarnWithFields(msg, map[string]interface{}{
		"run_id": r.runID,
		"path":   r.manager.journalPath,
	})
}
