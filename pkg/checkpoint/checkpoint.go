package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"

	"igbenford/pkg/config"
	"igbenford/pkg/logger"
	"igbenford/pkg/storage"
)

// Run states
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// journalVersion is bumped when the file layout changes
const journalVersion = 1

// Skip records one entity dropped from the dataset
type Skip struct {
	Entity string `json:"entity"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// Journal is the status record of a collection run. It is informational
// only: a new run always starts from the first entity.
type Journal struct {
	RunID      string     `json:"run_id"`
	Root       string     `json:"root"`
	Artifact   string     `json:"artifact"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Skipped    int        `json:"skipped"`
	LastEntity string     `json:"last_entity,omitempty"`
	Skips      []Skip     `json:"skips,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Version    int        `json:"version"`
}

// Manager reads and writes the journal of one root account
type Manager struct {
	journalPath string
	logger      logger.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// NewManager creates a manager storing its journal under the XDG data dir
func NewManager(root string) (*Manager, error) {
	path, err := xdg.DataFile(filepath.Join(config.AppName, "runs", journalName(root)))
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return newManager(path), nil
}

// NewManagerAt creates a manager storing its journal in dir
func NewManagerAt(dir, root string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return newManager(filepath.Join(dir, journalName(root))), nil
}

func newManager(path string) *Manager {
	return &Manager{
		journalPath: path,
		logger:      logger.GetLogger().WithField("component", "journal"),
		now:         time.Now,
	}
}

func journalName(root string) string {
	return config.SanitizeUsername(root) + ".run.json"
}

// SetLogger replaces the manager's logger
func (m *Manager) SetLogger(l logger.Logger) {
	m.logger = l
}

// Path returns the journal file location
func (m *Manager) Path() string {
	return m.journalPath
}

// Start creates and saves a fresh journal, replacing the previous run's
func (m *Manager) Start(root, artifact string, total int) (*Journal, error) {
	return m.StartRun(uuid.NewString(), root, artifact, total)
}

// StartRun is Start with a caller-chosen run id, so the journal can share
// the id of the SQLite run row
func (m *Manager) StartRun(runID, root, artifact string, total int) (*Journal, error) {
	now := m.now()
	j := &Journal{
		RunID:     runID,
		Root:      root,
		Artifact:  artifact,
		Status:    StatusRunning,
		Total:     total,
		StartedAt: now,
		Version:   journalVersion,
	}

	if err := m.Save(j); err != nil {
		return nil, fmt.Errorf("failed to save initial journal: %w", err)
	}

	m.logger.InfoWithFields("Run journal created", map[string]interface{}{
		"run_id": j.RunID,
		"root":   root,
		"path":   m.journalPath,
	})
	return j, nil
}

// RecordSuccess counts a collected entity
func (m *Manager) RecordSuccess(j *Journal, entity string) error {
	m.mu.Lock()
	j.Processed++
	j.Succeeded++
	j.LastEntity = entity
	m.mu.Unlock()
	return m.Save(j)
}

// RecordSkip counts a skipped entity and remembers why
func (m *Manager) RecordSkip(j *Journal, entity, kind string, cause error) error {
	m.mu.Lock()
	j.Processed++
	j.Skipped++
	j.LastEntity = entity
	skip := Skip{Entity: entity, Kind: kind}
	if cause != nil {
		skip.Error = cause.Error()
	}
	j.Skips = append(j.Skips, skip)
	m.mu.Unlock()
	return m.Save(j)
}

// Finish stamps the final status of the run
func (m *Manager) Finish(j *Journal, status string, cause error) error {
	m.mu.Lock()
	now := m.now()
	j.Status = status
	j.FinishedAt = &now
	if cause != nil {
		j.Error = cause.Error()
	}
	m.mu.Unlock()
	return m.Save(j)
}

// Load loads the journal of the last run, or nil when there is none
func (m *Manager) Load() (*Journal, error) {
	file, err := os.Open(m.journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	var j Journal
	if err := json.NewDecoder(file).Decode(&j); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	return &j, nil
}

// Save writes the journal to disk atomically
func (m *Manager) Save(j *Journal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j.UpdatedAt = m.now()
	err := storage.WriteAtomic(m.journalPath, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(j)
	})
	if err != nil {
		return fmt.Errorf("failed to save journal: %w", err)
	}

	m.logger.DebugWithFields("Journal saved", map[string]interface{}{
		"run_id":    j.RunID,
		"processed": j.Processed,
		"status":    j.Status,
	})
	return nil
}

// Delete removes the journal file
func (m *Manager) Delete() error {
	if err := os.Remove(m.journalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete journal: %w", err)
	}
	return nil
}

// Exists checks if a journal file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.journalPath)
	return err == nil
}
