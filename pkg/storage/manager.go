package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"igbenford/pkg/config"
)

// Manager owns the output directory and names the artifacts of each account
type Manager struct {
	output config.OutputConfig
}

// NewManager creates the output directory of out if needed
func NewManager(out config.OutputConfig) (*Manager, error) {
	if out.Directory == "" {
		out.Directory = "."
	}
	if err := os.MkdirAll(out.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{output: out}, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.output.Directory
}

// CSVPath returns the snapshot file of username
func (m *Manager) CSVPath(username string) string {
	return m.output.CSVPath(username)
}

// ReportPath returns the Markdown report of username, empty when reports
// are disabled
func (m *Manager) ReportPath(username string) string {
	return m.output.ReportPath(username)
}

// WriteAtomic writes a file through a temporary sibling and renames it into
// place, so readers only ever see the previous or the new complete content.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
