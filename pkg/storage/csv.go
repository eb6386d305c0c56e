package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"igbenford/pkg/dataset"
	"igbenford/pkg/logger"
)

const (
	// Separator between the columns of a snapshot file
	Separator = ';'

	columnUsername  = "username"
	columnFollowers = "followers"
)

// ErrMissingColumn is returned when a snapshot file lacks a required column
var ErrMissingColumn = errors.New("missing column")

// CSVSink persists full dataset snapshots to a ';'-separated file. Every
// call overwrites the file with the complete snapshot.
type CSVSink struct {
	path   string
	logger logger.Logger
}

// NewCSVSink creates a sink writing to path
func NewCSVSink(path string, log logger.Logger) *CSVSink {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &CSVSink{path: path, logger: log.WithField("component", "csv")}
}

// Path returns the file the sink writes to
func (s *CSVSink) Path() string {
	return s.path
}

// Persist atomically replaces the file with snap
func (s *CSVSink) Persist(ctx context.Context, snap dataset.Snapshot) error {
	if err := WriteAtomic(s.path, func(w io.Writer) error {
		return WriteCSV(w, snap)
	}); err != nil {
		return fmt.Errorf("failed to persist snapshot to %s: %w", s.path, err)
	}
	logger.LogPersist(s.logger, s.path, snap.Len())
	return nil
}

// WriteCSV encodes a snapshot with a username;followers header
func WriteCSV(w io.Writer, snap dataset.Snapshot) error {
	cw := csv.NewWriter(w)
	cw.Comma = Separator

	if err := cw.Write([]string{columnUsername, columnFollowers}); err != nil {
		return err
	}
	for i := 0; i < snap.Len(); i++ {
		s := snap.At(i)
		if err := cw.Write([]string{s.Identifier, strconv.FormatInt(s.Metric, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSVFile loads the samples of a snapshot file
func ReadCSVFile(path string) ([]dataset.MetricSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	samples, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// ReadCSV decodes a snapshot. Columns are located by header name, so extra
// columns and any column order are accepted.
func ReadCSV(r io.Reader) ([]dataset.MetricSample, error) {
	cr := csv.NewReader(r)
	cr.Comma = Separator
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	userCol, followersCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case columnUsername:
			userCol = i
		case columnFollowers:
			followersCol = i
		}
	}
	if userCol < 0 {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, columnUsername)
	}
	if followersCol < 0 {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, columnFollowers)
	}

	var samples []dataset.MetricSample
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) <= userCol || len(record) <= followersCol {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(userCol, followersCol)+1, len(record))
		}
		metric, err := strconv.ParseInt(strings.TrimSpace(record[followersCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid follower count %q", line, record[followersCol])
		}
		samples = append(samples, dataset.MetricSample{
			Identifier: strings.TrimSpace(record[userCol]),
			Metric:     metric,
		})
	}
	return samples, nil
}
