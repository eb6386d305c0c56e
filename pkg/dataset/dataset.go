// Package dataset holds the samples gathered during a collection run.
//
// A Dataset is append-only and owned by a single writer, the collection
// pipeline. Everything downstream (persistence, analysis, reports) works on
// immutable Snapshots.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicate is returned when an identifier is appended twice
	ErrDuplicate = errors.New("duplicate identifier")
	// ErrNegativeMetric is returned for metrics below zero
	ErrNegativeMetric = errors.New("metric must not be negative")
	// ErrEmptyIdentifier is returned for samples without an identifier
	ErrEmptyIdentifier = errors.New("identifier must not be empty")
)

// Entity is one account whose metric is collected
type Entity string

func (e Entity) String() string { return string(e) }

// MetricSample is the collected metric of one entity
type MetricSample struct {
	Identifier string `json:"username"`
	Metric     int64  `json:"followers"`
}

// MetricFetcher resolves the metric of a single identifier. Implementations
// report failures as *errors.Error so callers can tell transient from
// permanent ones.
type MetricFetcher interface {
	GetMetric(ctx context.Context, identifier string) (int64, error)
}

// MetricFetcherFunc adapts a function to MetricFetcher
type MetricFetcherFunc func(ctx context.Context, identifier string) (int64, error)

func (f MetricFetcherFunc) GetMetric(ctx context.Context, identifier string) (int64, error) {
	return f(ctx, identifier)
}

// EntitySource lists the entities related to a root account
type EntitySource interface {
	ListEntities(ctx context.Context, root string) ([]Entity, error)
}

// Dataset is an ordered, append-only collection of samples
type Dataset struct {
	mu      sync.RWMutex
	samples []MetricSample
	seen    map[string]struct{}
}

// New creates an empty dataset
func New() *Dataset {
	return &Dataset{seen: make(map[string]struct{})}
}

// FromSamples builds a dataset from existing samples, e.g. a replayed
// snapshot file. It fails on the first invalid or duplicate sample.
func FromSamples(samples []MetricSample) (*Dataset, error) {
	d := New()
	for i, s := range samples {
		if err := d.Append(s); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i+1, err)
		}
	}
	return d, nil
}

// Append adds a sample at the end of the dataset
func (d *Dataset) Append(s MetricSample) error {
	if s.Identifier == "" {
		return ErrEmptyIdentifier
	}
	if s.Metric < 0 {
		return fmt.Errorf("%s: %w", s.Identifier, ErrNegativeMetric)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[s.Identifier]; ok {
		return fmt.Errorf("%s: %w", s.Identifier, ErrDuplicate)
	}
	d.seen[s.Identifier] = struct{}{}
	d.samples = append(d.samples, s)
	return nil
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.samples)
}

// Contains reports whether the identifier has already been collected
func (d *Dataset) Contains(identifier string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[identifier]
	return ok
}

// Snapshot returns an immutable copy of the current contents
func (d *Dataset) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	samples := make([]MetricSample, len(d.samples))
	copy(samples, d.samples)
	return Snapshot{samples: samples}
}

// Snapshot is a point-in-time, read-only view of a Dataset
type Snapshot struct {
	samples []MetricSample
}

// NewSnapshot wraps samples in a snapshot without validation
func NewSnapshot(samples ...MetricSample) Snapshot {
	cp := make([]MetricSample, len(samples))
	copy(cp, samples)
	return Snapshot{samples: cp}
}

// Len returns the number of samples in the snapshot
func (s Snapshot) Len() int { return len(s.samples) }

// At returns the i-th sample in insertion order
func (s Snapshot) At(i int) MetricSample { return s.samples[i] }

// Samples returns a copy of the samples in insertion order
func (s Snapshot) Samples() []MetricSample {
	cp := make([]MetricSample, len(s.samples))
	copy(cp, s.samples)
	return cp
}

// Metrics returns the metric values in insertion order
func (s Snapshot) Metrics() []int64 {
	out := make([]int64, len(s.samples))
	for i, sample := range s.samples {
		out[i] = sample.Metric
	}
	return out
}
