package dataset

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPreservesOrder(t *testing.T) {
	d := New()
	for _, s := range []MetricSample{{"carol", 3}, {"alice", 1}, {"bob", 2}} {
		require.NoError(t, d.Append(s))
	}

	snap := d.Snapshot()
	require.Equal(t, 3, snap.Len())
	assert.Equal(t, "carol", snap.At(0).Identifier)
	assert.Equal(t, "alice", snap.At(1).Identifier)
	assert.Equal(t, []int64{3, 1, 2}, snap.Metrics())
}

func TestAppendRejectsInvalid(t *testing.T) {
	d := New()
	require.NoError(t, d.Append(MetricSample{"alice", 0}))

	assert.ErrorIs(t, d.Append(MetricSample{"alice", 5}), ErrDuplicate)
	assert.ErrorIs(t, d.Append(MetricSample{"bob", -1}), ErrNegativeMetric)
	assert.ErrorIs(t, d.Append(MetricSample{"", 1}), ErrEmptyIdentifier)
	assert.Equal(t, 1, d.Len())
	assert.True(t, d.Contains("alice"))
	assert.False(t, d.Contains("bob"))
}

func TestSnapshotIsImmutable(t *testing.T) {
	d := New()
	require.NoError(t, d.Append(MetricSample{"alice", 10}))
	snap := d.Snapshot()

	require.NoError(t, d.Append(MetricSample{"bob", 20}))
	assert.Equal(t, 1, snap.Len())

	samples := snap.Samples()
	samples[0].Metric = 999
	assert.Equal(t, int64(10), snap.At(0).Metric)
}

func TestFromSamples(t *testing.T) {
	d, err := FromSamples([]MetricSample{{"a", 1}, {"b", 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	_, err = FromSamples([]MetricSample{{"a", 1}, {"a", 2}})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "sample 2")
}

func TestConcurrentReadsDuringAppend(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = d.Snapshot().Len()
		}
	}()
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Append(MetricSample{Identifier: string(rune('A'+i%26)) + string(rune('a'+i/26)), Metric: int64(i)}))
	}
	wg.Wait()
	assert.Equal(t, 100, d.Len())
}

func TestMetricFetcherFunc(t *testing.T) {
	f := MetricFetcherFunc(func(ctx context.Context, id string) (int64, error) {
		return int64(len(id)), nil
	})
	m, err := f.GetMetric(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), m)
}
