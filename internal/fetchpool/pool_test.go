package fetchpool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igbenford/pkg/dataset"
	"igbenford/pkg/logger"
	"igbenford/pkg/ratelimit"
)

type mockFetcher struct {
	mu      sync.Mutex
	calls   map[dataset.Entity]int
	fail    map[dataset.Entity]bool
	active  int32
	peak    int32
	latency time.Duration
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{calls: map[dataset.Entity]int{}, fail: map[dataset.Entity]bool{}}
}

func (m *mockFetcher) FetchMetric(ctx context.Context, e dataset.Entity) (int64, error) {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		p := atomic.LoadInt32(&m.peak)
		if n <= p || atomic.CompareAndSwapInt32(&m.peak, p, n) {
			break
		}
	}
	if m.latency > 0 {
		time.Sleep(m.latency)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[e]++
	if m.fail[e] {
		return 0, errors.New("gave up")
	}
	return int64(len(e)), nil
}

func (m *mockFetcher) callCount(e dataset.Entity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[e]
}

func jobsFor(names ...string) []Job {
	jobs := make([]Job, len(names))
	for i, n := range names {
		jobs[i] = Job{Index: i, Entity: dataset.Entity(n)}
	}
	return jobs
}

func collect(ch <-chan Result) []Result {
	var out []Result
	for r := range ch {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job.Index < out[j].Job.Index })
	return out
}

func TestWorkerPoolBasicFunctionality(t *testing.T) {
	fetcher := newMockFetcher()
	pool := NewWorkerPool(3, fetcher, nil, logger.NewNopLogger())

	results := collect(pool.Run(context.Background(), jobsFor("a", "bb", "ccc", "dddd", "eeeee")))

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, i, r.Job.Index)
		assert.NoError(t, r.Err)
		assert.Equal(t, int64(i+1), r.Metric)
	}
	assert.NoError(t, pool.Err())
	assert.Equal(t, 3, pool.GetActiveWorkers())
}

func TestWorkerPoolIsolatesFailures(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.fail["ccc"] = true
	pool := NewWorkerPool(2, fetcher, nil, logger.NewNopLogger())

	results := collect(pool.Run(context.Background(), jobsFor("a", "bb", "ccc", "dddd", "eeeee")))

	require.Len(t, results, 5)
	assert.Error(t, results[2].Err)
	for _, i := range []int{0, 1, 3, 4} {
		assert.NoError(t, results[i].Err)
	}
	for _, n := range []string{"a", "bb", "ccc", "dddd", "eeeee"} {
		assert.Equal(t, 1, fetcher.calls[dataset.Entity(n)], "each job runs once")
	}
}

func TestWorkerPoolConcurrencyBound(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.latency = 20 * time.Millisecond
	pool := NewWorkerPool(2, fetcher, nil, logger.NewNopLogger())

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	results := collect(pool.Run(context.Background(), jobsFor(names...)))

	assert.Len(t, results, len(names))
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.peak), int32(2))
}

func TestWorkerPoolSharesLimiter(t *testing.T) {
	var mu sync.Mutex
	var waits []time.Duration
	limiter := ratelimit.NewInterval(time.Second, ratelimit.WithClock(
		func() time.Time { return time.Unix(0, 0) },
		func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			waits = append(waits, d)
			mu.Unlock()
			return nil
		},
	))
	pool := NewWorkerPool(4, newMockFetcher(), limiter, logger.NewNopLogger())

	results := collect(pool.Run(context.Background(), jobsFor("a", "b", "c", "d")))
	require.Len(t, results, 4)

	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	assert.Equal(t, []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second}, waits)
}

func TestWorkerPoolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := newMockFetcher()
	fetcher.latency = 10 * time.Millisecond
	pool := NewWorkerPool(1, fetcher, ratelimit.NewInterval(time.Hour), logger.NewNopLogger())

	ch := pool.Run(ctx, jobsFor("a", "b", "c"))
	first, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 0, first.Job.Index)
	cancel()

	for range ch {
	}
	assert.ErrorIs(t, pool.Err(), context.Canceled)
}

func TestWorkerPoolReportsJobStart(t *testing.T) {
	fetcher := newMockFetcher()
	pool := NewWorkerPool(2, fetcher, nil, logger.NewNopLogger())

	var mu sync.Mutex
	started := map[int]int{}
	pool.OnJobStart(func(job Job) {
		mu.Lock()
		defer mu.Unlock()
		// the hook runs before the fetch
		assert.Equal(t, 0, fetcher.callCount(job.Entity))
		started[job.Index]++
	})

	results := collect(pool.Run(context.Background(), jobsFor("a", "bb", "ccc")))
	require.Len(t, results, 3)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, started)
}
