package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igbenford/pkg/benford"
	"igbenford/pkg/dataset"
	errs "igbenford/pkg/errors"
	"igbenford/pkg/metrics"
	"igbenford/pkg/ratelimit"
	"igbenford/pkg/retry"
)

type staticSource struct {
	entities []dataset.Entity
	err      error
}

func (s *staticSource) ListEntities(ctx context.Context, root string) ([]dataset.Entity, error) {
	return s.entities, s.err
}

type mapFetcher struct {
	mu      sync.Mutex
	metrics map[dataset.Entity]int64
	fail    map[dataset.Entity]error
	calls   map[dataset.Entity]int
	delay   map[dataset.Entity]time.Duration
}

func newMapFetcher(metrics map[dataset.Entity]int64) *mapFetcher {
	return &mapFetcher{
		metrics: metrics,
		fail:    map[dataset.Entity]error{},
		calls:   map[dataset.Entity]int{},
		delay:   map[dataset.Entity]time.Duration{},
	}
}

func (f *mapFetcher) FetchMetric(ctx context.Context, entity dataset.Entity) (int64, error) {
	f.mu.Lock()
	f.calls[entity]++
	err := f.fail[entity]
	metric := f.metrics[entity]
	delay := f.delay[entity]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return 0, err
	}
	return metric, nil
}

type recordingPersister struct {
	mu        sync.Mutex
	snapshots []dataset.Snapshot
	failAt    int
}

func (r *recordingPersister) Persist(ctx context.Context, snap dataset.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && snap.Len() == r.failAt {
		return errors.New("disk full")
	}
	r.snapshots = append(r.snapshots, snap)
	return nil
}

type persisterFunc func(ctx context.Context, snap dataset.Snapshot) error

func (f persisterFunc) Persist(ctx context.Context, snap dataset.Snapshot) error {
	return f(ctx, snap)
}

type recordingObserver struct {
	started   []dataset.Entity
	retried   []string
	collected []string
	skipped   []string
	total     int
}

func (o *recordingObserver) RunStarted(root string, total int) { o.total = total }
func (o *recordingObserver) EntityStarted(index, total int, entity dataset.Entity) {
	o.started = append(o.started, entity)
}
func (o *recordingObserver) EntityRetried(entity dataset.Entity, attempt, maxAttempts int, err error) {
	o.retried = append(o.retried, fmt.Sprintf("%s %d/%d", entity, attempt, maxAttempts))
}
func (o *recordingObserver) EntityCollected(index int, sample dataset.MetricSample) {
	o.collected = append(o.collected, sample.Identifier)
}
func (o *recordingObserver) EntitySkipped(index int, entity dataset.Entity, kind string, err error) {
	o.skipped = append(o.skipped, fmt.Sprintf("%s:%s", entity, kind))
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func entities(ids ...string) []dataset.Entity {
	out := make([]dataset.Entity, len(ids))
	for i, id := range ids {
		out[i] = dataset.Entity(id)
	}
	return out
}

func TestCollectSkipsFailingEntity(t *testing.T) {
	ids := entities("a", "b", "c", "d", "e")
	values := map[dataset.Entity]int64{"a": 120, "b": 2400, "c": 33, "d": 45, "e": 5}
	remote := dataset.MetricFetcherFunc(func(ctx context.Context, id string) (int64, error) {
		if id == "c" {
			return 0, errs.Transient("server returned 503")
		}
		return values[dataset.Entity(id)], nil
	})

	var retrySleeps sleepRecorder
	fetcher := retry.NewCollector(remote, retry.CollectorOptions{
		MaxRetries: 3,
		Backoff:    10 * time.Second,
		Sleep:      retrySleeps.sleep,
	})

	var paceSleeps sleepRecorder
	persister := &recordingPersister{}
	observer := &recordingObserver{}
	p := New(&staticSource{entities: ids}, fetcher, Options{
		Pacing:      2 * time.Second,
		Persisters:  []Persister{persister},
		Observers:   []Observer{observer},
		RateOptions: []ratelimit.Option{ratelimit.WithClock(nil, paceSleeps.sleep)},
	})

	result, err := p.Run(context.Background(), "root")
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Collected())
	assert.Equal(t, []string{"a", "b", "d", "e"}, identifiers(result.Snapshot))
	assert.Equal(t, []int64{120, 2400, 45, 5}, result.Snapshot.Metrics())

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, dataset.Entity("c"), result.Skipped[0].Entity)
	assert.Equal(t, string(errs.KindTransient), result.Skipped[0].Kind)
	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, result.Skipped[0].Err, &exhausted)

	// an empty snapshot first, then one persist per accepted sample, each a
	// growing prefix
	require.Len(t, persister.snapshots, 5)
	for i, snap := range persister.snapshots {
		assert.Equal(t, i, snap.Len())
	}

	// pacing after every entity, backoff between the three attempts on c
	assert.Len(t, paceSleeps.sleeps, 5)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, retrySleeps.sleeps)

	assert.Equal(t, 5, observer.total)
	assert.Equal(t, ids, observer.started)
	assert.Equal(t, []string{"c 1/3", "c 2/3"}, observer.retried)
	assert.Equal(t, []string{"c:transient"}, observer.skipped)
}

func TestCollectSkipsInvalidMetrics(t *testing.T) {
	fetcher := newMapFetcher(map[dataset.Entity]int64{"a": 10, "zero": 0, "b": 7})
	m := metrics.New()
	p := New(&staticSource{}, fetcher, Options{Metrics: m})

	result, err := p.Collect(context.Background(), "root", entities("a", "zero", "b", "a"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, identifiers(result.Snapshot))
	require.Len(t, result.Skipped, 2)

	var invalid *benford.InvalidMetricError
	assert.ErrorAs(t, result.Skipped[0].Err, &invalid)
	assert.Equal(t, KindData, result.Skipped[0].Kind)
	assert.ErrorIs(t, result.Skipped[1].Err, dataset.ErrDuplicate)
}

func TestRunEntityListFailure(t *testing.T) {
	listErr := errs.Permanent("profile is private")
	persister := &recordingPersister{}
	p := New(&staticSource{err: listErr}, newMapFetcher(nil), Options{
		Persisters: []Persister{persister},
	})

	result, err := p.Run(context.Background(), "root")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrEntityList)
	assert.ErrorIs(t, err, listErr)
	assert.Empty(t, persister.snapshots)
}

func TestCollectPersistFailureAborts(t *testing.T) {
	fetcher := newMapFetcher(map[dataset.Entity]int64{"a": 1, "b": 2, "c": 3})
	persister := &recordingPersister{failAt: 2}
	p := New(&staticSource{}, fetcher, Options{Persisters: []Persister{persister}})

	result, err := p.Collect(context.Background(), "root", entities("a", "b", "c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, result.Cancelled)
	assert.Equal(t, 0, fetcher.calls["c"])
	assert.Len(t, persister.snapshots, 2)
}

func TestCollectResetFailureFetchesNothing(t *testing.T) {
	fetcher := newMapFetcher(map[dataset.Entity]int64{"a": 1})
	persister := persisterFunc(func(ctx context.Context, snap dataset.Snapshot) error {
		return errors.New("read-only file system")
	})
	p := New(&staticSource{}, fetcher, Options{Persisters: []Persister{persister}})

	result, err := p.Collect(context.Background(), "root", entities("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only file system")
	assert.Equal(t, 0, result.Collected())
	assert.Equal(t, 0, fetcher.calls["a"])
}

func TestCollectCancellationKeepsPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := dataset.MetricFetcherFunc(func(ctx context.Context, id string) (int64, error) {
		if id == "c" {
			cancel()
			return 0, ctx.Err()
		}
		return 42, nil
	})
	collector := retry.NewCollector(fetcher, retry.CollectorOptions{MaxRetries: 1})

	persister := &recordingPersister{}
	p := New(&staticSource{}, collector, Options{Persisters: []Persister{persister}})

	result, err := p.Collect(ctx, "root", entities("a", "b", "c", "d"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Cancelled)
	assert.Equal(t, []string{"a", "b"}, identifiers(result.Snapshot))
	assert.Len(t, persister.snapshots, 3)
	assert.Empty(t, result.Skipped)
}

func TestCollectConcurrentKeepsInputOrder(t *testing.T) {
	ids := entities("a", "b", "c", "d", "e", "f")
	fetcher := newMapFetcher(map[dataset.Entity]int64{
		"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6,
	})
	fetcher.delay["a"] = 30 * time.Millisecond
	fetcher.delay["c"] = 20 * time.Millisecond
	fetcher.fail["d"] = errs.Permanent("user not found")

	persister := &recordingPersister{}
	observer := &recordingObserver{}
	p := New(&staticSource{}, fetcher, Options{
		Workers:    3,
		Persisters: []Persister{persister},
		Observers:  []Observer{observer},
	})

	result, err := p.Collect(context.Background(), "root", ids)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "e", "f"}, identifiers(result.Snapshot))
	assert.Equal(t, []string{"a", "b", "c", "e", "f"}, observer.collected)
	assert.Equal(t, []string{"d:permanent"}, observer.skipped)
	// starts are reported by the workers as fetches begin
	assert.ElementsMatch(t, ids, observer.started)
	require.Len(t, persister.snapshots, 6)
	for i, snap := range persister.snapshots {
		assert.Equal(t, i, snap.Len())
	}
}

func TestCollectConcurrentRetriesShareRateLimit(t *testing.T) {
	var mu sync.Mutex
	failures := map[string]int{"a": 2}
	calls := 0
	remote := dataset.MetricFetcherFunc(func(ctx context.Context, id string) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if failures[id] > 0 {
			failures[id]--
			return 0, errs.Transient("server returned 503")
		}
		return int64(len(id) * 10), nil
	})

	var retrySleeps sleepRecorder
	fetcher := retry.NewCollector(remote, retry.CollectorOptions{
		MaxRetries: 3,
		Backoff:    5 * time.Millisecond,
		Sleep:      retrySleeps.sleep,
	})

	// with a frozen clock every wait equals the offset of the reserved slot
	const pacing = 100 * time.Millisecond
	var slots sleepRecorder
	m := metrics.New()
	observer := &recordingObserver{}
	p := New(&staticSource{}, fetcher, Options{
		Workers:     3,
		Pacing:      pacing,
		Metrics:     m,
		Observers:   []Observer{observer},
		RateOptions: []ratelimit.Option{ratelimit.WithClock(func() time.Time { return time.Unix(0, 0) }, slots.sleep)},
	})

	result, err := p.Collect(context.Background(), "root", entities("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, identifiers(result.Snapshot))
	assert.Equal(t, []string{"a 1/3", "a 2/3"}, observer.retried)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRetries))

	// five upstream calls, each on its own slot
	assert.Equal(t, 5, calls)
	require.Len(t, slots.sleeps, calls)
	starts := append([]time.Duration(nil), slots.sleeps...)
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i]-starts[i-1], pacing)
	}
}

func TestCollectEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name       string
		metrics    []int64
		chiSquared float64
		conforms   bool
	}{
		{"mixed digits", []int64{111, 523, 199, 287, 134, 612, 765, 998, 102}, 4.94381457243763, true},
		{"all nines", []int64{900, 901, 902, 903, 904, 905, 906, 907, 908}, 187.68910794104542, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			byEntity := map[dataset.Entity]int64{}
			var ids []dataset.Entity
			for i, m := range tt.metrics {
				id := dataset.Entity(fmt.Sprintf("user_%d", i))
				ids = append(ids, id)
				byEntity[id] = m
			}

			p := New(&staticSource{entities: ids}, newMapFetcher(byEntity), Options{})
			result, err := p.Run(context.Background(), "root")
			require.NoError(t, err)
			assert.Equal(t, tt.metrics, result.Snapshot.Metrics())

			analysis, err := benford.NewAnalyzer().Analyze(result.Snapshot)
			require.NoError(t, err)
			assert.Equal(t, len(ids), analysis.Total)
			assert.Equal(t, tt.conforms, analysis.Result.Conforms)
			assert.InDelta(t, tt.chiSquared, analysis.Result.ChiSquared, 1e-9)
		})
	}
}

func identifiers(snap dataset.Snapshot) []string {
	out := make([]string, 0, snap.Len())
	for _, s := range snap.Samples() {
		out = append(out, s.Identifier)
	}
	return out
}
