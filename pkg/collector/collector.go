package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"igbenford/internal/fetchpool"
	"igbenford/pkg/benford"
	"igbenford/pkg/dataset"
	errs "igbenford/pkg/errors"
	"igbenford/pkg/logger"
	"igbenford/pkg/metrics"
	"igbenford/pkg/ratelimit"
	"igbenford/pkg/retry"
)

// ErrEntityList marks a failure to obtain the entity list. It is fatal for
// the run.
var ErrEntityList = errors.New("failed to list entities")

// KindData labels skips caused by unusable data rather than fetch failures
const KindData = "data"

// Fetcher resolves one entity's metric, retries included
type Fetcher = fetchpool.Fetcher

// Persister stores a full dataset snapshot
type Persister interface {
	Persist(ctx context.Context, snap dataset.Snapshot) error
}

// Observer is notified of pipeline progress. Calls never overlap.
// EntityCollected and EntitySkipped arrive in input order; EntityStarted and
// EntityRetried follow the fetches, which in concurrent mode run ahead of
// the committed results.
type Observer interface {
	RunStarted(root string, total int)
	EntityStarted(index, total int, entity dataset.Entity)
	EntityRetried(entity dataset.Entity, attempt, maxAttempts int, err error)
	EntityCollected(index int, sample dataset.MetricSample)
	EntitySkipped(index int, entity dataset.Entity, kind string, err error)
}

// SkipRecord describes an entity left out of the dataset
type SkipRecord struct {
	Index  int
	Entity dataset.Entity
	Kind   string
	Err    error
}

// Result is the outcome of a collection run
type Result struct {
	Snapshot  dataset.Snapshot
	Total     int
	Skipped   []SkipRecord
	Cancelled bool
}

// Collected returns the number of samples in the dataset
func (r *Result) Collected() int {
	return r.Snapshot.Len()
}

// Options configures a Pipeline
type Options struct {
	// Workers above 1 enables the concurrent mode
	Workers int
	// Pacing is the pause after every entity in sequential mode and the
	// minimum spacing between upstream calls in concurrent mode, retries
	// of a retry.Collector included
	Pacing     time.Duration
	Persisters []Persister
	Observers  []Observer
	Metrics    *metrics.Metrics
	Logger     logger.Logger
	// RateOptions are passed to the pacer and limiter, for tests
	RateOptions []ratelimit.Option
}

// Pipeline collects a metric for every entity of a root account
type Pipeline struct {
	source     dataset.EntitySource
	fetcher    Fetcher
	workers    int
	pacing     time.Duration
	persisters []Persister
	observers  []Observer
	metrics    *metrics.Metrics
	logger     logger.Logger
	rateOpts   []ratelimit.Option

	// maxAttempts is known when fetcher is a retry.Collector
	maxAttempts int
	notifyMu    sync.Mutex
}

// New creates a pipeline reading entities from source and metrics through
// fetcher.
func New(source dataset.EntitySource, fetcher Fetcher, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{
		source:     source,
		fetcher:    fetcher,
		workers:    workers,
		pacing:     opts.Pacing,
		persisters: opts.Persisters,
		observers:  opts.Observers,
		metrics:    opts.Metrics,
		logger:     log.WithField("component", "collector"),
		rateOpts:   opts.RateOptions,
	}
	if rc, ok := fetcher.(*retry.Collector); ok {
		p.maxAttempts = rc.MaxAttempts()
		p.fetcher = rc.WithRetryHook(p.entityRetried)
	}
	return p
}

// notify calls fn for every observer, one pipeline event at a time
func (p *Pipeline) notify(fn func(o Observer)) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	for _, o := range p.observers {
		fn(o)
	}
}

func (p *Pipeline) entityRetried(entity string, attempt int, err error) {
	if p.metrics != nil {
		p.metrics.IncrementRetries()
	}
	p.notify(func(o Observer) {
		o.EntityRetried(dataset.Entity(entity), attempt, p.maxAttempts, err)
	})
}

// Run lists the entities of root and collects them. A failure to list is
// returned wrapped in ErrEntityList.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	entities, err := p.source.ListEntities(ctx, root)
	if err != nil {
		p.logger.WithError(err).ErrorWithFields("Entity list unavailable", map[string]interface{}{
			"root": root,
		})
		return nil, fmt.Errorf("%w for %s: %w", ErrEntityList, root, err)
	}
	return p.Collect(ctx, root, entities)
}

// Collect fetches every entity in input order. The persisters first receive
// an empty snapshot, so an artifact left by an older run never outlives this
// one. Successful samples are appended to the dataset and the full snapshot
// is persisted before the next sample is committed; failed entities are
// skipped. A persistence
// failure aborts the run. On cancellation the samples committed so far are
// returned together with the context error.
func (p *Pipeline) Collect(ctx context.Context, root string, entities []dataset.Entity) (*Result, error) {
	p.notify(func(o Observer) { o.RunStarted(root, len(entities)) })
	if p.metrics != nil {
		p.metrics.SetEntitiesTotal(len(entities))
	}
	logger.LogComponentStart(p.logger, "collector", map[string]interface{}{
		"root":     root,
		"entities": len(entities),
		"workers":  p.workers,
		"pacing":   p.pacing,
	})

	run := &runState{
		pipeline: p,
		ds:       dataset.New(),
		total:    len(entities),
	}

	if err := run.persist(ctx, run.ds.Snapshot(), ""); err != nil {
		return &Result{Snapshot: run.ds.Snapshot(), Total: len(entities)}, err
	}

	var err error
	if p.workers > 1 {
		err = p.collectConcurrent(ctx, entities, run)
	} else {
		err = p.collectSequential(ctx, entities, run)
	}

	result := &Result{
		Snapshot: run.ds.Snapshot(),
		Total:    len(entities),
		Skipped:  run.skipped,
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Cancelled = true
			p.logger.WarnWithFields("Collection interrupted", map[string]interface{}{
				"collected": result.Collected(),
				"total":     result.Total,
			})
			return result, fmt.Errorf("collection interrupted: %w", err)
		}
		return result, err
	}

	p.logger.InfoWithFields("Collection finished", map[string]interface{}{
		"collected": result.Collected(),
		"skipped":   len(result.Skipped),
		"total":     result.Total,
	})
	return result, nil
}

func (p *Pipeline) collectSequential(ctx context.Context, entities []dataset.Entity, run *runState) error {
	pacer := ratelimit.NewPacer(p.pacing, p.rateOpts...)
	p.logger.DebugWithFields("Collecting sequentially", map[string]interface{}{
		"pacing":   pacer.Delay(),
		"entities": len(entities),
	})

	for i, entity := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.started(i, entity)

		start := time.Now()
		metric, err := p.fetcher.FetchMetric(ctx, entity)
		if p.metrics != nil {
			p.metrics.ObserveFetch(start)
		}
		if err := run.commit(ctx, i, entity, metric, err); err != nil {
			return err
		}

		if err := pacer.Pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) collectConcurrent(ctx context.Context, entities []dataset.Entity, run *runState) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make([]fetchpool.Job, len(entities))
	for i, e := range entities {
		jobs[i] = fetchpool.Job{Index: i, Entity: e}
	}

	limiter := ratelimit.NewInterval(p.pacing, p.rateOpts...)
	fetcher, poolLimiter := p.fetcher, ratelimit.Limiter(limiter)
	if rc, ok := fetcher.(*retry.Collector); ok {
		// every upstream call takes a slot, not only the first of each entity
		fetcher, poolLimiter = rc.WithLimiter(limiter), nil
	}

	pool := fetchpool.NewWorkerPool(p.workers, fetcher, poolLimiter, p.logger)
	pool.OnJobStart(func(job fetchpool.Job) {
		run.started(job.Index, job.Entity)
	})
	p.logger.DebugWithFields("Collecting concurrently", map[string]interface{}{
		"workers":  pool.GetActiveWorkers(),
		"entities": len(jobs),
	})
	results := pool.Run(ctx, jobs)

	// results arrive in completion order; commit them in input order
	pending := make(map[int]fetchpool.Result)
	next := 0
	var commitErr error
	for r := range results {
		if p.metrics != nil {
			p.metrics.FetchDuration.Observe(r.Duration.Seconds())
		}
		if commitErr != nil {
			continue
		}
		pending[r.Job.Index] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := run.commit(ctx, next, ready.Job.Entity, ready.Metric, ready.Err); err != nil {
				commitErr = err
				cancel()
				break
			}
			next++
		}
	}

	if commitErr != nil {
		return commitErr
	}
	if err := pool.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// runState owns the dataset of one run
type runState struct {
	pipeline *Pipeline
	ds       *dataset.Dataset
	total    int
	skipped  []SkipRecord
}

func (r *runState) started(index int, entity dataset.Entity) {
	r.pipeline.notify(func(o Observer) { o.EntityStarted(index, r.total, entity) })
}

// commit records the outcome of one entity. Only a persistence failure or
// cancellation is returned; entity failures become skips.
func (r *runState) commit(ctx context.Context, index int, entity dataset.Entity, metric int64, fetchErr error) error {
	p := r.pipeline
	if fetchErr != nil {
		if errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, context.DeadlineExceeded) {
			return fetchErr
		}
		r.skip(index, entity, string(errs.KindOf(fetchErr)), fetchErr)
		return nil
	}

	if err := benford.CheckMetric(entity.String(), metric); err != nil {
		r.skip(index, entity, KindData, err)
		return nil
	}

	sample := dataset.MetricSample{Identifier: entity.String(), Metric: metric}
	if err := r.ds.Append(sample); err != nil {
		r.skip(index, entity, KindData, err)
		return nil
	}

	if err := r.persist(ctx, r.ds.Snapshot(), entity.String()); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.IncrementCollected()
		p.metrics.IncrementSnapshotWrites()
	}
	p.notify(func(o Observer) { o.EntityCollected(index, sample) })
	return nil
}

// persist hands snap to every persister and stops at the first failure
func (r *runState) persist(ctx context.Context, snap dataset.Snapshot, entity string) error {
	p := r.pipeline
	for _, persister := range p.persisters {
		if err := persister.Persist(ctx, snap); err != nil {
			p.logger.WithError(err).ErrorWithFields("Failed to persist snapshot", map[string]interface{}{
				"entity":  entity,
				"samples": snap.Len(),
			})
			return fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}
	return nil
}

func (r *runState) skip(index int, entity dataset.Entity, kind string, err error) {
	p := r.pipeline
	r.skipped = append(r.skipped, SkipRecord{Index: index, Entity: entity, Kind: kind, Err: err})
	logger.LogSkip(p.logger.WithField("kind", kind), entity.String(), err)
	if p.metrics != nil {
		p.metrics.IncrementSkipped(kind)
	}
	p.notify(func(o Observer) { o.EntitySkipped(index, entity, kind, err) })
}
