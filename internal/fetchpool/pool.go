package fetchpool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"igbenford/pkg/dataset"
	"igbenford/pkg/logger"
	"igbenford/pkg/ratelimit"
)

// Job is one entity to fetch, tagged with its position in the input
type Job struct {
	Index  int
	Entity dataset.Entity
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Metric   int64
	Err      error
	Duration time.Duration
}

// Fetcher resolves the metric of an entity, retries included
type Fetcher interface {
	FetchMetric(ctx context.Context, entity dataset.Entity) (int64, error)
}

// WorkerPool fetches entities concurrently. All workers share one limiter,
// waited on once per job, so job starts are capped globally no matter how
// many workers run. With a nil limiter pacing is left to the fetcher.
type WorkerPool struct {
	numWorkers int
	fetcher    Fetcher
	limiter    ratelimit.Limiter
	logger     logger.Logger
	onStart    func(job Job)

	mu  sync.Mutex
	err error
}

// NewWorkerPool creates a new fetch worker pool
func NewWorkerPool(numWorkers int, fetcher Fetcher, limiter ratelimit.Limiter, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		fetcher:    fetcher,
		limiter:    limiter,
		logger:     log.WithField("component", "fetchpool"),
	}
}

// OnJobStart sets a callback run by the worker right before it fetches a
// job. It is called from the worker goroutines.
func (wp *WorkerPool) OnJobStart(fn func(job Job)) {
	wp.onStart = fn
}

// Run starts the workers and returns the result stream. Results arrive in
// completion order; the channel is closed once every job is done or ctx is
// cancelled. Entity failures are delivered as results and never stop the
// pool.
func (wp *WorkerPool) Run(ctx context.Context, jobs []Job) <-chan Result {
	results := make(chan Result, wp.numWorkers)
	g, gctx := errgroup.WithContext(ctx)

	queue := make(chan Job, wp.numWorkers*2)
	g.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case queue <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"jobs":        len(jobs),
	})

	for i := 0; i < wp.numWorkers; i++ {
		id := i
		g.Go(func() error {
			return wp.worker(gctx, id, queue, results)
		})
	}

	go func() {
		err := g.Wait()
		wp.mu.Lock()
		wp.err = err
		wp.mu.Unlock()
		close(results)
		wp.logger.Debug("Worker pool stopped")
	}()

	return results
}

// Err returns the error that stopped the pool, if any. It is only
// meaningful after the result channel has been closed.
func (wp *WorkerPool) Err() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.err
}

func (wp *WorkerPool) worker(ctx context.Context, id int, queue <-chan Job, results chan<- Result) error {
	for job := range queue {
		if wp.limiter != nil {
			if err := wp.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		if wp.onStart != nil {
			wp.onStart(job)
		}
		start := time.Now()
		metric, err := wp.fetcher.FetchMetric(ctx, job.Entity)
		result := Result{Job: job, Metric: metric, Err: err, Duration: time.Since(start)}

		wp.logger.DebugWithFields("Worker completed job", map[string]interface{}{
			"worker_id": id,
			"entity":    job.Entity.String(),
			"duration":  result.Duration,
			"failed":    err != nil,
		})

		select {
		case results <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetActiveWorkers returns the number of workers
func (wp *WorkerPool) GetActiveWorkers() int {
	return wp.numWorkers
}
