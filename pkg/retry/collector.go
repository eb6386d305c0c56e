package retry

import (
	"context"
	"time"

	"igbenford/pkg/dataset"
	errs "igbenford/pkg/errors"
	"igbenford/pkg/logger"
	"igbenford/pkg/ratelimit"
)

// Collector fetches one entity's metric with bounded, fixed-delay retries
type Collector struct {
	fetcher dataset.MetricFetcher
	cfg     Config
	log     logger.Logger
	limiter ratelimit.Limiter
	onRetry func(entity string, attempt int, err error)
}

// CollectorOptions configures a Collector
type CollectorOptions struct {
	MaxRetries int
	Backoff    time.Duration
	// RetryPermanent retries every failure kind
	RetryPermanent bool
	Sleep          Sleeper
	Logger         logger.Logger
	// Limiter, when set, is waited on before every call to the fetcher
	Limiter ratelimit.Limiter
	// OnRetry is invoked before every backoff sleep
	OnRetry func(entity string, attempt int, err error)
}

// NewCollector wraps fetcher with the given retry policy
func NewCollector(fetcher dataset.MetricFetcher, opts CollectorOptions) *Collector {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	retryIf := DefaultRetryIf
	if opts.RetryPermanent {
		retryIf = RetryAll
	}

	c := &Collector{
		fetcher: fetcher,
		limiter: opts.Limiter,
		onRetry: opts.OnRetry,
		log:     log.WithField("component", "retry"),
		cfg: Config{
			MaxAttempts: maxRetries,
			Backoff:     ConstantBackoff{Delay: opts.Backoff},
			RetryIf:     retryIf,
			Sleep:       opts.Sleep,
		},
	}
	c.cfg.Logger = c.log
	return c
}

// MaxAttempts returns the number of calls made before giving up
func (c *Collector) MaxAttempts() int {
	return c.cfg.MaxAttempts
}

// WithLimiter returns a copy of c that waits on l before every call to the
// fetcher, retries included
func (c *Collector) WithLimiter(l ratelimit.Limiter) *Collector {
	cp := *c
	cp.limiter = l
	return &cp
}

// WithRetryHook returns a copy of c that also calls fn before every backoff
func (c *Collector) WithRetryHook(fn func(entity string, attempt int, err error)) *Collector {
	cp := *c
	prev := c.onRetry
	cp.onRetry = func(entity string, attempt int, err error) {
		if prev != nil {
			prev(entity, attempt, err)
		}
		fn(entity, attempt, err)
	}
	return &cp
}

// FetchMetric returns the entity's metric or a failure. Failures are
// *ExhaustedError, *AbortedError or a wrapped context error; a panicking
// fetcher is never propagated.
func (c *Collector) FetchMetric(ctx context.Context, entity dataset.Entity) (int64, error) {
	id := entity.String()
	log := c.log.WithField("entity", id)

	cfg := c.cfg
	cfg.Logger = log
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.LogAttempt(log, id, attempt, cfg.MaxAttempts, delay, string(errs.KindOf(err)), err)
		if c.onRetry != nil {
			c.onRetry(id, attempt, err)
		}
	}

	return DoWithResult(ctx, func(ctx context.Context) (metric int64, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errs.Permanent("fetcher panicked: %v", r)
			}
		}()
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return 0, err
			}
		}
		return c.fetcher.GetMetric(ctx, id)
	}, &cfg)
}
