// Package retry provides bounded retry with a fixed backoff for metric
// fetches.
//
// Failures are classified through pkg/errors: transient and unknown kinds are
// retried, permanent ones abort at once. After MaxAttempts failed calls the
// caller receives an *ExhaustedError ("gave up after N attempts").
//
// Basic usage:
//
//	c := retry.NewCollector(fetcher, retry.CollectorOptions{
//		MaxRetries: 3,
//		Backoff:    10 * time.Second,
//		Logger:     log,
//	})
//	followers, err := c.FetchMetric(ctx, "some_user")
//
// The sleeper is injectable so tests can count backoff sleeps without
// waiting for them.
package retry
