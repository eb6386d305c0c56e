// Package ratelimit keeps collection within the request budget of the
// remote API.
//
// Implementations:
//
// Interval:
//   - Global ceiling of one request per interval, shared by all workers
//   - Slots are reserved in call order
//
// Sliding Window:
//   - Caps requests within a moving time window
//   - Used by the Instagram client for its hourly page budget
//
// Pacer:
//   - Fixed pause after every processed entity in sequential mode
//
// All blocking calls honour context cancellation, and every limiter accepts
// WithClock so tests can run on virtual time.
package ratelimit
