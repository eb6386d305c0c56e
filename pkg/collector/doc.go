// Package collector drives a collection run: it lists the entities of a root
// account, fetches each entity's metric through a retrying fetcher, and grows
// an append-only dataset that is persisted after every accepted sample.
//
// Entities that cannot be fetched are skipped and the run continues. With
// more than one worker, fetches overlap under a shared rate limiter that
// every upstream call waits on, retries included, but samples are still
// committed in input order.
package collector
