// Package storage persists collected samples.
//
// The storage package handles:
//   - The ';'-separated snapshot file (username;followers), rewritten in full
//     after every collected sample
//   - Reading a snapshot file back for offline analysis
//   - An optional SQLite mirror of runs, samples and analysis results
//
// Every file write goes through WriteAtomic: data lands in a temporary file
// in the target directory, is synced, then renamed over the destination. An
// interrupted run therefore leaves either the previous snapshot or the new
// one, never a torn file.
//
// Usage:
//
//	sink := storage.NewCSVSink("out/alice_followers.csv", log)
//	if err := sink.Persist(ctx, ds.Snapshot()); err != nil {
//	    return err
//	}
//
//	samples, err := storage.ReadCSVFile("out/alice_followers.csv")
package storage
