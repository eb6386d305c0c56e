// Package logger provides structured logging for igbenford.
//
// It wraps zerolog behind a small interface so collection components can be
// handed a logger explicitly and tests can swap in a capturing TestLogger.
//
// Features:
//   - Leveled logging (Debug, Info, Warn, Error, Fatal)
//   - Structured fields via WithField/WithFields/WithError
//   - Colored console output on stderr, JSON lines when a file is configured
//   - Helpers for the collection events every run reports: failed attempts,
//     skipped entities and persisted snapshots
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	log := logger.GetLogger().WithField("component", "collector")
//	logger.LogAttempt(log, "alice", 1, 3, 10*time.Second, "transient", err)
package logger
