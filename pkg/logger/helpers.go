package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogAttempt records a failed fetch attempt that will be retried
func LogAttempt(l Logger, entity string, attempt, maxAttempts int, delay time.Duration, kind string, err error) {
	l.WithError(err).WarnWithFields("Fetch attempt failed, retrying", map[string]interface{}{
		"entity":       entity,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"delay":        delay,
		"kind":         kind,
	})
}

// LogSkip records an entity dropped from the dataset
func LogSkip(l Logger, entity string, err error) {
	l.WithError(err).WarnWithFields("Skipping entity", map[string]interface{}{
		"entity": entity,
	})
}

// LogPersist records a snapshot written to disk
func LogPersist(l Logger, path string, samples int) {
	l.DebugWithFields("Snapshot persisted", map[string]interface{}{
		"path":    path,
		"samples": samples,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	l = l.WithField("component", component)
	if len(settings) > 0 {
		l = l.WithFields(settings)
	}
	l.Info("Component started")
}

// NewNopLogger creates a no-operation logger
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
