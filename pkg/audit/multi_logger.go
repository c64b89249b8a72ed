package audit

import (
	"context"
	"fmt"
)

// MultiLogger fans out events to multiple loggers. Every logger receives
// every event; the first error is returned after all loggers have run.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to all given loggers
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every underlying logger
func (l *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, logger := range l.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("audit fan-out failed: %w", firstErr)
	}
	return nil
}

// Close closes every underlying logger
func (l *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range l.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
