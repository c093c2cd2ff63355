package core

import (
	"errors"
	"fmt"
)

// ErrDependencyNotCompleted is wrapped by the ConfigError returned when a
// kind is started before one of its dependencies is Completed.
var ErrDependencyNotCompleted = errors.New("dependency not completed")

// ConfigError reports a problem that no amount of retrying will fix:
// missing source files, bad headers, dependency order, shrunken sources.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BatchWriteError reports a failed store write. The batch was not marked
// complete, so a rerun retries it.
type BatchWriteError struct {
	Kind  string
	Index int
	Err   error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("batch write failed: %s batch %d: %v", e.Kind, e.Index, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// SourceError reports an I/O failure while reading a source file.
type SourceError struct {
	Kind string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source read failed: %s: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsBatchWriteError reports whether err is or wraps a BatchWriteError.
func IsBatchWriteError(err error) bool {
	var be *BatchWriteError
	return errors.As(err, &be)
}
