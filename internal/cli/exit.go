package cli

import (
	"errors"
	"strings"

	"github.com/JonMunkholm/graphload/internal/core"
	"github.com/JonMunkholm/graphload/internal/graph"
	"github.com/JonMunkholm/graphload/internal/progress"
)

// Exit codes.
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitUsageError        = 2
	ExitConfigError       = 10
	ExitConnectionError   = 11
	ExitBatchWriteFailed  = 13
	ExitCheckpointCorrupt = 14
)

// UsageError reports invalid arguments or flags.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// ExitCodeForError maps an error to the process exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usage *UsageError
		conn  *graph.ConnectionError
	)
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case progress.IsCorrupt(err):
		return ExitCheckpointCorrupt
	case errors.As(err, &conn):
		return ExitConnectionError
	case core.IsBatchWriteError(err):
		return ExitBatchWriteFailed
	case core.IsConfigError(err):
		return ExitConfigError
	}

	// cobra reports unknown commands as plain errors
	if strings.HasPrefix(err.Error(), "unknown command") {
		return ExitUsageError
	}
	return ExitGeneralError
}
