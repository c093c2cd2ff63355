// Package core error codes.
//
// # Error Codes Reference
//
// Operator-facing messages carry a code so a failed run can be diagnosed
// from the summary line alone. Codes are grouped by category:
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Dependency not completed: a kind was started before the kinds it depends on
//	         Action: Run the dependencies first, or drop --only
//	         Patterns: "dependency not completed"
//
//	CFG002 - Source file missing: a required entity file was not found
//	         Action: Check DATA_DIR and the dataset's file names
//	         Patterns: "source file not found"
//
//	CFG003 - Missing column: a key or required column is absent from the header
//	         Action: Compare the file header with `graphload datasets`
//	         Patterns: "missing required column"
//
//	CFG004 - Source changed: the file no longer matches the checkpoint
//	         Action: Reset the kind and run again
//	         Patterns: "batch count changed", "source now has", "source ended after"
//
// # Checkpoint Errors (CKP001-CKP099)
//
//	CKP001 - Checkpoint corrupt: the checkpoint could not be parsed or is inconsistent
//	         Action: Run `graphload reset all` or `graphload clear`
//
//	CKP002 - Checkpoint locked: another run holds the checkpoint
//	         Action: Wait for the other run to finish
//
// # Batch Errors (BAT001-BAT099)
//
//	BAT001 - Batch write failed: the store rejected a batch
//	         Action: Fix the store problem and rerun; committed batches are kept
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field: a required field is empty
//	VAL002 - Invalid value: a value does not match its declared type
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source unreadable: a source file could not be read
//	         Action: Check file permissions, compression and bucket access
//
// # Store Errors (STO001-STO099)
//
//	STO001 - Store unreachable: the graph store refused or dropped the connection
//	STO002 - Authentication: the store rejected the credentials
//	STO003 - Timeout: the store did not answer in time
//	STO004 - Deadlock: conflicting writes in the store
//
// # Default Error (ERR000)
//
// Fallback when no specific type or pattern matches.
//
// Typed errors are classified first; messages are then matched
// case-insensitively with strings.Contains and the first match wins.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/graphload/internal/graph"
	"github.com/JonMunkholm/graphload/internal/progress"
)

// UserMessage provides operator-facing error information.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDependency = UserMessage{
		Message: "A kind was started before its dependencies completed",
		Action:  "Run the dependencies first, or drop --only",
		Code:    "CFG001",
	}
	msgSourceChanged = UserMessage{
		Message: "The source file no longer matches the checkpoint",
		Action:  "Reset the kind and run again",
		Code:    "CFG004",
	}
	msgConfig = UserMessage{
		Message: "The import is misconfigured",
		Action:  "Check the configuration and the source files",
		Code:    "CFG000",
	}
	msgCorrupt = UserMessage{
		Message: "The checkpoint is corrupt",
		Action:  "Run `graphload reset all` or `graphload clear`",
		Code:    "CKP001",
	}
	msgLocked = UserMessage{
		Message: "Another run holds the checkpoint",
		Action:  "Wait for the other run to finish",
		Code:    "CKP002",
	}
	msgBatch = UserMessage{
		Message: "A batch could not be written to the store",
		Action:  "Fix the store problem and rerun; committed batches are kept",
		Code:    "BAT001",
	}
	msgSource = UserMessage{
		Message: "A source file could not be read",
		Action:  "Check file permissions, compression and bucket access",
		Code:    "SRC001",
	}
	msgStore = UserMessage{
		Message: "Unable to connect to the graph store",
		Action:  "Check the store address and that it is running",
		Code:    "STO001",
	}
)

// errorPatterns refine a classification by message. More specific
// patterns come first.
var errorPatterns = []errorPattern{
	{pattern: "dependency not completed", msg: msgDependency},
	{
		pattern: "source file not found",
		msg: UserMessage{
			Message: "A required source file is missing",
			Action:  "Check DATA_DIR and the dataset's file names",
			Code:    "CFG002",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing from a source file",
			Action:  "Compare the file header with `graphload datasets`",
			Code:    "CFG003",
		},
	},
	{pattern: "batch count changed", msg: msgSourceChanged},
	{pattern: "source now has", msg: msgSourceChanged},
	{pattern: "source ended after", msg: msgSourceChanged},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Fix the row or let it be skipped",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid ",
		msg: UserMessage{
			Message: "A value does not match its declared type",
			Action:  "Fix the row or let it be skipped",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "The graph store rejected the credentials",
			Action:  "Check the store username and password",
			Code:    "STO002",
		},
	},
	{
		pattern: "authentication",
		msg: UserMessage{
			Message: "The graph store rejected the credentials",
			Action:  "Check the store username and password",
			Code:    "STO002",
		},
	},
	{pattern: "connection refused", msg: msgStore},
	{pattern: "connection reset", msg: msgStore},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The graph store did not answer in time",
			Action:  "Try again later or lower BATCH_SIZE",
			Code:    "STO003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The graph store was busy with conflicting writes",
			Action:  "Rerun; consider enabling BATCH_RETRY_ATTEMPTS",
			Code:    "STO004",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the underlying error",
	Code:    "ERR000",
}

// MapError converts an error to an operator-facing message.
//
// Example:
//
//	msg := MapError(err)
//	// msg.Code == "CKP001" for a *progress.CorruptError
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if progress.IsCorrupt(err) {
		return msgCorrupt
	}
	if errors.Is(err, progress.ErrLocked) {
		return msgLocked
	}

	var (
		be *BatchWriteError
		se *SourceError
		ce *graph.ConnectionError
	)
	switch {
	case IsConfigError(err):
		return refine(err, "CFG", msgConfig)
	case errors.As(err, &be):
		return msgBatch
	case errors.As(err, &se):
		return msgSource
	case errors.As(err, &ce):
		return refine(err, "STO", msgStore)
	}

	if msg, ok := matchPattern(err); ok {
		return msg
	}
	return defaultMessage
}

// refine returns the first pattern match within the category, or fallback.
func refine(err error, category string, fallback UserMessage) UserMessage {
	if msg, ok := matchPattern(err); ok && strings.HasPrefix(msg.Code, category) {
		return msg
	}
	return fallback
}

func matchPattern(err error) (UserMessage, bool) {
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
