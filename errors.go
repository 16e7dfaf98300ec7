package statemachine

import (
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeConfiguration    = "SM_CONFIGURATION"
	ErrCodeNoTransition     = "SM_NO_TRANSITION"
	ErrCodeGuardEvaluation  = "SM_GUARD_EVALUATION"
	ErrCodeActionExecution  = "SM_ACTION_EXECUTION"
	ErrCodeActionTimeout    = "SM_ACTION_TIMEOUT"
	ErrCodeMachineStopped   = "SM_MACHINE_STOPPED"
	ErrCodeIllegalState     = "SM_ILLEGAL_STATE"
	ErrCodeSnapshotMismatch = "SM_SNAPSHOT_MISMATCH"
	ErrCodeNotFound         = "SM_NOT_FOUND"
	ErrCodeInvalidEvent     = "SM_INVALID_EVENT"
	ErrCodePanic            = "SM_PANIC"
)

var (
	// ErrConfiguration is raised while compiling a graph that violates a
	// structural rule. Machines are never built from such graphs.
	ErrConfiguration = errors.New("invalid state machine configuration", errors.CategoryValidation).
				WithTextCode(ErrCodeConfiguration)
	// ErrNoTransition reports an event that no active state could handle.
	ErrNoTransition = errors.New("no transition enabled", errors.CategoryBadInput).
			WithTextCode(ErrCodeNoTransition)
	ErrGuardEvaluation = errors.New("guard evaluation failed", errors.CategoryHandler).
				WithTextCode(ErrCodeGuardEvaluation)
	ErrActionExecution = errors.New("action execution failed", errors.CategoryHandler).
				WithTextCode(ErrCodeActionExecution)
	ErrActionTimeout = errors.New("action timed out", errors.CategoryHandler).
				WithTextCode(ErrCodeActionTimeout)
	ErrMachineStopped = errors.New("state machine is not running", errors.CategoryConflict).
				WithTextCode(ErrCodeMachineStopped)
	ErrIllegalState = errors.New("illegal machine state", errors.CategoryConflict).
			WithTextCode(ErrCodeIllegalState)
	ErrSnapshotMismatch = errors.New("snapshot does not match graph", errors.CategoryBadInput).
				WithTextCode(ErrCodeSnapshotMismatch)
	ErrNotFound = errors.New("record not found", errors.CategoryBadInput).
			WithTextCode(ErrCodeNotFound)
)

// CloneError copies a sentinel and decorates it for a single failure.
func CloneError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
	if base == nil {
		base = ErrIllegalState
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors value in the chain.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsCode reports whether err carries the given text code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
