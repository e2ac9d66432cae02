// Package enginerr defines the engine's error taxonomy.
//
// Every exported error is a sentinel checkable with errors.Is; operations
// wrap the sentinel in an EngineError that carries the operation name and
// enough context to decide whether a caller should retry.
package enginerr

import (
	"errors"
	"fmt"
)

// Code classifies an error into the engine's retry/surface taxonomy.
type Code string

const (
	// CodeInvalidArgument marks malformed input: never retried, always surfaced.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeNotFound marks a missing record or block.
	CodeNotFound Code = "not_found"
	// CodeStorage marks a KVBackend failure.
	CodeStorage Code = "storage"
	// CodeIndexCorruption marks a vector or full-text index integrity failure.
	CodeIndexCorruption Code = "index_corruption"
	// CodeCapacityExceeded marks an eviction that could not free a slot.
	CodeCapacityExceeded Code = "capacity_exceeded"
	// CodeDeadline marks a deadline exceeded while waiting on a suspension point.
	CodeDeadline Code = "deadline"
	// CodeCancelled marks caller-initiated cancellation.
	CodeCancelled Code = "cancelled"
	// CodeDependency marks an Embedder/Rewriter failure after retries.
	CodeDependency Code = "dependency"
)

// Sentinel errors. Wrap these with New to attach an operation name.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage operation failed")
	ErrIndexCorruption  = errors.New("index corruption")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrDeadline         = errors.New("deadline exceeded")
	ErrCancelled        = errors.New("operation cancelled")
	ErrDependency       = errors.New("dependency call failed")
)

var sentinelByCode = map[Code]error{
	CodeInvalidArgument:  ErrInvalidArgument,
	CodeNotFound:         ErrNotFound,
	CodeStorage:          ErrStorage,
	CodeIndexCorruption:  ErrIndexCorruption,
	CodeCapacityExceeded: ErrCapacityExceeded,
	CodeDeadline:         ErrDeadline,
	CodeCancelled:        ErrCancelled,
	CodeDependency:       ErrDependency,
}

// EngineError wraps a taxonomy sentinel with the operation name and an
// optional attempt count (meaningful for CodeDependency).
type EngineError struct {
	Op       string
	Code     Code
	Attempts int
	Err      error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("memengine: %s: %s (after %d attempts): %v", e.Op, e.Code, e.Attempts, e.Err)
	}
	return fmt.Sprintf("memengine: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an EngineError for the given op and code, wrapping cause.
// If cause is nil the code's sentinel is used so errors.Is still matches.
func New(op string, code Code, cause error) *EngineError {
	if cause == nil {
		cause = sentinelByCode[code]
	}
	return &EngineError{Op: op, Code: code, Err: cause}
}

// NewWithAttempts is New plus a retry-attempt count, for Dependency errors.
func NewWithAttempts(op string, code Code, attempts int, cause error) *EngineError {
	e := New(op, code, cause)
	e.Attempts = attempts
	return e
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return errors.Is(err, sentinelByCode[code])
}
