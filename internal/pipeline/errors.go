package pipeline

import (
	"errors"
	"fmt"
)

// Failure kinds. Every stage error wraps exactly one of these.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSynthesisFailed   = errors.New("synthesis failed")
	ErrProbeFailed       = errors.New("probe failed")
	ErrCompositeFailed   = errors.New("composite failed")
	ErrCancelled         = errors.New("job cancelled")
)

// Error codes stored on failed job records.
const (
	CodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	CodeSynthesisFailed   = "SYNTHESIS_FAILED"
	CodeProbeFailed       = "PROBE_FAILED"
	CodeCompositeFailed   = "COMPOSITE_FAILED"
	CodeCancelled         = "CANCELLED"
	CodeInternal          = "INTERNAL_ERROR"
)

// StageError records which stage failed, the failure kind and the cause.
// errors.Is matches both the kind and anything in the cause chain.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{e.Kind, e.Err}
}

// Code maps the failure kind to its record error code.
func (e *StageError) Code() string {
	return ErrorCode(e)
}

// ErrorCode returns the record error code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	case errors.Is(err, ErrSourceUnavailable):
		return CodeSourceUnavailable
	case errors.Is(err, ErrSynthesisFailed):
		return CodeSynthesisFailed
	case errors.Is(err, ErrProbeFailed):
		return CodeProbeFailed
	case errors.Is(err, ErrCompositeFailed):
		return CodeCompositeFailed
	default:
		return CodeInternal
	}
}
