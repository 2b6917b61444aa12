package worker

import (
	"context"
	"errors"

	"contracts-backend/internal/analysis"
)

// Handler executes one kind of analysis. Each handler owns a single
// analysis type and is registered with the worker before Start.
type Handler interface {
	// Type returns the analysis type this handler processes. It must
	// match the analysis_type column of the jobs it receives.
	Type() string

	// Handle runs the analysis and returns the completion payload.
	// Returning an error fails the attempt; wrap it with
	// NewPermanentError to skip the remaining retries.
	Handle(ctx context.Context, job analysis.Job) (analysis.Completion, error)
}

// Notifier is told about terminal job outcomes. Implementations must be
// safe for concurrent use.
type Notifier interface {
	JobCompleted(ctx context.Context, job analysis.Job) error
	JobFailed(ctx context.Context, job analysis.Job, reason string) error
}

// PermanentError wraps an error to indicate the job must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PermanentError.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a PermanentError wrapping err.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is permanent.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
