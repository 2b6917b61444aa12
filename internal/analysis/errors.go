package analysis

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNoJobs signals an empty (or fully leased) queue to the worker.
	ErrNoJobs = errors.New("no claimable jobs")
	// ErrDuplicateActive is returned by the store when the partial unique
	// index rejects a second non-terminal job for the same
	// (contract, analysis type) pair.
	ErrDuplicateActive = errors.New("active job already exists")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports a duplicate in-flight job so callers can surface
// the existing job id instead of creating another row.
type ConflictError struct {
	JobID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("analysis already in progress: %s", e.JobID)
}
