package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration lifecycle. Template rendering errors
// (template-not-found, undefined-variable) are defined in pkg/template and
// pass through unwrapped.
var (
	// ErrConfiguration indicates an invalid root directory, a missing
	// required spec field, or an unresolvable backend or strategy name.
	// Never retried; surfaced to the caller immediately.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceQuery indicates the resource was unreachable or returned
	// unparseable data while resolving directories.
	ErrResourceQuery = errors.New("resource query failed")

	// ErrSubmission indicates the backend rejected the submission or could
	// not be reached. The job stays STAGED with its artifacts on the
	// resource for manual inspection.
	ErrSubmission = errors.New("submission failed")

	// ErrMissingDependency indicates a chosen strategy requires collaborator
	// software or configuration absent from the environment. Raised at
	// construction, before any resource I/O.
	ErrMissingDependency = errors.New("missing external dependency")

	// ErrLifecycle indicates a lifecycle method was invoked out of order.
	ErrLifecycle = errors.New("lifecycle order violation")
)

// Error wraps a lifecycle failure with the operation and job it belongs to.
type Error struct {
	// Op is the lifecycle operation that failed (e.g. "PrepareRemote").
	Op string

	// JobID is the orchestrator's job id.
	JobID string

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (job %s): %v", e.Op, e.JobID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}
