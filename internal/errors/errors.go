// Package errors defines the error taxonomy used across the analysis core:
// a single wrapping type for component/operation context, plus sentinel
// values for each error kind in the propagation policy (spec §7).
package errors

import (
	"errors"
	"fmt"
)

// OperationError wraps a failure with the operation, owning component, and
// optional resource it occurred against. Component and Resource are
// optional; Operation and Cause are always present.
type OperationError struct {
	Cause     error
	Operation string
	Component string
	Resource  string
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %s", e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() error { return e.Cause }

// Wrap builds an OperationError with the given context.
func Wrap(operation, component, resource string, cause error) *OperationError {
	return &OperationError{Operation: operation, Component: component, Resource: resource, Cause: cause}
}

// Error kinds from spec §7. Each pipeline failure is classified as one of
// these via errors.Is/errors.As against the sentinel or typed error below.
var (
	// ErrInvalidRequest marks a malformed AnalysisRequest rejected before
	// lock acquisition.
	ErrInvalidRequest = errors.New("invalid analysis request")

	// ErrUpstreamVcs marks a VCS call that failed after exhausting retries.
	// ragclient also attaches it to transport failures reaching the RAG
	// indexer.
	ErrUpstreamVcs = errors.New("upstream vcs error")

	// ErrUpstreamAi marks an AI stream failure or a stream that ended
	// without a terminal event.
	ErrUpstreamAi = errors.New("upstream ai error")

	// ErrPersistence marks a database error that aborts the pipeline.
	ErrPersistence = errors.New("persistence error")

	// ErrCancelled marks a context-cancellation terminal state.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrProtocolMismatch marks an AI stream that broke the event protocol:
	// a result event that could not be decoded, or a stream that closed
	// without a result or error event. An issues field that is neither a
	// list nor a map does not produce this error; it is treated as empty.
	ErrProtocolMismatch = errors.New("ai protocol mismatch")
)

// AnalysisLockedError is raised when LockService could not acquire (or wait
// for) a lock within its configured window.
type AnalysisLockedError struct {
	AnalysisType string
	Branch       string
	ProjectID    string
}

func (e *AnalysisLockedError) Error() string {
	return fmt.Sprintf("analysis locked: project=%s branch=%s type=%s", e.ProjectID, e.Branch, e.AnalysisType)
}

// InvalidRequestError carries the field-level validation failures for a
// rejected AnalysisRequest.
type InvalidRequestError struct {
	FieldErrors map[string]string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %d field error(s)", len(e.FieldErrors))
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }
