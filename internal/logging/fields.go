// Package logging provides a chainable structured-field builder on top of
// zap, following the standard-fields convention used across this corpus's
// service layer (component/operation/resource/duration/error).
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields accumulates zap.Field values through a chainable builder so
// call sites read as a sentence rather than a field-literal slice.
type Fields []zap.Field

// NewFields starts an empty field chain.
func NewFields() Fields {
	return Fields{}
}

// Component tags the owning component (e.g. "pranalysis", "locks").
func (f Fields) Component(name string) Fields {
	return append(f, zap.String("component", name))
}

// Operation tags the operation in progress (e.g. "acquire", "postReport").
func (f Fields) Operation(name string) Fields {
	return append(f, zap.String("operation", name))
}

// Resource tags the resource type and, if non-empty, its name.
func (f Fields) Resource(resourceType, resourceName string) Fields {
	f = append(f, zap.String("resource_type", resourceType))
	if resourceName != "" {
		f = append(f, zap.String("resource_name", resourceName))
	}
	return f
}

// Duration records an elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	return append(f, zap.Int64("duration_ms", d.Milliseconds()))
}

// Error attaches an error field; a nil error is a no-op so call sites can
// pass through fallible results unconditionally.
func (f Fields) Error(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, zap.String("error", err.Error()))
}

// Project tags the project/branch/analysis-type tuple that keys a lock or
// pipeline run.
func (f Fields) Project(projectID, branch, analysisType string) Fields {
	return append(f, zap.String("project_id", projectID), zap.String("branch", branch), zap.String("analysis_type", analysisType))
}

// Correlation tags the pipeline's correlation ID.
func (f Fields) Correlation(id string) Fields {
	return append(f, zap.String("correlation_id", id))
}
