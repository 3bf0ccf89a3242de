// Package eventbus defines the EventSink contract pipelines emit to
// (spec §4.7) and the AI-stream event taxonomy (spec §4.4), adapting the
// agentstream.Event/Scoped interface taxonomy to this analysis core's event
// kinds.
package eventbus

// Kind discriminates an Event's concrete payload type.
type Kind string

const (
	// AI-stream events, forwarded from AiClientAdapter largely unchanged.
	KindStatus       Kind = "status"
	KindProgress     Kind = "progress"
	KindPartialIssue Kind = "partial_issue"
	KindWarning      Kind = "warning"
	KindAiError      Kind = "error"
	KindResult       Kind = "result"

	// Pipeline lifecycle events, emitted by the processors themselves.
	KindLockWait    Kind = "lock_wait"
	KindLockAcquired Kind = "lock_acquired"
	KindCacheHit    Kind = "cache_hit"
	KindCompleted   Kind = "completed"
)

// Event is the common interface every emitted value satisfies.
type Event interface {
	EventKind() Kind
}

// Status is a `status` AI-stream event.
type Status struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

func (Status) EventKind() Kind { return KindStatus }

// Progress is a `progress` AI-stream event.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

func (Progress) EventKind() Kind { return KindProgress }

// PartialIssue is a `partial_issue` AI-stream event.
type PartialIssue struct {
	IssueID    string `json:"issueId,omitempty"`
	FilePath   string `json:"filePath"`
	LineNumber *int   `json:"lineNumber,omitempty"`
	Severity   string `json:"severity"`
	Reason     string `json:"reason"`
}

func (PartialIssue) EventKind() Kind { return KindPartialIssue }

// Warning is a `warning` AI-stream event.
type Warning struct {
	Message string `json:"message"`
}

func (Warning) EventKind() Kind { return KindWarning }

// AiError is the terminal `error` AI-stream event.
type AiError struct {
	Message string `json:"message"`
}

func (AiError) EventKind() Kind { return KindAiError }

// Result is the terminal `result` AI-stream event. Issues is left as
// json.RawMessage-decoded interface{} because the AI service may send
// either a list or a keyed map (spec §4.4) — the reconciler, not this
// package, normalizes the shape.
type Result struct {
	Issues  interface{} `json:"issues"`
	Comment string      `json:"comment,omitempty"`
}

func (Result) EventKind() Kind { return KindResult }

// LockWait describes a pipeline blocked in AcquireWithWait. AcquireWithWait
// takes no Sink, and neither processor emits this event.
type LockWait struct {
	LockKey string `json:"lockKey"`
}

func (LockWait) EventKind() Kind { return KindLockWait }

// LockAcquired is emitted once a pipeline holds its lock.
type LockAcquired struct {
	LockKey string `json:"lockKey"`
}

func (LockAcquired) EventKind() Kind { return KindLockAcquired }

// CacheHit is emitted when PrAnalysisProcessor finds an existing ACCEPTED
// analysis for the same cache key (spec §4.5 step 4).
type CacheHit struct {
	CodeAnalysisID string `json:"codeAnalysisId"`
}

func (CacheHit) EventKind() Kind { return KindCacheHit }

// CompletedOutcome is the final disposition of a pipeline run.
type CompletedOutcome string

const (
	OutcomeSuccess   CompletedOutcome = "SUCCESS"
	OutcomeFailed    CompletedOutcome = "FAILED"
	OutcomeCancelled CompletedOutcome = "CANCELLED"
)

// Completed is the exactly-one terminal event every pipeline exit emits
// (spec §9 propagation policy).
type Completed struct {
	Outcome        CompletedOutcome `json:"outcome"`
	CodeAnalysisID string           `json:"codeAnalysisId,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func (Completed) EventKind() Kind { return KindCompleted }
