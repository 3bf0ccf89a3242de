// Package aiclient implements AiClientAdapter (spec §4.4): it builds the
// fixed-shape request payload, POSTs it to the AI service, and consumes the
// newline-delimited JSON event stream the response carries, forwarding each
// event to an eventbus.Sink in stream order.
package aiclient

import "github.com/rostilos/codecrow/internal/store"

// PriorIssue is one entry of a request's priorIssues[] (spec §4.4).
type PriorIssue struct {
	LineNumber *int           `json:"lineNumber,omitempty"`
	IssueID    string         `json:"issueId"`
	FilePath   string         `json:"filePath"`
	Severity   store.Severity `json:"severity"`
	Reason     string         `json:"reason"`
}

// Request is the fixed-shape payload consumed by the AI service.
type Request struct {
	ProjectID         string              `json:"projectId"`
	AnalysisType      store.AnalysisType  `json:"analysisType"`
	TargetBranch      string              `json:"targetBranch"`
	SourceBranch      string              `json:"sourceBranch"`
	CommitHash        string              `json:"commitHash"`
	PrNumber          *int                `json:"prNumber,omitempty"`
	ChangedFiles      []string            `json:"changedFiles"`
	RawDiff           string              `json:"rawDiff"`
	PriorIssues       []PriorIssue        `json:"priorIssues"`
	PriorAnalysisCount int                `json:"priorAnalysisCount"`
}

// Builder assembles a Request from the pipeline's in-flight state.
type Builder struct {
	ProjectID          string
	AnalysisType       store.AnalysisType
	TargetBranch       string
	SourceBranch       string
	CommitHash         string
	PrNumber           *int
	ChangedFiles       []string
	RawDiff            string
	PriorAnalysisCount int
	PriorIssues        []*store.CodeAnalysisIssue
}

// Build renders b into the wire Request, mapping the store's
// CodeAnalysisIssue into the adapter's PriorIssue wire shape.
func (b Builder) Build() Request {
	priors := make([]PriorIssue, 0, len(b.PriorIssues))
	for _, iss := range b.PriorIssues {
		priors = append(priors, PriorIssue{
			IssueID:    iss.ID,
			FilePath:   iss.FilePath,
			LineNumber: iss.LineNumber,
			Severity:   iss.Severity,
			Reason:     iss.Reason,
		})
	}
	return Request{
		ProjectID:          b.ProjectID,
		AnalysisType:       b.AnalysisType,
		TargetBranch:       b.TargetBranch,
		SourceBranch:       b.SourceBranch,
		CommitHash:         b.CommitHash,
		PrNumber:           b.PrNumber,
		ChangedFiles:       b.ChangedFiles,
		RawDiff:            b.RawDiff,
		PriorIssues:        priors,
		PriorAnalysisCount: b.PriorAnalysisCount,
	}
}
