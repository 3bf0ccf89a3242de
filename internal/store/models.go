// Package store implements AnalysisStore: the persistent model for
// Project, Branch, PullRequest, CodeAnalysis, CodeAnalysisIssue,
// BranchIssue, BranchFile, and AnalysisLock, together with the aggregate
// count invariants (spec §3) enforced by recompute-under-transaction
// (Design Note DN-2).
package store

import "time"

// HealthStatus is a Branch's observed health.
type HealthStatus string

const (
	HealthUnknown HealthStatus = "UNKNOWN"
	HealthHealthy HealthStatus = "HEALTHY"
	HealthStale   HealthStatus = "STALE"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
	SeverityInfo   Severity = "INFO"
)

// AnalysisType distinguishes the two pipeline kinds that key a lock and a
// CodeAnalysis row.
type AnalysisType string

const (
	AnalysisTypePR          AnalysisType = "PR_ANALYSIS"
	AnalysisTypeBranch      AnalysisType = "BRANCH_ANALYSIS"
	AnalysisTypeRagIndexing AnalysisType = "RAG_INDEXING"
)

// AnalysisStatus is a CodeAnalysis row's lifecycle state.
type AnalysisStatus string

const (
	StatusPending  AnalysisStatus = "PENDING"
	StatusRunning  AnalysisStatus = "RUNNING"
	StatusAccepted AnalysisStatus = "ACCEPTED"
	StatusFailed   AnalysisStatus = "FAILED"
)

// RagConfig and CommentCommandsConfig are opaque per-project JSON blobs
// consumed by RagBridge and the commentcommands package respectively; the
// core does not interpret their shape beyond enable flags.
type RagConfig struct {
	Enabled bool `json:"enabled"`
}

type CommentCommandsConfig struct {
	Enabled bool `json:"enabled"`
}

// Project is read by the core; it is created and maintained externally
// (outside this spec's scope) but consumed here via EffectiveVcsConnection.
type Project struct {
	DefaultBranch           *string
	AiBindingID             *string
	ID                      string
	Name                    string
	Namespace               string
	WorkspaceRef            string
	VcsConnection           VcsConnection
	RagConfig               RagConfig
	CommentCommandsConfig   CommentCommandsConfig
	UseLocalMcp             bool
	PrAnalysisEnabled       bool
	BranchAnalysisEnabled   bool
}

// VcsProvider is the tagged union of supported VCS backends (Design Note
// "polymorphism over providers").
type VcsProvider string

const (
	VcsGitHub         VcsProvider = "GITHUB"
	VcsGitLab         VcsProvider = "GITLAB"
	VcsBitbucketCloud VcsProvider = "BITBUCKET_CLOUD"
)

// VcsConnection is the single accessor a Project exposes for provider
// operations (Design Note DN-5: no dual legacy/new-binding path).
type VcsConnection struct {
	Provider     VcsProvider
	Workspace    string
	RepoSlug     string
	AccessToken  string
	APIBaseURL   string
}

// EffectiveVcsConnection returns the project's single VCS connection.
func (p *Project) EffectiveVcsConnection() (VcsConnection, error) {
	if p.VcsConnection.Provider == "" {
		return VcsConnection{}, ErrNoVcsConnection
	}
	return p.VcsConnection, nil
}

// Branch owns a list of BranchIssue and carries the aggregate counters of
// Invariant B-1.
type Branch struct {
	LastHealthCheckAt       *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
	ID                      string
	ProjectID               string
	BranchName              string
	CommitHash              string
	LastSuccessfulCommitHash string
	HealthStatus            HealthStatus
	ConsecutiveFailures     int
	TotalIssues             int
	HighSeverityCount       int
	MediumSeverityCount     int
	LowSeverityCount        int
	InfoSeverityCount       int
	ResolvedCount           int
}

// RecomputeCounters applies Invariant B-1 against the given owned issues,
// mutating the receiver's counter fields. Callers must hold the issues
// slice under the same transaction that will persist the result (Design
// Note DN-2: recompute, never delta).
func (b *Branch) RecomputeCounters(issues []*BranchIssue) {
	b.TotalIssues = 0
	b.HighSeverityCount = 0
	b.MediumSeverityCount = 0
	b.LowSeverityCount = 0
	b.InfoSeverityCount = 0
	b.ResolvedCount = 0

	for _, iss := range issues {
		if iss.Resolved {
			b.ResolvedCount++
			continue
		}
		b.TotalIssues++
		switch iss.Severity {
		case SeverityHigh:
			b.HighSeverityCount++
		case SeverityMedium:
			b.MediumSeverityCount++
		case SeverityLow:
			b.LowSeverityCount++
		case SeverityInfo:
			b.InfoSeverityCount++
		}
	}
}

// BranchIssue links a Branch to the authoritative CodeAnalysisIssue finding
// record (Invariant BI-1: unique per (branch, codeAnalysisIssueID);
// Invariant BI-2: resolved implies a resolution attribution is set).
type BranchIssue struct {
	ResolvedAt           *time.Time
	ResolvedInCommitHash *string
	ResolvedInPrNumber   *int
	ResolvedDescription  *string
	ResolvedBy           *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ID                   string
	BranchID             string
	CodeAnalysisIssueID  string
	Severity             Severity
	FirstDetectedPrNumber *int
	Resolved             bool
}

// Validate checks Invariant BI-2.
func (bi *BranchIssue) Validate() error {
	if bi.Resolved && bi.ResolvedInCommitHash == nil && bi.ResolvedInPrNumber == nil {
		return ErrUnattributedResolution
	}
	return nil
}

// BranchFile tracks the unresolved-issue count attributable to a file in a
// branch (spec §3).
type BranchFile struct {
	ID         string
	ProjectID  string
	BranchName string
	FilePath   string
	IssueCount int
}

// PullRequest is unique per (project, prNumber); prVersion increments when
// the PR is upserted with a new head commit and stays unchanged for the
// same commit.
type PullRequest struct {
	ID               string
	ProjectID        string
	PrNumber         int
	SourceBranchName string
	TargetBranchName string
	CommitHash       string
	PrVersion        int
}

// CodeAnalysis is one analysis run; (project, commitHash, prNumber) is the
// cache key (Invariant CA-1).
type CodeAnalysis struct {
	PrNumber         *int
	SourceBranchName *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ID               string
	ProjectID        string
	AnalysisType     AnalysisType
	BranchName       string
	CommitHash       string
	Status           AnalysisStatus
	PrVersion        int
	Issues           []*CodeAnalysisIssue
}

// CodeAnalysisIssue is a single finding, owned by its CodeAnalysis.
type CodeAnalysisIssue struct {
	LineNumber              *int
	SuggestedFixDescription *string
	ID                      string
	CodeAnalysisID          string
	FilePath                string
	Severity                Severity
	Reason                  string
	Resolved                bool
}

// AnalysisLock enforces Invariant L-1: at most one unexpired lock per
// (projectID, branchName, analysisType).
type AnalysisLock struct {
	CommitHash *string
	PrNumber   *int
	AcquiredAt time.Time
	ExpiresAt  time.Time
	LockKey    string
	ProjectID  string
	BranchName string
	Type       AnalysisType
}
