package store

import "errors"

var (
	// ErrNoVcsConnection is returned by Project.EffectiveVcsConnection when
	// the project has no VCS binding configured.
	ErrNoVcsConnection = errors.New("project has no effective vcs connection")

	// ErrUnattributedResolution is Invariant BI-2's violation: a BranchIssue
	// marked resolved without a commit or PR attribution.
	ErrUnattributedResolution = errors.New("resolved branch issue missing commit/pr attribution")

	// ErrNotFound is returned by repository Get/Find methods when no row
	// matches.
	ErrNotFound = errors.New("record not found")

	// ErrLockNotAcquired signals a failed conditional insert on
	// analysis_lock due to an existing unexpired row (Invariant L-1).
	ErrLockNotAcquired = errors.New("lock not acquired: active lock exists")
)
