package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// PullRequestRepository persists PullRequest rows, unique per
// (projectID, prNumber); prVersion increments on each re-analysis of a new
// head commit for the same PR (spec §3).
type PullRequestRepository struct {
	db *sqlx.DB
}

func NewPullRequestRepository(db *sqlx.DB) *PullRequestRepository {
	return &PullRequestRepository{db: db}
}

type pullRequestRow struct {
	ID               string `db:"id"`
	ProjectID        string `db:"project_id"`
	PrNumber         int    `db:"pr_number"`
	SourceBranchName string `db:"source_branch_name"`
	TargetBranchName string `db:"target_branch_name"`
	CommitHash       string `db:"commit_hash"`
	PrVersion        int    `db:"pr_version"`
}

func (row *pullRequestRow) toModel() *PullRequest {
	return &PullRequest{
		ID:               row.ID,
		ProjectID:        row.ProjectID,
		PrNumber:         row.PrNumber,
		SourceBranchName: row.SourceBranchName,
		TargetBranchName: row.TargetBranchName,
		CommitHash:       row.CommitHash,
		PrVersion:        row.PrVersion,
	}
}

// Upsert creates the PR row on first sight, or bumps pr_version and updates
// commit_hash when the head commit changed; re-posting the same commit hash
// is a no-op version bump (pr_version unchanged).
func (r *PullRequestRepository) Upsert(ctx context.Context, projectID string, prNumber int, sourceBranch, targetBranch, commitHash string) (*PullRequest, error) {
	var row pullRequestRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO pull_request (project_id, pr_number, source_branch_name, target_branch_name, commit_hash, pr_version)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (project_id, pr_number) DO UPDATE
		  SET source_branch_name = EXCLUDED.source_branch_name,
		      target_branch_name = EXCLUDED.target_branch_name,
		      pr_version = CASE WHEN pull_request.commit_hash = EXCLUDED.commit_hash
		                        THEN pull_request.pr_version
		                        ELSE pull_request.pr_version + 1 END,
		      commit_hash = EXCLUDED.commit_hash
		RETURNING *
	`, projectID, prNumber, sourceBranch, targetBranch, commitHash)
	if err != nil {
		return nil, wrapDBErr("upsert pull request", sourceBranch, err)
	}
	return row.toModel(), nil
}

// GetByNumber returns the PR row for (projectID, prNumber), or ErrNotFound.
func (r *PullRequestRepository) GetByNumber(ctx context.Context, projectID string, prNumber int) (*PullRequest, error) {
	var row pullRequestRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM pull_request WHERE project_id = $1 AND pr_number = $2`, projectID, prNumber)
	if err != nil {
		return nil, wrapDBErrf("get pull request", "pr#%d", prNumber)(err)
	}
	return row.toModel(), nil
}
