package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rostilos/codecrow/internal/store/sqlutil"
)

// BranchRepository owns Branch, BranchIssue, and BranchFile persistence.
// Every mutation that touches a Branch's aggregate counters goes through
// RecomputeAndSave, which reads every owned BranchIssue and recomputes from
// scratch inside one transaction (Design Note DN-2) — callers never apply a
// delta to TotalIssues/severity counters directly.
type BranchRepository struct {
	db *sqlx.DB
}

func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

type branchRow struct {
	LastHealthCheckAt        *time.Time `db:"last_health_check_at"`
	CreatedAt                time.Time  `db:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at"`
	ID                       string     `db:"id"`
	ProjectID                string     `db:"project_id"`
	BranchName               string     `db:"branch_name"`
	CommitHash               string     `db:"commit_hash"`
	LastSuccessfulCommitHash string     `db:"last_successful_commit_hash"`
	HealthStatus             string     `db:"health_status"`
	ConsecutiveFailures      int        `db:"consecutive_failures"`
	TotalIssues              int        `db:"total_issues"`
	HighSeverityCount        int        `db:"high_severity_count"`
	MediumSeverityCount      int        `db:"medium_severity_count"`
	LowSeverityCount         int        `db:"low_severity_count"`
	InfoSeverityCount        int        `db:"info_severity_count"`
	ResolvedCount            int        `db:"resolved_count"`
}

func (row *branchRow) toModel() *Branch {
	return &Branch{
		ID:                       row.ID,
		ProjectID:                row.ProjectID,
		BranchName:               row.BranchName,
		CommitHash:               row.CommitHash,
		LastSuccessfulCommitHash: row.LastSuccessfulCommitHash,
		HealthStatus:             HealthStatus(row.HealthStatus),
		ConsecutiveFailures:      row.ConsecutiveFailures,
		LastHealthCheckAt:        row.LastHealthCheckAt,
		TotalIssues:              row.TotalIssues,
		HighSeverityCount:        row.HighSeverityCount,
		MediumSeverityCount:      row.MediumSeverityCount,
		LowSeverityCount:         row.LowSeverityCount,
		InfoSeverityCount:        row.InfoSeverityCount,
		ResolvedCount:            row.ResolvedCount,
		CreatedAt:                row.CreatedAt,
		UpdatedAt:                row.UpdatedAt,
	}
}

// GetByName returns the branch for (projectID, branchName), or ErrNotFound.
func (r *BranchRepository) GetByName(ctx context.Context, projectID, branchName string) (*Branch, error) {
	var row branchRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM branch WHERE project_id = $1 AND branch_name = $2`, projectID, branchName)
	if err != nil {
		return nil, wrapDBErr("get branch", branchName, err)
	}
	return row.toModel(), nil
}

// UpsertHead creates the branch row if absent and updates its head commit,
// leaving counters untouched — counter mutation is RecomputeAndSave's job
// alone.
func (r *BranchRepository) UpsertHead(ctx context.Context, tx *sqlx.Tx, projectID, branchName, commitHash string) (*Branch, error) {
	var row branchRow
	err := tx.GetContext(ctx, &row, `
		INSERT INTO branch (project_id, branch_name, commit_hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (project_id, branch_name) DO UPDATE
		  SET commit_hash = EXCLUDED.commit_hash, updated_at = now()
		RETURNING *
	`, projectID, branchName, commitHash)
	if err != nil {
		return nil, wrapDBErr("upsert branch head", branchName, err)
	}
	return row.toModel(), nil
}

// ListIssues returns every BranchIssue owned by branchID.
func (r *BranchRepository) ListIssues(ctx context.Context, q sqlx.QueryerContext, branchID string) ([]*BranchIssue, error) {
	var rows []branchIssueRow
	err := sqlx.SelectContext(ctx, q, &rows, `SELECT * FROM branch_issue WHERE branch_id = $1`, branchID)
	if err != nil {
		return nil, wrapDBErr("list branch issues", branchID, err)
	}
	issues := make([]*BranchIssue, 0, len(rows))
	for _, row := range rows {
		issues = append(issues, row.toModel())
	}
	return issues, nil
}

// UpsertIssue inserts or updates a BranchIssue keyed by
// (branchID, codeAnalysisIssueID) (Invariant BI-1). It calls Validate
// (Invariant BI-2) first, since the database constraint layer does not
// encode the resolved-implies-attributed rule.
func (r *BranchRepository) UpsertIssue(ctx context.Context, tx *sqlx.Tx, bi *BranchIssue) (*BranchIssue, error) {
	if err := bi.Validate(); err != nil {
		return nil, err
	}
	var row branchIssueRow
	err := tx.GetContext(ctx, &row, `
		INSERT INTO branch_issue (
			branch_id, code_analysis_issue_id, severity, resolved,
			first_detected_pr_number, resolved_in_pr_number, resolved_in_commit_hash,
			resolved_description, resolved_at, resolved_by, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (branch_id, code_analysis_issue_id) DO UPDATE
		  SET severity = EXCLUDED.severity,
		      resolved = EXCLUDED.resolved,
		      resolved_in_pr_number = EXCLUDED.resolved_in_pr_number,
		      resolved_in_commit_hash = EXCLUDED.resolved_in_commit_hash,
		      resolved_description = EXCLUDED.resolved_description,
		      resolved_at = EXCLUDED.resolved_at,
		      resolved_by = EXCLUDED.resolved_by,
		      updated_at = now()
		RETURNING *
	`,
		bi.BranchID, bi.CodeAnalysisIssueID, string(bi.Severity), bi.Resolved,
		sqlutil.NullInt(bi.FirstDetectedPrNumber), sqlutil.NullInt(bi.ResolvedInPrNumber),
		sqlutil.NullString(bi.ResolvedInCommitHash), sqlutil.NullString(bi.ResolvedDescription),
		sqlutil.NullTime(bi.ResolvedAt), sqlutil.NullString(bi.ResolvedBy),
	)
	if err != nil {
		return nil, wrapDBErr("upsert branch issue", bi.CodeAnalysisIssueID, err)
	}
	return row.toModel(), nil
}

// RecomputeAndSave reloads every BranchIssue owned by branchID inside tx,
// recomputes the Branch's aggregate counters (Invariant B-1), and persists
// both the counters and the branch's updated_at in the same transaction.
func (r *BranchRepository) RecomputeAndSave(ctx context.Context, tx *sqlx.Tx, branchID string) (*Branch, error) {
	var row branchRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM branch WHERE id = $1 FOR UPDATE`, branchID); err != nil {
		return nil, wrapDBErr("recompute counters: load branch", branchID, err)
	}
	branch := row.toModel()

	issues, err := r.ListIssues(ctx, tx, branchID)
	if err != nil {
		return nil, err
	}
	branch.RecomputeCounters(issues)

	_, err = tx.ExecContext(ctx, `
		UPDATE branch SET
			total_issues = $1, high_severity_count = $2, medium_severity_count = $3,
			low_severity_count = $4, info_severity_count = $5, resolved_count = $6,
			updated_at = now()
		WHERE id = $7
	`, branch.TotalIssues, branch.HighSeverityCount, branch.MediumSeverityCount,
		branch.LowSeverityCount, branch.InfoSeverityCount, branch.ResolvedCount, branchID)
	if err != nil {
		return nil, wrapDBErr("recompute counters: save branch", branchID, err)
	}
	return branch, nil
}

// SetHealth updates health_status/consecutive_failures/
// last_health_check_at, independent of the counter recompute path.
func (r *BranchRepository) SetHealth(ctx context.Context, branchID string, status HealthStatus, consecutiveFailures int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE branch SET health_status = $1, consecutive_failures = $2, last_health_check_at = now(), updated_at = now()
		WHERE id = $3
	`, string(status), consecutiveFailures, branchID)
	if err != nil {
		return wrapDBErr("set branch health", branchID, err)
	}
	return nil
}

type branchIssueRow struct {
	ResolvedAt           *time.Time `db:"resolved_at"`
	ResolvedInCommitHash *string    `db:"resolved_in_commit_hash"`
	ResolvedInPrNumber   *int       `db:"resolved_in_pr_number"`
	ResolvedDescription  *string    `db:"resolved_description"`
	ResolvedBy           *string    `db:"resolved_by"`
	FirstDetectedPrNumber *int      `db:"first_detected_pr_number"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
	ID                   string     `db:"id"`
	BranchID             string     `db:"branch_id"`
	CodeAnalysisIssueID  string     `db:"code_analysis_issue_id"`
	Severity             string     `db:"severity"`
	Resolved             bool       `db:"resolved"`
}

func (row *branchIssueRow) toModel() *BranchIssue {
	return &BranchIssue{
		ID:                    row.ID,
		BranchID:              row.BranchID,
		CodeAnalysisIssueID:   row.CodeAnalysisIssueID,
		Severity:              Severity(row.Severity),
		FirstDetectedPrNumber: row.FirstDetectedPrNumber,
		Resolved:              row.Resolved,
		ResolvedAt:            row.ResolvedAt,
		ResolvedInCommitHash:  row.ResolvedInCommitHash,
		ResolvedInPrNumber:    row.ResolvedInPrNumber,
		ResolvedDescription:   row.ResolvedDescription,
		ResolvedBy:            row.ResolvedBy,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
}

// BranchFileRepository persists per-file unresolved issue counts.
type BranchFileRepository struct {
	db *sqlx.DB
}

func NewBranchFileRepository(db *sqlx.DB) *BranchFileRepository {
	return &BranchFileRepository{db: db}
}

// Upsert sets the issue count for (projectID, branchName, filePath).
func (r *BranchFileRepository) Upsert(ctx context.Context, tx *sqlx.Tx, projectID, branchName, filePath string, issueCount int) (*BranchFile, error) {
	var bf BranchFile
	err := tx.GetContext(ctx, &bf, `
		INSERT INTO branch_file (project_id, branch_name, file_path, issue_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, branch_name, file_path) DO UPDATE
		  SET issue_count = EXCLUDED.issue_count
		RETURNING id, project_id, branch_name, file_path, issue_count
	`, projectID, branchName, filePath, issueCount)
	if err != nil {
		return nil, wrapDBErr("upsert branch file", filePath, err)
	}
	return &bf, nil
}

// Delete removes the branch_file row, used when a file no longer has an
// entry worth tracking (e.g. deleted from the branch and zero issues).
func (r *BranchFileRepository) Delete(ctx context.Context, tx *sqlx.Tx, projectID, branchName, filePath string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM branch_file WHERE project_id = $1 AND branch_name = $2 AND file_path = $3
	`, projectID, branchName, filePath)
	if err != nil {
		return wrapDBErr("delete branch file", filePath, err)
	}
	return nil
}
