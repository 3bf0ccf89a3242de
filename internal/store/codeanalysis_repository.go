package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rostilos/codecrow/internal/store/sqlutil"
)

// CodeAnalysisRepository persists CodeAnalysis and its owned
// CodeAnalysisIssue rows. FindCached implements the cache-key lookup of
// Invariant CA-1: at most one ACCEPTED analysis per (project, commitHash,
// prNumber), enforced by the code_analysis_accepted_key partial unique
// index in the 00001_init migration.
type CodeAnalysisRepository struct {
	db *sqlx.DB
}

func NewCodeAnalysisRepository(db *sqlx.DB) *CodeAnalysisRepository {
	return &CodeAnalysisRepository{db: db}
}

type codeAnalysisRow struct {
	PrNumber         *int      `db:"pr_number"`
	SourceBranchName *string   `db:"source_branch_name"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
	ID               string    `db:"id"`
	ProjectID        string    `db:"project_id"`
	AnalysisType     string    `db:"analysis_type"`
	BranchName       string    `db:"branch_name"`
	CommitHash       string    `db:"commit_hash"`
	Status           string    `db:"status"`
	PrVersion        int       `db:"pr_version"`
}

func (row *codeAnalysisRow) toModel() *CodeAnalysis {
	return &CodeAnalysis{
		ID:               row.ID,
		ProjectID:        row.ProjectID,
		AnalysisType:     AnalysisType(row.AnalysisType),
		PrNumber:         row.PrNumber,
		BranchName:       row.BranchName,
		SourceBranchName: row.SourceBranchName,
		CommitHash:       row.CommitHash,
		PrVersion:        row.PrVersion,
		Status:           AnalysisStatus(row.Status),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

// FindCached returns the ACCEPTED CodeAnalysis (with its issues loaded) for
// (projectID, commitHash, prNumber), or ErrNotFound if no such row exists —
// the caller treats ErrNotFound as "run the pipeline", and a hit as
// "return the cached result" (spec §4.5 step 4).
func (r *CodeAnalysisRepository) FindCached(ctx context.Context, projectID, commitHash string, prNumber *int) (*CodeAnalysis, error) {
	var row codeAnalysisRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM code_analysis
		WHERE project_id = $1 AND commit_hash = $2
		  AND COALESCE(pr_number, -1) = COALESCE($3, -1)
		  AND status = 'ACCEPTED'
	`, projectID, commitHash, prNumber)
	if err != nil {
		return nil, wrapDBErr("find cached analysis", commitHash, err)
	}
	ca := row.toModel()
	issues, err := r.listIssues(ctx, r.db, ca.ID)
	if err != nil {
		return nil, err
	}
	ca.Issues = issues
	return ca, nil
}

// ListForBranch returns up to limit prior ACCEPTED CodeAnalysis rows for a
// branch, newest first, each with its issues loaded; PrAnalysisProcessor
// passes them to the AI request as prior analyses (spec §4.5 step 5).
func (r *CodeAnalysisRepository) ListForBranch(ctx context.Context, projectID, branchName string, limit int) ([]*CodeAnalysis, error) {
	var rows []codeAnalysisRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM code_analysis
		WHERE project_id = $1 AND branch_name = $2 AND status = 'ACCEPTED'
		ORDER BY created_at DESC
		LIMIT $3
	`, projectID, branchName, limit)
	if err != nil {
		return nil, wrapDBErr("list analyses for branch", branchName, err)
	}
	out := make([]*CodeAnalysis, 0, len(rows))
	for _, row := range rows {
		ca := row.toModel()
		issues, err := r.listIssues(ctx, r.db, ca.ID)
		if err != nil {
			return nil, err
		}
		ca.Issues = issues
		out = append(out, ca)
	}
	return out, nil
}

// Create inserts a new CodeAnalysis row with the status ca carries.
func (r *CodeAnalysisRepository) Create(ctx context.Context, tx *sqlx.Tx, ca *CodeAnalysis) (*CodeAnalysis, error) {
	q := queryer(r.db, tx)
	var row codeAnalysisRow
	err := sqlx.GetContext(ctx, q, &row, `
		INSERT INTO code_analysis (project_id, analysis_type, pr_number, branch_name, source_branch_name, commit_hash, pr_version, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, ca.ProjectID, string(ca.AnalysisType), sqlutil.NullInt(ca.PrNumber), ca.BranchName,
		sqlutil.NullString(ca.SourceBranchName), ca.CommitHash, ca.PrVersion, string(ca.Status))
	if err != nil {
		return nil, wrapDBErr("create code analysis", ca.BranchName, err)
	}
	return row.toModel(), nil
}

// SetStatus transitions a CodeAnalysis's status (e.g. RUNNING -> ACCEPTED
// or -> FAILED).
func (r *CodeAnalysisRepository) SetStatus(ctx context.Context, tx *sqlx.Tx, id string, status AnalysisStatus) error {
	q := queryer(r.db, tx)
	_, err := q.ExecContext(ctx, `UPDATE code_analysis SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return wrapDBErr("set analysis status", id, err)
	}
	return nil
}

type codeAnalysisIssueRow struct {
	LineNumber              *int    `db:"line_number"`
	SuggestedFixDescription *string `db:"suggested_fix_description"`
	ID                      string  `db:"id"`
	CodeAnalysisID          string  `db:"code_analysis_id"`
	FilePath                string  `db:"file_path"`
	Severity                string  `db:"severity"`
	Reason                  string  `db:"reason"`
	Resolved                bool    `db:"resolved"`
}

func (row *codeAnalysisIssueRow) toModel() *CodeAnalysisIssue {
	return &CodeAnalysisIssue{
		ID:                      row.ID,
		CodeAnalysisID:          row.CodeAnalysisID,
		FilePath:                row.FilePath,
		LineNumber:              row.LineNumber,
		Severity:                Severity(row.Severity),
		Reason:                  row.Reason,
		SuggestedFixDescription: row.SuggestedFixDescription,
		Resolved:                row.Resolved,
	}
}

func (r *CodeAnalysisRepository) listIssues(ctx context.Context, q sqlx.QueryerContext, codeAnalysisID string) ([]*CodeAnalysisIssue, error) {
	var rows []codeAnalysisIssueRow
	err := sqlx.SelectContext(ctx, q, &rows, `SELECT * FROM code_analysis_issue WHERE code_analysis_id = $1`, codeAnalysisID)
	if err != nil {
		return nil, wrapDBErr("list analysis issues", codeAnalysisID, err)
	}
	out := make([]*CodeAnalysisIssue, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// InsertIssues bulk-inserts the findings belonging to a CodeAnalysis. tx
// may be nil, in which case each insert runs directly against the pool.
func (r *CodeAnalysisRepository) InsertIssues(ctx context.Context, tx *sqlx.Tx, codeAnalysisID string, issues []*CodeAnalysisIssue) ([]*CodeAnalysisIssue, error) {
	q := queryer(r.db, tx)
	out := make([]*CodeAnalysisIssue, 0, len(issues))
	for _, iss := range issues {
		var row codeAnalysisIssueRow
		err := sqlx.GetContext(ctx, q, &row, `
			INSERT INTO code_analysis_issue (code_analysis_id, file_path, line_number, severity, reason, suggested_fix_description, resolved)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING *
		`, codeAnalysisID, iss.FilePath, sqlutil.NullInt(iss.LineNumber), string(iss.Severity),
			iss.Reason, sqlutil.NullString(iss.SuggestedFixDescription), iss.Resolved)
		if err != nil {
			return nil, wrapDBErr("insert analysis issue", iss.FilePath, err)
		}
		out = append(out, row.toModel())
	}
	return out, nil
}

// MarkIssueResolved flips a CodeAnalysisIssue's resolved flag, used when a
// targeted branch re-analysis (spec §4.6 step 9) confirms a finding no
// longer reproduces. tx may be nil.
func (r *CodeAnalysisRepository) MarkIssueResolved(ctx context.Context, tx *sqlx.Tx, issueID string) error {
	q := queryer(r.db, tx)
	_, err := q.ExecContext(ctx, `UPDATE code_analysis_issue SET resolved = true WHERE id = $1`, issueID)
	if err != nil {
		return wrapDBErr("mark issue resolved", issueID, err)
	}
	return nil
}

// QualifyingIssue pairs a CodeAnalysisIssue with the prNumber of the
// analysis run that produced it, used by BranchAnalysisProcessor to derive
// BranchIssue.firstDetectedPrNumber the first time an issue is mapped onto
// a branch (spec §4.6 step 6).
type QualifyingIssue struct {
	*CodeAnalysisIssue
	OwningPrNumber *int
}

type qualifyingIssueRow struct {
	codeAnalysisIssueRow
	OwningPrNumber *int `db:"owning_pr_number"`
}

// ListQualifyingIssues returns every unresolved CodeAnalysisIssue whose
// filePath is one of filePaths and whose owning CodeAnalysis targets
// targetBranch — either as its branchName or its sourceBranchName (the
// branch-targeting filter shared by spec §4.6 steps 4b and 6, per Design
// Note DN-6).
//
// TODO(DN-6): the branchName-OR-sourceBranchName filter below is carried
// verbatim from spec.md as an open question, not a resolved design — an
// analysis whose sourceBranchName happens to equal a different branch's
// name maps its issues onto both, which can double-map findings across
// unrelated branches that share a name. See DESIGN.md Open Question
// decisions.
func (r *CodeAnalysisRepository) ListQualifyingIssues(ctx context.Context, projectID, targetBranch string, filePaths []string) ([]*QualifyingIssue, error) {
	if len(filePaths) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT cai.*, ca.pr_number AS owning_pr_number
		FROM code_analysis_issue cai
		JOIN code_analysis ca ON ca.id = cai.code_analysis_id
		WHERE ca.project_id = ? AND cai.file_path IN (?)
		  AND (ca.branch_name = ? OR ca.source_branch_name = ?)
		  AND cai.resolved = false
	`, projectID, filePaths, targetBranch, targetBranch)
	if err != nil {
		return nil, wrapDBErr("build qualifying issues query", targetBranch, err)
	}
	query = r.db.Rebind(query)

	var rows []qualifyingIssueRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapDBErr("list qualifying issues", targetBranch, err)
	}

	out := make([]*QualifyingIssue, 0, len(rows))
	for i := range rows {
		out = append(out, &QualifyingIssue{
			CodeAnalysisIssue: rows[i].codeAnalysisIssueRow.toModel(),
			OwningPrNumber:    rows[i].OwningPrNumber,
		})
	}
	return out, nil
}

// queryer returns tx if non-nil, otherwise the pool, so read helpers can be
// shared between transactional and non-transactional callers.
func queryer(db *sqlx.DB, tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}
