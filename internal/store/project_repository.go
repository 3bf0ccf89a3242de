package store

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

// ProjectRepository reads Project rows. Projects are provisioned outside
// this spec's scope (spec §2 Non-goals); this repository only supports the
// read path the pipelines need.
type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

type projectRow struct {
	DefaultBranch         *string `db:"default_branch"`
	AiBindingID           *string `db:"ai_binding_id"`
	ID                    string  `db:"id"`
	Name                  string  `db:"name"`
	Namespace             string  `db:"namespace"`
	WorkspaceRef          string  `db:"workspace_ref"`
	VcsProvider           string  `db:"vcs_provider"`
	VcsWorkspace          string  `db:"vcs_workspace"`
	VcsRepoSlug           string  `db:"vcs_repo_slug"`
	VcsAccessToken        string  `db:"vcs_access_token"`
	VcsAPIBaseURL         string  `db:"vcs_api_base_url"`
	RagConfig             []byte  `db:"rag_config"`
	CommentCommandsConfig []byte  `db:"comment_commands_config"`
	UseLocalMcp           bool    `db:"use_local_mcp"`
	PrAnalysisEnabled     bool    `db:"pr_analysis_enabled"`
	BranchAnalysisEnabled bool    `db:"branch_analysis_enabled"`
}

func (row *projectRow) toModel() (*Project, error) {
	p := &Project{
		ID:           row.ID,
		Name:         row.Name,
		Namespace:    row.Namespace,
		WorkspaceRef: row.WorkspaceRef,
		VcsConnection: VcsConnection{
			Provider:    VcsProvider(row.VcsProvider),
			Workspace:   row.VcsWorkspace,
			RepoSlug:    row.VcsRepoSlug,
			AccessToken: row.VcsAccessToken,
			APIBaseURL:  row.VcsAPIBaseURL,
		},
		UseLocalMcp:           row.UseLocalMcp,
		PrAnalysisEnabled:     row.PrAnalysisEnabled,
		BranchAnalysisEnabled: row.BranchAnalysisEnabled,
		DefaultBranch:         row.DefaultBranch,
		AiBindingID:           row.AiBindingID,
	}
	if len(row.RagConfig) > 0 {
		if err := json.Unmarshal(row.RagConfig, &p.RagConfig); err != nil {
			return nil, wrapDBErr("decode rag config", row.ID, err)
		}
	}
	if len(row.CommentCommandsConfig) > 0 {
		if err := json.Unmarshal(row.CommentCommandsConfig, &p.CommentCommandsConfig); err != nil {
			return nil, wrapDBErr("decode comment commands config", row.ID, err)
		}
	}
	return p, nil
}

// Get returns the Project by id, or ErrNotFound.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*Project, error) {
	var row projectRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM project WHERE id = $1`, id); err != nil {
		return nil, wrapDBErr("get project", id, err)
	}
	return row.toModel()
}

// SetDefaultBranch records the project's inferred default branch, set the
// first time a BranchAnalysis pipeline successfully completes against a
// branch with no prior default (spec §4.6 step 10).
func (r *ProjectRepository) SetDefaultBranch(ctx context.Context, id, branchName string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE project SET default_branch = $1 WHERE id = $2 AND default_branch IS NULL`, branchName, id)
	if err != nil {
		return wrapDBErr("set default branch", id, err)
	}
	return nil
}
