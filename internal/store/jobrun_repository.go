package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// JobRunRepository persists job_run audit rows. Its InsertJobRun method
// signature is deliberately plain-arguments (not a struct tied to
// jobrecorder.Entry) so jobrecorder.Sink can be satisfied without an
// import cycle between store and jobrecorder.
type JobRunRepository struct {
	db *sqlx.DB
}

func NewJobRunRepository(db *sqlx.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// InsertJobRun records one audit entry. analysisType and level are passed
// as plain strings; callers pass store.AnalysisType/jobrecorder.Level
// stringified.
func (r *JobRunRepository) InsertJobRun(ctx context.Context, projectID, analysisType, triggerSource, stage, level, message string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_run (project_id, analysis_type, trigger_source, stage, level, message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, projectID, analysisType, triggerSource, stage, level, message)
	if err != nil {
		return wrapDBErr("insert job run", stage, err)
	}
	return nil
}
