package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rostilos/codecrow/internal/store/sqlutil"
)

// LockRepository persists AnalysisLock rows. Acquire is a conditional insert,
// never a read-then-write: Invariant L-1 (at most one unexpired lock per
// project/branch/type) rests on the lock_key primary key and the
// analysis_lock_active_key unique index in the 00001_init migration, with
// the upsert's expiry check deciding whether an existing row is reclaimed,
// so a concurrent acquire race resolves at the database, not in application
// code.
type LockRepository struct {
	db *sqlx.DB
}

func NewLockRepository(db *sqlx.DB) *LockRepository {
	return &LockRepository{db: db}
}

const lockUpsertQuery = `
INSERT INTO analysis_lock (lock_key, project_id, branch_name, type, commit_hash, pr_number, acquired_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
ON CONFLICT (lock_key) DO UPDATE
  SET acquired_at = EXCLUDED.acquired_at,
      expires_at  = EXCLUDED.expires_at,
      commit_hash = EXCLUDED.commit_hash,
      pr_number   = EXCLUDED.pr_number
  WHERE analysis_lock.expires_at <= now()
RETURNING acquired_at, expires_at
`

// Acquire attempts to insert a lock row for (projectID, branchName, type).
// If an unexpired row with the same lockKey already exists and hasn't
// expired, the conditional update is skipped by the WHERE clause, no row is
// returned, and Acquire returns ErrLockNotAcquired. This
// also transparently reclaims an expired lock in the same round trip,
// avoiding the separate sweep most callers would otherwise need before
// acquiring.
func (r *LockRepository) Acquire(ctx context.Context, lockKey, projectID, branchName string, lockType AnalysisType, commitHash *string, prNumber *int, ttl time.Duration) (*AnalysisLock, error) {
	row := r.db.QueryRowxContext(ctx, lockUpsertQuery,
		lockKey, projectID, branchName, string(lockType),
		sqlutil.NullString(commitHash), sqlutil.NullInt(prNumber),
		time.Now().Add(ttl),
	)

	var acquiredAt, expiresAt time.Time
	if err := row.Scan(&acquiredAt, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLockNotAcquired
		}
		return nil, wrapDBErr("acquire lock", lockKey, err)
	}

	return &AnalysisLock{
		LockKey:    lockKey,
		ProjectID:  projectID,
		BranchName: branchName,
		Type:       lockType,
		CommitHash: commitHash,
		PrNumber:   prNumber,
		AcquiredAt: acquiredAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// Release deletes the lock row unconditionally; it is idempotent (deleting a
// nonexistent key is not an error), matching the "release is best-effort"
// framing in spec §4.1 — a crashed worker's lock still expires via TTL.
func (r *LockRepository) Release(ctx context.Context, lockKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM analysis_lock WHERE lock_key = $1`, lockKey)
	if err != nil {
		return wrapDBErr("release lock", lockKey, err)
	}
	return nil
}

// Get returns the current lock row for lockKey, or ErrNotFound.
func (r *LockRepository) Get(ctx context.Context, lockKey string) (*AnalysisLock, error) {
	var row analysisLockRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM analysis_lock WHERE lock_key = $1`, lockKey)
	if err != nil {
		return nil, wrapDBErr("get lock", lockKey, err)
	}
	return row.toModel(), nil
}

// SweepExpired deletes all expired lock rows and returns how many were
// removed, for the periodic janitor invoked by cmd/codecrowd sweep-locks.
func (r *LockRepository) SweepExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_lock WHERE expires_at <= now()`)
	if err != nil {
		return 0, wrapDBErr("sweep expired locks", "*", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBErr("sweep expired locks: rows affected", "*", err)
	}
	return n, nil
}

type analysisLockRow struct {
	AcquiredAt time.Time `db:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at"`
	CommitHash *string   `db:"commit_hash"`
	PrNumber   *int      `db:"pr_number"`
	LockKey    string    `db:"lock_key"`
	ProjectID  string    `db:"project_id"`
	BranchName string    `db:"branch_name"`
	Type       string    `db:"type"`
}

func (row *analysisLockRow) toModel() *AnalysisLock {
	return &AnalysisLock{
		LockKey:    row.LockKey,
		ProjectID:  row.ProjectID,
		BranchName: row.BranchName,
		Type:       AnalysisType(row.Type),
		CommitHash: row.CommitHash,
		PrNumber:   row.PrNumber,
		AcquiredAt: row.AcquiredAt,
		ExpiresAt:  row.ExpiresAt,
	}
}
