package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	ierrors "github.com/rostilos/codecrow/internal/errors"
)

// DB wraps a sqlx connection pool over pgx's database/sql driver, matching
// the database/sql-based repository convention used throughout this
// corpus's persistence layer (pgx for the driver, sqlx for struct scans).
type DB struct {
	conn   *sqlx.DB
	logger *zap.Logger
}

// Open connects to Postgres via pgx's stdlib adapter.
func Open(dsn string, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, ierrors.Wrap("open database", "store", "", err)
	}
	conn := sqlx.NewDb(sqlDB, "pgx")
	if err := conn.Ping(); err != nil {
		return nil, ierrors.Wrap("ping database", "store", "", err)
	}
	return &DB{conn: conn, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the raw handle for repositories constructed outside this
// package (cmd/codecrowd builds every repository from it).
func (d *DB) Conn() *sqlx.DB { return d.conn }

// SQLDB exposes the underlying database/sql handle, for callers (goose
// migrations) that don't need sqlx's struct-scanning layer.
func (d *DB) SQLDB() *sql.DB { return d.conn.DB }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Every aggregate mutation in AnalysisStore
// (branch counters + issues, resolved-issue flips) goes through this helper
// so readers observe either the pre- or post-state (Invariant B-1).
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return ierrors.Wrap("begin transaction", "store", "", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}

func notFound(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

func wrapDBErr(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	return ierrors.Wrap(op, "store", resource, notFound(err))
}

func wrapDBErrf(op, resourceFmt string, args ...interface{}) func(error) error {
	resource := fmt.Sprintf(resourceFmt, args...)
	return func(err error) error { return wrapDBErr(op, resource, err) }
}
