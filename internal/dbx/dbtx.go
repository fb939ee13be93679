// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// and helpers to run functions inside a transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is the unit of work executed by a TxRunner.
type TxFunc func(ctx context.Context, tx DBTX) error

// TxRunner executes a unit of work atomically. Services depend on it instead
// of *sql.DB so the transactional boundary can be replaced in tests.
type TxRunner interface {
	// Conn returns a non-transactional handle for plain reads.
	Conn() DBTX
	// RunInTx runs fn in a single transaction, committing only if fn returns nil.
	RunInTx(ctx context.Context, fn TxFunc) error
}

// SQLRunner is the database/sql implementation of TxRunner.
type SQLRunner struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewSQLRunner wraps db; opts may be nil for the driver default isolation.
func NewSQLRunner(db *sql.DB, opts *sql.TxOptions) *SQLRunner {
	return &SQLRunner{db: db, opts: opts}
}

// Conn returns the underlying pool.
func (r *SQLRunner) Conn() DBTX {
	return r.db
}

// RunInTx delegates to WithTx.
func (r *SQLRunner) RunInTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, r.db, r.opts, fn)
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// A context cancelled before commit rolls the transaction back.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
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
		if cerr := ctx.Err(); cerr != nil {
			_ = tx.Rollback()
			err = cerr
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
