package persistence

import (
	"context"
	"database/sql"
)

// SQLiteExecutor is the query surface shared by *sql.DB and *sql.Tx.
type SQLiteExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteExecutorFor returns the transaction on ctx, otherwise db.
func SQLiteExecutorFor(ctx context.Context, db *sql.DB) SQLiteExecutor {
	if info, ok := ambient[*sql.Tx](ctx); ok {
		return info.tx
	}
	return db
}

// InSQLiteTx reports whether ctx carries a SQLite transaction.
func InSQLiteTx(ctx context.Context) bool {
	_, ok := ambient[*sql.Tx](ctx)
	return ok
}

// SQLiteUnitOfWork runs repository calls in one SQLite transaction.
type SQLiteUnitOfWork struct {
	txUnit[*sql.Tx]
}

// NewSQLiteUnitOfWork creates a unit of work on db.
func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{txUnit[*sql.Tx]{
		begin:    func(ctx context.Context) (*sql.Tx, error) { return db.BeginTx(ctx, nil) },
		commit:   func(_ context.Context, tx *sql.Tx) error { return tx.Commit() },
		rollback: func(_ context.Context, tx *sql.Tx) error { return tx.Rollback() },
	}}
}
