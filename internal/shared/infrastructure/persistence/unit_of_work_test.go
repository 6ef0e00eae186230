package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func ledgerDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "uow.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE processed_events (event_id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return db
}

func countEvents(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM processed_events`).Scan(&n))
	return n
}

func record(ctx context.Context, db *sql.DB, id string) error {
	_, err := SQLiteExecutorFor(ctx, db).ExecContext(ctx, `INSERT INTO processed_events (event_id) VALUES (?)`, id)
	return err
}

func TestSQLiteUnitOfWork_CommitPersists(t *testing.T) {
	db := ledgerDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	assert.True(t, InSQLiteTx(txCtx))
	require.NoError(t, record(txCtx, db, "evt_1"))
	require.NoError(t, uow.Commit(txCtx))

	assert.Equal(t, 1, countEvents(t, db))
}

func TestSQLiteUnitOfWork_RollbackDiscards(t *testing.T) {
	db := ledgerDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, record(txCtx, db, "evt_1"))
	require.NoError(t, uow.Rollback(txCtx))

	assert.Equal(t, 0, countEvents(t, db))
}

func TestSQLiteUnitOfWork_NestedJoinsOuter(t *testing.T) {
	db := ledgerDB(t)
	uow := NewSQLiteUnitOfWork(db)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	require.NoError(t, record(inner, db, "evt_inner"))
	// The inner commit is a no-op; the outer rollback discards both writes.
	require.NoError(t, uow.Commit(inner))
	require.NoError(t, record(outer, db, "evt_outer"))
	require.NoError(t, uow.Rollback(outer))

	assert.Equal(t, 0, countEvents(t, db))
}

func TestSQLiteExecutorFor_WithoutTransactionUsesDB(t *testing.T) {
	db := ledgerDB(t)
	ctx := context.Background()

	assert.False(t, InSQLiteTx(ctx))
	assert.Same(t, db, SQLiteExecutorFor(ctx, db))
	require.NoError(t, record(ctx, db, "evt_1"))
	assert.Equal(t, 1, countEvents(t, db))
}

func TestUnitOfWork_WithoutBegin(t *testing.T) {
	uow := NewSQLiteUnitOfWork(ledgerDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, uow.Commit(ctx), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(ctx), ErrNoTransaction)
}

// fakeTx stubs the two pgx.Tx methods the unit of work calls.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolledBack = true; return nil }

func TestPostgresUnitOfWork_OwnershipAndExecutor(t *testing.T) {
	tx := &fakeTx{}
	uow := &PostgresUnitOfWork{txUnit[pgx.Tx]{
		begin:    func(context.Context) (pgx.Tx, error) { return tx, nil },
		commit:   func(ctx context.Context, tx pgx.Tx) error { return tx.Commit(ctx) },
		rollback: func(ctx context.Context, tx pgx.Tx) error { return tx.Rollback(ctx) },
	}}

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	assert.Same(t, tx, Executor(inner, nil))

	require.NoError(t, uow.Rollback(inner))
	assert.False(t, tx.rolledBack)

	require.NoError(t, uow.Commit(outer))
	assert.True(t, tx.committed)
}

func TestPostgresUnitOfWork_BeginError(t *testing.T) {
	uow := &PostgresUnitOfWork{txUnit[pgx.Tx]{
		begin: func(context.Context) (pgx.Tx, error) { return nil, errors.New("pool closed") },
	}}

	_, err := uow.Begin(context.Background())
	assert.EqualError(t, err, "pool closed")
}

func TestAmbientTransactionsAreSeparatedByType(t *testing.T) {
	ctx := attach[pgx.Tx](context.Background(), &fakeTx{}, true)
	assert.False(t, InSQLiteTx(ctx))
}
