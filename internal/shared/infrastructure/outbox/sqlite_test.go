package outbox

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newSQLiteOutbox(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	return NewSQLiteRepository(db), db
}

func TestSQLiteRepository_SaveAndDue(t *testing.T) {
	repo, _ := newSQLiteOutbox(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := newTestMessage(t)
	older.CreatedAt = now.Add(-time.Minute)
	newer := newTestMessage(t)
	require.NoError(t, repo.Save(ctx, newer))
	require.NoError(t, repo.Save(ctx, older))
	assert.NotZero(t, older.ID)

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, older.ID, due[0].ID)
	assert.Equal(t, older.EventID, due[0].EventID)
	assert.Equal(t, older.UserID, due[0].UserID)
	assert.Equal(t, keyChanged, due[0].RoutingKey)
	assert.JSONEq(t, string(older.Payload), string(due[0].Payload))
	assert.WithinDuration(t, older.CreatedAt, due[0].CreatedAt, time.Microsecond)

	due, err = repo.Due(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSQLiteRepository_Lifecycle(t *testing.T) {
	repo, _ := newSQLiteOutbox(t)
	ctx := context.Background()
	now := time.Now().UTC()

	msg := newTestMessage(t)
	require.NoError(t, repo.Save(ctx, msg))

	require.NoError(t, repo.Reschedule(ctx, msg.ID, "broker down", now.Add(time.Minute)))
	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.Due(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, "broker down", due[0].LastError)
	require.NotNil(t, due[0].NextAttemptAt)

	require.NoError(t, repo.Bury(ctx, msg.ID, "broker still down", now))
	due, err = repo.Due(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLiteRepository_PublishAndPurge(t *testing.T) {
	repo, _ := newSQLiteOutbox(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old, recent := newTestMessage(t), newTestMessage(t)
	require.NoError(t, repo.Save(ctx, old))
	require.NoError(t, repo.Save(ctx, recent))
	require.NoError(t, repo.MarkPublished(ctx, old.ID, now.AddDate(0, 0, -30)))
	require.NoError(t, repo.MarkPublished(ctx, recent.ID, now))

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	purged, err := repo.Purge(ctx, now.AddDate(0, 0, -14))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestSQLiteRepository_UnknownMessage(t *testing.T) {
	repo, _ := newSQLiteOutbox(t)

	err := repo.MarkPublished(context.Background(), 404, time.Now())
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestSQLiteRepository_SaveJoinsUnitOfWork(t *testing.T) {
	repo, db := newSQLiteOutbox(t)
	uow := sharedPersistence.NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, repo.Save(txCtx, newTestMessage(t)))
	require.NoError(t, uow.Rollback(txCtx))

	due, err := repo.Due(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLiteRepository_FeedsProcessor(t *testing.T) {
	repo, _ := newSQLiteOutbox(t)
	ctx := context.Background()
	pub := &stubPublisher{}
	p := NewProcessor(repo, pub, DefaultProcessorConfig(), nil)

	require.NoError(t, repo.Save(ctx, newTestMessage(t)))
	n, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	due, err := repo.Due(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
