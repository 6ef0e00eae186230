package app

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/reformer/internal/shared/application"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteFactory(t *testing.T) *RepositoryFactory {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "billing.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db := conn.(interface{ DB() *sql.DB }).DB()
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))
	return NewRepositoryFactory(conn)
}

func TestRepositoryFactory_Driver(t *testing.T) {
	factory := newSQLiteFactory(t)
	assert.Equal(t, database.DriverSQLite, factory.Driver())
}

func TestRepositoryFactory_SQLiteSharesUnitOfWork(t *testing.T) {
	repos, err := newSQLiteFactory(t).Build()
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	// A failed unit of work rolls back both the ledger entry and the row.
	errBoom := errors.New("boom")
	err = sharedApplication.WithUnitOfWork(ctx, repos.UnitOfWork, func(ctx context.Context) error {
		sub := domain.NewSubscription(userID, "cus_1", "sub_1", "price_core", domain.SubscriptionActive)
		if _, err := repos.Subscriptions.InsertIfAbsent(ctx, sub); err != nil {
			return err
		}
		if _, err := repos.Ledger.MarkProcessed(ctx, "evt_1", "checkout.session.completed"); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	latest, err := repos.Subscriptions.LatestByUser(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	fresh, err := repos.Ledger.MarkProcessed(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, fresh)
}

type fakeConnection struct {
	database.Connection
	driver database.Driver
}

func (c fakeConnection) Driver() database.Driver { return c.driver }

func TestRepositoryFactory_RejectsUnknownConnections(t *testing.T) {
	_, err := NewRepositoryFactory(fakeConnection{driver: database.DriverPostgres}).Build()
	assert.ErrorContains(t, err, "does not expose Pool()")

	_, err = NewRepositoryFactory(fakeConnection{driver: "mysql"}).Build()
	assert.ErrorContains(t, err, "unsupported driver")
}
