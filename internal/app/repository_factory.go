package app

import (
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	billingPersistence "github.com/felixgeelhaar/reformer/internal/billing/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/reformer/internal/shared/application"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository serves both products and gated content.
type CatalogRepository interface {
	domain.ProductRepository
	domain.ContentRepository
}

// Repositories is the full persistence set for one database driver.
type Repositories struct {
	Subscriptions domain.SubscriptionRepository
	Purchases     domain.PurchaseRepository
	Catalog       CatalogRepository
	Ledger        domain.EventLedger
	Outbox        outbox.Repository
	UnitOfWork    sharedApplication.UnitOfWork
}

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
	}
}

// Build creates every repository for the configured driver. All of them
// share the connection so they join the same unit of work.
func (f *RepositoryFactory) Build() (*Repositories, error) {
	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Subscriptions: billingPersistence.NewPostgresSubscriptionRepository(pool),
			Purchases:     billingPersistence.NewPostgresPurchaseRepository(pool),
			Catalog:       billingPersistence.NewPostgresCatalogRepository(pool),
			Ledger:        billingPersistence.NewPostgresEventLedger(pool),
			Outbox:        outbox.NewPostgresRepository(pool),
			UnitOfWork:    sharedPersistence.NewPostgresUnitOfWork(pool),
		}, nil

	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Subscriptions: billingPersistence.NewSQLiteSubscriptionRepository(db),
			Purchases:     billingPersistence.NewSQLitePurchaseRepository(db),
			Catalog:       billingPersistence.NewSQLiteCatalogRepository(db),
			Ledger:        billingPersistence.NewSQLiteEventLedger(db),
			Outbox:        outbox.NewSQLiteRepository(db),
			UnitOfWork:    sharedPersistence.NewSQLiteUnitOfWork(db),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// Helper methods to get underlying database connections

func (f *RepositoryFactory) getPostgresPool() (*pgxpool.Pool, error) {
	pgConn, ok := f.conn.(interface{ Pool() *pgxpool.Pool })
	if !ok {
		return nil, fmt.Errorf("postgres connection does not expose Pool()")
	}
	return pgConn.Pool(), nil
}

func (f *RepositoryFactory) getSQLiteDB() (*sql.DB, error) {
	sqliteConn, ok := f.conn.(interface{ DB() *sql.DB })
	if !ok {
		return nil, fmt.Errorf("sqlite connection does not expose DB()")
	}
	return sqliteConn.DB(), nil
}

// Driver returns the database driver type.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}
