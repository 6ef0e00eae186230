package application_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/felixgeelhaar/reformer/internal/billing/infrastructure/persistence"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const (
	priceGuide = "price_guide_a"
	pricePlan  = "price_plan_prenatal"
	priceCore  = "price_core"
)

// mockGateway is a testify mock of the payment processor.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FetchSubscription(ctx context.Context, subscriptionID string) (domain.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).(domain.ProviderSubscription), args.Error(1)
}

func (m *mockGateway) FindOrCreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req application.CheckoutSessionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

// memoryCache stores JSON like the real backends so type round-trips are exercised.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	hits    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// billingStore is a migrated in-memory SQLite database with the billing repositories.
type billingStore struct {
	db            *sql.DB
	subscriptions *persistence.SQLiteSubscriptionRepository
	purchases     *persistence.SQLitePurchaseRepository
	ledger        *persistence.SQLiteEventLedger
	catalog       *persistence.SQLiteCatalogRepository
	uow           *sharedPersistence.SQLiteUnitOfWork

	guideProductID uuid.UUID
	planProductID  uuid.UUID
	coreProductID  uuid.UUID
}

func newBillingStore(t *testing.T) *billingStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	s := &billingStore{
		db:             db,
		subscriptions:  persistence.NewSQLiteSubscriptionRepository(db),
		purchases:      persistence.NewSQLitePurchaseRepository(db),
		ledger:         persistence.NewSQLiteEventLedger(db),
		catalog:        persistence.NewSQLiteCatalogRepository(db),
		uow:            sharedPersistence.NewSQLiteUnitOfWork(db),
		guideProductID: uuid.New(),
		planProductID:  uuid.New(),
		coreProductID:  uuid.New(),
	}

	_, err = db.Exec(`INSERT INTO products (id, title, price_cents, payment_type, stripe_price_id, active, created_at) VALUES
		(?, 'Guide A', 1500, 'payment', ?, 1, ?),
		(?, 'Plan Prenatal', 2900, 'subscription', ?, 1, ?),
		(?, 'Core Membership', 1900, 'subscription', ?, 1, ?)`,
		s.guideProductID.String(), priceGuide, sqliteNow(0),
		s.planProductID.String(), pricePlan, sqliteNow(0),
		s.coreProductID.String(), priceCore, sqliteNow(0))
	require.NoError(t, err)
	return s
}

// addVideo inserts a published video. A nil product makes it legacy content.
func (s *billingStore) addVideo(t *testing.T, productID *uuid.UUID, playbackID string, age time.Duration) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var product sql.NullString
	if productID != nil {
		product = sql.NullString{String: productID.String(), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO videos (id, title, product_id, playback_id, published, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		id.String(), "Video "+playbackID, product, playbackID, sqliteNow(age))
	require.NoError(t, err)
	return id
}

// addGuide inserts a published guide. A nil product makes it legacy content.
func (s *billingStore) addGuide(t *testing.T, productID *uuid.UUID, title string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var product sql.NullString
	if productID != nil {
		product = sql.NullString{String: productID.String(), Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO guides (id, title, product_id, file_url, published, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		id.String(), title, product, "https://files.test/"+id.String()+".pdf", sqliteNow(0))
	require.NoError(t, err)
	return id
}

// unpublish hides a video or guide without deleting it.
func (s *billingStore) unpublish(t *testing.T, table string, id uuid.UUID) {
	t.Helper()
	_, err := s.db.Exec(`UPDATE `+table+` SET published = 0 WHERE id = ?`, id.String())
	require.NoError(t, err)
}

func (s *billingStore) grantSubscription(t *testing.T, userID uuid.UUID, subscriptionID, priceID string, status domain.SubscriptionStatus) {
	t.Helper()
	_, err := s.subscriptions.InsertIfAbsent(context.Background(),
		domain.NewSubscription(userID, "cus_"+subscriptionID, subscriptionID, priceID, status))
	require.NoError(t, err)
}

func (s *billingStore) grantPurchase(t *testing.T, userID uuid.UUID, priceID string) {
	t.Helper()
	_, err := s.purchases.InsertIfAbsent(context.Background(),
		domain.NewOneTimePurchase(userID, priceID, "cs_"+priceID))
	require.NoError(t, err)
}

func (s *billingStore) accessCache(cache application.Cache) *application.AccessCache {
	return application.NewAccessCache(cache, s.subscriptions, s.purchases, s.catalog, 0, 0, nil)
}

func sqliteNow(age time.Duration) string {
	return time.Now().Add(-age).UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

func epoch(t time.Time) *int64 {
	v := t.Unix()
	return &v
}
