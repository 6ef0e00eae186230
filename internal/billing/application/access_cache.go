package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

const (
	productsCacheKey     = "products"
	userAccessKeyPrefix  = "user_access:"
	DefaultProductsTTL   = time.Hour
	DefaultUserAccessTTL = 2 * time.Minute
)

// UserAccessKey is the cache key of a user's access summary.
func UserAccessKey(userID uuid.UUID) string {
	return userAccessKeyPrefix + userID.String()
}

// AccessCache is a read-through cache over the catalog and per-user
// entitlements. Staleness is bounded by the TTLs; cache failures fall through
// to the store.
type AccessCache struct {
	cache         Cache
	subscriptions domain.SubscriptionRepository
	purchases     domain.PurchaseRepository
	products      domain.ProductRepository
	productsTTL   time.Duration
	userTTL       time.Duration
	logger        *slog.Logger
}

// NewAccessCache creates the cache. Zero TTLs take the defaults.
func NewAccessCache(
	cache Cache,
	subscriptions domain.SubscriptionRepository,
	purchases domain.PurchaseRepository,
	products domain.ProductRepository,
	productsTTL, userTTL time.Duration,
	logger *slog.Logger,
) *AccessCache {
	if productsTTL <= 0 {
		productsTTL = DefaultProductsTTL
	}
	if userTTL <= 0 {
		userTTL = DefaultUserAccessTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessCache{
		cache:         cache,
		subscriptions: subscriptions,
		purchases:     purchases,
		products:      products,
		productsTTL:   productsTTL,
		userTTL:       userTTL,
		logger:        logger,
	}
}

// Products returns the full catalog ordered by price.
func (c *AccessCache) Products(ctx context.Context) (domain.Catalog, error) {
	var catalog domain.Catalog
	if c.lookup(ctx, productsCacheKey, &catalog) {
		return catalog, nil
	}

	list, err := c.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	catalog = domain.Catalog(list)
	c.store(ctx, productsCacheKey, catalog, c.productsTTL)
	return catalog, nil
}

// Summary returns the user's active subscriptions, completed purchases and
// derived access set.
func (c *AccessCache) Summary(ctx context.Context, userID uuid.UUID) (domain.AccessSummary, error) {
	key := UserAccessKey(userID)

	var summary domain.AccessSummary
	if c.lookup(ctx, key, &summary) {
		return summary, nil
	}

	subs, err := c.subscriptions.ListByUser(ctx, userID)
	if err != nil {
		return domain.AccessSummary{}, fmt.Errorf("list subscriptions: %w", err)
	}
	purchases, err := c.purchases.ListByUser(ctx, userID)
	if err != nil {
		return domain.AccessSummary{}, fmt.Errorf("list purchases: %w", err)
	}

	summary = domain.BuildAccessSummary(userID, subs, purchases)
	c.store(ctx, key, summary, c.userTTL)
	return summary, nil
}

// InvalidateUser drops the user's cached summary.
func (c *AccessCache) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, UserAccessKey(userID))
}

// InvalidateProducts drops the cached catalog.
func (c *AccessCache) InvalidateProducts(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, productsCacheKey)
}

func (c *AccessCache) lookup(ctx context.Context, key string, dest any) bool {
	if c.cache == nil {
		return false
	}
	found, err := c.cache.Get(ctx, key, dest)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	return found
}

func (c *AccessCache) store(ctx context.Context, key string, value any, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
