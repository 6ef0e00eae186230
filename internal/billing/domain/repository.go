package domain

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionRepository persists subscriptions. Writes are keyed on natural
// keys so redelivered events converge on the same rows.
type SubscriptionRepository interface {
	// InsertIfAbsent stores the row unless one exists for (user, external subscription id).
	// It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, sub *Subscription) (bool, error)
	// ApplyPatch updates every row with the external subscription id and
	// reports whether any row matched.
	ApplyPatch(ctx context.Context, stripeSubscriptionID string, patch SubscriptionPatch) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
	// LatestByUser returns the most recently created subscription or nil.
	LatestByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
}

// PurchaseRepository persists one-time purchases.
type PurchaseRepository interface {
	// InsertIfAbsent stores the row unless one exists for (user, price).
	InsertIfAbsent(ctx context.Context, purchase *OneTimePurchase) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]OneTimePurchase, error)
}

// ProductRepository reads the catalog.
type ProductRepository interface {
	// List returns every product, active or not, ordered by price.
	List(ctx context.Context) ([]Product, error)
}

// ContentRepository reads gated content.
type ContentRepository interface {
	FindVideo(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	FindGuide(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	// ListPublishedVideos returns published videos, newest first.
	ListPublishedVideos(ctx context.Context) ([]ContentItem, error)
}

// EventLedger records processed processor events.
type EventLedger interface {
	// MarkProcessed inserts the event id and reports false when it was already present.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}
