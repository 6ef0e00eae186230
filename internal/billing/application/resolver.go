package application

import (
	"context"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// Resolver decides content access from cached entitlements.
type Resolver struct {
	access  *AccessCache
	content domain.ContentRepository
}

// NewResolver creates a resolver.
func NewResolver(access *AccessCache, content domain.ContentRepository) *Resolver {
	return &Resolver{access: access, content: content}
}

// CanAccessVideo resolves access for a video. Unknown and unpublished videos
// return ErrContentNotFound.
func (r *Resolver) CanAccessVideo(ctx context.Context, userID, videoID uuid.UUID) (domain.AccessDecision, *domain.ContentItem, error) {
	return r.resolve(ctx, userID, videoID, r.content.FindVideo)
}

// CanAccessGuide resolves access for a guide or book, with the same rules.
func (r *Resolver) CanAccessGuide(ctx context.Context, userID, guideID uuid.UUID) (domain.AccessDecision, *domain.ContentItem, error) {
	return r.resolve(ctx, userID, guideID, r.content.FindGuide)
}

type contentLookup func(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)

func (r *Resolver) resolve(ctx context.Context, userID, id uuid.UUID, find contentLookup) (domain.AccessDecision, *domain.ContentItem, error) {
	item, err := find(ctx, id)
	if err != nil {
		return domain.AccessDecision{}, nil, err
	}
	if item == nil || !item.Published {
		return domain.AccessDecision{}, nil, domain.ErrContentNotFound
	}
	decision, err := r.Decide(ctx, userID, *item)
	return decision, item, err
}

// Decide applies the access rules to a loaded content item.
func (r *Resolver) Decide(ctx context.Context, userID uuid.UUID, item domain.ContentItem) (domain.AccessDecision, error) {
	summary, err := r.access.Summary(ctx, userID)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	var catalog domain.Catalog
	if !item.IsLegacy() {
		if catalog, err = r.access.Products(ctx); err != nil {
			return domain.AccessDecision{}, err
		}
	}
	return decideItem(summary, catalog, item), nil
}

// VideoWithAccess is a published video annotated for one user.
type VideoWithAccess struct {
	domain.ContentItem
	Accessible bool                `json:"accessible"`
	Reason     domain.DenialReason `json:"reason,omitempty"`
}

// ListVideos returns published videos with the user's access flag.
func (r *Resolver) ListVideos(ctx context.Context, userID uuid.UUID) ([]VideoWithAccess, error) {
	items, err := r.content.ListPublishedVideos(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := r.access.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := r.access.Products(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]VideoWithAccess, 0, len(items))
	for _, item := range items {
		decision := decideItem(summary, catalog, item)
		out = append(out, VideoWithAccess{ContentItem: item, Accessible: decision.Allowed, Reason: decision.Reason})
	}
	return out, nil
}

// decideItem grants a product-linked item on an active subscription or a
// completed purchase for that exact price. A subscription to another product
// does not count. Legacy items accept any active subscription.
func decideItem(summary domain.AccessSummary, catalog domain.Catalog, item domain.ContentItem) domain.AccessDecision {
	if item.IsLegacy() {
		if summary.HasActiveSubscription {
			return domain.AccessDecision{Allowed: true}
		}
		return domain.AccessDecision{Reason: domain.ReasonSubscriptionRequired}
	}

	product, ok := catalog.ByID(*item.ProductID)
	if !ok {
		return domain.AccessDecision{Reason: domain.ReasonPurchaseRequired}
	}

	price := product.StripePriceID
	if summary.HasPriceAccess(price) {
		return domain.AccessDecision{Allowed: true, PriceID: price}
	}
	reason := domain.ReasonSubscriptionRequired
	if product.PaymentType == domain.PaymentTypeOneTime {
		reason = domain.ReasonPurchaseRequired
	}
	return domain.AccessDecision{Reason: reason, PriceID: price}
}
