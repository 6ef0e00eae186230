package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AccessSummary is the per-user entitlement view served from the short-TTL cache.
type AccessSummary struct {
	UserID                uuid.UUID         `json:"user_id"`
	Subscriptions         []Subscription    `json:"subscriptions"`
	Purchases             []OneTimePurchase `json:"purchases"`
	AccessiblePriceIDs    []string          `json:"accessible_price_ids"`
	HasActiveSubscription bool              `json:"has_active_subscription"`
	ComputedAt            time.Time         `json:"computed_at"`
}

// BuildAccessSummary keeps active subscriptions and completed purchases and
// derives the union of their price identifiers.
func BuildAccessSummary(userID uuid.UUID, subs []Subscription, purchases []OneTimePurchase) AccessSummary {
	summary := AccessSummary{
		UserID:        userID,
		Subscriptions: []Subscription{},
		Purchases:     []OneTimePurchase{},
		ComputedAt:    time.Now().UTC(),
	}

	seen := make(map[string]struct{})
	for _, sub := range subs {
		if !sub.Status.IsActive() {
			continue
		}
		summary.Subscriptions = append(summary.Subscriptions, sub)
		summary.HasActiveSubscription = true
		if sub.PriceID != "" {
			seen[sub.PriceID] = struct{}{}
		}
	}
	for _, p := range purchases {
		if p.Status != PurchaseCompleted {
			continue
		}
		summary.Purchases = append(summary.Purchases, p)
		if p.PriceID != "" {
			seen[p.PriceID] = struct{}{}
		}
	}

	summary.AccessiblePriceIDs = make([]string, 0, len(seen))
	for id := range seen {
		summary.AccessiblePriceIDs = append(summary.AccessiblePriceIDs, id)
	}
	sort.Strings(summary.AccessiblePriceIDs)
	return summary
}

// HasPriceAccess reports whether any entitlement references the price.
func (s AccessSummary) HasPriceAccess(priceID string) bool {
	for _, id := range s.AccessiblePriceIDs {
		if id == priceID {
			return true
		}
	}
	return false
}

// LatestActive returns the most recently created active subscription, or nil.
func (s AccessSummary) LatestActive() *Subscription {
	var latest *Subscription
	for i := range s.Subscriptions {
		sub := &s.Subscriptions[i]
		if !sub.Status.IsActive() {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil
	}
	out := *latest
	return &out
}

// HasSubscriptionTo reports whether an active subscription targets the price.
func (s AccessSummary) HasSubscriptionTo(priceID string) bool {
	for _, sub := range s.Subscriptions {
		if sub.PriceID == priceID {
			return true
		}
	}
	return false
}

// HasPurchased reports whether a completed purchase exists for the price.
func (s AccessSummary) HasPurchased(priceID string) bool {
	for _, p := range s.Purchases {
		if p.PriceID == priceID {
			return true
		}
	}
	return false
}

// DenialReason tells the caller which entitlement path failed.
type DenialReason string

const (
	ReasonPurchaseRequired     DenialReason = "purchase_required"
	ReasonSubscriptionRequired DenialReason = "subscription_required"
)

// Message is the user-facing text for the reason.
func (r DenialReason) Message() string {
	if r == ReasonPurchaseRequired {
		return "Guide purchase required"
	}
	return "Active subscription required"
}

// AccessDecision is the resolver's answer for one content item.
type AccessDecision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
	PriceID string       `json:"price_id,omitempty"`
}

// Err returns an AccessDeniedError for a denied decision, nil otherwise.
func (d AccessDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &AccessDeniedError{Reason: d.Reason}
}
