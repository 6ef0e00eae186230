package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the processor's status string. Values outside the
// known constants are stored as-is.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// IsActive reports whether the status grants access.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubscriptionActive
}

// Subscription represents a recurring entitlement to one priced product.
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	Status               SubscriptionStatus `json:"status"`
	PriceID              string             `json:"price_id"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// NewSubscription creates a subscription row for a completed checkout.
func NewSubscription(userID uuid.UUID, customerID, subscriptionID, priceID string, status SubscriptionStatus) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		Status:               status,
		PriceID:              priceID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// SubscriptionPatch describes a partial update applied by external subscription id.
// Nil fields are left untouched. SetPeriodEnd distinguishes "clear" from "keep".
type SubscriptionPatch struct {
	Status            *SubscriptionStatus
	SetPeriodEnd      bool
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd *bool
}

// IsEmpty reports whether the patch would change nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.Status == nil && !p.SetPeriodEnd && p.CancelAtPeriodEnd == nil
}

// StatusPatch returns a patch that only overwrites the status.
func StatusPatch(status SubscriptionStatus) SubscriptionPatch {
	return SubscriptionPatch{Status: &status}
}
