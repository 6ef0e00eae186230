package domain

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseCompleted is the only purchase status this system writes.
const PurchaseCompleted = "completed"

// OneTimePurchase is a non-recurring entitlement to a single priced product.
// At most one exists per (user, price).
type OneTimePurchase struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	PriceID         string    `json:"price_id"`
	StripeSessionID string    `json:"stripe_session_id"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewOneTimePurchase creates a completed purchase for a checkout session.
func NewOneTimePurchase(userID uuid.UUID, priceID, sessionID string) *OneTimePurchase {
	return &OneTimePurchase{
		ID:              uuid.New(),
		UserID:          userID,
		PriceID:         priceID,
		StripeSessionID: sessionID,
		Status:          PurchaseCompleted,
		CreatedAt:       time.Now().UTC(),
	}
}
