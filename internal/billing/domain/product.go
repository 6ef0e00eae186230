package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentType discriminates recurring plans from one-time products.
type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeOneTime      PaymentType = "payment"
)

// CheckoutMode returns the processor checkout mode for the payment type.
func (t PaymentType) CheckoutMode() CheckoutMode {
	if t == PaymentTypeSubscription {
		return CheckoutModeSubscription
	}
	return CheckoutModePayment
}

// Product is a catalog entry. Entitlements reference it through StripePriceID.
type Product struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	PriceCents      int64       `json:"price_cents"`
	Currency        string      `json:"currency"`
	PaymentType     PaymentType `json:"payment_type"`
	StripePriceID   string      `json:"stripe_price_id"`
	VideoPlaybackID string      `json:"video_playback_id,omitempty"`
	FileURL         string      `json:"file_url,omitempty"`
	Active          bool        `json:"active"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Catalog is an in-memory view over the product list.
type Catalog []Product

// ByID returns the product with the given id.
func (c Catalog) ByID(id uuid.UUID) (Product, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// ByPriceID returns the product for a priced-product identifier.
func (c Catalog) ByPriceID(priceID string) (Product, bool) {
	for _, p := range c {
		if p.StripePriceID == priceID {
			return p, true
		}
	}
	return Product{}, false
}

// Active returns the products currently on sale.
func (c Catalog) Active() Catalog {
	out := make(Catalog, 0, len(c))
	for _, p := range c {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}
