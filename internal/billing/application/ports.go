package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// CheckoutSessionRequest describes a processor checkout session.
type CheckoutSessionRequest struct {
	CustomerID string
	PriceID    string
	UserID     uuid.UUID
	Mode       domain.CheckoutMode
	SuccessURL string
	CancelURL  string
}

// PaymentGateway is the outbound port to the payment processor.
type PaymentGateway interface {
	// FetchSubscription returns the processor's authoritative subscription state.
	FetchSubscription(ctx context.Context, subscriptionID string) (domain.ProviderSubscription, error)
	// FindOrCreateCustomer returns the customer matched by email, creating one if absent.
	FindOrCreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)
	// CreateCheckoutSession returns the hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
	// CreatePortalSession returns the self-service billing portal URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// EventDecoder turns a processor event envelope into a webhook event variant.
type EventDecoder interface {
	Decode(payload []byte) (domain.WebhookEvent, error)
}

// Cache is a TTL key-value store. Values are JSON-encoded by the backend.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PlaybackSigner issues a short-lived playback credential for a CDN video.
type PlaybackSigner interface {
	// Name identifies the signer in logs.
	Name() string
	// Enabled reports whether the signer is configured.
	Enabled() bool
	// Sign returns a token that replaces the playback id in delivery URLs.
	Sign(ctx context.Context, playbackID string, ttl time.Duration) (string, error)
}
