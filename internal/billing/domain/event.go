package domain

import "github.com/google/uuid"

// CheckoutMode is the processor's checkout session mode.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// Processor event type tags.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// WebhookEvent is a verified processor event. The concrete type is one of the
// variants below; anything the reconciler does not act on is Unhandled.
type WebhookEvent interface {
	EventID() string
	EventType() string
	webhookEvent()
}

// EventHeader carries the envelope fields shared by every variant.
type EventHeader struct {
	ID   string
	Type string
}

func (h EventHeader) EventID() string   { return h.ID }
func (h EventHeader) EventType() string { return h.Type }
func (EventHeader) webhookEvent()       {}

// CheckoutCompleted is emitted when a checkout session finishes.
type CheckoutCompleted struct {
	EventHeader
	SessionID      string
	Mode           CheckoutMode
	UserID         uuid.UUID
	PriceID        string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionCreated carries the processor's snapshot of a new subscription.
type SubscriptionCreated struct {
	EventHeader
	Subscription ProviderSubscription
}

// SubscriptionUpdated signals a change. The snapshot may be stale; the
// reconciler re-fetches the authoritative state.
type SubscriptionUpdated struct {
	EventHeader
	Subscription ProviderSubscription
}

// SubscriptionDeleted marks a subscription as terminated.
type SubscriptionDeleted struct {
	EventHeader
	SubscriptionID string
	UserID         uuid.UUID
}

// InvoicePaymentFailed flips the subscription to past_due.
type InvoicePaymentFailed struct {
	EventHeader
	SubscriptionID string
}

// InvoicePaymentSucceeded flips the subscription back to active.
type InvoicePaymentSucceeded struct {
	EventHeader
	SubscriptionID string
}

// Unhandled is any event type outside the handled set. It is acknowledged and ignored.
type Unhandled struct {
	EventHeader
}

// ProviderSubscription is the processor's view of a subscription. Epoch
// fields are seconds; nil means the processor did not send the field.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	PriceID            string
	UserID             uuid.UUID
	CurrentPeriodEnd   *int64
	ItemPeriodEnd      *int64
	BillingCycleAnchor *int64
	Created            int64
	CancelAtPeriodEnd  bool
	CancelAt           *int64
}

// EndsAtPeriodEnd is true when either cancellation signal is present.
func (s ProviderSubscription) EndsAtPeriodEnd() bool {
	return s.CancelAtPeriodEnd || s.CancelAt != nil
}
