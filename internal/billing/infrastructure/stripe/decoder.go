package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Verifier checks webhook signatures and decodes the verified event.
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the endpoint's signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify authenticates payload against the Stripe-Signature header value.
// Any verification failure wraps domain.ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, signature string) (domain.WebhookEvent, error) {
	if v.secret == "" || signature == "" {
		return nil, domain.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return decodeEvent(event)
}

// Decoder turns an unsigned event envelope into a webhook event. It backs the
// operator replay path, where the payload comes from a trusted file.
type Decoder struct{}

// Decode parses a raw event envelope.
func (Decoder) Decode(payload []byte) (domain.WebhookEvent, error) {
	var event stripeapi.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("parse event: missing id or type")
	}
	return decodeEvent(event)
}

func decodeEvent(event stripeapi.Event) (domain.WebhookEvent, error) {
	header := domain.EventHeader{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return domain.Unhandled{EventHeader: header}, nil
	}
	raw := event.Data.Raw

	switch header.Type {
	case domain.EventCheckoutCompleted:
		var s checkoutSessionObject
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return domain.CheckoutCompleted{
			EventHeader:    header,
			SessionID:      s.ID,
			Mode:           domain.CheckoutMode(s.Mode),
			UserID:         userIDFrom(s.Metadata),
			PriceID:        s.Metadata["price_id"],
			CustomerID:     string(s.Customer),
			SubscriptionID: string(s.Subscription),
		}, nil

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated:
		var s subscriptionObject
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		if header.Type == domain.EventSubscriptionCreated {
			return domain.SubscriptionCreated{EventHeader: header, Subscription: s.toProvider()}, nil
		}
		return domain.SubscriptionUpdated{EventHeader: header, Subscription: s.toProvider()}, nil

	case domain.EventSubscriptionDeleted:
		var s subscriptionObject
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return domain.SubscriptionDeleted{EventHeader: header, SubscriptionID: s.ID, UserID: userIDFrom(s.Metadata)}, nil

	case domain.EventInvoicePaymentFailed, domain.EventInvoicePaymentSucceeded:
		var inv invoiceObject
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		if header.Type == domain.EventInvoicePaymentFailed {
			return domain.InvoicePaymentFailed{EventHeader: header, SubscriptionID: inv.subscriptionID()}, nil
		}
		return domain.InvoicePaymentSucceeded{EventHeader: header, SubscriptionID: inv.subscriptionID()}, nil

	default:
		return domain.Unhandled{EventHeader: header}, nil
	}
}
