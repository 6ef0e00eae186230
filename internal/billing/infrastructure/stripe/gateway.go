// Package stripe adapts the Stripe API to the billing ports.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/resilience"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Gateway implements application.PaymentGateway on the Stripe API.
// Every call runs through the circuit breaker and carries the caller's
// context, so canceled requests abort in flight.
type Gateway struct {
	api     *client.API
	breaker *resilience.Breaker
	logger  *slog.Logger
}

var _ application.PaymentGateway = (*Gateway)(nil)

// NewGateway creates a gateway. A nil breaker calls straight through.
func NewGateway(api *client.API, breaker *resilience.Breaker, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{api: api, breaker: breaker, logger: logger}
}

// NewAPI creates a Stripe client for the secret key. A non-empty baseURL
// overrides the API endpoint.
func NewAPI(secretKey, baseURL string) *client.API {
	if baseURL == "" {
		return client.New(secretKey, nil)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL: stripeapi.String(baseURL),
	})
	return client.New(secretKey, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})
}

// FetchSubscription retrieves the authoritative subscription state.
func (g *Gateway) FetchSubscription(ctx context.Context, subscriptionID string) (domain.ProviderSubscription, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProviderSubscription{}, err
	}
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	sub, err := resilience.Execute(g.breaker, func() (*stripeapi.Subscription, error) {
		return g.api.Subscriptions.Get(subscriptionID, params)
	})
	if err != nil {
		return domain.ProviderSubscription{}, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	if sub == nil || sub.LastResponse == nil {
		return domain.ProviderSubscription{}, errors.New("fetch subscription: empty response")
	}

	var obj subscriptionObject
	if err := json.Unmarshal(sub.LastResponse.RawJSON, &obj); err != nil {
		return domain.ProviderSubscription{}, fmt.Errorf("decode subscription %s: %w", subscriptionID, err)
	}
	return obj.toProvider(), nil
}

// FindOrCreateCustomer looks the customer up by email before creating one.
func (g *Gateway) FindOrCreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	existing, err := resilience.Execute(g.breaker, func() (string, error) {
		params := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
		params.Limit = stripeapi.Int64(1)
		params.Context = ctx
		iter := g.api.Customers.List(params)
		if iter.Next() {
			return iter.Customer().ID, nil
		}
		return "", iter.Err()
	})
	if err != nil {
		return "", fmt.Errorf("list customers: %w", err)
	}
	if existing != "" {
		return existing, nil
	}

	params := &stripeapi.CustomerParams{Email: stripeapi.String(email)}
	params.AddMetadata("supabase_user_id", userID.String())
	params.Context = ctx
	created, err := resilience.Execute(g.breaker, func() (*stripeapi.Customer, error) {
		return g.api.Customers.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	g.logger.Info("created stripe customer", "user_id", userID, "customer_id", created.ID)
	return created.ID, nil
}

// CreateCheckoutSession creates a hosted checkout session. The user and
// price are written to the session metadata and to the metadata of whatever
// the session creates, so webhooks can be correlated.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req application.CheckoutSessionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	userID := req.UserID.String()
	params := &stripeapi.CheckoutSessionParams{
		Customer:           stripeapi.String(req.CustomerID),
		Mode:               stripeapi.String(string(req.Mode)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{Price: stripeapi.String(req.PriceID), Quantity: stripeapi.Int64(1)},
		},
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("price_id", req.PriceID)
	params.Context = ctx

	switch req.Mode {
	case domain.CheckoutModeSubscription:
		params.SubscriptionData = &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		}
	case domain.CheckoutModePayment:
		params.PaymentIntentData = &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"user_id": userID, "price_id": req.PriceID},
		}
	}

	session, err := resilience.Execute(g.breaker, func() (*stripeapi.CheckoutSession, error) {
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

// CreatePortalSession creates a billing portal session for the customer.
func (g *Gateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &stripeapi.BillingPortalSessionParams{
		Customer:  stripeapi.String(customerID),
		ReturnURL: stripeapi.String(returnURL),
	}
	params.Context = ctx
	session, err := resilience.Execute(g.breaker, func() (*stripeapi.BillingPortalSession, error) {
		return g.api.BillingPortalSessions.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("portal session: %w", err)
	}
	return session.URL, nil
}
