package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// CheckoutInput is an authenticated checkout request.
type CheckoutInput struct {
	UserID  uuid.UUID
	Email   string
	PriceID string
	Origin  string
}

// CheckoutService guards against duplicate entitlements and starts checkout.
type CheckoutService struct {
	subscriptions  domain.SubscriptionRepository
	purchases      domain.PurchaseRepository
	access         *AccessCache
	gateway        PaymentGateway
	defaultPriceID string
	logger         *slog.Logger
}

// NewCheckoutService creates the service. defaultPriceID is used when the
// request names no price.
func NewCheckoutService(
	subscriptions domain.SubscriptionRepository,
	purchases domain.PurchaseRepository,
	access *AccessCache,
	gateway PaymentGateway,
	defaultPriceID string,
	logger *slog.Logger,
) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		subscriptions:  subscriptions,
		purchases:      purchases,
		access:         access,
		gateway:        gateway,
		defaultPriceID: defaultPriceID,
		logger:         logger,
	}
}

// Start returns the hosted checkout URL. The checkout mode comes from the
// product, never from the caller.
func (s *CheckoutService) Start(ctx context.Context, in CheckoutInput) (string, error) {
	if in.Email == "" {
		return "", domain.ErrMissingEmail
	}
	priceID := in.PriceID
	if priceID == "" {
		priceID = s.defaultPriceID
	}
	if priceID == "" {
		return "", domain.ErrMissingPrice
	}

	catalog, err := s.access.Products(ctx)
	if err != nil {
		return "", err
	}
	product, ok := catalog.Active().ByPriceID(priceID)
	if !ok {
		return "", domain.ErrProductNotFound
	}
	mode := product.PaymentType.CheckoutMode()

	// Read the store directly; a cached summary may predate a recent webhook.
	if err := s.ensureNotEntitled(ctx, in.UserID, priceID, mode); err != nil {
		return "", err
	}

	customerID, err := s.gateway.FindOrCreateCustomer(ctx, in.UserID, in.Email)
	if err != nil {
		return "", fmt.Errorf("customer: %w", err)
	}

	origin := strings.TrimRight(in.Origin, "/")
	url, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     in.UserID,
		Mode:       mode,
		SuccessURL: origin + "/dashboard?success=true",
		CancelURL:  origin + "/?canceled=true",
	})
	if err != nil {
		return "", fmt.Errorf("checkout session: %w", err)
	}

	s.logger.Info("checkout session created",
		"user_id", in.UserID,
		"price_id", priceID,
		"mode", mode,
	)
	return url, nil
}

func (s *CheckoutService) ensureNotEntitled(ctx context.Context, userID uuid.UUID, priceID string, mode domain.CheckoutMode) error {
	if mode == domain.CheckoutModePayment {
		purchases, err := s.purchases.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if domain.BuildAccessSummary(userID, nil, purchases).HasPurchased(priceID) {
			return domain.ErrAlreadyOwned
		}
		return nil
	}

	subs, err := s.subscriptions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if domain.BuildAccessSummary(userID, subs, nil).HasSubscriptionTo(priceID) {
		return domain.ErrAlreadySubscribed
	}
	return nil
}

// PortalService opens the processor's self-service billing portal.
type PortalService struct {
	subscriptions domain.SubscriptionRepository
	gateway       PaymentGateway
}

// NewPortalService creates the service.
func NewPortalService(subscriptions domain.SubscriptionRepository, gateway PaymentGateway) *PortalService {
	return &PortalService{subscriptions: subscriptions, gateway: gateway}
}

// Open returns the portal URL for the customer on the user's latest subscription.
func (s *PortalService) Open(ctx context.Context, userID uuid.UUID, origin string) (string, error) {
	sub, err := s.subscriptions.LatestByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.StripeCustomerID == "" {
		return "", domain.ErrNoCustomer
	}
	url, err := s.gateway.CreatePortalSession(ctx, sub.StripeCustomerID, strings.TrimRight(origin, "/")+"/dashboard")
	if err != nil {
		return "", fmt.Errorf("portal session: %w", err)
	}
	return url, nil
}
