package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCheckoutService(store *billingStore, gateway *mockGateway, defaultPrice string) *application.CheckoutService {
	return application.NewCheckoutService(store.subscriptions, store.purchases, store.accessCache(newMemoryCache()), gateway, defaultPrice, nil)
}

func TestCheckout_RepeatBeforeWebhookSucceeds(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := newCheckoutService(store, gateway, "")
	userID := uuid.New()

	gateway.On("FindOrCreateCustomer", mock.Anything, userID, "ana@example.com").Return("cus_1", nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req application.CheckoutSessionRequest) bool {
		return req.Mode == domain.CheckoutModeSubscription &&
			req.PriceID == pricePlan &&
			req.CustomerID == "cus_1" &&
			req.UserID == userID &&
			req.SuccessURL == "https://app.test/dashboard?success=true" &&
			req.CancelURL == "https://app.test/?canceled=true"
	})).Return("https://checkout.test/s/1", nil)

	in := application.CheckoutInput{UserID: userID, Email: "ana@example.com", PriceID: pricePlan, Origin: "https://app.test/"}
	for i := 0; i < 2; i++ {
		url, err := svc.Start(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.test/s/1", url)
	}
	gateway.AssertNumberOfCalls(t, "CreateCheckoutSession", 2)
}

func TestCheckout_ModeComesFromProduct(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := newCheckoutService(store, gateway, priceGuide)
	userID := uuid.New()

	gateway.On("FindOrCreateCustomer", mock.Anything, userID, "ana@example.com").Return("cus_1", nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req application.CheckoutSessionRequest) bool {
		return req.Mode == domain.CheckoutModePayment && req.PriceID == priceGuide
	})).Return("https://checkout.test/s/2", nil)

	url, err := svc.Start(context.Background(), application.CheckoutInput{UserID: userID, Email: "ana@example.com", Origin: "https://app.test"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/s/2", url)
	gateway.AssertExpectations(t)
}

func TestCheckout_AlreadyOwned(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := newCheckoutService(store, gateway, "")
	userID := uuid.New()
	store.grantPurchase(t, userID, priceGuide)

	_, err := svc.Start(context.Background(), application.CheckoutInput{UserID: userID, Email: "a@b.c", PriceID: priceGuide})
	assert.True(t, errors.Is(err, domain.ErrAlreadyOwned))
	gateway.AssertNotCalled(t, "FindOrCreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_AlreadySubscribedOnlyForSamePlan(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := newCheckoutService(store, gateway, "")
	userID := uuid.New()
	store.grantSubscription(t, userID, "sub_core", priceCore, domain.SubscriptionActive)

	_, err := svc.Start(context.Background(), application.CheckoutInput{UserID: userID, Email: "a@b.c", PriceID: priceCore})
	assert.True(t, errors.Is(err, domain.ErrAlreadySubscribed))

	gateway.On("FindOrCreateCustomer", mock.Anything, userID, "a@b.c").Return("cus_1", nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return("https://checkout.test/s/3", nil)
	_, err = svc.Start(context.Background(), application.CheckoutInput{UserID: userID, Email: "a@b.c", PriceID: pricePlan})
	assert.NoError(t, err)
}

func TestCheckout_CanceledSubscriptionDoesNotBlock(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := newCheckoutService(store, gateway, "")
	userID := uuid.New()
	store.grantSubscription(t, userID, "sub_old", pricePlan, domain.SubscriptionCanceled)

	gateway.On("FindOrCreateCustomer", mock.Anything, userID, "a@b.c").Return("cus_1", nil)
	gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return("https://checkout.test/s/4", nil)

	_, err := svc.Start(context.Background(), application.CheckoutInput{UserID: userID, Email: "a@b.c", PriceID: pricePlan})
	assert.NoError(t, err)
}

func TestCheckout_Validation(t *testing.T) {
	store := newBillingStore(t)
	svc := newCheckoutService(store, &mockGateway{}, "")
	ctx := context.Background()

	_, err := svc.Start(ctx, application.CheckoutInput{UserID: uuid.New(), PriceID: pricePlan})
	assert.True(t, errors.Is(err, domain.ErrMissingEmail))

	_, err = svc.Start(ctx, application.CheckoutInput{UserID: uuid.New(), Email: "a@b.c"})
	assert.True(t, errors.Is(err, domain.ErrMissingPrice))

	_, err = svc.Start(ctx, application.CheckoutInput{UserID: uuid.New(), Email: "a@b.c", PriceID: "price_unknown"})
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestCheckout_GatewayFailureIsWrapped(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := newCheckoutService(store, gateway, "")
	userID := uuid.New()
	boom := errors.New("processor down")

	gateway.On("FindOrCreateCustomer", mock.Anything, userID, "a@b.c").Return("", boom)

	_, err := svc.Start(context.Background(), application.CheckoutInput{UserID: userID, Email: "a@b.c", PriceID: pricePlan})
	assert.True(t, errors.Is(err, boom))
}

func TestPortal_RequiresCustomer(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	svc := application.NewPortalService(store.subscriptions, gateway)
	userID := uuid.New()

	_, err := svc.Open(context.Background(), userID, "https://app.test")
	assert.True(t, errors.Is(err, domain.ErrNoCustomer))

	store.grantSubscription(t, userID, "sub_p", pricePlan, domain.SubscriptionActive)
	gateway.On("CreatePortalSession", mock.Anything, "cus_sub_p", "https://app.test/dashboard").Return("https://portal.test/p", nil)

	url, err := svc.Open(context.Background(), userID, "https://app.test")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/p", url)
}
