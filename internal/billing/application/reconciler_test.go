package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/application"
	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reformer/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newReconciler(store *billingStore, gateway *mockGateway) *application.Reconciler {
	return application.NewReconciler(store.subscriptions, store.purchases, store.ledger, gateway, store.uow, nil)
}

func header(id, eventType string) domain.EventHeader {
	return domain.EventHeader{ID: id, Type: eventType}
}

func paymentCheckout(id string, userID uuid.UUID, priceID string) domain.CheckoutCompleted {
	return domain.CheckoutCompleted{
		EventHeader: header(id, domain.EventCheckoutCompleted),
		SessionID:   "cs_" + id,
		Mode:        domain.CheckoutModePayment,
		UserID:      userID,
		PriceID:     priceID,
	}
}

func subscriptionCheckout(id string, userID uuid.UUID, subscriptionID string) domain.CheckoutCompleted {
	return domain.CheckoutCompleted{
		EventHeader:    header(id, domain.EventCheckoutCompleted),
		SessionID:      "cs_" + id,
		Mode:           domain.CheckoutModeSubscription,
		UserID:         userID,
		PriceID:        pricePlan,
		CustomerID:     "cus_1",
		SubscriptionID: subscriptionID,
	}
}

func TestReconciler_PaymentCheckoutCreatesSinglePurchase(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	ctx := context.Background()
	userID := uuid.New()

	result, err := reconciler.Reconcile(ctx, paymentCheckout("evt_1", userID, priceGuide))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
	require.NotNil(t, result.UserID)
	assert.Equal(t, userID, *result.UserID)

	// Same event id: the ledger short-circuits.
	result, err = reconciler.Reconcile(ctx, paymentCheckout("evt_1", userID, priceGuide))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, result.Outcome)

	// A different event for the same purchase: the natural key holds.
	result, err = reconciler.Reconcile(ctx, paymentCheckout("evt_2", userID, priceGuide))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, result.Outcome)

	purchases, err := store.purchases.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, priceGuide, purchases[0].PriceID)
	assert.Equal(t, domain.PurchaseCompleted, purchases[0].Status)
}

func TestReconciler_SubscriptionCheckoutRedeliveryKeepsOneRow(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	reconciler := newReconciler(store, gateway)
	ctx := context.Background()
	userID := uuid.New()

	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	gateway.On("FetchSubscription", mock.Anything, "sub_1").Return(domain.ProviderSubscription{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           domain.SubscriptionActive,
		PriceID:          pricePlan,
		CurrentPeriodEnd: epoch(periodEnd),
	}, nil)

	for _, id := range []string{"evt_a", "evt_b"} {
		_, err := reconciler.Reconcile(ctx, subscriptionCheckout(id, userID, "sub_1"))
		require.NoError(t, err)
	}

	subs, err := store.subscriptions.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, domain.SubscriptionActive, subs[0].Status)
	require.NotNil(t, subs[0].CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*subs[0].CurrentPeriodEnd))
	gateway.AssertNumberOfCalls(t, "FetchSubscription", 2)
}

func TestReconciler_SubscriptionCheckoutDerivesPeriodEndFromAnchor(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	reconciler := newReconciler(store, gateway)
	ctx := context.Background()
	userID := uuid.New()

	anchor := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	gateway.On("FetchSubscription", mock.Anything, "sub_anchor").Return(domain.ProviderSubscription{
		ID:                 "sub_anchor",
		Status:             domain.SubscriptionActive,
		BillingCycleAnchor: epoch(anchor),
	}, nil)

	_, err := reconciler.Reconcile(ctx, subscriptionCheckout("evt_anchor", userID, "sub_anchor"))
	require.NoError(t, err)

	sub, err := store.subscriptions.FindByStripeID(ctx, "sub_anchor")
	require.NoError(t, err)
	require.NotNil(t, sub)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, anchor.AddDate(0, 1, 0).Equal(*sub.CurrentPeriodEnd))
	// Provider omitted the price; the checkout metadata fills it in.
	assert.Equal(t, pricePlan, sub.PriceID)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)
}

func TestReconciler_PastDueThenInvoiceSucceeded(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	reconciler := newReconciler(store, gateway)
	ctx := context.Background()
	userID := uuid.New()
	store.grantSubscription(t, userID, "sub_c", pricePlan, domain.SubscriptionActive)

	gateway.On("FetchSubscription", mock.Anything, "sub_c").Return(domain.ProviderSubscription{
		ID:      "sub_c",
		Status:  domain.SubscriptionPastDue,
		PriceID: pricePlan,
	}, nil)

	result, err := reconciler.Reconcile(ctx, domain.SubscriptionUpdated{
		EventHeader:  header("evt_upd", domain.EventSubscriptionUpdated),
		Subscription: domain.ProviderSubscription{ID: "sub_c", UserID: userID, Status: domain.SubscriptionActive},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	sub, err := store.subscriptions.FindByStripeID(ctx, "sub_c")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionPastDue, sub.Status)

	result, err = reconciler.Reconcile(ctx, domain.InvoicePaymentSucceeded{
		EventHeader:    header("evt_inv", domain.EventInvoicePaymentSucceeded),
		SubscriptionID: "sub_c",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	sub, err = store.subscriptions.FindByStripeID(ctx, "sub_c")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
}

func TestReconciler_UpdateCancelAtSetsCancelFlag(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	reconciler := newReconciler(store, gateway)
	ctx := context.Background()
	userID := uuid.New()
	store.grantSubscription(t, userID, "sub_or", pricePlan, domain.SubscriptionActive)

	gateway.On("FetchSubscription", mock.Anything, "sub_or").Return(domain.ProviderSubscription{
		ID:                "sub_or",
		Status:            domain.SubscriptionActive,
		CancelAtPeriodEnd: false,
		CancelAt:          epoch(time.Now().Add(30 * 24 * time.Hour)),
	}, nil)

	_, err := reconciler.Reconcile(ctx, domain.SubscriptionUpdated{
		EventHeader:  header("evt_or", domain.EventSubscriptionUpdated),
		Subscription: domain.ProviderSubscription{ID: "sub_or", UserID: userID},
	})
	require.NoError(t, err)

	sub, err := store.subscriptions.FindByStripeID(ctx, "sub_or")
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Nil(t, sub.CurrentPeriodEnd)
}

func TestReconciler_CreatedKeepsExistingPeriodEnd(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	ctx := context.Background()
	userID := uuid.New()

	end := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	sub := domain.NewSubscription(userID, "cus_x", "sub_keep", pricePlan, domain.SubscriptionActive)
	sub.CurrentPeriodEnd = &end
	_, err := store.subscriptions.InsertIfAbsent(ctx, sub)
	require.NoError(t, err)

	_, err = reconciler.Reconcile(ctx, domain.SubscriptionCreated{
		EventHeader:  header("evt_created", domain.EventSubscriptionCreated),
		Subscription: domain.ProviderSubscription{ID: "sub_keep", UserID: userID, CancelAtPeriodEnd: true},
	})
	require.NoError(t, err)

	stored, err := store.subscriptions.FindByStripeID(ctx, "sub_keep")
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentPeriodEnd)
	assert.True(t, end.Equal(*stored.CurrentPeriodEnd))
	assert.True(t, stored.CancelAtPeriodEnd)
}

func TestReconciler_DeletedCancelsSubscription(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	ctx := context.Background()
	userID := uuid.New()
	store.grantSubscription(t, userID, "sub_del", pricePlan, domain.SubscriptionActive)

	result, err := reconciler.Reconcile(ctx, domain.SubscriptionDeleted{
		EventHeader:    header("evt_del", domain.EventSubscriptionDeleted),
		SubscriptionID: "sub_del",
		UserID:         userID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	sub, err := store.subscriptions.FindByStripeID(ctx, "sub_del")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionCanceled, sub.Status)
}

func TestReconciler_MissingCorrelationIsSkippedAndNotRecorded(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	ctx := context.Background()

	result, err := reconciler.Reconcile(ctx, domain.SubscriptionCreated{
		EventHeader:  header("evt_orphan", domain.EventSubscriptionCreated),
		Subscription: domain.ProviderSubscription{ID: "sub_orphan"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, result.Outcome)
	assert.NotEmpty(t, result.Detail)

	fresh, err := store.ledger.MarkProcessed(ctx, "evt_orphan", domain.EventSubscriptionCreated)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReconciler_UnhandledEventIsIgnored(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})

	result, err := reconciler.Reconcile(context.Background(), domain.Unhandled{
		EventHeader: header("evt_x", "customer.updated"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)
}

func TestReconciler_UnknownSubscriptionIsNoop(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})

	result, err := reconciler.Reconcile(context.Background(), domain.InvoicePaymentFailed{
		EventHeader:    header("evt_nf", domain.EventInvoicePaymentFailed),
		SubscriptionID: "sub_missing",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, result.Outcome)
}

func TestReconciler_GatewayFailureLeavesLedgerUntouched(t *testing.T) {
	store := newBillingStore(t)
	gateway := &mockGateway{}
	reconciler := newReconciler(store, gateway)
	ctx := context.Background()

	gateway.On("FetchSubscription", mock.Anything, "sub_err").
		Return(domain.ProviderSubscription{}, errors.New("processor unavailable"))

	_, err := reconciler.Reconcile(ctx, subscriptionCheckout("evt_err", uuid.New(), "sub_err"))
	require.Error(t, err)

	// The processor redelivers; the event must still be applicable.
	fresh, err := store.ledger.MarkProcessed(ctx, "evt_err", domain.EventCheckoutCompleted)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReconciler_ReplayBypassesLedger(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.ledger.MarkProcessed(ctx, "evt_lost", domain.EventCheckoutCompleted)
	require.NoError(t, err)

	result, err := reconciler.Reconcile(ctx, paymentCheckout("evt_lost", userID, priceGuide))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, result.Outcome)

	result, err = reconciler.Replay(ctx, paymentCheckout("evt_lost", userID, priceGuide))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)

	result, err = reconciler.Replay(ctx, paymentCheckout("evt_lost", userID, priceGuide))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoop, result.Outcome)
}

func TestReconciler_PushInvalidationWritesOutbox(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	repo := outbox.NewMemoryRepository()
	reconciler.EnablePushInvalidation(repo)
	ctx := context.Background()
	userID := uuid.New()
	store.grantSubscription(t, userID, "sub_push", pricePlan, domain.SubscriptionActive)

	_, err := reconciler.Reconcile(ctx, paymentCheckout("evt_p1", userID, priceGuide))
	require.NoError(t, err)

	// Invoice events carry no user; it is resolved from the stored row.
	_, err = reconciler.Reconcile(ctx, domain.InvoicePaymentFailed{
		EventHeader:    header("evt_p2", domain.EventInvoicePaymentFailed),
		SubscriptionID: "sub_push",
	})
	require.NoError(t, err)

	// A duplicate writes nothing.
	_, err = reconciler.Reconcile(ctx, paymentCheckout("evt_p1", userID, priceGuide))
	require.NoError(t, err)

	messages := repo.Messages()
	require.Len(t, messages, 2)
	for _, msg := range messages {
		assert.Equal(t, domain.RoutingKeyEntitlementChanged, msg.RoutingKey)
		assert.Equal(t, userID, msg.UserID)
	}
}

func TestReconciler_CountsOutcomes(t *testing.T) {
	store := newBillingStore(t)
	reconciler := newReconciler(store, &mockGateway{})
	metrics := observability.NewInMemoryMetrics()
	reconciler.SetMetrics(metrics)

	_, err := reconciler.Reconcile(context.Background(), domain.Unhandled{EventHeader: header("evt_m", "charge.refunded")})
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.GetCounter("billing_webhook_events_total",
		observability.T("event_type", "charge.refunded"),
		observability.T("outcome", "ignored"),
	))
}
