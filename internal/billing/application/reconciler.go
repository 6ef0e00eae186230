package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/reformer/internal/shared/application"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reformer/pkg/observability"
	"github.com/google/uuid"
)

// Reconciler applies verified processor events to the entitlement store.
// Each event's mutation and its ledger entry commit together.
type Reconciler struct {
	subscriptions domain.SubscriptionRepository
	purchases     domain.PurchaseRepository
	ledger        domain.EventLedger
	gateway       PaymentGateway
	uow           sharedApplication.UnitOfWork
	outboxRepo    outbox.Repository
	logger        *slog.Logger
	metrics       observability.Metrics
}

// NewReconciler creates a reconciler. Push invalidation is off until
// EnablePushInvalidation is called.
func NewReconciler(
	subscriptions domain.SubscriptionRepository,
	purchases domain.PurchaseRepository,
	ledger domain.EventLedger,
	gateway PaymentGateway,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		subscriptions: subscriptions,
		purchases:     purchases,
		ledger:        ledger,
		gateway:       gateway,
		uow:           uow,
		logger:        logger,
		metrics:       observability.NoopMetrics{},
	}
}

// EnablePushInvalidation writes an EntitlementChanged event to the outbox
// after every applied mutation.
func (r *Reconciler) EnablePushInvalidation(repo outbox.Repository) {
	r.outboxRepo = repo
}

// SetMetrics replaces the metrics sink.
func (r *Reconciler) SetMetrics(m observability.Metrics) {
	if m != nil {
		r.metrics = m
	}
}

// mutation is the store operation for one event. It returns the affected user
// when known.
type mutation func(ctx context.Context) (applied bool, userID uuid.UUID, err error)

// Reconcile dispatches the event to its store operation. Missing correlation
// data is reported as OutcomeSkipped with a nil error.
func (r *Reconciler) Reconcile(ctx context.Context, evt domain.WebhookEvent) (domain.ReconcileResult, error) {
	return r.reconcile(ctx, evt, false)
}

// Replay applies the event even when the ledger already holds its id. The
// store operations stay idempotent on their natural keys.
func (r *Reconciler) Replay(ctx context.Context, evt domain.WebhookEvent) (domain.ReconcileResult, error) {
	return r.reconcile(ctx, evt, true)
}

func (r *Reconciler) reconcile(ctx context.Context, evt domain.WebhookEvent, force bool) (domain.ReconcileResult, error) {
	result := domain.ReconcileResult{EventID: evt.EventID(), EventType: evt.EventType()}
	logger := r.logger.With("event_id", evt.EventID(), "event_type", evt.EventType())
	timer := observability.StartTimer(r.metrics, observability.MetricWebhookDuration, observability.T("event_type", result.EventType))
	defer timer.Stop()

	op, skipReason, err := r.plan(ctx, evt)
	if err != nil {
		r.count(result.EventType, "error")
		return result, err
	}
	if op == nil {
		if skipReason == "" {
			result.Outcome = domain.OutcomeIgnored
			logger.Info("ignoring unhandled webhook event")
		} else {
			result.Outcome = domain.OutcomeSkipped
			result.Detail = skipReason
			logger.Warn("skipping webhook event", "reason", skipReason)
		}
		r.count(result.EventType, string(result.Outcome))
		return result, nil
	}

	err = sharedApplication.WithUnitOfWork(ctx, r.uow, func(txCtx context.Context) error {
		fresh, err := r.ledger.MarkProcessed(txCtx, evt.EventID(), evt.EventType())
		if err != nil {
			return err
		}
		if !fresh && !force {
			result.Outcome = domain.OutcomeDuplicate
			return nil
		}

		applied, userID, err := op(txCtx)
		if err != nil {
			return err
		}
		if userID != uuid.Nil {
			id := userID
			result.UserID = &id
		}
		if !applied {
			result.Outcome = domain.OutcomeNoop
			return nil
		}
		result.Outcome = domain.OutcomeApplied
		return r.notify(txCtx, evt, userID)
	})
	if err != nil {
		r.count(result.EventType, "error")
		return result, fmt.Errorf("reconcile %s: %w", evt.EventType(), err)
	}

	r.count(result.EventType, string(result.Outcome))
	logger.Info("webhook event reconciled", "outcome", result.Outcome)
	return result, nil
}

// plan validates correlation data and performs any processor reads before the
// transaction opens. A nil mutation with an empty reason means unhandled.
func (r *Reconciler) plan(ctx context.Context, evt domain.WebhookEvent) (mutation, string, error) {
	switch e := evt.(type) {
	case domain.CheckoutCompleted:
		return r.planCheckout(ctx, e)

	case domain.SubscriptionCreated:
		if e.Subscription.UserID == uuid.Nil {
			return nil, domain.ErrMissingCorrelation.Error(), nil
		}
		patch := domain.SubscriptionPatch{CancelAtPeriodEnd: boolPtr(e.Subscription.EndsAtPeriodEnd())}
		if end := domain.ResolvePeriodEnd(e.Subscription, domain.UpdatePeriodEndChain); end != nil {
			patch.SetPeriodEnd = true
			patch.CurrentPeriodEnd = end
		}
		return r.patchOp(e.Subscription.ID, e.Subscription.UserID, patch), "", nil

	case domain.SubscriptionUpdated:
		if e.Subscription.UserID == uuid.Nil {
			return nil, domain.ErrMissingCorrelation.Error(), nil
		}
		latest, err := r.gateway.FetchSubscription(ctx, e.Subscription.ID)
		if err != nil {
			return nil, "", fmt.Errorf("fetch subscription %s: %w", e.Subscription.ID, err)
		}
		status := latest.Status
		patch := domain.SubscriptionPatch{
			Status:            &status,
			SetPeriodEnd:      true,
			CurrentPeriodEnd:  domain.ResolvePeriodEnd(latest, domain.UpdatePeriodEndChain),
			CancelAtPeriodEnd: boolPtr(latest.EndsAtPeriodEnd()),
		}
		return r.patchOp(latest.ID, e.Subscription.UserID, patch), "", nil

	case domain.SubscriptionDeleted:
		if e.UserID == uuid.Nil {
			return nil, domain.ErrMissingCorrelation.Error(), nil
		}
		return r.patchOp(e.SubscriptionID, e.UserID, domain.StatusPatch(domain.SubscriptionCanceled)), "", nil

	case domain.InvoicePaymentFailed:
		if e.SubscriptionID == "" {
			return nil, "invoice has no subscription", nil
		}
		return r.patchOp(e.SubscriptionID, uuid.Nil, domain.StatusPatch(domain.SubscriptionPastDue)), "", nil

	case domain.InvoicePaymentSucceeded:
		if e.SubscriptionID == "" {
			return nil, "invoice has no subscription", nil
		}
		return r.patchOp(e.SubscriptionID, uuid.Nil, domain.StatusPatch(domain.SubscriptionActive)), "", nil

	default:
		return nil, "", nil
	}
}

func (r *Reconciler) planCheckout(ctx context.Context, e domain.CheckoutCompleted) (mutation, string, error) {
	if e.UserID == uuid.Nil {
		return nil, domain.ErrMissingCorrelation.Error(), nil
	}

	if e.Mode == domain.CheckoutModePayment {
		if e.PriceID == "" {
			return nil, "checkout session has no price_id", nil
		}
		purchase := domain.NewOneTimePurchase(e.UserID, e.PriceID, e.SessionID)
		return func(ctx context.Context) (bool, uuid.UUID, error) {
			inserted, err := r.purchases.InsertIfAbsent(ctx, purchase)
			return inserted, e.UserID, err
		}, "", nil
	}

	if e.SubscriptionID == "" {
		return nil, "checkout session has no subscription", nil
	}
	provider, err := r.gateway.FetchSubscription(ctx, e.SubscriptionID)
	if err != nil {
		return nil, "", fmt.Errorf("fetch subscription %s: %w", e.SubscriptionID, err)
	}

	priceID := provider.PriceID
	if priceID == "" {
		priceID = e.PriceID
	}
	customerID := e.CustomerID
	if customerID == "" {
		customerID = provider.CustomerID
	}
	sub := domain.NewSubscription(e.UserID, customerID, e.SubscriptionID, priceID, provider.Status)
	sub.CurrentPeriodEnd = domain.ResolvePeriodEnd(provider, domain.CheckoutPeriodEndChain)
	sub.CancelAtPeriodEnd = provider.EndsAtPeriodEnd()

	return func(ctx context.Context) (bool, uuid.UUID, error) {
		inserted, err := r.subscriptions.InsertIfAbsent(ctx, sub)
		return inserted, e.UserID, err
	}, "", nil
}

func (r *Reconciler) patchOp(subscriptionID string, userID uuid.UUID, patch domain.SubscriptionPatch) mutation {
	return func(ctx context.Context) (bool, uuid.UUID, error) {
		matched, err := r.subscriptions.ApplyPatch(ctx, subscriptionID, patch)
		if err != nil || !matched {
			return false, userID, err
		}
		if userID != uuid.Nil || r.outboxRepo == nil {
			return true, userID, nil
		}
		// Invoice events carry no user; resolve it from the row for invalidation.
		sub, err := r.subscriptions.FindByStripeID(ctx, subscriptionID)
		if err != nil {
			return false, uuid.Nil, err
		}
		if sub != nil {
			userID = sub.UserID
		}
		return true, userID, nil
	}
}

func (r *Reconciler) notify(ctx context.Context, evt domain.WebhookEvent, userID uuid.UUID) error {
	if r.outboxRepo == nil || userID == uuid.Nil {
		return nil
	}
	msg, err := outbox.NewMessage(domain.NewEntitlementChanged(userID, evt.EventID(), evt.EventType()))
	if err != nil {
		return err
	}
	return r.outboxRepo.Save(ctx, msg)
}

func (r *Reconciler) count(eventType, outcome string) {
	r.metrics.Counter(observability.MetricWebhookEvents, 1,
		observability.T("event_type", eventType),
		observability.T("outcome", outcome),
	)
}

func boolPtr(b bool) *bool { return &b }
