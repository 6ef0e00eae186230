package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// BillingService implements domain.BillingService for the operator surfaces.
type BillingService struct {
	subscriptions domain.SubscriptionRepository
	access        *AccessCache
	resolver      *Resolver
	decoder       EventDecoder
	reconciler    *Reconciler
	logger        *slog.Logger
}

var _ domain.BillingService = (*BillingService)(nil)

// NewBillingService creates the operator service.
func NewBillingService(
	subscriptions domain.SubscriptionRepository,
	access *AccessCache,
	resolver *Resolver,
	decoder EventDecoder,
	reconciler *Reconciler,
	logger *slog.Logger,
) *BillingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingService{
		subscriptions: subscriptions,
		access:        access,
		resolver:      resolver,
		decoder:       decoder,
		reconciler:    reconciler,
		logger:        logger,
	}
}

func (s *BillingService) LatestSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.subscriptions.LatestByUser(ctx, userID)
}

func (s *BillingService) AccessSummary(ctx context.Context, userID uuid.UUID) (domain.AccessSummary, error) {
	return s.access.Summary(ctx, userID)
}

func (s *BillingService) VideoAccess(ctx context.Context, userID, videoID uuid.UUID) (domain.AccessDecision, error) {
	decision, _, err := s.resolver.CanAccessVideo(ctx, userID, videoID)
	return decision, err
}

func (s *BillingService) GuideAccess(ctx context.Context, userID, guideID uuid.UUID) (domain.AccessDecision, error) {
	decision, _, err := s.resolver.CanAccessGuide(ctx, userID, guideID)
	return decision, err
}

// Replay decodes a stored event envelope and applies it. The affected user's
// cached summary is dropped so the result is visible immediately.
func (s *BillingService) Replay(ctx context.Context, payload []byte) (domain.ReconcileResult, error) {
	evt, err := s.decoder.Decode(payload)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("decode event: %w", err)
	}
	result, err := s.reconciler.Replay(ctx, evt)
	if err != nil {
		return result, err
	}
	if result.UserID != nil && result.Outcome == domain.OutcomeApplied {
		if err := s.access.InvalidateUser(ctx, *result.UserID); err != nil {
			s.logger.Warn("cache invalidation after replay failed", "user_id", *result.UserID, "error", err)
		}
	}
	return result, nil
}

func (s *BillingService) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return s.access.InvalidateUser(ctx, userID)
}

// InvalidateCatalog drops the cached products so price and product edits are
// picked up before the TTL expires.
func (s *BillingService) InvalidateCatalog(ctx context.Context) error {
	return s.access.InvalidateProducts(ctx)
}
