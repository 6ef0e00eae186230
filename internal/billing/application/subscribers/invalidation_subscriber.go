package subscribers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// UserInvalidator drops a user's cached entitlements.
type UserInvalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// InvalidationSubscriber evicts the access summary when entitlements change.
type InvalidationSubscriber struct {
	cache  UserInvalidator
	logger *slog.Logger
}

// NewInvalidationSubscriber creates a new invalidation subscriber.
func NewInvalidationSubscriber(cache UserInvalidator, logger *slog.Logger) *InvalidationSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvalidationSubscriber{cache: cache, logger: logger}
}

// RoutingKeys returns the events this subscriber handles.
func (s *InvalidationSubscriber) RoutingKeys() []string {
	return []string{domain.RoutingKeyEntitlementChanged}
}

// Handle processes an event.
func (s *InvalidationSubscriber) Handle(ctx context.Context, event *eventbus.Delivery) error {
	userID := event.UserID
	if userID == uuid.Nil {
		var payload struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logger.Warn("entitlement event payload unreadable",
				"event_id", event.EventID,
				"error", err,
			)
			return nil
		}
		userID = payload.UserID
	}
	if userID == uuid.Nil {
		s.logger.Warn("entitlement event without user", "event_id", event.EventID)
		return nil
	}

	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Debug("access summary invalidated",
		"user_id", userID,
		"event_id", event.EventID,
		"correlation_id", event.CorrelationID,
	)
	return nil
}
