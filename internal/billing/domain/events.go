package domain

import (
	sharedDomain "github.com/felixgeelhaar/reformer/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	// AggregateTypeEntitlement names the per-user entitlement aggregate.
	AggregateTypeEntitlement = "billing.entitlement"

	// RoutingKeyEntitlementChanged is published after a reconciled mutation.
	RoutingKeyEntitlementChanged = "billing.entitlement.changed"
)

// EntitlementChanged signals that a user's entitlements were mutated.
type EntitlementChanged struct {
	sharedDomain.BaseEvent
	UserID          uuid.UUID `json:"user_id"`
	SourceEventID   string    `json:"source_event_id"`
	SourceEventType string    `json:"source_event_type"`
}

// NewEntitlementChanged creates the event for a user.
func NewEntitlementChanged(userID uuid.UUID, sourceEventID, sourceEventType string) *EntitlementChanged {
	evt := &EntitlementChanged{
		BaseEvent:       sharedDomain.NewBaseEvent(userID, AggregateTypeEntitlement, RoutingKeyEntitlementChanged),
		UserID:          userID,
		SourceEventID:   sourceEventID,
		SourceEventType: sourceEventType,
	}
	evt.SetMetadata(sharedDomain.EventMetadata{
		CorrelationID: sharedDomain.CorrelationFor(sourceEventID),
		UserID:        userID,
	})
	return evt
}
