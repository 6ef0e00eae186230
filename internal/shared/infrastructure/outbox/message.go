// Package outbox stores entitlement-change events in the same transaction as
// the billing rows that caused them, and relays them to the event bus
// afterwards with retries.
package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/reformer/internal/shared/domain"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// ErrUnknownMessage is returned when a state change names no stored message.
var ErrUnknownMessage = errors.New("outbox message not found")

// Message is one event waiting in the outbox. Payload is the encoded
// eventbus.Delivery and is published unchanged.
type Message struct {
	ID            int64
	EventID       uuid.UUID
	RoutingKey    string
	UserID        uuid.UUID
	Payload       json.RawMessage
	CreatedAt     time.Time
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	PublishedAt   *time.Time
	BuriedAt      *time.Time
}

// NewMessage encodes event for the outbox.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	body, err := eventbus.Encode(event)
	if err != nil {
		return nil, err
	}

	userID := event.Metadata().UserID
	if userID == uuid.Nil {
		userID = event.AggregateID()
	}
	return &Message{
		EventID:    event.EventID(),
		RoutingKey: event.RoutingKey(),
		UserID:     userID,
		Payload:    body,
		CreatedAt:  event.OccurredAt(),
	}, nil
}

// Pending reports whether the message still awaits delivery.
func (m *Message) Pending() bool {
	return m.PublishedAt == nil && m.BuriedAt == nil
}

// DueAt reports whether a pending message may be attempted at now.
func (m *Message) DueAt(now time.Time) bool {
	return m.Pending() && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now))
}
