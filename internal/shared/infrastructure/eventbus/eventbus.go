// Package eventbus carries entitlement-change notifications from the outbox
// to every process that caches access summaries. Deliveries go through
// RabbitMQ when a broker is configured and through LocalBus otherwise.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/reformer/internal/shared/domain"
	"github.com/google/uuid"
)

// Publisher sends an encoded delivery under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

// Handler reacts to deliveries on the routing keys it names.
type Handler interface {
	RoutingKeys() []string
	Handle(ctx context.Context, d *Delivery) error
}

// Delivery is the wire form of a domain event.
type Delivery struct {
	EventID       uuid.UUID       `json:"event_id"`
	RoutingKey    string          `json:"routing_key"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	UserID        uuid.UUID       `json:"user_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// ErrMalformed marks a body that is not a Delivery. Retrying it cannot help.
var ErrMalformed = errors.New("malformed delivery")

// Encode wraps event in a Delivery. The event's own JSON becomes the payload.
func Encode(event domain.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.RoutingKey(), err)
	}

	meta := event.Metadata()
	d := Delivery{
		EventID:     event.EventID(),
		RoutingKey:  event.RoutingKey(),
		AggregateID: event.AggregateID(),
		UserID:      meta.UserID,
		OccurredAt:  event.OccurredAt(),
		Payload:     payload,
	}
	if meta.CorrelationID != uuid.Nil {
		d.CorrelationID = meta.CorrelationID.String()
	}
	return json.Marshal(d)
}

// Decode parses body. routingKey fills in a delivery that omits its own.
func Decode(body []byte, routingKey string) (*Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d.RoutingKey == "" {
		d.RoutingKey = routingKey
	}
	if d.RoutingKey == "" {
		return nil, fmt.Errorf("%w: no routing key", ErrMalformed)
	}
	return &d, nil
}
