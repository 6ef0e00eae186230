package outbox

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/reformer/internal/shared/domain"
	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyChanged = "billing.entitlement.changed"

type accessChanged struct {
	domain.BaseEvent
	UserID uuid.UUID `json:"user_id"`
}

func newAccessChanged(userID uuid.UUID, withMetadata bool) *accessChanged {
	evt := &accessChanged{
		BaseEvent: domain.NewBaseEvent(userID, "billing.entitlement", keyChanged),
		UserID:    userID,
	}
	if withMetadata {
		evt.SetMetadata(domain.EventMetadata{UserID: userID, CorrelationID: domain.CorrelationFor("evt_1")})
	}
	return evt
}

func newTestMessage(t *testing.T) *Message {
	t.Helper()
	msg, err := NewMessage(newAccessChanged(uuid.New(), true))
	require.NoError(t, err)
	return msg
}

func TestNewMessage(t *testing.T) {
	userID := uuid.New()
	evt := newAccessChanged(userID, true)

	msg, err := NewMessage(evt)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID(), msg.EventID)
	assert.Equal(t, keyChanged, msg.RoutingKey)
	assert.Equal(t, userID, msg.UserID)
	assert.Equal(t, evt.OccurredAt(), msg.CreatedAt)
	assert.Zero(t, msg.ID)
	assert.True(t, msg.Pending())

	d, err := eventbus.Decode(msg.Payload, "")
	require.NoError(t, err)
	assert.Equal(t, evt.EventID(), d.EventID)
	assert.Equal(t, userID, d.UserID)
}

func TestNewMessage_UserFromAggregate(t *testing.T) {
	userID := uuid.New()

	msg, err := NewMessage(newAccessChanged(userID, false))
	require.NoError(t, err)
	assert.Equal(t, userID, msg.UserID)
}

func TestMessage_DueAt(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"fresh", Message{}, true},
		{"retry elapsed", Message{NextAttemptAt: &earlier}, true},
		{"retry at now", Message{NextAttemptAt: &now}, true},
		{"retry pending", Message{NextAttemptAt: &later}, false},
		{"published", Message{PublishedAt: &earlier}, false},
		{"buried", Message{BuriedAt: &earlier}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.DueAt(now))
		})
	}
}
