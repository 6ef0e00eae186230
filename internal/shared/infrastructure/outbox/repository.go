package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages.
type Repository interface {
	// Save appends msg and assigns its ID. It joins the transaction on ctx
	// when there is one.
	Save(ctx context.Context, msg *Message) error

	// Due returns up to limit messages that are pending and whose next
	// attempt is not after now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64, at time.Time) error

	// Reschedule counts a failed attempt and sets when to try again.
	Reschedule(ctx context.Context, id int64, reason string, next time.Time) error

	// Bury counts a final failed attempt. The message is never retried.
	Bury(ctx context.Context, id int64, reason string, at time.Time) error

	// Purge deletes messages published before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}
