package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps messages in a slice. Tests use it, as does any
// wiring without a database.
type MemoryRepository struct {
	mu     sync.Mutex
	rows   []*Message
	nextID int64
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	msg.ID = r.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.rows = append(r.rows, msg)
	return nil
}

func (r *MemoryRepository) Due(_ context.Context, now time.Time, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*Message, 0, limit)
	for _, msg := range r.rows {
		if msg.DueAt(now) {
			due = append(due, msg)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryRepository) MarkPublished(_ context.Context, id int64, at time.Time) error {
	return r.update(id, func(msg *Message) {
		msg.PublishedAt = &at
	})
}

func (r *MemoryRepository) Reschedule(_ context.Context, id int64, reason string, next time.Time) error {
	return r.update(id, func(msg *Message) {
		msg.Attempts++
		msg.LastError = reason
		msg.NextAttemptAt = &next
	})
}

func (r *MemoryRepository) Bury(_ context.Context, id int64, reason string, at time.Time) error {
	return r.update(id, func(msg *Message) {
		msg.Attempts++
		msg.LastError = reason
		msg.BuriedAt = &at
	})
}

func (r *MemoryRepository) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rows[:0]
	var purged int64
	for _, msg := range r.rows {
		if msg.PublishedAt != nil && msg.PublishedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, msg)
	}
	r.rows = kept
	return purged, nil
}

// Messages returns every stored message in insertion order.
func (r *MemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.rows...)
}

func (r *MemoryRepository) update(id int64, fn func(*Message)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.rows {
		if msg.ID == id {
			fn(msg)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownMessage, id)
}
