package outbox

import (
	"context"
	"fmt"
	"time"

	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `id, event_id, routing_key, user_id, payload, created_at,
	attempts, last_error, next_attempt_at, published_at, buried_at`

// PostgresRepository stores the outbox in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO outbox (event_id, routing_key, user_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		msg.EventID, msg.RoutingKey, msg.UserID, msg.Payload, msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *PostgresRepository) Due(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+outboxColumns+` FROM outbox
		WHERE published_at IS NULL
		  AND buried_at IS NULL
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY created_at, id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPostgresMessage)
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return r.change(ctx, id, `UPDATE outbox SET published_at = $2 WHERE id = $1`, at)
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id int64, reason string, next time.Time) error {
	return r.change(ctx, id, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1`, reason, next)
}

func (r *PostgresRepository) Bury(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.change(ctx, id, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2, buried_at = $3
		WHERE id = $1`, reason, at)
}

func (r *PostgresRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM outbox WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) change(ctx context.Context, id int64, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownMessage, id)
	}
	return nil
}

func scanPostgresMessage(row pgx.CollectableRow) (*Message, error) {
	var (
		msg       Message
		lastError *string
	)
	err := row.Scan(
		&msg.ID,
		&msg.EventID,
		&msg.RoutingKey,
		&msg.UserID,
		&msg.Payload,
		&msg.CreatedAt,
		&msg.Attempts,
		&lastError,
		&msg.NextAttemptAt,
		&msg.PublishedAt,
		&msg.BuriedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastError != nil {
		msg.LastError = *lastError
	}
	return &msg, nil
}
