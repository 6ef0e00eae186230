package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// sqliteTime has fixed-width fractions so stored timestamps compare as text.
const sqliteTime = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteRepository stores the outbox in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	res, err := sharedPersistence.SQLiteExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO outbox (event_id, routing_key, user_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.EventID.String(), msg.RoutingKey, msg.UserID.String(), string(msg.Payload), stamp(msg.CreatedAt),
	)
	if err != nil {
		return err
	}
	msg.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) Due(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	rows, err := sharedPersistence.SQLiteExecutorFor(ctx, r.db).QueryContext(ctx, `SELECT `+outboxColumns+` FROM outbox
		WHERE published_at IS NULL
		  AND buried_at IS NULL
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`, stamp(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, msg)
	}
	return due, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return r.change(ctx, id, `UPDATE outbox SET published_at = ? WHERE id = ?`, stamp(at))
}

func (r *SQLiteRepository) Reschedule(ctx context.Context, id int64, reason string, next time.Time) error {
	return r.change(ctx, id, `
		UPDATE outbox SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		WHERE id = ?`, reason, stamp(next))
}

func (r *SQLiteRepository) Bury(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.change(ctx, id, `
		UPDATE outbox SET attempts = attempts + 1, last_error = ?, buried_at = ?
		WHERE id = ?`, reason, stamp(at))
}

func (r *SQLiteRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := sharedPersistence.SQLiteExecutorFor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`, stamp(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// change runs an update whose last placeholder is the message id.
func (r *SQLiteRepository) change(ctx context.Context, id int64, query string, args ...any) error {
	res, err := sharedPersistence.SQLiteExecutorFor(ctx, r.db).ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownMessage, id)
	}
	return nil
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg                               Message
		eventID, userID, payload, created string
		lastError                         sql.NullString
		next, published, buried           sql.NullString
	)
	err := rows.Scan(&msg.ID, &eventID, &msg.RoutingKey, &userID, &payload, &created,
		&msg.Attempts, &lastError, &next, &published, &buried)
	if err != nil {
		return nil, err
	}

	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("outbox %d event_id: %w", msg.ID, err)
	}
	if msg.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("outbox %d user_id: %w", msg.ID, err)
	}
	msg.Payload = []byte(payload)
	msg.CreatedAt = unstamp(created)
	msg.LastError = lastError.String
	msg.NextAttemptAt = unstampNull(next)
	msg.PublishedAt = unstampNull(published)
	msg.BuriedAt = unstampNull(buried)
	return &msg, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func unstamp(s string) time.Time {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func unstampNull(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := unstamp(s.String)
	return &t
}
