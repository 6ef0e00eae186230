package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventLedger records processed processor events in PostgreSQL.
type PostgresEventLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresEventLedger creates a new ledger.
func NewPostgresEventLedger(pool *pgxpool.Pool) *PostgresEventLedger {
	return &PostgresEventLedger{pool: pool}
}

// MarkProcessed inserts the event id, reporting false for a known id.
func (l *PostgresEventLedger) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := sharedPersistence.Executor(ctx, l.pool).Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, received_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ domain.EventLedger = (*PostgresEventLedger)(nil)
