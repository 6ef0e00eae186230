package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
)

// SQLiteEventLedger records processed processor events in SQLite.
type SQLiteEventLedger struct {
	dbConn *sql.DB
}

// NewSQLiteEventLedger creates a new ledger.
func NewSQLiteEventLedger(dbConn *sql.DB) *SQLiteEventLedger {
	return &SQLiteEventLedger{dbConn: dbConn}
}

// MarkProcessed inserts the event id, reporting false for a known id.
func (l *SQLiteEventLedger) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := sharedPersistence.SQLiteExecutorFor(ctx, l.dbConn).ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, received_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ domain.EventLedger = (*SQLiteEventLedger)(nil)
