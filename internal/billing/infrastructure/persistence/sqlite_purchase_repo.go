package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLitePurchaseRepository implements PurchaseRepository with SQLite.
type SQLitePurchaseRepository struct {
	dbConn *sql.DB
}

// NewSQLitePurchaseRepository creates a new repository.
func NewSQLitePurchaseRepository(dbConn *sql.DB) *SQLitePurchaseRepository {
	return &SQLitePurchaseRepository{dbConn: dbConn}
}

// InsertIfAbsent inserts the purchase unless (user_id, price_id) exists.
func (r *SQLitePurchaseRepository) InsertIfAbsent(ctx context.Context, p *domain.OneTimePurchase) (bool, error) {
	query := `
		INSERT INTO one_time_purchases (id, user_id, price_id, stripe_session_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, price_id) DO NOTHING
	`
	res, err := sharedPersistence.SQLiteExecutorFor(ctx, r.dbConn).ExecContext(ctx, query,
		p.ID.String(), p.UserID.String(), p.PriceID, p.StripeSessionID, p.Status, formatTime(p.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByUser returns the user's purchases, newest first.
func (r *SQLitePurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.OneTimePurchase, error) {
	query := `
		SELECT id, user_id, price_id, stripe_session_id, status, created_at
		FROM one_time_purchases
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	rows, err := sharedPersistence.SQLiteExecutorFor(ctx, r.dbConn).QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.OneTimePurchase, 0)
	for rows.Next() {
		var (
			p                       domain.OneTimePurchase
			idStr, userStr, created string
		)
		if err := rows.Scan(&idStr, &userStr, &p.PriceID, &p.StripeSessionID, &p.Status, &created); err != nil {
			return nil, err
		}
		p.ID, _ = uuid.Parse(idStr)
		p.UserID, _ = uuid.Parse(userStr)
		p.CreatedAt = parseTime(created)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

var _ domain.PurchaseRepository = (*SQLitePurchaseRepository)(nil)
