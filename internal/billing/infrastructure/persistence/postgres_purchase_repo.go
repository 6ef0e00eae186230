package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPurchaseRepository implements PurchaseRepository with PostgreSQL.
type PostgresPurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPurchaseRepository creates a new repository.
func NewPostgresPurchaseRepository(pool *pgxpool.Pool) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{pool: pool}
}

// InsertIfAbsent inserts the purchase unless (user_id, price_id) exists.
func (r *PostgresPurchaseRepository) InsertIfAbsent(ctx context.Context, p *domain.OneTimePurchase) (bool, error) {
	query := `
		INSERT INTO one_time_purchases (id, user_id, price_id, stripe_session_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, price_id) DO NOTHING
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		p.ID, p.UserID, p.PriceID, p.StripeSessionID, p.Status, p.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert purchase: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the user's purchases, newest first.
func (r *PostgresPurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.OneTimePurchase, error) {
	query := `
		SELECT id, user_id, price_id, stripe_session_id, status, created_at
		FROM one_time_purchases
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.OneTimePurchase, 0)
	for rows.Next() {
		var p domain.OneTimePurchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.PriceID, &p.StripeSessionID, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

var _ domain.PurchaseRepository = (*PostgresPurchaseRepository)(nil)
