package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `id, user_id, stripe_customer_id, stripe_subscription_id, status,
	price_id, current_period_end, cancel_at_period_end, created_at, updated_at`

// PostgresSubscriptionRepository implements SubscriptionRepository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// InsertIfAbsent inserts the subscription unless (user_id, stripe_subscription_id) exists.
func (r *PostgresSubscriptionRepository) InsertIfAbsent(ctx context.Context, sub *domain.Subscription) (bool, error) {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, stripe_subscription_id) DO NOTHING
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		sub.ID,
		sub.UserID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		string(sub.Status),
		sub.PriceID,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyPatch updates the rows matching the external subscription id.
func (r *PostgresSubscriptionRepository) ApplyPatch(ctx context.Context, stripeSubscriptionID string, patch domain.SubscriptionPatch) (bool, error) {
	if patch.IsEmpty() {
		return false, nil
	}
	sets, args := buildPatch(patch, time.Now().UTC(),
		func(n int) string { return fmt.Sprintf("$%d", n) },
		func(t *time.Time) any { return t },
		func(b bool) any { return b },
		func(t time.Time) any { return t },
	)
	args = append(args, stripeSubscriptionID)
	query := fmt.Sprintf(`UPDATE subscriptions SET %s WHERE stripe_subscription_id = $%d`, sets, len(args))

	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("patch subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns every subscription for a user, newest first.
func (r *PostgresSubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanPostgresSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// LatestByUser returns the most recently created subscription for a user.
func (r *PostgresSubscriptionRepository) LatestByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.findOne(ctx, query, userID)
}

// FindByStripeID returns the subscription with the external id.
func (r *PostgresSubscriptionRepository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.findOne(ctx, query, stripeSubscriptionID)
}

func (r *PostgresSubscriptionRepository) findOne(ctx context.Context, query string, arg any) (*domain.Subscription, error) {
	sub, err := scanPostgresSubscription(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func scanPostgresSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		status string
	)
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&status,
		&sub.PriceID,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	if sub.CurrentPeriodEnd != nil {
		utc := sub.CurrentPeriodEnd.UTC()
		sub.CurrentPeriodEnd = &utc
	}
	return &sub, nil
}

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
