package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteSubscriptionRepository implements SubscriptionRepository with SQLite.
type SQLiteSubscriptionRepository struct {
	dbConn *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(dbConn *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{dbConn: dbConn}
}

func (r *SQLiteSubscriptionRepository) getDB(ctx context.Context) sharedPersistence.SQLiteExecutor {
	return sharedPersistence.SQLiteExecutorFor(ctx, r.dbConn)
}

// InsertIfAbsent inserts the subscription unless (user_id, stripe_subscription_id) exists.
func (r *SQLiteSubscriptionRepository) InsertIfAbsent(ctx context.Context, sub *domain.Subscription) (bool, error) {
	now := time.Now().UTC()
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, stripe_subscription_id) DO NOTHING
	`
	res, err := r.getDB(ctx).ExecContext(ctx, query,
		sub.ID.String(),
		sub.UserID.String(),
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		string(sub.Status),
		sub.PriceID,
		formatNullTime(sub.CurrentPeriodEnd),
		boolToInt(sub.CancelAtPeriodEnd),
		formatTime(createdAt),
		formatTime(updatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyPatch updates the rows matching the external subscription id.
func (r *SQLiteSubscriptionRepository) ApplyPatch(ctx context.Context, stripeSubscriptionID string, patch domain.SubscriptionPatch) (bool, error) {
	if patch.IsEmpty() {
		return false, nil
	}
	sets, args := buildPatch(patch, time.Now().UTC(),
		func(int) string { return "?" },
		func(t *time.Time) any { return formatNullTime(t) },
		func(b bool) any { return boolToInt(b) },
		func(t time.Time) any { return formatTime(t) },
	)
	args = append(args, stripeSubscriptionID)
	query := fmt.Sprintf(`UPDATE subscriptions SET %s WHERE stripe_subscription_id = ?`, sets)

	res, err := r.getDB(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("patch subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByUser returns every subscription for a user, newest first.
func (r *SQLiteSubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.getDB(ctx).QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSQLiteSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// LatestByUser returns the most recently created subscription for a user.
func (r *SQLiteSubscriptionRepository) LatestByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`
	return r.findOne(ctx, query, userID.String())
}

// FindByStripeID returns the subscription with the external id.
func (r *SQLiteSubscriptionRepository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = ? ORDER BY created_at DESC LIMIT 1`
	return r.findOne(ctx, query, stripeSubscriptionID)
}

func (r *SQLiteSubscriptionRepository) findOne(ctx context.Context, query string, arg any) (*domain.Subscription, error) {
	sub, err := scanSQLiteSubscription(r.getDB(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		idStr, userIDStr     string
		stripeCustomerID     string
		stripeSubscriptionID string
		status, priceID      string
		periodEnd            sql.NullString
		cancelAtPeriodEnd    int
		createdAt, updatedAt string
	)
	err := row.Scan(
		&idStr,
		&userIDStr,
		&stripeCustomerID,
		&stripeSubscriptionID,
		&status,
		&priceID,
		&periodEnd,
		&cancelAtPeriodEnd,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, _ := uuid.Parse(idStr)
	userID, _ := uuid.Parse(userIDStr)

	return &domain.Subscription{
		ID:                   id,
		UserID:               userID,
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		Status:               domain.SubscriptionStatus(status),
		PriceID:              priceID,
		CurrentPeriodEnd:     parseNullTime(periodEnd),
		CancelAtPeriodEnd:    cancelAtPeriodEnd != 0,
		CreatedAt:            parseTime(createdAt),
		UpdatedAt:            parseTime(updatedAt),
	}, nil
}

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)
