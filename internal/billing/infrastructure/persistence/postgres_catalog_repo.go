package persistence

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalogRepository reads products and gated content from PostgreSQL.
type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalogRepository creates a new repository.
func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

// List returns every product ordered by price.
func (r *PostgresCatalogRepository) List(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, title, description, price_cents, currency, payment_type, stripe_price_id,
		       COALESCE(video_playback_id, ''), COALESCE(file_url, ''), active, created_at
		FROM products
		ORDER BY price_cents ASC
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var (
			p           domain.Product
			paymentType string
		)
		err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Currency, &paymentType,
			&p.StripePriceID, &p.VideoPlaybackID, &p.FileURL, &p.Active, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		p.PaymentType = domain.PaymentType(paymentType)
		products = append(products, p)
	}
	return products, rows.Err()
}

// FindVideo returns a video by id, or nil.
func (r *PostgresCatalogRepository) FindVideo(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	query := `
		SELECT id, title, description, product_id, playback_id, COALESCE(thumbnail_url, ''), published, created_at
		FROM videos WHERE id = $1
	`
	item, err := scanPostgresVideo(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// ListPublishedVideos returns published videos, newest first.
func (r *PostgresCatalogRepository) ListPublishedVideos(ctx context.Context) ([]domain.ContentItem, error) {
	query := `
		SELECT id, title, description, product_id, playback_id, COALESCE(thumbnail_url, ''), published, created_at
		FROM videos WHERE published = TRUE
		ORDER BY created_at DESC
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ContentItem, 0)
	for rows.Next() {
		item, err := scanPostgresVideo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// FindGuide returns a guide by id, or nil.
func (r *PostgresCatalogRepository) FindGuide(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	query := `SELECT id, title, product_id, file_url, published, created_at FROM guides WHERE id = $1`
	item := domain.ContentItem{Kind: domain.ContentGuide}
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&item.ID, &item.Title, &item.ProductID, &item.FileURL, &item.Published, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func scanPostgresVideo(row pgx.Row) (*domain.ContentItem, error) {
	item := domain.ContentItem{Kind: domain.ContentVideo}
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.ProductID, &item.PlaybackID,
		&item.ThumbnailURL, &item.Published, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

var (
	_ domain.ProductRepository = (*PostgresCatalogRepository)(nil)
	_ domain.ContentRepository = (*PostgresCatalogRepository)(nil)
)
