package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/reformer/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteCatalogRepository reads products and gated content from SQLite.
type SQLiteCatalogRepository struct {
	dbConn *sql.DB
}

// NewSQLiteCatalogRepository creates a new repository.
func NewSQLiteCatalogRepository(dbConn *sql.DB) *SQLiteCatalogRepository {
	return &SQLiteCatalogRepository{dbConn: dbConn}
}

func (r *SQLiteCatalogRepository) getDB(ctx context.Context) sharedPersistence.SQLiteExecutor {
	return sharedPersistence.SQLiteExecutorFor(ctx, r.dbConn)
}

// List returns every product ordered by price.
func (r *SQLiteCatalogRepository) List(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, title, description, price_cents, currency, payment_type, stripe_price_id,
		       COALESCE(video_playback_id, ''), COALESCE(file_url, ''), active, created_at
		FROM products
		ORDER BY price_cents ASC
	`
	rows, err := r.getDB(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var (
			p                  domain.Product
			idStr, paymentType string
			active             int
			createdAt          string
		)
		err := rows.Scan(&idStr, &p.Title, &p.Description, &p.PriceCents, &p.Currency, &paymentType,
			&p.StripePriceID, &p.VideoPlaybackID, &p.FileURL, &active, &createdAt)
		if err != nil {
			return nil, err
		}
		p.ID, _ = uuid.Parse(idStr)
		p.PaymentType = domain.PaymentType(paymentType)
		p.Active = active != 0
		p.CreatedAt = parseTime(createdAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// FindVideo returns a video by id, or nil.
func (r *SQLiteCatalogRepository) FindVideo(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	query := `
		SELECT id, title, description, product_id, playback_id, COALESCE(thumbnail_url, ''), published, created_at
		FROM videos WHERE id = ?
	`
	item, err := scanSQLiteVideo(r.getDB(ctx).QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// ListPublishedVideos returns published videos, newest first.
func (r *SQLiteCatalogRepository) ListPublishedVideos(ctx context.Context) ([]domain.ContentItem, error) {
	query := `
		SELECT id, title, description, product_id, playback_id, COALESCE(thumbnail_url, ''), published, created_at
		FROM videos WHERE published = 1
		ORDER BY created_at DESC
	`
	rows, err := r.getDB(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ContentItem, 0)
	for rows.Next() {
		item, err := scanSQLiteVideo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// FindGuide returns a guide by id, or nil.
func (r *SQLiteCatalogRepository) FindGuide(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	query := `SELECT id, title, product_id, file_url, published, created_at FROM guides WHERE id = ?`
	var (
		idStr, createdAt string
		productID        sql.NullString
		published        int
	)
	item := domain.ContentItem{Kind: domain.ContentGuide}
	err := r.getDB(ctx).QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &item.Title, &productID, &item.FileURL, &published, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	item.ID, _ = uuid.Parse(idStr)
	item.ProductID = parseNullUUID(productID)
	item.Published = published != 0
	item.CreatedAt = parseTime(createdAt)
	return &item, nil
}

func scanSQLiteVideo(row rowScanner) (*domain.ContentItem, error) {
	var (
		idStr, createdAt string
		productID        sql.NullString
		published        int
	)
	item := domain.ContentItem{Kind: domain.ContentVideo}
	err := row.Scan(&idStr, &item.Title, &item.Description, &productID, &item.PlaybackID,
		&item.ThumbnailURL, &published, &createdAt)
	if err != nil {
		return nil, err
	}
	item.ID, _ = uuid.Parse(idStr)
	item.ProductID = parseNullUUID(productID)
	item.Published = published != 0
	item.CreatedAt = parseTime(createdAt)
	return &item, nil
}

var (
	_ domain.ProductRepository = (*SQLiteCatalogRepository)(nil)
	_ domain.ContentRepository = (*SQLiteCatalogRepository)(nil)
)
