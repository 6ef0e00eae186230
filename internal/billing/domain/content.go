package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentKind identifies the content table an item lives in.
type ContentKind string

const (
	ContentVideo ContentKind = "video"
	ContentGuide ContentKind = "guide"
)

// ContentItem is a gated piece of content. Items without a ProductID belong
// to the base membership.
type ContentItem struct {
	ID           uuid.UUID   `json:"id"`
	Kind         ContentKind `json:"kind"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	ProductID    *uuid.UUID  `json:"product_id,omitempty"`
	PlaybackID   string      `json:"playback_id,omitempty"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	FileURL      string      `json:"file_url,omitempty"`
	Published    bool        `json:"published"`
	CreatedAt    time.Time   `json:"created_at"`
}

// IsLegacy reports whether the item has no owning product.
func (c ContentItem) IsLegacy() bool {
	return c.ProductID == nil
}
