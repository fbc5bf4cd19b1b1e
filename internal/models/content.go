package models

import "time"

// ContentKind separates the publishable content feeds.
type ContentKind string

const (
	ContentResource ContentKind = "RESOURCE"
	ContentNews     ContentKind = "NEWS"
)

// ContentItem is a published resource or news entry shown on dashboards.
type ContentItem struct {
	ID          string      `db:"id" json:"id"`
	Kind        ContentKind `db:"kind" json:"kind"`
	Title       string      `db:"title" json:"title"`
	Body        string      `db:"body" json:"body"`
	LinkURL     *string     `db:"link_url" json:"link_url,omitempty"`
	Pinned      bool        `db:"pinned" json:"pinned"`
	CreatedBy   string      `db:"created_by" json:"created_by"`
	PublishedAt time.Time   `db:"published_at" json:"published_at"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ContentFilter narrows content listings.
type ContentFilter struct {
	Kind     *ContentKind
	Page     int
	PageSize int
}

// CreateContentRequest publishes a resource or news item.
type CreateContentRequest struct {
	Kind    string  `json:"kind" validate:"required,oneof=RESOURCE NEWS"`
	Title   string  `json:"title" validate:"required"`
	Body    string  `json:"body" validate:"required"`
	LinkURL *string `json:"link_url"`
	Pinned  bool    `json:"pinned"`
}

// UpdateContentRequest edits an existing item.
type UpdateContentRequest struct {
	Title   string  `json:"title" validate:"required"`
	Body    string  `json:"body" validate:"required"`
	LinkURL *string `json:"link_url"`
	Pinned  bool    `json:"pinned"`
}
