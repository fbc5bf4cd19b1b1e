package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const contentColumns = `id, kind, title, body, link_url, pinned, created_by, published_at, created_at, updated_at`

// ContentRepository provides database access for resources and news items.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new instance of ContentRepository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts a content item.
func (r *ContentRepository) Create(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO content_items (id, kind, title, body, link_url, pinned, created_by, published_at, created_at, updated_at) VALUES (:id, :kind, :title, :body, :link_url, :pinned, :created_by, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create content item: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a content item.
func (r *ContentRepository) Update(ctx context.Context, item *models.ContentItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE content_items SET title = :title, body = :body, link_url = :link_url, pinned = :pinned, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update content item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a content item by id.
func (r *ContentRepository) FindByID(ctx context.Context, id string) (*models.ContentItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_items WHERE id = $1 LIMIT 1`, contentColumns)
	var item models.ContentItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find content item: %w", err)
	}
	return &item, nil
}

// List returns content items matching the filter. Pinned items lead, then
// newest first.
func (r *ContentRepository) List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM content_items WHERE %s ORDER BY pinned DESC, published_at DESC LIMIT %d OFFSET %d`,
		contentColumns, where, pageSize, offset)
	var items []models.ContentItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list content items: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM content_items WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count content items: %w", err)
	}

	return items, total, nil
}

// Delete removes a content item.
func (r *ContentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM content_items WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete content item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
