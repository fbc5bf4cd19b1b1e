package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type contentRepository interface {
	Create(ctx context.Context, item *models.ContentItem) error
	Update(ctx context.Context, item *models.ContentItem) error
	FindByID(ctx context.Context, id string) (*models.ContentItem, error)
	List(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, int, error)
	Delete(ctx context.Context, id string) error
}

// ContentService publishes resources and news entries for dashboards.
type ContentService struct {
	repo      contentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewContentService constructs a ContentService instance.
func NewContentService(repo contentRepository, validate *validator.Validate, logger *zap.Logger) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ContentService{repo: repo, validator: validate, logger: logger}
}

// CreateContent publishes a new resource or news item.
func (s *ContentService) CreateContent(ctx context.Context, authorID string, req models.CreateContentRequest) (*models.ContentItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}

	item := &models.ContentItem{
		Kind:      models.ContentKind(req.Kind),
		Title:     req.Title,
		Body:      req.Body,
		LinkURL:   req.LinkURL,
		Pinned:    req.Pinned,
		CreatedBy: authorID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create content item")
	}
	return item, nil
}

// UpdateContent edits an existing item.
func (s *ContentService) UpdateContent(ctx context.Context, id string, req models.UpdateContentRequest) (*models.ContentItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}

	item, err := s.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Title = req.Title
	item.Body = req.Body
	item.LinkURL = req.LinkURL
	item.Pinned = req.Pinned

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update content item")
	}
	return item, nil
}

// GetContent returns one item by id.
func (s *ContentService) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content item")
	}
	return item, nil
}

// ListContent returns published items with pagination, pinned items first.
func (s *ContentService) ListContent(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list content items")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// DeleteContent removes an item.
func (s *ContentService) DeleteContent(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "content item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content item")
	}
	return nil
}
