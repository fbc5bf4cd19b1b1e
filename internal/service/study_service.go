package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type studyRepository interface {
	Upsert(ctx context.Context, aid *models.StudyAid) error
	Get(ctx context.Context, userID, lessonID string, kind models.StudyAidKind) (*models.StudyAid, error)
	ListByUserLesson(ctx context.Context, userID, lessonID string) ([]models.StudyAid, error)
}

// StudyService stores per-lesson study aid documents. Saves replace the
// whole document; a later get returns exactly what was stored.
type StudyService struct {
	repo   studyRepository
	logger *zap.Logger
}

// NewStudyService constructs a StudyService instance.
func NewStudyService(repo studyRepository, logger *zap.Logger) *StudyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyService{repo: repo, logger: logger}
}

// SaveAid replaces the study aid document for a (user, lesson, kind) key.
// The payload must be valid JSON; its shape is owned by the client.
func (s *StudyService) SaveAid(ctx context.Context, userID, lessonID, kind string, payload json.RawMessage) (*models.StudyAid, error) {
	if !models.ValidStudyAidKind(kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown study aid kind")
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "study aid payload is not valid JSON")
	}

	aid := &models.StudyAid{
		UserID:   userID,
		LessonID: lessonID,
		Kind:     models.StudyAidKind(kind),
		Payload:  payload,
	}
	if err := s.repo.Upsert(ctx, aid); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save study aid")
	}
	return aid, nil
}

// GetAid returns the stored document for a (user, lesson, kind) key. A
// missing document is an empty payload, not an error.
func (s *StudyService) GetAid(ctx context.Context, userID, lessonID, kind string) (*models.StudyAid, error) {
	if !models.ValidStudyAidKind(kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown study aid kind")
	}

	aid, err := s.repo.Get(ctx, userID, lessonID, models.StudyAidKind(kind))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.StudyAid{
				UserID:   userID,
				LessonID: lessonID,
				Kind:     models.StudyAidKind(kind),
				Payload:  []byte(`[]`),
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study aid")
	}
	return aid, nil
}

// ListAids returns every study aid the user has for a lesson.
func (s *StudyService) ListAids(ctx context.Context, userID, lessonID string) ([]models.StudyAid, error) {
	aids, err := s.repo.ListByUserLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list study aids")
	}
	return aids, nil
}
