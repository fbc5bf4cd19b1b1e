package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const studyAidColumns = `id, user_id, lesson_id, kind, payload, updated_at`

// StudyRepository provides database access for per-lesson study aids.
type StudyRepository struct {
	db *sqlx.DB
}

// NewStudyRepository creates a new instance of StudyRepository.
func NewStudyRepository(db *sqlx.DB) *StudyRepository {
	return &StudyRepository{db: db}
}

// Upsert stores a study aid document, replacing any previous payload for the
// same (user, lesson, kind) key.
func (r *StudyRepository) Upsert(ctx context.Context, aid *models.StudyAid) error {
	if aid.ID == "" {
		aid.ID = uuid.NewString()
	}
	aid.UpdatedAt = time.Now().UTC()
	if len(aid.Payload) == 0 {
		aid.Payload = []byte(`[]`)
	}
	const query = `INSERT INTO study_aids (id, user_id, lesson_id, kind, payload, updated_at)
		VALUES (:id, :user_id, :lesson_id, :kind, :payload, :updated_at)
		ON CONFLICT (user_id, lesson_id, kind) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, aid); err != nil {
		return fmt.Errorf("upsert study aid: %w", err)
	}
	return nil
}

// Get returns the study aid for a (user, lesson, kind) key.
func (r *StudyRepository) Get(ctx context.Context, userID, lessonID string, kind models.StudyAidKind) (*models.StudyAid, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_aids WHERE user_id = $1 AND lesson_id = $2 AND kind = $3 LIMIT 1`, studyAidColumns)
	var aid models.StudyAid
	if err := r.db.GetContext(ctx, &aid, query, userID, lessonID, kind); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get study aid: %w", err)
	}
	return &aid, nil
}

// ListByUserLesson returns every study aid a user has for a lesson.
func (r *StudyRepository) ListByUserLesson(ctx context.Context, userID, lessonID string) ([]models.StudyAid, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_aids WHERE user_id = $1 AND lesson_id = $2 ORDER BY kind ASC`, studyAidColumns)
	var aids []models.StudyAid
	if err := r.db.SelectContext(ctx, &aids, query, userID, lessonID); err != nil {
		return nil, fmt.Errorf("list study aids: %w", err)
	}
	return aids, nil
}

// DeleteByLesson purges every study aid tied to a lesson. Used only by the
// explicit progress reset on lesson republish.
func (r *StudyRepository) DeleteByLesson(ctx context.Context, lessonID string) (int64, error) {
	const query = `DELETE FROM study_aids WHERE lesson_id = $1`
	res, err := r.db.ExecContext(ctx, query, lessonID)
	if err != nil {
		return 0, fmt.Errorf("delete study aids by lesson: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
