package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const attemptColumns = `id, student_id, lesson_id, quiz_id, selected_option_id, correct, created_at`

// AttemptRepository provides database access for the append-only attempt log.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates a new instance of AttemptRepository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create appends an attempt. Attempts are never updated in place.
func (r *AttemptRepository) Create(ctx context.Context, attempt *models.StudentAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_attempts (id, student_id, lesson_id, quiz_id, selected_option_id, correct, created_at) VALUES (:id, :student_id, :lesson_id, :quiz_id, :selected_option_id, :correct, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// ListByStudentLesson returns every attempt for a (student, lesson) pair in
// submission order.
func (r *AttemptRepository) ListByStudentLesson(ctx context.Context, studentID, lessonID string) ([]models.StudentAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_attempts WHERE student_id = $1 AND lesson_id = $2 ORDER BY created_at ASC`, attemptColumns)
	var attempts []models.StudentAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID, lessonID); err != nil {
		return nil, fmt.Errorf("list attempts by student lesson: %w", err)
	}
	return attempts, nil
}

// ListByStudent returns every attempt for a student in submission order.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_attempts WHERE student_id = $1 ORDER BY created_at ASC`, attemptColumns)
	var attempts []models.StudentAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID); err != nil {
		return nil, fmt.Errorf("list attempts by student: %w", err)
	}
	return attempts, nil
}

// LatestPerQuiz returns the most recent attempt for each quiz of a (student,
// lesson) pair. Only these rows count for scoring.
func (r *AttemptRepository) LatestPerQuiz(ctx context.Context, studentID, lessonID string) ([]models.StudentAttempt, error) {
	query := fmt.Sprintf(`SELECT DISTINCT ON (quiz_id) %s FROM student_attempts WHERE student_id = $1 AND lesson_id = $2 ORDER BY quiz_id, created_at DESC`, attemptColumns)
	var attempts []models.StudentAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID, lessonID); err != nil {
		return nil, fmt.Errorf("latest attempts per quiz: %w", err)
	}
	return attempts, nil
}

// DeleteByLesson purges every attempt tied to a lesson. Used only by the
// explicit progress reset on lesson republish.
func (r *AttemptRepository) DeleteByLesson(ctx context.Context, lessonID string) (int64, error) {
	const query = `DELETE FROM student_attempts WHERE lesson_id = $1`
	res, err := r.db.ExecContext(ctx, query, lessonID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts by lesson: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
