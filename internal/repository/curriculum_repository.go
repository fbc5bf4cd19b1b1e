package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const (
	courseColumns = `id, title, description, sort_order, created_by, created_at, updated_at`
	moduleColumns = `id, course_id, title, description, sort_order, lesson_ids, required_lesson_ids, min_score_percent, created_at, updated_at`
	lessonColumns = `id, module_id, title, content, sort_order, bible_quizzes, note_quizzes, created_at, updated_at`
)

// CurriculumRepository provides database access for the course → module →
// lesson tree.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository creates a new instance of CurriculumRepository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// UpsertCourse inserts or replaces a course row.
func (r *CurriculumRepository) UpsertCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, sort_order, created_by, created_at, updated_at)
		VALUES (:id, :title, :description, :sort_order, :created_by, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description, sort_order = EXCLUDED.sort_order, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}
	return nil
}

// UpsertModule inserts or replaces a module row.
func (r *CurriculumRepository) UpsertModule(ctx context.Context, module *models.CourseModule) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if module.CreatedAt.IsZero() {
		module.CreatedAt = now
	}
	module.UpdatedAt = now
	if module.LessonIDs == nil {
		module.LessonIDs = pq.StringArray{}
	}
	if module.RequiredLessonIDs == nil {
		module.RequiredLessonIDs = pq.StringArray{}
	}
	const query = `INSERT INTO course_modules (id, course_id, title, description, sort_order, lesson_ids, required_lesson_ids, min_score_percent, created_at, updated_at)
		VALUES (:id, :course_id, :title, :description, :sort_order, :lesson_ids, :required_lesson_ids, :min_score_percent, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET course_id = EXCLUDED.course_id, title = EXCLUDED.title, description = EXCLUDED.description, sort_order = EXCLUDED.sort_order, lesson_ids = EXCLUDED.lesson_ids, required_lesson_ids = EXCLUDED.required_lesson_ids, min_score_percent = EXCLUDED.min_score_percent, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("upsert module: %w", err)
	}
	return nil
}

// UpsertLesson inserts or replaces a lesson row.
func (r *CurriculumRepository) UpsertLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now
	if len(lesson.BibleQuizes) == 0 {
		lesson.BibleQuizes = []byte(`[]`)
	}
	if len(lesson.NoteQuizes) == 0 {
		lesson.NoteQuizes = []byte(`[]`)
	}
	const query = `INSERT INTO lessons (id, module_id, title, content, sort_order, bible_quizzes, note_quizzes, created_at, updated_at)
		VALUES (:id, :module_id, :title, :content, :sort_order, :bible_quizzes, :note_quizzes, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET module_id = EXCLUDED.module_id, title = EXCLUDED.title, content = EXCLUDED.content, sort_order = EXCLUDED.sort_order, bible_quizzes = EXCLUDED.bible_quizzes, note_quizzes = EXCLUDED.note_quizzes, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("upsert lesson: %w", err)
	}
	return nil
}

// DeleteLesson removes a lesson row.
func (r *CurriculumRepository) DeleteLesson(ctx context.Context, id string) error {
	const query = `DELETE FROM lessons WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}

// GetCourse returns a course by id.
func (r *CurriculumRepository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &course, nil
}

// ListCourses returns every course ordered by sort order.
func (r *CurriculumRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses ORDER BY sort_order ASC, created_at ASC`, courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// GetModule returns a module by id.
func (r *CurriculumRepository) GetModule(ctx context.Context, id string) (*models.CourseModule, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_modules WHERE id = $1 LIMIT 1`, moduleColumns)
	var module models.CourseModule
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get module: %w", err)
	}
	return &module, nil
}

// ListModulesByCourse returns the modules of a course in default order.
func (r *CurriculumRepository) ListModulesByCourse(ctx context.Context, courseID string) ([]models.CourseModule, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_modules WHERE course_id = $1 ORDER BY sort_order ASC, created_at ASC`, moduleColumns)
	var modules []models.CourseModule
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules by course: %w", err)
	}
	return modules, nil
}

// ListAllModules returns every module across courses.
func (r *CurriculumRepository) ListAllModules(ctx context.Context) ([]models.CourseModule, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_modules ORDER BY course_id, sort_order ASC`, moduleColumns)
	var modules []models.CourseModule
	if err := r.db.SelectContext(ctx, &modules, query); err != nil {
		return nil, fmt.Errorf("list all modules: %w", err)
	}
	return modules, nil
}

// GetLesson returns a lesson by id.
func (r *CurriculumRepository) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = $1 LIMIT 1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return &lesson, nil
}

// ListLessonsByModule returns a module's lessons in default order.
func (r *CurriculumRepository) ListLessonsByModule(ctx context.Context, moduleID string) ([]models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE module_id = $1 ORDER BY sort_order ASC, created_at ASC`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, moduleID); err != nil {
		return nil, fmt.Errorf("list lessons by module: %w", err)
	}
	return lessons, nil
}

// ListLessonsByIDs returns lessons for the given id set.
func (r *CurriculumRepository) ListLessonsByIDs(ctx context.Context, ids []string) ([]models.Lesson, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = ANY($1)`, lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("list lessons by ids: %w", err)
	}
	return lessons, nil
}

// CommitDraft persists an entire imported course tree in one transaction.
func (r *CurriculumRepository) CommitDraft(ctx context.Context, course *models.Course, modules []models.CourseModule, lessons []models.Lesson) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin draft commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const courseQuery = `INSERT INTO courses (id, title, description, sort_order, created_by, created_at, updated_at)
		VALUES (:id, :title, :description, :sort_order, :created_by, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description, sort_order = EXCLUDED.sort_order, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, courseQuery, course); err != nil {
		return fmt.Errorf("commit draft course: %w", err)
	}

	const moduleQuery = `INSERT INTO course_modules (id, course_id, title, description, sort_order, lesson_ids, required_lesson_ids, min_score_percent, created_at, updated_at)
		VALUES (:id, :course_id, :title, :description, :sort_order, :lesson_ids, :required_lesson_ids, :min_score_percent, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET course_id = EXCLUDED.course_id, title = EXCLUDED.title, description = EXCLUDED.description, sort_order = EXCLUDED.sort_order, lesson_ids = EXCLUDED.lesson_ids, required_lesson_ids = EXCLUDED.required_lesson_ids, min_score_percent = EXCLUDED.min_score_percent, updated_at = EXCLUDED.updated_at`
	for i := range modules {
		if _, err := tx.NamedExecContext(ctx, moduleQuery, &modules[i]); err != nil {
			return fmt.Errorf("commit draft module %s: %w", modules[i].ID, err)
		}
	}

	const lessonQuery = `INSERT INTO lessons (id, module_id, title, content, sort_order, bible_quizzes, note_quizzes, created_at, updated_at)
		VALUES (:id, :module_id, :title, :content, :sort_order, :bible_quizzes, :note_quizzes, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET module_id = EXCLUDED.module_id, title = EXCLUDED.title, content = EXCLUDED.content, sort_order = EXCLUDED.sort_order, bible_quizzes = EXCLUDED.bible_quizzes, note_quizzes = EXCLUDED.note_quizzes, updated_at = EXCLUDED.updated_at`
	for i := range lessons {
		if _, err := tx.NamedExecContext(ctx, lessonQuery, &lessons[i]); err != nil {
			return fmt.Errorf("commit draft lesson %s: %w", lessons[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit draft: %w", err)
	}
	return nil
}
