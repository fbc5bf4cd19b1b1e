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

type attemptRepository interface {
	Create(ctx context.Context, attempt *models.StudentAttempt) error
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentAttempt, error)
	ListByStudentLesson(ctx context.Context, studentID, lessonID string) ([]models.StudentAttempt, error)
	LatestPerQuiz(ctx context.Context, studentID, lessonID string) ([]models.StudentAttempt, error)
}

type progressCurriculumReader interface {
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
	GetModule(ctx context.Context, id string) (*models.CourseModule, error)
	ListAllModules(ctx context.Context) ([]models.CourseModule, error)
	ListLessonsByIDs(ctx context.Context, ids []string) ([]models.Lesson, error)
}

// ProgressService grades attempts and derives lesson and module progress.
// Attempts are append only; every derived number works off the latest
// attempt per quiz.
type ProgressService struct {
	attempts   attemptRepository
	curriculum progressCurriculumReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProgressService constructs a ProgressService instance.
func NewProgressService(attempts attemptRepository, curriculum progressCurriculumReader, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProgressService{attempts: attempts, curriculum: curriculum, validator: validate, logger: logger}
}

// SubmitAttempt grades and appends a quiz answer. Resubmitting the same quiz
// is allowed; the newest answer wins for scoring.
func (s *ProgressService) SubmitAttempt(ctx context.Context, studentID string, req models.SubmitAttemptRequest) (*models.StudentAttempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}

	lesson, err := s.curriculum.GetLesson(ctx, req.LessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	quizzes, err := lesson.Quizzes()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode lesson quizzes")
	}

	var quiz *models.Quiz
	for i := range quizzes {
		if quizzes[i].ID == req.QuizID {
			quiz = &quizzes[i]
			break
		}
	}
	if quiz == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found in lesson")
	}

	attempt := &models.StudentAttempt{
		StudentID:        studentID,
		LessonID:         lesson.ID,
		QuizID:           quiz.ID,
		SelectedOptionID: req.SelectedOptionID,
		Correct:          quiz.CorrectOptionID == req.SelectedOptionID,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attempt")
	}
	return attempt, nil
}

// GetLessonProgress derives one lesson's progress for a student. A lesson is
// complete once every distinct quiz in it has at least one attempt.
func (s *ProgressService) GetLessonProgress(ctx context.Context, studentID, lessonID string) (*models.LessonProgress, error) {
	lesson, err := s.curriculum.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return s.lessonProgress(ctx, studentID, lesson)
}

// GetStudentSummary aggregates progress across every lesson the student has
// touched.
func (s *ProgressService) GetStudentSummary(ctx context.Context, studentID string) (*models.StudentSummary, error) {
	attempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}

	seen := map[string]bool{}
	var lessonIDs []string
	for _, a := range attempts {
		if !seen[a.LessonID] {
			seen[a.LessonID] = true
			lessonIDs = append(lessonIDs, a.LessonID)
		}
	}

	summary := &models.StudentSummary{StudentID: studentID, Lessons: []models.LessonProgress{}}
	if len(lessonIDs) == 0 {
		return summary, nil
	}

	lessons, err := s.curriculum.ListLessonsByIDs(ctx, lessonIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lessons")
	}

	var scoreSum float64
	var completed int
	for i := range lessons {
		progress, err := s.lessonProgress(ctx, studentID, &lessons[i])
		if err != nil {
			return nil, err
		}
		summary.Lessons = append(summary.Lessons, *progress)
		if progress.Completed {
			completed++
			scoreSum += progress.ScorePercent
		}
	}
	summary.LessonsCompleted = completed
	if completed > 0 {
		summary.AverageScore = scoreSum / float64(completed)
	}
	return summary, nil
}

// GetModuleEligibility reports whether a student qualifies for a module
// certificate: every required lesson complete, and the average score across
// required lessons at or above the module threshold.
func (s *ProgressService) GetModuleEligibility(ctx context.Context, studentID, moduleID string) (*models.ModuleEligibility, error) {
	module, err := s.curriculum.GetModule(ctx, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return s.moduleEligibility(ctx, studentID, module)
}

// ListEligibleModules evaluates every module for the student.
func (s *ProgressService) ListEligibleModules(ctx context.Context, studentID string) ([]models.ModuleEligibility, error) {
	modules, err := s.curriculum.ListAllModules(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}

	results := make([]models.ModuleEligibility, 0, len(modules))
	for i := range modules {
		elig, err := s.moduleEligibility(ctx, studentID, &modules[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *elig)
	}
	return results, nil
}

func (s *ProgressService) lessonProgress(ctx context.Context, studentID string, lesson *models.Lesson) (*models.LessonProgress, error) {
	quizCount, err := lesson.QuizCount()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode lesson quizzes")
	}

	latest, err := s.attempts.LatestPerQuiz(ctx, studentID, lesson.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempts")
	}

	correct := 0
	for _, a := range latest {
		if a.Correct {
			correct++
		}
	}

	progress := &models.LessonProgress{
		LessonID:      lesson.ID,
		LessonTitle:   lesson.Title,
		QuizCount:     quizCount,
		Attempted:     len(latest),
		CorrectLatest: correct,
	}
	// Lessons without quizzes count as complete on first touch.
	progress.Completed = quizCount == 0 || len(latest) >= quizCount
	if quizCount > 0 {
		progress.ScorePercent = float64(correct) / float64(quizCount) * 100
	} else if progress.Completed {
		progress.ScorePercent = 100
	}
	return progress, nil
}

func (s *ProgressService) moduleEligibility(ctx context.Context, studentID string, module *models.CourseModule) (*models.ModuleEligibility, error) {
	required := module.RequiredLessons()
	elig := &models.ModuleEligibility{
		ModuleID:      module.ID,
		ModuleTitle:   module.Title,
		CourseID:      module.CourseID,
		RequiredTotal: len(required),
		MinScore:      module.MinScorePercent,
	}
	if len(required) == 0 {
		return elig, nil
	}

	lessons, err := s.curriculum.ListLessonsByIDs(ctx, required)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load required lessons")
	}

	var scoreSum float64
	done := 0
	for i := range lessons {
		progress, err := s.lessonProgress(ctx, studentID, &lessons[i])
		if err != nil {
			return nil, err
		}
		if progress.Completed {
			done++
			scoreSum += progress.ScorePercent
		}
	}
	elig.RequiredDone = done
	if done > 0 {
		elig.AverageScore = scoreSum / float64(done)
	}
	elig.Eligible = done == len(required) && elig.AverageScore >= module.MinScorePercent
	return elig, nil
}
