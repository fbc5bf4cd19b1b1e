package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type curriculumRepository interface {
	UpsertCourse(ctx context.Context, course *models.Course) error
	UpsertModule(ctx context.Context, module *models.CourseModule) error
	UpsertLesson(ctx context.Context, lesson *models.Lesson) error
	DeleteLesson(ctx context.Context, id string) error
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetModule(ctx context.Context, id string) (*models.CourseModule, error)
	ListModulesByCourse(ctx context.Context, courseID string) ([]models.CourseModule, error)
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
	ListLessonsByModule(ctx context.Context, moduleID string) ([]models.Lesson, error)
	ListLessonsByIDs(ctx context.Context, ids []string) ([]models.Lesson, error)
	CommitDraft(ctx context.Context, course *models.Course, modules []models.CourseModule, lessons []models.Lesson) error
}

type curriculumUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type progressPurger interface {
	DeleteByLesson(ctx context.Context, lessonID string) (int64, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// PublishCourseRequest creates or replaces a course shell.
type PublishCourseRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

// PublishModuleRequest creates or replaces a module inside a course.
type PublishModuleRequest struct {
	ID                string   `json:"id"`
	CourseID          string   `json:"course_id" validate:"required"`
	Title             string   `json:"title" validate:"required"`
	Description       string   `json:"description"`
	SortOrder         int      `json:"sort_order"`
	LessonIDs         []string `json:"lesson_ids"`
	RequiredLessonIDs []string `json:"required_lesson_ids"`
	MinScorePercent   float64  `json:"min_score_percent" validate:"gte=0,lte=100"`
}

// PublishLessonRequest creates or replaces a lesson. Republishing leaves
// student attempts alone unless ResetProgress is set explicitly.
type PublishLessonRequest struct {
	ID            string        `json:"id"`
	ModuleID      string        `json:"module_id" validate:"required"`
	Title         string        `json:"title" validate:"required"`
	Content       string        `json:"content"`
	SortOrder     int           `json:"sort_order"`
	BibleQuizes   []models.Quiz `json:"bible_quizzes"`
	NoteQuizes    []models.Quiz `json:"note_quizzes"`
	ResetProgress bool          `json:"reset_progress"`
}

const courseTreeCacheKey = "curriculum:tree"

// CourseTree is the fully expanded curriculum snapshot.
type CourseTree struct {
	Courses []CourseNode `json:"courses"`
}

// CourseNode is one course with its modules and lessons expanded.
type CourseNode struct {
	Course  models.Course `json:"course"`
	Modules []ModuleNode  `json:"modules"`
}

// ModuleNode is one module with its lessons expanded in sequence order.
type ModuleNode struct {
	Module  models.CourseModule `json:"module"`
	Lessons []models.Lesson     `json:"lessons"`
}

// CurriculumService manages the course → module → lesson tree, the effective
// per-user module ordering, and the draft import commit.
type CurriculumService struct {
	repo      curriculumRepository
	users     curriculumUserReader
	attempts  progressPurger
	studyAids progressPurger
	cache     cacheStore
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCurriculumService constructs a CurriculumService instance. cache may be
// nil to disable read caching.
func NewCurriculumService(repo curriculumRepository, users curriculumUserReader, attempts, studyAids progressPurger, cache cacheStore, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CurriculumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &CurriculumService{
		repo:      repo,
		users:     users,
		attempts:  attempts,
		studyAids: studyAids,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// PublishCourse creates or replaces a course.
func (s *CurriculumService) PublishCourse(ctx context.Context, actorID string, req PublishCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		ID:          strings.TrimSpace(req.ID),
		Title:       req.Title,
		Description: req.Description,
		SortOrder:   req.SortOrder,
		CreatedBy:   &actorID,
	}
	if err := s.repo.UpsertCourse(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish course")
	}
	s.invalidateTree(ctx)
	return course, nil
}

// PublishModule creates or replaces a module. Lesson id lists are trimmed.
func (s *CurriculumService) PublishModule(ctx context.Context, actorID string, req PublishModuleRequest) (*models.CourseModule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}

	if _, err := s.repo.GetCourse(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	module := &models.CourseModule{
		ID:                strings.TrimSpace(req.ID),
		CourseID:          req.CourseID,
		Title:             req.Title,
		Description:       req.Description,
		SortOrder:         req.SortOrder,
		LessonIDs:         trimIDs(req.LessonIDs),
		RequiredLessonIDs: trimIDs(req.RequiredLessonIDs),
		MinScorePercent:   req.MinScorePercent,
	}
	if err := s.repo.UpsertModule(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish module")
	}
	s.invalidateTree(ctx)
	return module, nil
}

// PublishLesson creates or replaces a lesson. With ResetProgress set, every
// attempt and study aid tied to the lesson is purged.
func (s *CurriculumService) PublishLesson(ctx context.Context, actorID string, req PublishLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	if _, err := s.repo.GetModule(ctx, req.ModuleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}

	bible, err := marshalQuizzes(req.BibleQuizes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bible quizzes")
	}
	note, err := marshalQuizzes(req.NoteQuizes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note quizzes")
	}

	lesson := &models.Lesson{
		ID:          strings.TrimSpace(req.ID),
		ModuleID:    req.ModuleID,
		Title:       req.Title,
		Content:     req.Content,
		SortOrder:   req.SortOrder,
		BibleQuizes: bible,
		NoteQuizes:  note,
	}
	if err := s.repo.UpsertLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish lesson")
	}

	if req.ResetProgress {
		s.purgeLessonProgress(ctx, actorID, lesson.ID)
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionLessonPublish,
		Resource:   "lesson",
		ResourceID: &lesson.ID,
		NewValues:  []byte(fmt.Sprintf(`{"reset_progress":%t}`, req.ResetProgress)),
	}); err != nil {
		s.logger.Warn("failed to record lesson publish audit log", zap.Error(err))
	}

	s.invalidateTree(ctx)
	return lesson, nil
}

// DeleteLesson removes a lesson and purges the progress tied to it.
func (s *CurriculumService) DeleteLesson(ctx context.Context, actorID, lessonID string) error {
	if _, err := s.repo.GetLesson(ctx, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	if err := s.repo.DeleteLesson(ctx, lessonID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lesson")
	}
	s.purgeLessonProgress(ctx, actorID, lessonID)

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionLessonDelete,
		Resource:   "lesson",
		ResourceID: &lessonID,
	}); err != nil {
		s.logger.Warn("failed to record lesson delete audit log", zap.Error(err))
	}

	s.invalidateTree(ctx)
	return nil
}

// GetCourseTree returns the full curriculum, served from cache when enabled.
// The second return value reports whether the cache served the response.
func (s *CurriculumService) GetCourseTree(ctx context.Context) (*CourseTree, bool, error) {
	if s.cache != nil {
		var cached CourseTree
		if err := s.cache.Get(ctx, courseTreeCacheKey, &cached); err == nil {
			return &cached, true, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("course tree cache read failed", zap.Error(err))
		}
	}

	courses, err := s.repo.ListCourses(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	tree := &CourseTree{Courses: make([]CourseNode, 0, len(courses))}
	for _, course := range courses {
		modules, err := s.repo.ListModulesByCourse(ctx, course.ID)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
		}
		node := CourseNode{Course: course, Modules: make([]ModuleNode, 0, len(modules))}
		for _, module := range modules {
			lessons, err := s.moduleLessons(ctx, &module)
			if err != nil {
				return nil, false, err
			}
			node.Modules = append(node.Modules, ModuleNode{Module: module, Lessons: lessons})
		}
		tree.Courses = append(tree.Courses, node)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, courseTreeCacheKey, tree, s.cacheTTL); err != nil {
			s.logger.Warn("course tree cache write failed", zap.Error(err))
		}
	}
	return tree, false, nil
}

// GetLesson returns a single lesson.
func (s *CurriculumService) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.repo.GetLesson(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// GetModule returns a single module.
func (s *CurriculumService) GetModule(ctx context.Context, id string) (*models.CourseModule, error) {
	module, err := s.repo.GetModule(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return module, nil
}

// EffectiveModules returns a course's modules in the order the given user
// should see them. Precedence: the user's mentor's saved order, then the
// organization's, then the user's own, then the default sort.
func (s *CurriculumService) EffectiveModules(ctx context.Context, userID, courseID string) ([]models.CourseModule, error) {
	modules, err := s.repo.ListModulesByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	if userID == "" {
		return modules, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return modules, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	for _, source := range s.orderSources(ctx, user) {
		if seq, ok := moduleOrderFor(source, courseID); ok {
			return applyModuleOrder(modules, seq), nil
		}
	}
	return modules, nil
}

// GetAdjacentLessons resolves the previous and next lesson around the given
// lesson in the user's effective ordering. Modules without lessons are
// skipped.
func (s *CurriculumService) GetAdjacentLessons(ctx context.Context, userID, lessonID string) (*models.AdjacentLessons, error) {
	lesson, err := s.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	module, err := s.GetModule(ctx, lesson.ModuleID)
	if err != nil {
		return nil, err
	}

	modules, err := s.EffectiveModules(ctx, userID, module.CourseID)
	if err != nil {
		return nil, err
	}

	var sequence []string
	for i := range modules {
		lessons, err := s.moduleLessons(ctx, &modules[i])
		if err != nil {
			return nil, err
		}
		for _, l := range lessons {
			sequence = append(sequence, l.ID)
		}
	}

	adj := &models.AdjacentLessons{}
	for i, id := range sequence {
		if id != lessonID {
			continue
		}
		if i > 0 {
			prev := sequence[i-1]
			adj.PrevLessonID = &prev
		}
		if i < len(sequence)-1 {
			next := sequence[i+1]
			adj.NextLessonID = &next
		}
		return adj, nil
	}
	return adj, nil
}

// CommitDraft persists an imported course bundle atomically. IDs inside the
// draft are trimmed; missing ids are generated during the upserts.
func (s *CurriculumService) CommitDraft(ctx context.Context, actorID string, draft models.CourseDraft) (*models.Course, error) {
	if err := s.validator.Struct(draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course draft")
	}

	now := time.Now().UTC()
	course := &models.Course{
		ID:          strings.TrimSpace(draft.ID),
		Title:       draft.Title,
		Description: draft.Description,
		SortOrder:   draft.SortOrder,
		CreatedBy:   &actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if course.ID == "" {
		course.ID = uuid.NewString()
	}

	var modules []models.CourseModule
	var lessons []models.Lesson
	for _, md := range draft.Modules {
		module := models.CourseModule{
			ID:              strings.TrimSpace(md.ID),
			CourseID:        course.ID,
			Title:           md.Title,
			Description:     md.Description,
			SortOrder:       md.SortOrder,
			MinScorePercent: md.MinScorePercent,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if module.ID == "" {
			module.ID = uuid.NewString()
		}

		lessonIDs := make(pq.StringArray, 0, len(md.Lessons))
		for _, ld := range md.Lessons {
			bible, err := marshalQuizzes(ld.BibleQuizes)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bible quizzes in draft")
			}
			note, err := marshalQuizzes(ld.NoteQuizes)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note quizzes in draft")
			}
			lesson := models.Lesson{
				ID:          strings.TrimSpace(ld.ID),
				ModuleID:    module.ID,
				Title:       ld.Title,
				Content:     ld.Content,
				SortOrder:   ld.SortOrder,
				BibleQuizes: bible,
				NoteQuizes:  note,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if lesson.ID == "" {
				lesson.ID = uuid.NewString()
			}
			lessonIDs = append(lessonIDs, lesson.ID)
			lessons = append(lessons, lesson)
		}
		module.LessonIDs = lessonIDs
		module.RequiredLessonIDs = pq.StringArray{}
		modules = append(modules, module)
	}

	if err := s.repo.CommitDraft(ctx, course, modules, lessons); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit course draft")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionDraftCommit,
		Resource:   "course",
		ResourceID: &course.ID,
		NewValues:  []byte(fmt.Sprintf(`{"modules":%d,"lessons":%d}`, len(modules), len(lessons))),
	}); err != nil {
		s.logger.Warn("failed to record draft commit audit log", zap.Error(err))
	}

	s.invalidateTree(ctx)
	return course, nil
}

// moduleLessons returns a module's lessons honoring the explicit lesson id
// sequence when one is configured.
func (s *CurriculumService) moduleLessons(ctx context.Context, module *models.CourseModule) ([]models.Lesson, error) {
	if len(module.LessonIDs) == 0 {
		lessons, err := s.repo.ListLessonsByModule(ctx, module.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
		}
		return lessons, nil
	}

	lessons, err := s.repo.ListLessonsByIDs(ctx, module.LessonIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	byID := make(map[string]models.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID] = l
	}
	ordered := make([]models.Lesson, 0, len(module.LessonIDs))
	for _, id := range module.LessonIDs {
		if l, ok := byID[strings.TrimSpace(id)]; ok {
			ordered = append(ordered, l)
		}
	}
	return ordered, nil
}

// orderSources lists the users whose saved module order applies, in
// precedence order.
func (s *CurriculumService) orderSources(ctx context.Context, user *models.User) []*models.User {
	sources := make([]*models.User, 0, 3)
	if user.MentorID != nil {
		if mentor, err := s.users.FindByID(ctx, *user.MentorID); err == nil {
			sources = append(sources, mentor)
		}
	}
	if user.OrganizationID != nil {
		if org, err := s.users.FindByID(ctx, *user.OrganizationID); err == nil {
			sources = append(sources, org)
		}
	}
	sources = append(sources, user)
	return sources
}

func (s *CurriculumService) purgeLessonProgress(ctx context.Context, actorID, lessonID string) {
	var purged int64
	if s.attempts != nil {
		if n, err := s.attempts.DeleteByLesson(ctx, lessonID); err != nil {
			s.logger.Warn("failed to purge attempts", zap.String("lesson_id", lessonID), zap.Error(err))
		} else {
			purged += n
		}
	}
	if s.studyAids != nil {
		if n, err := s.studyAids.DeleteByLesson(ctx, lessonID); err != nil {
			s.logger.Warn("failed to purge study aids", zap.String("lesson_id", lessonID), zap.Error(err))
		} else {
			purged += n
		}
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionProgressReset,
		Resource:   "lesson",
		ResourceID: &lessonID,
		NewValues:  []byte(fmt.Sprintf(`{"purged":%d}`, purged)),
	}); err != nil {
		s.logger.Warn("failed to record progress reset audit log", zap.Error(err))
	}
}

func (s *CurriculumService) invalidateTree(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "curriculum:*"); err != nil {
		s.logger.Warn("failed to invalidate curriculum cache", zap.Error(err))
	}
}

func moduleOrderFor(user *models.User, courseID string) ([]string, bool) {
	if len(user.ModuleOrder) == 0 {
		return nil, false
	}
	order := models.CustomModuleOrder{}
	if err := json.Unmarshal(user.ModuleOrder, &order); err != nil {
		return nil, false
	}
	seq, ok := order[courseID]
	return seq, ok && len(seq) > 0
}

// applyModuleOrder sorts modules by the saved sequence. Modules missing from
// the sequence keep their default order at the tail.
func applyModuleOrder(modules []models.CourseModule, seq []string) []models.CourseModule {
	pos := make(map[string]int, len(seq))
	for i, id := range seq {
		pos[strings.TrimSpace(id)] = i
	}
	ordered := make([]models.CourseModule, 0, len(modules))
	tail := make([]models.CourseModule, 0)
	slots := make([]*models.CourseModule, len(seq))
	for i := range modules {
		if p, ok := pos[modules[i].ID]; ok {
			slots[p] = &modules[i]
		} else {
			tail = append(tail, modules[i])
		}
	}
	for _, m := range slots {
		if m != nil {
			ordered = append(ordered, *m)
		}
	}
	return append(ordered, tail...)
}

func trimIDs(ids []string) pq.StringArray {
	cleaned := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func marshalQuizzes(quizzes []models.Quiz) ([]byte, error) {
	if len(quizzes) == 0 {
		return []byte(`[]`), nil
	}
	for i := range quizzes {
		quizzes[i].ID = strings.TrimSpace(quizzes[i].ID)
	}
	return json.Marshal(quizzes)
}
