package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type mockCurriculumRepo struct {
	courses map[string]*models.Course
	modules map[string]*models.CourseModule
	lessons map[string]*models.Lesson

	listCourseCalls int
	committed       bool
}

func newMockCurriculumRepo() *mockCurriculumRepo {
	return &mockCurriculumRepo{
		courses: map[string]*models.Course{},
		modules: map[string]*models.CourseModule{},
		lessons: map[string]*models.Lesson{},
	}
}

func (m *mockCurriculumRepo) UpsertCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-" + course.Title
	}
	m.courses[course.ID] = course
	return nil
}

func (m *mockCurriculumRepo) UpsertModule(ctx context.Context, module *models.CourseModule) error {
	if module.ID == "" {
		module.ID = "module-" + module.Title
	}
	m.modules[module.ID] = module
	return nil
}

func (m *mockCurriculumRepo) UpsertLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = "lesson-" + lesson.Title
	}
	m.lessons[lesson.ID] = lesson
	return nil
}

func (m *mockCurriculumRepo) DeleteLesson(ctx context.Context, id string) error {
	delete(m.lessons, id)
	return nil
}

func (m *mockCurriculumRepo) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCurriculumRepo) ListCourses(ctx context.Context) ([]models.Course, error) {
	m.listCourseCalls++
	var out []models.Course
	for _, c := range m.courses {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *mockCurriculumRepo) GetModule(ctx context.Context, id string) (*models.CourseModule, error) {
	if mod, ok := m.modules[id]; ok {
		return mod, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCurriculumRepo) ListModulesByCourse(ctx context.Context, courseID string) ([]models.CourseModule, error) {
	var out []models.CourseModule
	for _, mod := range m.modules {
		if mod.CourseID == courseID {
			out = append(out, *mod)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *mockCurriculumRepo) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		return l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCurriculumRepo) ListLessonsByModule(ctx context.Context, moduleID string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, l := range m.lessons {
		if l.ModuleID == moduleID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *mockCurriculumRepo) ListLessonsByIDs(ctx context.Context, ids []string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, id := range ids {
		if l, ok := m.lessons[id]; ok {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockCurriculumRepo) CommitDraft(ctx context.Context, course *models.Course, modules []models.CourseModule, lessons []models.Lesson) error {
	m.committed = true
	m.courses[course.ID] = course
	for i := range modules {
		mod := modules[i]
		m.modules[mod.ID] = &mod
	}
	for i := range lessons {
		l := lessons[i]
		m.lessons[l.ID] = &l
	}
	return nil
}

type mockPurger struct {
	purged []string
}

func (m *mockPurger) DeleteByLesson(ctx context.Context, lessonID string) (int64, error) {
	m.purged = append(m.purged, lessonID)
	return 1, nil
}

type mapCache struct {
	values map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string][]byte{}}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.values = map[string][]byte{}
	return nil
}

func moduleOrderJSON(t *testing.T, order models.CustomModuleOrder) []byte {
	t.Helper()
	raw, err := json.Marshal(order)
	require.NoError(t, err)
	return raw
}

func curriculumFixture() *mockCurriculumRepo {
	repo := newMockCurriculumRepo()
	repo.courses["c1"] = &models.Course{ID: "c1", Title: "Old Testament Leaders", SortOrder: 1}
	repo.modules["modA"] = &models.CourseModule{ID: "modA", CourseID: "c1", Title: "Genesis", SortOrder: 1,
		LessonIDs: []string{"l1", "l2"}}
	repo.modules["modB"] = &models.CourseModule{ID: "modB", CourseID: "c1", Title: "Exodus", SortOrder: 2,
		LessonIDs: []string{"l3"}}
	repo.lessons["l1"] = &models.Lesson{ID: "l1", ModuleID: "modA", Title: "Creation", SortOrder: 1}
	repo.lessons["l2"] = &models.Lesson{ID: "l2", ModuleID: "modA", Title: "Abraham", SortOrder: 2}
	repo.lessons["l3"] = &models.Lesson{ID: "l3", ModuleID: "modB", Title: "Moses", SortOrder: 1}
	return repo
}

func moduleIDs(modules []models.CourseModule) []string {
	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestEffectiveModulesDefaultOrder(t *testing.T) {
	repo := curriculumFixture()
	svc := NewCurriculumService(repo, newMockUserRepo(), nil, nil, nil, time.Minute, nil, zap.NewNop())

	modules, err := svc.EffectiveModules(context.Background(), "", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"modA", "modB"}, moduleIDs(modules))
}

func TestEffectiveModulesMentorOrderWins(t *testing.T) {
	repo := curriculumFixture()
	mentorID := "m1"
	orgID := "org1"
	users := newMockUserRepo(
		&models.User{ID: mentorID, Email: "mentor@example.com", Role: models.RoleMentor, Active: true,
			ModuleOrder: moduleOrderJSON(t, models.CustomModuleOrder{"c1": {"modB", "modA"}})},
		&models.User{ID: orgID, Email: "org@example.com", Role: models.RoleOrganization, Active: true,
			ModuleOrder: moduleOrderJSON(t, models.CustomModuleOrder{"c1": {"modA", "modB"}})},
		&models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true,
			MentorID: &mentorID, OrganizationID: &orgID,
			ModuleOrder: moduleOrderJSON(t, models.CustomModuleOrder{"c1": {"modA", "modB"}})},
	)
	svc := NewCurriculumService(repo, users, nil, nil, nil, time.Minute, nil, zap.NewNop())

	modules, err := svc.EffectiveModules(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"modB", "modA"}, moduleIDs(modules))
}

func TestEffectiveModulesFallsBackToOrgThenSelf(t *testing.T) {
	repo := curriculumFixture()
	orgID := "org1"
	users := newMockUserRepo(
		&models.User{ID: orgID, Email: "org@example.com", Role: models.RoleOrganization, Active: true,
			ModuleOrder: moduleOrderJSON(t, models.CustomModuleOrder{"c1": {"modB", "modA"}})},
		&models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true,
			OrganizationID: &orgID},
		&models.User{ID: "solo", Email: "solo@example.com", Role: models.RoleStudent, Active: true,
			ModuleOrder: moduleOrderJSON(t, models.CustomModuleOrder{"c1": {"modB", "modA"}})},
	)
	svc := NewCurriculumService(repo, users, nil, nil, nil, time.Minute, nil, zap.NewNop())

	modules, err := svc.EffectiveModules(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"modB", "modA"}, moduleIDs(modules))

	modules, err = svc.EffectiveModules(context.Background(), "solo", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"modB", "modA"}, moduleIDs(modules))
}

func TestEffectiveModulesUnknownIDsKeepTail(t *testing.T) {
	repo := curriculumFixture()
	users := newMockUserRepo(&models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent,
		Active:      true,
		ModuleOrder: moduleOrderJSON(t, models.CustomModuleOrder{"c1": {"modB", "ghost"}})})
	svc := NewCurriculumService(repo, users, nil, nil, nil, time.Minute, nil, zap.NewNop())

	modules, err := svc.EffectiveModules(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"modB", "modA"}, moduleIDs(modules))
}

func TestAdjacentLessonsAcrossModules(t *testing.T) {
	repo := curriculumFixture()
	svc := NewCurriculumService(repo, newMockUserRepo(), nil, nil, nil, time.Minute, nil, zap.NewNop())

	// l2 sits between l1 and l3 in the default sequence.
	adj, err := svc.GetAdjacentLessons(context.Background(), "", "l2")
	require.NoError(t, err)
	require.NotNil(t, adj.PrevLessonID)
	assert.Equal(t, "l1", *adj.PrevLessonID)
	require.NotNil(t, adj.NextLessonID)
	assert.Equal(t, "l3", *adj.NextLessonID)

	adj, err = svc.GetAdjacentLessons(context.Background(), "", "l1")
	require.NoError(t, err)
	assert.Nil(t, adj.PrevLessonID)
	require.NotNil(t, adj.NextLessonID)
	assert.Equal(t, "l2", *adj.NextLessonID)

	adj, err = svc.GetAdjacentLessons(context.Background(), "", "l3")
	require.NoError(t, err)
	require.NotNil(t, adj.PrevLessonID)
	assert.Equal(t, "l2", *adj.PrevLessonID)
	assert.Nil(t, adj.NextLessonID)
}

func TestGetCourseTreeUsesCache(t *testing.T) {
	repo := curriculumFixture()
	cache := newMapCache()
	svc := NewCurriculumService(repo, newMockUserRepo(), nil, nil, cache, time.Minute, nil, zap.NewNop())

	tree, cacheHit, err := svc.GetCourseTree(context.Background())
	require.NoError(t, err)
	require.Len(t, tree.Courses, 1)
	assert.Len(t, tree.Courses[0].Modules, 2)
	assert.False(t, cacheHit)
	assert.Equal(t, 1, repo.listCourseCalls)

	_, cacheHit, err = svc.GetCourseTree(context.Background())
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, 1, repo.listCourseCalls)
}

func TestPublishLessonInvalidatesCache(t *testing.T) {
	repo := curriculumFixture()
	cache := newMapCache()
	users := newMockUserRepo()
	svc := NewCurriculumService(repo, users, nil, nil, cache, time.Minute, nil, zap.NewNop())

	_, _, err := svc.GetCourseTree(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cache.values)

	_, err = svc.PublishLesson(context.Background(), "admin", PublishLessonRequest{
		ModuleID: "modA",
		Title:    "Joseph",
	})
	require.NoError(t, err)
	assert.Empty(t, cache.values)
}

func TestPublishLessonResetPurgesProgress(t *testing.T) {
	repo := curriculumFixture()
	attempts := &mockPurger{}
	studyAids := &mockPurger{}
	users := newMockUserRepo()
	svc := NewCurriculumService(repo, users, attempts, studyAids, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.PublishLesson(context.Background(), "admin", PublishLessonRequest{
		ID:            "l1",
		ModuleID:      "modA",
		Title:         "Creation (revised)",
		ResetProgress: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, attempts.purged)
	assert.Equal(t, []string{"l1"}, studyAids.purged)
}

func TestPublishLessonKeepsProgressByDefault(t *testing.T) {
	repo := curriculumFixture()
	attempts := &mockPurger{}
	svc := NewCurriculumService(repo, newMockUserRepo(), attempts, &mockPurger{}, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.PublishLesson(context.Background(), "admin", PublishLessonRequest{
		ID:       "l1",
		ModuleID: "modA",
		Title:    "Creation (revised)",
	})
	require.NoError(t, err)
	assert.Empty(t, attempts.purged)
}

func TestDeleteLessonPurgesProgress(t *testing.T) {
	repo := curriculumFixture()
	attempts := &mockPurger{}
	studyAids := &mockPurger{}
	svc := NewCurriculumService(repo, newMockUserRepo(), attempts, studyAids, nil, time.Minute, nil, zap.NewNop())

	require.NoError(t, svc.DeleteLesson(context.Background(), "admin", "l1"))
	assert.Equal(t, []string{"l1"}, attempts.purged)
	assert.Equal(t, []string{"l1"}, studyAids.purged)
	_, err := svc.GetLesson(context.Background(), "l1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPublishModuleRequiresCourse(t *testing.T) {
	repo := curriculumFixture()
	svc := NewCurriculumService(repo, newMockUserRepo(), nil, nil, nil, time.Minute, nil, zap.NewNop())

	_, err := svc.PublishModule(context.Background(), "admin", PublishModuleRequest{
		CourseID: "ghost",
		Title:    "Orphan",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCommitDraftGeneratesIDs(t *testing.T) {
	repo := newMockCurriculumRepo()
	users := newMockUserRepo()
	svc := NewCurriculumService(repo, users, nil, nil, nil, time.Minute, nil, zap.NewNop())

	course, err := svc.CommitDraft(context.Background(), "admin", models.CourseDraft{
		Title: "New Testament Leaders",
		Modules: []models.ModuleDraft{
			{Title: "Gospels", MinScorePercent: 70, Lessons: []models.LessonDraft{
				{Title: "John the Baptist"},
				{Title: "The Twelve"},
			}},
		},
	})
	require.NoError(t, err)
	assert.True(t, repo.committed)
	assert.NotEmpty(t, course.ID)
	require.Len(t, repo.modules, 1)
	for _, mod := range repo.modules {
		assert.Equal(t, course.ID, mod.CourseID)
		assert.Len(t, mod.LessonIDs, 2)
		for _, lessonID := range mod.LessonIDs {
			_, ok := repo.lessons[lessonID]
			assert.True(t, ok)
		}
	}
}
