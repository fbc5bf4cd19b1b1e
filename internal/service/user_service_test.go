package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

const testAdminEmail = "admin@bbl.test"

type mockUserRepo struct {
	usersByID    map[string]*models.User
	usersByEmail map[string]*models.User

	created      []*models.User
	updatedRoles map[string]models.UserRole
	deleted      []string
	parentLinks  map[string]string
	auditLogs    []*models.AuditLog
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{
		usersByID:    map[string]*models.User{},
		usersByEmail: map[string]*models.User{},
		updatedRoles: map[string]models.UserRole{},
		parentLinks:  map[string]string{},
	}
	for _, u := range users {
		m.usersByID[u.ID] = u
		m.usersByEmail[u.Email] = u
	}
	return m
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.usersByID {
		if filter.OrganizationID != "" && (u.OrganizationID == nil || *u.OrganizationID != filter.OrganizationID) {
			continue
		}
		if filter.MentorID != "" && (u.MentorID == nil || *u.MentorID != filter.MentorID) {
			continue
		}
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "id-" + user.Email
	}
	m.created = append(m.created, user)
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole, allowedRoles []string) error {
	m.updatedRoles[id] = role
	return nil
}

func (m *mockUserRepo) LinkParent(ctx context.Context, parentID, studentID string) error {
	m.parentLinks[parentID] = studentID
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func rootAdminUser() *models.User {
	return &models.User{ID: "root", Email: testAdminEmail, Role: models.RoleAdmin, Active: true}
}

func TestDeleteUserProtectsRootAdmin(t *testing.T) {
	repo := newMockUserRepo(rootAdminUser())
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	err := svc.DeleteUser(context.Background(), "actor", "root")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrProtectedResource))
	assert.Empty(t, repo.deleted)
}

func TestUpdateRoleProtectsRootAdmin(t *testing.T) {
	repo := newMockUserRepo(rootAdminUser())
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	_, err := svc.UpdateUserRole(context.Background(), "actor", "root", UpdateRoleRequest{Role: "STUDENT"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrProtectedResource))
	assert.Empty(t, repo.updatedRoles)
}

func TestUpdateRoleResetsAllowedRoles(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleStudent,
		AllowedRoles: []string{"STUDENT", "MENTOR"}, Active: true}
	repo := newMockUserRepo(user)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	updated, err := svc.UpdateUserRole(context.Background(), "actor", "u1", UpdateRoleRequest{Role: "organization"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganization, updated.Role)
	assert.Equal(t, []string{"ORGANIZATION"}, []string(updated.AllowedRoles))
	assert.Equal(t, models.RoleOrganization, repo.updatedRoles["u1"])
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionRoleUpdate, repo.auditLogs[0].Action)
}

func TestDeleteUserSoftDeletes(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleStudent, Active: true}
	repo := newMockUserRepo(user)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	require.NoError(t, svc.DeleteUser(context.Background(), "actor", "u1"))
	assert.Equal(t, []string{"u1"}, repo.deleted)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[0].Action)
}

func TestCreateMemberByMentorLinksHierarchy(t *testing.T) {
	orgID := "org1"
	mentor := &models.User{ID: "m1", Email: "mentor@example.com", Role: models.RoleMentor,
		OrganizationID: &orgID, Active: true}
	repo := newMockUserRepo(mentor)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	user, err := svc.CreateMember(context.Background(), "m1", CreateMemberRequest{
		FullName: "Student",
		Email:    "student@example.com",
		Password: "password",
		Role:     "STUDENT",
	})
	require.NoError(t, err)
	require.NotNil(t, user.MentorID)
	assert.Equal(t, "m1", *user.MentorID)
	require.NotNil(t, user.OrganizationID)
	assert.Equal(t, orgID, *user.OrganizationID)
	assert.True(t, user.Verified)
	assert.True(t, user.Active)
}

func TestCreateMemberByOrganization(t *testing.T) {
	org := &models.User{ID: "org1", Email: "org@example.com", Role: models.RoleOrganization, Active: true}
	repo := newMockUserRepo(org)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	user, err := svc.CreateMember(context.Background(), "org1", CreateMemberRequest{
		FullName: "Mentor",
		Email:    "mentor@example.com",
		Password: "password",
		Role:     "MENTOR",
	})
	require.NoError(t, err)
	require.NotNil(t, user.OrganizationID)
	assert.Equal(t, "org1", *user.OrganizationID)
	assert.Nil(t, user.MentorID)
}

func TestCreateMemberMentorCannotCreateMentor(t *testing.T) {
	mentor := &models.User{ID: "m1", Email: "mentor@example.com", Role: models.RoleMentor, Active: true}
	repo := newMockUserRepo(mentor)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	_, err := svc.CreateMember(context.Background(), "m1", CreateMemberRequest{
		FullName: "Other",
		Email:    "other@example.com",
		Password: "password",
		Role:     "MENTOR",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.created)
}

func TestCreateMemberRejectsAdminRole(t *testing.T) {
	admin := &models.User{ID: "a1", Email: "coadmin@example.com", Role: models.RoleCoAdmin, Active: true}
	repo := newMockUserRepo(admin)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	_, err := svc.CreateMember(context.Background(), "a1", CreateMemberRequest{
		FullName: "Admin",
		Email:    "newadmin@example.com",
		Password: "password",
		Role:     "ADMIN",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCreateMemberDuplicateEmail(t *testing.T) {
	admin := &models.User{ID: "a1", Email: "coadmin@example.com", Role: models.RoleCoAdmin, Active: true}
	existing := &models.User{ID: "u1", Email: "taken@example.com", Role: models.RoleStudent, Active: true}
	repo := newMockUserRepo(admin, existing)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	_, err := svc.CreateMember(context.Background(), "a1", CreateMemberRequest{
		FullName: "Dup",
		Email:    "taken@example.com",
		Password: "password",
		Role:     "STUDENT",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCreateGroupPromotesStudent(t *testing.T) {
	student := &models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent,
		AllowedRoles: []string{"STUDENT"}, Active: true}
	repo := newMockUserRepo(student)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	leader, err := svc.CreateGroup(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMentor, leader.Role)
	require.NotNil(t, leader.ClassCode)
	assert.NotEmpty(t, *leader.ClassCode)
	assert.True(t, leader.AllowsRole(models.RoleMentor))
	assert.True(t, leader.AllowsRole(models.RoleStudent))
	assert.Equal(t, models.RoleMentor, repo.updatedRoles["s1"])
}

func TestCreateGroupKeepsExistingCode(t *testing.T) {
	code := "ABC123"
	mentor := &models.User{ID: "m1", Email: "mentor@example.com", Role: models.RoleMentor,
		ClassCode: &code, Active: true}
	repo := newMockUserRepo(mentor)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	leader, err := svc.CreateGroup(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, code, *leader.ClassCode)
}

func TestCreateGroupForbiddenForParent(t *testing.T) {
	parent := &models.User{ID: "p1", Email: "parent@example.com", Role: models.RoleParent, Active: true}
	repo := newMockUserRepo(parent)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	_, err := svc.CreateGroup(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestLinkParentRequiresParentRole(t *testing.T) {
	student := &models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true}
	notParent := &models.User{ID: "x1", Email: "x@example.com", Role: models.RoleMentor, Active: true}
	repo := newMockUserRepo(student, notParent)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	err := svc.LinkParentToStudent(context.Background(), "x1", LinkParentRequest{StudentID: "s1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.parentLinks)
}

func TestLinkParentRejectsNonStudentTarget(t *testing.T) {
	parent := &models.User{ID: "p1", Email: "parent@example.com", Role: models.RoleParent, Active: true}
	mentor := &models.User{ID: "m1", Email: "mentor@example.com", Role: models.RoleMentor, Active: true}
	repo := newMockUserRepo(parent, mentor)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	err := svc.LinkParentToStudent(context.Background(), "p1", LinkParentRequest{StudentID: "m1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLinkParentToStudent(t *testing.T) {
	parent := &models.User{ID: "p1", Email: "parent@example.com", Role: models.RoleParent, Active: true}
	student := &models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true}
	repo := newMockUserRepo(parent, student)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	require.NoError(t, svc.LinkParentToStudent(context.Background(), "p1", LinkParentRequest{StudentID: "s1"}))
	assert.Equal(t, "s1", repo.parentLinks["p1"])
}

func TestSetCuratedLessonsDropsBlanks(t *testing.T) {
	mentor := &models.User{ID: "m1", Email: "mentor@example.com", Role: models.RoleMentor, Active: true}
	repo := newMockUserRepo(mentor)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	updated, err := svc.SetCuratedLessons(context.Background(), "m1", CuratedLessonsRequest{
		LessonIDs: []string{" l1 ", "", "l2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, []string(updated.CuratedLessonIDs))
}

func TestSetCuratedLessonsForbiddenForStudent(t *testing.T) {
	student := &models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true}
	repo := newMockUserRepo(student)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	_, err := svc.SetCuratedLessons(context.Background(), "s1", CuratedLessonsRequest{LessonIDs: []string{"l1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestModuleOrderRoundTrip(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleMentor, Active: true}
	repo := newMockUserRepo(user)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	order := models.CustomModuleOrder{"course-1": {"m2", "m1"}}
	require.NoError(t, svc.SetModuleOrder(context.Background(), "u1", order))

	got, err := svc.GetModuleOrder(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1"}, got["course-1"])
}

func TestGetModuleOrderIgnoresMalformedJSON(t *testing.T) {
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleStudent,
		ModuleOrder: []byte("{broken"), Active: true}
	repo := newMockUserRepo(user)
	svc := NewUserService(repo, nil, zap.NewNop(), testAdminEmail)

	got, err := svc.GetModuleOrder(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
