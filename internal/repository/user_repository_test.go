package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func userRows(id, email string, role models.UserRole) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "role", "allowed_roles", "verified",
		"verify_token", "provider", "mentor_id", "organization_id", "linked_student_id",
		"created_by", "org_code", "class_code", "curated_lesson_ids", "module_order",
		"active", "last_login", "created_at", "updated_at",
	}).AddRow(
		id, email, "hash", "User", string(role), "{"+string(role)+"}", true,
		nil, "local", nil, nil, nil,
		nil, nil, nil, "{}", []byte(`{}`),
		true, now, now, now,
	)
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(userRows("1", "user@example.com", models.RoleStudent))

	user, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.True(t, user.AllowsRole(models.RoleStudent))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrganizationByCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = $1 AND org_code = $2 LIMIT 1")).
		WithArgs(models.RoleOrganization, "FAITH01").
		WillReturnRows(userRows("org1", "org@example.com", models.RoleOrganization))

	org, err := repo.FindOrganizationByCode(context.Background(), "FAITH01")
	require.NoError(t, err)
	assert.Equal(t, "org1", org.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAdminsMatchesEmailCaseInsensitive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER($1) AND role = $2")).
		WithArgs("Admin@Example.com", models.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountAdmins(context.Background(), "Admin@Example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "new@example.com", FullName: "New", Role: models.RoleStudent, Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, []string{"STUDENT"}, []string(user.AllowedRoles))
	assert.Equal(t, []byte(`{}`), user.ModuleOrder)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRoleLeavesHierarchyAlone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $2, allowed_roles = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("u1", models.RoleMentor, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateRole(context.Background(), "u1", models.RoleMentor, []string{"STUDENT", "MENTOR"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteIsSoft(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersFiltersByOrganization(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("organization_id = $1")).
		WithArgs("org1").
		WillReturnRows(userRows("s1", "student@example.com", models.RoleStudent))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{OrganizationID: "org1"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.CreateRefreshToken(context.Background(), &models.RefreshToken{
		UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour),
	}))

	now := time.Now()
	mock.ExpectQuery("FROM refresh_tokens WHERE token").
		WithArgs("token").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
			AddRow("rt1", "u1", "token", now.Add(time.Hour), now, false, nil, "", ""))

	rt, err := repo.FindRefreshToken(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "u1", rt.UserID)
	assert.False(t, rt.Revoked)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1")).
		WithArgs("rt1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "rt1", time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneAuditLogs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	pruned, err := repo.PruneAuditLogs(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
