package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail  map[string]*models.User
	usersByID     map[string]*models.User
	usersByToken  map[string]*models.User
	orgsByCode    map[string]*models.User
	refreshTokens map[string]*models.RefreshToken

	created          []*models.User
	updated          []*models.User
	verified         []string
	auditLogs        []*models.AuditLog
	revokedUsers     []string
	lastLoginUpdated bool
	countAdminCalls  int
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail:  map[string]*models.User{},
		usersByID:     map[string]*models.User{},
		usersByToken:  map[string]*models.User{},
		orgsByCode:    map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
	}
}

func (m *mockAuthRepo) add(user *models.User) {
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	if user.VerifyToken != nil {
		m.usersByToken[*user.VerifyToken] = user
	}
	if user.OrgCode != nil {
		m.orgsByCode[*user.OrgCode] = user
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByVerifyToken(ctx context.Context, token string) (*models.User, error) {
	if u, ok := m.usersByToken[token]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindOrganizationByCode(ctx context.Context, code string) (*models.User, error) {
	if u, ok := m.orgsByCode[code]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) CountAdmins(ctx context.Context, email string) (int, error) {
	m.countAdminCalls++
	count := 0
	for _, u := range m.usersByID {
		if u.Role == models.RoleAdmin && strings.EqualFold(u.Email, email) {
			count++
		}
	}
	return count, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated-" + user.Email
	}
	m.created = append(m.created, user)
	m.add(user)
	return nil
}

func (m *mockAuthRepo) Update(ctx context.Context, user *models.User) error {
	m.updated = append(m.updated, user)
	m.add(user)
	return nil
}

func (m *mockAuthRepo) SetVerified(ctx context.Context, id string) error {
	m.verified = append(m.verified, id)
	if u, ok := m.usersByID[id]; ok {
		u.Verified = true
	}
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if u, ok := m.usersByID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockOutbox struct {
	kinds    []string
	payloads []models.MailPayload
}

func (m *mockOutbox) EnqueueMail(ctx context.Context, kind string, payload models.MailPayload) error {
	m.kinds = append(m.kinds, kind)
	m.payloads = append(m.payloads, payload)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "bbl-api",
		VerifyLinkBaseURL:  "http://localhost:3000",
	}
}

func verifiedUser(id, email, password string, role models.UserRole) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test User",
		Role:         role,
		AllowedRoles: models.DefaultAllowedRoles(role),
		Verified:     true,
		Active:       true,
	}
}

func TestRegisterQueuesVerificationMail(t *testing.T) {
	repo := newMockAuthRepo()
	outbox := &mockOutbox{}
	svc := NewAuthService(repo, outbox, validator.New(), zap.NewNop(), testAuthConfig())

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "New Student",
		Email:    "student@example.com",
		Password: "password",
		Role:     "STUDENT",
	})
	require.NoError(t, err)
	assert.False(t, user.Verified)
	require.NotNil(t, user.VerifyToken)
	require.Len(t, outbox.kinds, 1)
	assert.Equal(t, models.OutboxKindVerificationMail, outbox.kinds[0])
	assert.Contains(t, outbox.payloads[0].TextBody, *user.VerifyToken)
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Sneaky",
		Email:    "sneaky@example.com",
		Password: "password",
		Role:     "ADMIN",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.created)
}

func TestRegisterUnknownOrgCode(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Student",
		Email:    "student@example.com",
		Password: "password",
		Role:     "STUDENT",
		OrgCode:  "NOPE1234",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidOrgCode))
}

func TestLoginBlockedUntilVerified(t *testing.T) {
	repo := newMockAuthRepo()
	user := verifiedUser("u1", "student@example.com", "password", models.RoleStudent)
	user.Verified = false
	repo.add(user)
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.com", Password: "password"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnverifiedAccount))

	// Verification flips the gate.
	token := "verify-token"
	user.VerifyToken = &token
	repo.usersByToken[token] = user
	require.NoError(t, svc.VerifyEmail(context.Background(), models.VerifyEmailRequest{Token: token}))

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
}

func TestLoginBackfillsLegacyDefaults(t *testing.T) {
	repo := newMockAuthRepo()
	user := verifiedUser("u1", "legacy@example.com", "password", models.RoleMentor)
	user.AllowedRoles = nil
	user.CuratedLessonIDs = nil
	user.ModuleOrder = nil
	repo.add(user)
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "legacy@example.com", Password: "password"})
	require.NoError(t, err)

	// Rows predating the defaults are migrated and persisted on first login.
	require.Len(t, repo.updated, 1)
	assert.Equal(t, []string{"MENTOR"}, []string(user.AllowedRoles))
	assert.NotNil(t, user.CuratedLessonIDs)
	assert.Equal(t, []byte(`{}`), user.ModuleOrder)

	// A fully populated row is left alone.
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "legacy@example.com", Password: "password"})
	require.NoError(t, err)
	assert.Len(t, repo.updated, 1)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(verifiedUser("u1", "user@example.com", "password", models.RoleStudent))
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	user := verifiedUser("u1", "user@example.com", "password", models.RoleStudent)
	user.Active = false
	repo.add(user)
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestSwitchRoleSessionLocal(t *testing.T) {
	repo := newMockAuthRepo()
	user := verifiedUser("u1", "mentor@example.com", "password", models.RoleMentor)
	user.AllowedRoles = []string{"MENTOR", "STUDENT"}
	repo.add(user)
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.SwitchRole(context.Background(), "u1", models.SwitchRoleRequest{Role: "STUDENT"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, models.RoleMentor, claims.OriginalRole)
	// Persisted role is untouched.
	assert.Equal(t, models.RoleMentor, repo.usersByID["u1"].Role)
}

func TestSwitchRoleNotAllowed(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(verifiedUser("u1", "student@example.com", "password", models.RoleStudent))
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.SwitchRole(context.Background(), "u1", models.SwitchRoleRequest{Role: "ADMIN"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestSwitchBackClearsOriginalRole(t *testing.T) {
	repo := newMockAuthRepo()
	user := verifiedUser("u1", "mentor@example.com", "password", models.RoleMentor)
	user.AllowedRoles = []string{"MENTOR", "STUDENT"}
	repo.add(user)
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.SwitchRole(context.Background(), "u1", models.SwitchRoleRequest{Role: "MENTOR"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMentor, claims.Role)
	assert.Empty(t, claims.OriginalRole)
}

func TestRefreshTokenRotation(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(verifiedUser("u1", "user@example.com", "password", models.RoleStudent))
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The consumed token is revoked and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
}

func TestEnsureRootAdminIdempotent(t *testing.T) {
	repo := newMockAuthRepo()
	cfg := testAuthConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminName = "Root Admin"
	cfg.AdminPassword = "changeme"
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), cfg)

	require.NoError(t, svc.EnsureRootAdmin(context.Background()))
	require.Len(t, repo.created, 1)
	assert.Equal(t, models.RoleAdmin, repo.created[0].Role)
	assert.True(t, repo.created[0].Verified)

	// The repeat run verifies exactly one admin row holds the email.
	require.NoError(t, svc.EnsureRootAdmin(context.Background()))
	assert.Len(t, repo.created, 1)
	assert.Equal(t, 1, repo.countAdminCalls)

	count, err := repo.CountAdmins(context.Background(), cfg.AdminEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSocialLoginCreatesVerifiedAccount(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, &mockOutbox{}, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.LoginWithSocial(context.Background(), models.SocialLoginRequest{Provider: "google"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].Verified)

	// Same provider resolves to the same account.
	_, err = svc.LoginWithSocial(context.Background(), models.SocialLoginRequest{Provider: "google"})
	require.NoError(t, err)
	assert.Len(t, repo.created, 1)
}
