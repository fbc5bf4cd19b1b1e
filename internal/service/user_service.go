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
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.UserRole, allowedRoles []string) error
	LinkParent(ctx context.Context, parentID, studentID string) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateMemberRequest lets admins and organizations create accounts directly,
// without the invite round trip.
type CreateMemberRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required"`
}

// UpdateRoleRequest changes an account's role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// LinkParentRequest points a parent account at a student.
type LinkParentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// CuratedLessonsRequest replaces a mentor's curated lesson selection.
type CuratedLessonsRequest struct {
	LessonIDs []string `json:"lesson_ids" validate:"required"`
}

// UserService provides directory and hierarchy use cases.
type UserService struct {
	repo       userRepository
	validator  *validator.Validate
	logger     *zap.Logger
	adminEmail string
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger, adminEmail string) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger, adminEmail: adminEmail}
}

// GetUser returns a single user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// ListUsers returns users matching the filter with pagination metadata.
func (s *UserService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// GetOrganizationMembers lists every account hanging off an organization.
func (s *UserService) GetOrganizationMembers(ctx context.Context, orgID string) ([]models.User, error) {
	users, _, err := s.repo.List(ctx, models.UserFilter{OrganizationID: orgID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list organization members")
	}
	return users, nil
}

// GetMentorStudents lists the students assigned to a mentor.
func (s *UserService) GetMentorStudents(ctx context.Context, mentorID string) ([]models.User, error) {
	role := models.RoleStudent
	users, _, err := s.repo.List(ctx, models.UserFilter{Role: &role, MentorID: mentorID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list mentor students")
	}
	return users, nil
}

// CreateMember creates a verified account under the creator's umbrella.
// Organizations get the new member attached to them; mentors get students.
func (s *UserService) CreateMember(ctx context.Context, creatorID string, req CreateMemberRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member payload")
	}

	role := models.UserRole(strings.ToUpper(req.Role))
	if !models.ValidRole(string(role)) || role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role cannot be created directly")
	}

	creator, err := s.repo.FindByID(ctx, creatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "creator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load creator")
	}

	switch creator.Role {
	case models.RoleAdmin, models.RoleCoAdmin:
	case models.RoleOrganization:
		if role != models.RoleStudent && role != models.RoleMentor {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "organizations may only create students and mentors")
		}
	case models.RoleMentor:
		if role != models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "mentors may only create students")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot create accounts")
	}

	if existing, err := s.repo.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         role,
		Verified:     true,
		CreatedBy:    &creator.ID,
		Active:       true,
	}
	switch creator.Role {
	case models.RoleOrganization:
		user.OrganizationID = &creator.ID
	case models.RoleMentor:
		user.MentorID = &creator.ID
		user.OrganizationID = creator.OrganizationID
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create member")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &creator.ID,
		Action:     models.AuditActionUserCreate,
		Resource:   "user",
		ResourceID: &user.ID,
		NewValues:  []byte(fmt.Sprintf(`{"role":%q}`, user.Role)),
	}); err != nil {
		s.logger.Warn("failed to record member create audit log", zap.Error(err))
	}

	return user, nil
}

// UpdateUserRole changes an account's role. Allowed role views are reset to
// the new role's defaults; mentor and organization links survive the change
// so the hierarchy stays intact.
func (s *UserService) UpdateUserRole(ctx context.Context, actorID, userID string, req UpdateRoleRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	role := models.UserRole(strings.ToUpper(req.Role))
	if !models.ValidRole(string(role)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.isRootAdmin(user) {
		return nil, appErrors.Clone(appErrors.ErrProtectedResource, "root admin role cannot be changed")
	}

	if err := s.repo.UpdateRole(ctx, user.ID, role, models.DefaultAllowedRoles(role)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRoleUpdate,
		Resource:   "user",
		ResourceID: &user.ID,
		OldValues:  []byte(fmt.Sprintf(`{"role":%q}`, user.Role)),
		NewValues:  []byte(fmt.Sprintf(`{"role":%q}`, role)),
	}); err != nil {
		s.logger.Warn("failed to record role update audit log", zap.Error(err))
	}

	user.Role = role
	user.AllowedRoles = pq.StringArray(models.DefaultAllowedRoles(role))
	return user, nil
}

// DeleteUser soft deletes an account. The configured root admin is protected.
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if s.isRootAdmin(user) {
		return appErrors.Clone(appErrors.ErrProtectedResource, "root admin account cannot be deleted")
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDelete,
		Resource:   "user",
		ResourceID: &user.ID,
	}); err != nil {
		s.logger.Warn("failed to record user delete audit log", zap.Error(err))
	}

	return nil
}

// CreateGroup promotes a student to mentor and assigns a shareable class
// code. Existing mentor and organization links are untouched.
func (s *UserService) CreateGroup(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Role != models.RoleStudent && user.Role != models.RoleMentor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students and mentors can lead groups")
	}

	if user.ClassCode == nil {
		code := strings.ToUpper(newGroupCode())
		user.ClassCode = &code
	}
	if user.Role == models.RoleStudent {
		user.Role = models.RoleMentor
		allowed := append([]string{}, user.AllowedRoles...)
		if !user.AllowsRole(models.RoleMentor) {
			allowed = append(allowed, string(models.RoleMentor))
		}
		if err := s.repo.UpdateRole(ctx, user.ID, models.RoleMentor, allowed); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote group leader")
		}
		user.AllowedRoles = pq.StringArray(allowed)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save group code")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionGroupCreate,
		Resource:   "user",
		ResourceID: &user.ID,
		NewValues:  []byte(fmt.Sprintf(`{"class_code":%q}`, *user.ClassCode)),
	}); err != nil {
		s.logger.Warn("failed to record group create audit log", zap.Error(err))
	}

	return user, nil
}

// LinkParentToStudent attaches a parent account to one student.
func (s *UserService) LinkParentToStudent(ctx context.Context, parentID string, req LinkParentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}

	parent, err := s.GetUser(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.Role != models.RoleParent {
		return appErrors.Clone(appErrors.ErrForbidden, "only parent accounts can link to a student")
	}

	student, err := s.GetUser(ctx, req.StudentID)
	if err != nil {
		return err
	}
	if student.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "linked account is not a student")
	}

	if err := s.repo.LinkParent(ctx, parent.ID, student.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link parent")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &parent.ID,
		Action:     models.AuditActionParentLink,
		Resource:   "user",
		ResourceID: &student.ID,
	}); err != nil {
		s.logger.Warn("failed to record parent link audit log", zap.Error(err))
	}

	return nil
}

// SetCuratedLessons replaces a mentor's curated lesson selection. IDs are
// trimmed; blanks are dropped.
func (s *UserService) SetCuratedLessons(ctx context.Context, mentorID string, req CuratedLessonsRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid curated lessons payload")
	}

	mentor, err := s.GetUser(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if mentor.Role != models.RoleMentor && mentor.Role != models.RoleOrganization {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only mentors and organizations curate lessons")
	}

	cleaned := make(pq.StringArray, 0, len(req.LessonIDs))
	for _, id := range req.LessonIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	mentor.CuratedLessonIDs = cleaned

	if err := s.repo.Update(ctx, mentor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save curated lessons")
	}
	return mentor, nil
}

// SetModuleOrder stores a user's preferred module sequence per course.
func (s *UserService) SetModuleOrder(ctx context.Context, userID string, order models.CustomModuleOrder) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(order)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module order payload")
	}
	user.ModuleOrder = raw

	if err := s.repo.Update(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save module order")
	}
	return nil
}

// GetModuleOrder returns the user's stored module sequence preferences.
func (s *UserService) GetModuleOrder(ctx context.Context, userID string) (models.CustomModuleOrder, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	order := models.CustomModuleOrder{}
	if len(user.ModuleOrder) > 0 {
		if err := json.Unmarshal(user.ModuleOrder, &order); err != nil {
			s.logger.Warn("stored module order is malformed, ignoring", zap.String("user_id", userID), zap.Error(err))
			return models.CustomModuleOrder{}, nil
		}
	}
	return order, nil
}

func (s *UserService) isRootAdmin(user *models.User) bool {
	return user.Role == models.RoleAdmin && strings.EqualFold(user.Email, s.adminEmail)
}

func newGroupCode() string {
	token, err := generateOpaqueToken()
	if err != nil || len(token) < 6 {
		return fmt.Sprintf("%d", time.Now().UnixNano()%1000000)
	}
	return token[:6]
}
