package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type inviteRepository interface {
	Create(ctx context.Context, invite *models.Invite) error
	FindByToken(ctx context.Context, token string) (*models.Invite, error)
	ListByInviter(ctx context.Context, inviterID string) ([]models.Invite, error)
	MarkAccepted(ctx context.Context, id string, at time.Time) error
	MarkExpired(ctx context.Context, id string) error
}

type inviteUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionIssuer interface {
	IssueSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error)
}

// InviteConfig controls invite lifetime and the link rendered into mail.
type InviteConfig struct {
	TTL         time.Duration
	LinkBaseURL string
}

// InviteService issues and redeems single-use, time-limited invites.
type InviteService struct {
	repo      inviteRepository
	users     inviteUserRepository
	sessions  sessionIssuer
	outbox    mailOutbox
	validator *validator.Validate
	logger    *zap.Logger
	config    InviteConfig
}

// NewInviteService constructs an InviteService instance.
func NewInviteService(repo inviteRepository, users inviteUserRepository, sessions sessionIssuer, outbox mailOutbox, validate *validator.Validate, logger *zap.Logger, config InviteConfig) *InviteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TTL <= 0 {
		config.TTL = 7 * 24 * time.Hour
	}
	return &InviteService{repo: repo, users: users, sessions: sessions, outbox: outbox, validator: validate, logger: logger, config: config}
}

// CreateInvite issues an invite on behalf of the inviter. Mentors invite
// students into their group; organizations invite members; admins invite any
// non-admin role.
func (s *InviteService) CreateInvite(ctx context.Context, inviterID string, req models.CreateInviteRequest) (*models.Invite, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invite payload")
	}

	role := models.UserRole(strings.ToUpper(req.Role))
	if !models.ValidRole(string(role)) || role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role cannot be granted by invite")
	}

	inviter, err := s.users.FindByID(ctx, inviterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "inviter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inviter")
	}

	switch inviter.Role {
	case models.RoleAdmin, models.RoleCoAdmin:
	case models.RoleMentor:
		if role != models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "mentors may only invite students")
		}
	case models.RoleOrganization:
		if role != models.RoleStudent && role != models.RoleMentor {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "organizations may only invite students and mentors")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot issue invites")
	}

	if existing, err := s.users.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	token, err := generateOpaqueToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invite token")
	}

	now := time.Now().UTC()
	invite := &models.Invite{
		Token:     token,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Role:      role,
		InviterID: inviter.ID,
		Status:    models.InviteStatusPending,
		ExpiresAt: now.Add(s.config.TTL),
	}
	switch inviter.Role {
	case models.RoleMentor:
		invite.MentorID = &inviter.ID
		invite.OrganizationID = inviter.OrganizationID
	case models.RoleOrganization:
		invite.OrganizationID = &inviter.ID
	}

	if err := s.repo.Create(ctx, invite); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invite")
	}

	if s.outbox != nil {
		link := fmt.Sprintf("%s/invite?token=%s", strings.TrimRight(s.config.LinkBaseURL, "/"), token)
		payload := models.MailPayload{
			ToAddress: invite.Email,
			Subject:   fmt.Sprintf("%s invited you to Build Biblical Leaders", inviter.FullName),
			TextBody:  fmt.Sprintf("You have been invited to join as %s. Accept the invite at %s (valid until %s).", invite.Role, link, invite.ExpiresAt.Format(time.RFC1123)),
		}
		if err := s.outbox.EnqueueMail(ctx, models.OutboxKindInviteMail, payload); err != nil {
			s.logger.Warn("failed to enqueue invite mail", zap.Error(err))
		}
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &inviter.ID,
		Action:     models.AuditActionInviteCreate,
		Resource:   "invite",
		ResourceID: &invite.ID,
		NewValues:  []byte(fmt.Sprintf(`{"email":%q,"role":%q}`, invite.Email, invite.Role)),
	}); err != nil {
		s.logger.Warn("failed to record invite audit log", zap.Error(err))
	}

	return invite, nil
}

// ValidateInvite checks a token without consuming it. Expired invites are
// flagged as such in storage on first sight.
func (s *InviteService) ValidateInvite(ctx context.Context, token string) (*models.Invite, error) {
	invite, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invite token not recognized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up invite")
	}

	if invite.Status == models.InviteStatusAccepted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invite has already been used")
	}

	if invite.Status == models.InviteStatusExpired || invite.Expired(time.Now().UTC()) {
		if invite.Status == models.InviteStatusPending {
			if err := s.repo.MarkExpired(ctx, invite.ID); err != nil {
				s.logger.Warn("failed to flag expired invite", zap.Error(err))
			}
		}
		return nil, appErrors.Clone(appErrors.ErrInviteExpired, "invite has expired")
	}

	return invite, nil
}

// AcceptInvite redeems a pending invite into a live, verified account and
// logs the new user straight in.
func (s *InviteService) AcceptInvite(ctx context.Context, req models.AcceptInviteRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept payload")
	}

	invite, err := s.ValidateInvite(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	if existing, err := s.users.FindByEmail(ctx, invite.Email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing account")
	}

	// Consume the token first. The status guard in storage makes concurrent
	// acceptance a conflict rather than a duplicate account.
	if err := s.repo.MarkAccepted(ctx, invite.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "invite has already been used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume invite")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:          invite.Email,
		PasswordHash:   string(hash),
		FullName:       req.FullName,
		Role:           invite.Role,
		Verified:       true,
		MentorID:       invite.MentorID,
		OrganizationID: invite.OrganizationID,
		CreatedBy:      &invite.InviterID,
		Active:         true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionInviteAccept,
		Resource:   "invite",
		ResourceID: &invite.ID,
		NewValues:  []byte(fmt.Sprintf(`{"role":%q}`, user.Role)),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record invite accept audit log", zap.Error(err))
	}

	return s.sessions.IssueSession(ctx, user, req.IP, req.UserAgent)
}

// ListInvites returns the invites the user has issued.
func (s *InviteService) ListInvites(ctx context.Context, inviterID string) ([]models.Invite, error) {
	invites, err := s.repo.ListByInviter(ctx, inviterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invites")
	}
	return invites, nil
}
