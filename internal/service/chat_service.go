package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type chatRepository interface {
	CreateChannel(ctx context.Context, channel *models.ChatChannel) error
	GetChannel(ctx context.Context, id string) (*models.ChatChannel, error)
	FindGlobalChannel(ctx context.Context, name string) (*models.ChatChannel, error)
	ListChannels(ctx context.Context) ([]models.ChatChannel, error)
	CreateMessage(ctx context.Context, message *models.ChatMessage) error
	ListMessagesByChannel(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error)
	ListRecentMessages(ctx context.Context, channelIDs []string, limit int) ([]models.ChatMessage, error)
}

type chatUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ChatService manages scoped channels and message flow. Visibility is
// resolved per caller from the channel scope, hierarchy links, and role
// include list.
type ChatService struct {
	repo              chatRepository
	users             chatUserReader
	globalChannelName string
	validator         *validator.Validate
	logger            *zap.Logger
}

// NewChatService constructs a ChatService instance.
func NewChatService(repo chatRepository, users chatUserReader, globalChannelName string, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if globalChannelName == "" {
		globalChannelName = "Global Collective"
	}
	return &ChatService{repo: repo, users: users, globalChannelName: globalChannelName, validator: validate, logger: logger}
}

// EnsureGlobalChannel seeds the always-present global channel. Idempotent;
// called at startup.
func (s *ChatService) EnsureGlobalChannel(ctx context.Context) error {
	if _, err := s.repo.FindGlobalChannel(ctx, s.globalChannelName); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	channel := &models.ChatChannel{
		Name:         s.globalChannelName,
		Scope:        models.ScopeGlobal,
		IncludeRoles: pq.StringArray{},
	}
	if err := s.repo.CreateChannel(ctx, channel); err != nil {
		return err
	}
	s.logger.Info("seeded global chat channel", zap.String("name", s.globalChannelName))
	return nil
}

// CreateChannel creates a scoped channel. Admins create global channels,
// organizations create org channels, mentors create class channels.
func (s *ChatService) CreateChannel(ctx context.Context, actorID string, req models.CreateChannelRequest) (*models.ChatChannel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid channel payload")
	}

	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	scope := models.ChannelScope(req.Scope)
	channel := &models.ChatChannel{
		Name:         strings.TrimSpace(req.Name),
		Scope:        scope,
		IncludeRoles: cleanRoles(req.IncludeRoles),
		CreatedBy:    &actor.ID,
	}

	switch scope {
	case models.ScopeGlobal:
		if actor.Role != models.RoleAdmin && actor.Role != models.RoleCoAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins create global channels")
		}
	case models.ScopeOrg:
		switch actor.Role {
		case models.RoleOrganization:
			channel.OrganizationID = &actor.ID
		case models.RoleAdmin, models.RoleCoAdmin:
			channel.OrganizationID = actor.OrganizationID
		default:
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizations create org channels")
		}
		if channel.OrganizationID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "org channel requires an organization")
		}
	case models.ScopeClass:
		if actor.Role != models.RoleMentor {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only mentors create class channels")
		}
		channel.MentorID = &actor.ID
		channel.OrganizationID = actor.OrganizationID
	}

	if err := s.repo.CreateChannel(ctx, channel); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create channel")
	}
	return channel, nil
}

// ListChannels returns the channels visible to the user.
func (s *ChatService) ListChannels(ctx context.Context, userID string) ([]models.ChatChannel, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	channels, err := s.repo.ListChannels(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list channels")
	}

	visible := make([]models.ChatChannel, 0, len(channels))
	for _, channel := range channels {
		if s.canSee(user, &channel) {
			visible = append(visible, channel)
		}
	}
	return visible, nil
}

// SendMessage posts to a channel the user can see.
func (s *ChatService) SendMessage(ctx context.Context, userID, channelID string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}

	user, channel, err := s.resolveChannelAccess(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		ChannelID:  channel.ID,
		SenderID:   user.ID,
		SenderName: user.FullName,
		Body:       strings.TrimSpace(req.Body),
	}
	if message.Body == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body is empty")
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post message")
	}
	return message, nil
}

// GetChannelMessages returns a visible channel's messages in posting order.
func (s *ChatService) GetChannelMessages(ctx context.Context, userID, channelID string, limit int) ([]models.ChatMessage, error) {
	if _, _, err := s.resolveChannelAccess(ctx, userID, channelID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessagesByChannel(ctx, channelID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

// GetRecentMessages returns the newest messages across every channel the
// user can see.
func (s *ChatService) GetRecentMessages(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error) {
	channels, err := s.ListChannels(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(channels))
	for _, c := range channels {
		ids = append(ids, c.ID)
	}
	messages, err := s.repo.ListRecentMessages(ctx, ids, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent messages")
	}
	return messages, nil
}

func (s *ChatService) resolveChannelAccess(ctx context.Context, userID, channelID string) (*models.User, *models.ChatChannel, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	channel, err := s.repo.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "channel not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load channel")
	}

	if !s.canSee(user, channel) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "channel is not visible to this account")
	}
	return user, channel, nil
}

// canSee applies the visibility rules. Admins see everything. An empty role
// include list admits all roles within the scope.
func (s *ChatService) canSee(user *models.User, channel *models.ChatChannel) bool {
	if user.Role == models.RoleAdmin || user.Role == models.RoleCoAdmin {
		return true
	}
	if len(channel.IncludeRoles) > 0 && !channel.IncludesRole(user.Role) {
		return false
	}

	switch channel.Scope {
	case models.ScopeGlobal:
		return true
	case models.ScopeOrg:
		if channel.OrganizationID == nil {
			return false
		}
		if user.ID == *channel.OrganizationID {
			return true
		}
		return user.OrganizationID != nil && *user.OrganizationID == *channel.OrganizationID
	case models.ScopeClass:
		if channel.MentorID == nil {
			return false
		}
		if user.ID == *channel.MentorID {
			return true
		}
		// Only the mentor's students join through the hierarchy link.
		if user.Role != models.RoleStudent {
			return false
		}
		return user.MentorID != nil && *user.MentorID == *channel.MentorID
	}
	return false
}

func cleanRoles(roles []string) pq.StringArray {
	cleaned := make(pq.StringArray, 0, len(roles))
	for _, r := range roles {
		upper := strings.ToUpper(strings.TrimSpace(r))
		if models.ValidRole(upper) {
			cleaned = append(cleaned, upper)
		}
	}
	return cleaned
}
