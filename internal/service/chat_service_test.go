package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
	appErrors "github.com/build-biblical-leaders/bbl-api/pkg/errors"
)

type mockChatRepo struct {
	channels []*models.ChatChannel
	messages []*models.ChatMessage
}

func (m *mockChatRepo) CreateChannel(ctx context.Context, channel *models.ChatChannel) error {
	if channel.ID == "" {
		channel.ID = fmt.Sprintf("ch-%d", len(m.channels)+1)
	}
	channel.CreatedAt = time.Now().UTC()
	m.channels = append(m.channels, channel)
	return nil
}

func (m *mockChatRepo) GetChannel(ctx context.Context, id string) (*models.ChatChannel, error) {
	for _, c := range m.channels {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockChatRepo) FindGlobalChannel(ctx context.Context, name string) (*models.ChatChannel, error) {
	for _, c := range m.channels {
		if c.Scope == models.ScopeGlobal && c.Name == name {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockChatRepo) ListChannels(ctx context.Context) ([]models.ChatChannel, error) {
	out := make([]models.ChatChannel, 0, len(m.channels))
	for _, c := range m.channels {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockChatRepo) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	message.ID = fmt.Sprintf("msg-%d", len(m.messages)+1)
	message.CreatedAt = time.Now().UTC()
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockChatRepo) ListMessagesByChannel(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.ChannelID == channelID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *mockChatRepo) ListRecentMessages(ctx context.Context, channelIDs []string, limit int) ([]models.ChatMessage, error) {
	allowed := map[string]bool{}
	for _, id := range channelIDs {
		allowed[id] = true
	}
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if allowed[msg.ChannelID] {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func chatFixture() (*mockChatRepo, *mockUserRepo) {
	orgID := "org1"
	mentorID := "m1"
	otherMentor := "m2"
	users := newMockUserRepo(
		&models.User{ID: "admin", Email: "admin@example.com", Role: models.RoleAdmin, Active: true},
		&models.User{ID: orgID, Email: "org@example.com", Role: models.RoleOrganization, Active: true},
		&models.User{ID: mentorID, Email: "mentor@example.com", Role: models.RoleMentor, OrganizationID: &orgID, Active: true},
		&models.User{ID: otherMentor, Email: "mentor2@example.com", Role: models.RoleMentor, Active: true},
		&models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent,
			MentorID: &mentorID, OrganizationID: &orgID, Active: true},
		&models.User{ID: "outsider", Email: "outsider@example.com", Role: models.RoleStudent, Active: true},
	)
	repo := &mockChatRepo{channels: []*models.ChatChannel{
		{ID: "global", Name: "Global Collective", Scope: models.ScopeGlobal},
		{ID: "orgch", Name: "Org Hall", Scope: models.ScopeOrg, OrganizationID: &orgID},
		{ID: "classch", Name: "Class Room", Scope: models.ScopeClass, MentorID: &mentorID, OrganizationID: &orgID},
	}}
	return repo, users
}

func TestEnsureGlobalChannelIdempotent(t *testing.T) {
	repo := &mockChatRepo{}
	svc := NewChatService(repo, newMockUserRepo(), "Global Collective", nil, zap.NewNop())

	require.NoError(t, svc.EnsureGlobalChannel(context.Background()))
	require.NoError(t, svc.EnsureGlobalChannel(context.Background()))
	assert.Len(t, repo.channels, 1)
	assert.Equal(t, models.ScopeGlobal, repo.channels[0].Scope)
}

func TestListChannelsVisibility(t *testing.T) {
	repo, users := chatFixture()
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	cases := []struct {
		userID  string
		visible []string
	}{
		{"admin", []string{"global", "orgch", "classch"}},
		{"s1", []string{"global", "orgch", "classch"}},
		{"m1", []string{"global", "orgch", "classch"}},
		{"outsider", []string{"global"}},
		{"m2", []string{"global"}},
	}
	for _, tc := range cases {
		channels, err := svc.ListChannels(context.Background(), tc.userID)
		require.NoError(t, err, tc.userID)
		ids := make([]string, 0, len(channels))
		for _, c := range channels {
			ids = append(ids, c.ID)
		}
		assert.ElementsMatch(t, tc.visible, ids, tc.userID)
	}
}

func TestClassChannelLimitedToMentorAndStudents(t *testing.T) {
	repo, users := chatFixture()
	mentorID := "m1"
	parent := &models.User{ID: "p1", Email: "parent@example.com", Role: models.RoleParent,
		MentorID: &mentorID, Active: true}
	users.usersByID[parent.ID] = parent
	users.usersByEmail[parent.Email] = parent
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	// A mentor link on a non-student account does not open the class channel.
	channels, err := svc.ListChannels(context.Background(), "p1")
	require.NoError(t, err)
	for _, c := range channels {
		assert.NotEqual(t, "classch", c.ID)
	}

	_, err = svc.SendMessage(context.Background(), "p1", "classch", models.SendMessageRequest{Body: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestSendMessageToVisibleChannel(t *testing.T) {
	repo, users := chatFixture()
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	msg, err := svc.SendMessage(context.Background(), "s1", "classch", models.SendMessageRequest{Body: "  hello class  "})
	require.NoError(t, err)
	assert.Equal(t, "hello class", msg.Body)
	assert.Equal(t, "s1", msg.SenderID)
}

func TestSendMessageHiddenChannelForbidden(t *testing.T) {
	repo, users := chatFixture()
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), "outsider", "classch", models.SendMessageRequest{Body: "let me in"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestChannelRoleIncludeList(t *testing.T) {
	repo, users := chatFixture()
	repo.channels = append(repo.channels, &models.ChatChannel{
		ID: "mentors-only", Name: "Mentor Lounge", Scope: models.ScopeGlobal,
		IncludeRoles: []string{"MENTOR"},
	})
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), "s1", "mentors-only", models.SendMessageRequest{Body: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.SendMessage(context.Background(), "m1", "mentors-only", models.SendMessageRequest{Body: "hi"})
	require.NoError(t, err)
}

func TestCreateChannelScopeRules(t *testing.T) {
	repo, users := chatFixture()
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	_, err := svc.CreateChannel(context.Background(), "m1", models.CreateChannelRequest{Name: "All", Scope: "global"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	channel, err := svc.CreateChannel(context.Background(), "m1", models.CreateChannelRequest{Name: "My Class", Scope: "class"})
	require.NoError(t, err)
	require.NotNil(t, channel.MentorID)
	assert.Equal(t, "m1", *channel.MentorID)
	require.NotNil(t, channel.OrganizationID)
	assert.Equal(t, "org1", *channel.OrganizationID)

	channel, err = svc.CreateChannel(context.Background(), "org1", models.CreateChannelRequest{Name: "Org Wide", Scope: "org"})
	require.NoError(t, err)
	require.NotNil(t, channel.OrganizationID)
	assert.Equal(t, "org1", *channel.OrganizationID)
}

func TestRecentMessagesScopedToVisibleChannels(t *testing.T) {
	repo, users := chatFixture()
	svc := NewChatService(repo, users, "Global Collective", nil, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), "admin", "global", models.SendMessageRequest{Body: "welcome"})
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), "m1", "classch", models.SendMessageRequest{Body: "class only"})
	require.NoError(t, err)

	messages, err := svc.GetRecentMessages(context.Background(), "outsider", 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "welcome", messages[0].Body)
}
