package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const (
	channelColumns = `id, name, scope, include_roles, organization_id, mentor_id, created_by, created_at`
	messageColumns = `id, channel_id, sender_id, sender_name, body, created_at`
)

// ChatRepository provides database access for channels and messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository creates a new instance of ChatRepository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateChannel inserts a channel.
func (r *ChatRepository) CreateChannel(ctx context.Context, channel *models.ChatChannel) error {
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}
	if channel.IncludeRoles == nil {
		channel.IncludeRoles = pq.StringArray{}
	}
	const query = `INSERT INTO chat_channels (id, name, scope, include_roles, organization_id, mentor_id, created_by, created_at) VALUES (:id, :name, :scope, :include_roles, :organization_id, :mentor_id, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, channel); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	return nil
}

// GetChannel returns a channel by id.
func (r *ChatRepository) GetChannel(ctx context.Context, id string) (*models.ChatChannel, error) {
	query := fmt.Sprintf(`SELECT %s FROM chat_channels WHERE id = $1 LIMIT 1`, channelColumns)
	var channel models.ChatChannel
	if err := r.db.GetContext(ctx, &channel, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &channel, nil
}

// FindGlobalChannel returns the seeded global channel by name.
func (r *ChatRepository) FindGlobalChannel(ctx context.Context, name string) (*models.ChatChannel, error) {
	query := fmt.Sprintf(`SELECT %s FROM chat_channels WHERE scope = $1 AND name = $2 LIMIT 1`, channelColumns)
	var channel models.ChatChannel
	if err := r.db.GetContext(ctx, &channel, query, models.ScopeGlobal, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find global channel: %w", err)
	}
	return &channel, nil
}

// ListChannels returns every channel. Visibility filtering happens in the
// service, per caller.
func (r *ChatRepository) ListChannels(ctx context.Context) ([]models.ChatChannel, error) {
	query := fmt.Sprintf(`SELECT %s FROM chat_channels ORDER BY created_at ASC`, channelColumns)
	var channels []models.ChatChannel
	if err := r.db.SelectContext(ctx, &channels, query); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// CreateMessage appends a message to a channel.
func (r *ChatRepository) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO chat_messages (id, channel_id, sender_id, sender_name, body, created_at) VALUES (:id, :channel_id, :sender_id, :sender_name, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessagesByChannel returns a channel's messages in insertion order.
func (r *ChatRepository) ListMessagesByChannel(ctx context.Context, channelID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM chat_messages WHERE channel_id = $1 ORDER BY created_at ASC LIMIT %d`, messageColumns, limit)
	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, channelID); err != nil {
		return nil, fmt.Errorf("list messages by channel: %w", err)
	}
	return messages, nil
}

// ListRecentMessages returns the newest messages across the given channels.
func (r *ChatRepository) ListRecentMessages(ctx context.Context, channelIDs []string, limit int) ([]models.ChatMessage, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM chat_messages WHERE channel_id = ANY($1) ORDER BY created_at DESC LIMIT %d`, messageColumns, limit)
	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, pq.StringArray(channelIDs)); err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	return messages, nil
}
