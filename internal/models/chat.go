package models

import (
	"time"

	"github.com/lib/pq"
)

// ChannelScope is the visibility tier of a chat channel.
type ChannelScope string

const (
	ScopeGlobal ChannelScope = "global"
	ScopeOrg    ChannelScope = "org"
	ScopeClass  ChannelScope = "class"
)

// ChatChannel groups messages under a visibility rule. The global collective
// channel is seeded at startup and is never synthesized at read time.
type ChatChannel struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Scope          ChannelScope   `db:"scope" json:"scope"`
	IncludeRoles   pq.StringArray `db:"include_roles" json:"include_roles"`
	OrganizationID *string        `db:"organization_id" json:"organization_id,omitempty"`
	MentorID       *string        `db:"mentor_id" json:"mentor_id,omitempty"`
	CreatedBy      *string        `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// IncludesRole reports whether the channel admits the given role.
func (c *ChatChannel) IncludesRole(role UserRole) bool {
	for _, r := range c.IncludeRoles {
		if UserRole(r) == role {
			return true
		}
	}
	return false
}

// ChatMessage is one posted message; ordering is insertion order within a
// channel.
type ChatMessage struct {
	ID         string    `db:"id" json:"id"`
	ChannelID  string    `db:"channel_id" json:"channel_id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	Body       string    `db:"body" json:"body"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// CreateChannelRequest creates a scoped channel.
type CreateChannelRequest struct {
	Name         string   `json:"name" validate:"required"`
	Scope        string   `json:"scope" validate:"required,oneof=global org class"`
	IncludeRoles []string `json:"include_roles"`
}

// SendMessageRequest posts a message to a channel.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}
