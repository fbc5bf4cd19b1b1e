package models

import "time"

// InviteStatus tracks the lifecycle of an invite token.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusExpired  InviteStatus = "expired"
)

// Invite is a single-use, time-limited offer to join with a given role.
type Invite struct {
	ID             string       `db:"id" json:"id"`
	Token          string       `db:"token" json:"token"`
	Email          string       `db:"email" json:"email"`
	Role           UserRole     `db:"role" json:"role"`
	InviterID      string       `db:"inviter_id" json:"inviter_id"`
	OrganizationID *string      `db:"organization_id" json:"organization_id,omitempty"`
	MentorID       *string      `db:"mentor_id" json:"mentor_id,omitempty"`
	Status         InviteStatus `db:"status" json:"status"`
	ExpiresAt      time.Time    `db:"expires_at" json:"expires_at"`
	AcceptedAt     *time.Time   `db:"accepted_at" json:"accepted_at,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// Expired reports whether the invite is past its expiry at the given instant.
func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CreateInviteRequest is the payload for issuing an invite.
type CreateInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// AcceptInviteRequest completes an invite into a live account.
type AcceptInviteRequest struct {
	Token     string `json:"token" validate:"required"`
	FullName  string `json:"full_name" validate:"required"`
	Password  string `json:"password" validate:"required,min=6"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}
