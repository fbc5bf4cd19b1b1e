package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a new unverified account.
type RegisterRequest struct {
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Role      string `json:"role" validate:"required"`
	OrgCode   string `json:"org_code"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// SocialLoginRequest requests a deterministic demo identity for a provider.
// This is not a real OAuth flow; each provider maps to a fixed account.
type SocialLoginRequest struct {
	Provider  string `json:"provider" validate:"required,oneof=google facebook apple"`
	Role      string `json:"role"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// VerifyEmailRequest consumes a one-time verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// SwitchRoleRequest asks for a session-local role change.
type SwitchRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UserInfo describes the authenticated user in responses. ActiveRole differs
// from Role only after a session-local role switch.
type UserInfo struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name"`
	Role         UserRole `json:"role"`
	ActiveRole   UserRole `json:"active_role"`
	AllowedRoles []string `json:"allowed_roles"`
}

// JWTClaims represents the JWT payload for access tokens. OriginalRole
// preserves the user's true role across role switches; it is never persisted
// back to the user record.
type JWTClaims struct {
	UserID       string   `json:"user_id"`
	Role         UserRole `json:"role"`
	OriginalRole UserRole `json:"original_role,omitempty"`
	Email        string   `json:"email"`
	FullName     string   `json:"full_name"`
	jwt.RegisteredClaims
}

// TrueRole returns the role the account actually holds, regardless of any
// session-local switch.
func (c *JWTClaims) TrueRole() UserRole {
	if c.OriginalRole != "" {
		return c.OriginalRole
	}
	return c.Role
}
