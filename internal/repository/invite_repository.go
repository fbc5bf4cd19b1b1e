package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

const inviteColumns = `id, token, email, role, inviter_id, organization_id, mentor_id, status, expires_at, accepted_at, created_at`

// InviteRepository provides database access for invite tokens.
type InviteRepository struct {
	db *sqlx.DB
}

// NewInviteRepository creates a new instance of InviteRepository.
func NewInviteRepository(db *sqlx.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

// Create inserts a new invite.
func (r *InviteRepository) Create(ctx context.Context, invite *models.Invite) error {
	if invite.ID == "" {
		invite.ID = uuid.NewString()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO invites (id, token, email, role, inviter_id, organization_id, mentor_id, status, expires_at, accepted_at, created_at) VALUES (:id, :token, :email, :role, :inviter_id, :organization_id, :mentor_id, :status, :expires_at, :accepted_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invite); err != nil {
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

// FindByToken returns the invite holding the given token.
func (r *InviteRepository) FindByToken(ctx context.Context, token string) (*models.Invite, error) {
	query := fmt.Sprintf(`SELECT %s FROM invites WHERE token = $1 LIMIT 1`, inviteColumns)
	var invite models.Invite
	if err := r.db.GetContext(ctx, &invite, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invite by token: %w", err)
	}
	return &invite, nil
}

// ListByInviter returns invites created by a user, newest first.
func (r *InviteRepository) ListByInviter(ctx context.Context, inviterID string) ([]models.Invite, error) {
	query := fmt.Sprintf(`SELECT %s FROM invites WHERE inviter_id = $1 ORDER BY created_at DESC`, inviteColumns)
	var invites []models.Invite
	if err := r.db.SelectContext(ctx, &invites, query, inviterID); err != nil {
		return nil, fmt.Errorf("list invites by inviter: %w", err)
	}
	return invites, nil
}

// MarkAccepted transitions a pending invite to accepted. The status guard
// keeps the token single-use.
func (r *InviteRepository) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE invites SET status = $2, accepted_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.InviteStatusAccepted, at, models.InviteStatusPending)
	if err != nil {
		return fmt.Errorf("mark invite accepted: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkExpired flags an invite as expired.
func (r *InviteRepository) MarkExpired(ctx context.Context, id string) error {
	const query = `UPDATE invites SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.InviteStatusExpired); err != nil {
		return fmt.Errorf("mark invite expired: %w", err)
	}
	return nil
}
