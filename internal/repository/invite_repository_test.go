package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/build-biblical-leaders/bbl-api/internal/models"
)

func TestInviteCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInviteRepository(db)

	mock.ExpectExec("INSERT INTO invites").WillReturnResult(sqlmock.NewResult(1, 1))

	invite := &models.Invite{
		Token: "tok", Email: "new@example.com", Role: models.RoleStudent,
		InviterID: "m1", Status: models.InviteStatusPending,
		ExpiresAt: time.Now().Add(48 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), invite))
	assert.NotEmpty(t, invite.ID)
	assert.False(t, invite.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInviteRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "token", "email", "role", "inviter_id", "organization_id",
		"mentor_id", "status", "expires_at", "accepted_at", "created_at"}).
		AddRow("inv1", "tok", "new@example.com", string(models.RoleStudent), "m1", nil,
			"m1", string(models.InviteStatusPending), now.Add(time.Hour), nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM invites WHERE token = $1 LIMIT 1")).
		WithArgs("tok").
		WillReturnRows(rows)

	invite, err := repo.FindByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "inv1", invite.ID)
	assert.Equal(t, models.InviteStatusPending, invite.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteMarkAcceptedStatusGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInviteRepository(db)

	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invites SET status = $2, accepted_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("inv1", models.InviteStatusAccepted, at, models.InviteStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkAccepted(context.Background(), "inv1", at))

	// A second acceptance matches no pending row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invites SET status = $2, accepted_at = $3 WHERE id = $1 AND status = $4")).
		WithArgs("inv1", models.InviteStatusAccepted, at, models.InviteStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkAccepted(context.Background(), "inv1", at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteMarkExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInviteRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE invites SET status = $2 WHERE id = $1")).
		WithArgs("inv1", models.InviteStatusExpired).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkExpired(context.Background(), "inv1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
