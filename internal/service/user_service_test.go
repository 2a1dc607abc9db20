package service

import (
	"context"
	"testing"
	"time"

	"sitestock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.userService.CreateUser(ctx, CreateUserRequest{
		Username:    "alice",
		Email:       "alice@example.com",
		Password:    "secret123",
		Role:        model.RoleStaff,
		ProjectSite: "site-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, model.RoleStaff, created.Role)

	token, err := env.userService.Login(ctx, LoginUserRequest{Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.NotEmpty(t, token.RefreshToken)

	// The refresh token is persisted alongside the session.
	stored, err := env.users.GetRefreshToken(ctx, token.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.UserID)
	assert.True(t, stored.ExpiresAt.After(time.Now()))

	_, err = env.userService.Login(ctx, LoginUserRequest{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRefreshToken_RotatesOnUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	require.NoError(t, env.users.CreateRefreshToken(ctx, &model.RefreshToken{
		UserID:    staff.ID,
		Token:     "old-session-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	fresh, err := env.userService.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "old-session-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.Token)
	require.NotEmpty(t, fresh.RefreshToken)
	assert.NotEqual(t, "old-session-token", fresh.RefreshToken)

	// The spent token cannot be replayed; only the rotated one remains.
	_, err = env.userService.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "old-session-token"})
	assert.ErrorIs(t, err, ErrValidation)

	var rows []model.RefreshToken
	require.NoError(t, env.db.Where("user_id = ?", staff.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.RefreshToken, rows[0].Token)
}

func TestRefreshToken_RejectsExpiredAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	require.NoError(t, env.users.CreateRefreshToken(ctx, &model.RefreshToken{
		UserID:    staff.ID,
		Token:     "stale-session-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := env.userService.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "stale-session-token"})
	assert.ErrorIs(t, err, ErrValidation)

	// The expired row is purged, not left behind.
	var rows []model.RefreshToken
	require.NoError(t, env.db.Where("user_id = ?", staff.ID).Find(&rows).Error)
	assert.Empty(t, rows)

	_, err = env.userService.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: uuid.NewString()})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateUser_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedUser(t, "alice", model.RoleStaff, "site-a")

	_, err := env.userService.CreateUser(ctx, CreateUserRequest{
		Username: "bob", Email: "bob@example.com", Password: "secret123",
		Role: "contractor", ProjectSite: "site-a",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.userService.CreateUser(ctx, CreateUserRequest{
		Username: "alice", Email: "other@example.com", Password: "secret123",
		Role: model.RoleStaff, ProjectSite: "site-a",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.userService.CreateUser(ctx, CreateUserRequest{
		Username: "bob", Email: "alice@example.com", Password: "secret123",
		Role: model.RoleStaff, ProjectSite: "site-a",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteUserCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := env.seedUser(t, "alice", model.RoleStaff, "site-a")
	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")
	item := env.seedItem(t, "Cement", decimal.NewFromInt(600), "site-a")

	// Two requests by alice; the first one approved, so it carries an actual.
	req1 := env.submit(t, staff, item.ID.String(), decimal.NewFromInt(10), decimal.Zero)
	env.submit(t, staff, item.ID.String(), decimal.NewFromInt(3), decimal.Zero)

	_, err := env.requestService.Transition(ctx, req1.ID, model.RequestStatusApproved, admin.ID.String())
	require.NoError(t, err)
	require.Len(t, env.actualRows(t), 1)

	require.NoError(t, env.users.CreateRefreshToken(ctx, &model.RefreshToken{
		UserID:    staff.ID,
		Token:     "alice-session",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	summary, err := env.userService.DeleteUserCascade(ctx, staff.ID.String(), admin.ID.String())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.RequestsDeleted)
	assert.Equal(t, int64(1), summary.ActualsDeleted)
	assert.Greater(t, summary.NotificationsDeleted, int64(0))

	// Everything attributed to alice is gone.
	_, err = env.userService.GetUserByID(ctx, staff.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.actualRows(t))

	var sessions []model.RefreshToken
	require.NoError(t, env.db.Where("user_id = ?", staff.ID).Find(&sessions).Error)
	assert.Empty(t, sessions)

	var remaining []model.Request
	require.NoError(t, env.db.Find(&remaining).Error)
	assert.Empty(t, remaining)

	// No notification for alice or about her requests survives.
	for _, n := range env.notificationRows(t) {
		if n.ReceiverID != nil {
			assert.NotEqual(t, staff.ID, *n.ReceiverID)
		}
		if n.SenderID != nil {
			assert.NotEqual(t, staff.ID, *n.SenderID)
		}
		assert.Nil(t, n.RelatedRequestID)
	}

	var audits []model.AuditLog
	require.NoError(t, env.db.Where("action = ?", model.ActionDeleteUserCascade).Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, "alice", audits[0].EntityName)
}

func TestDeleteUserCascade_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.seedUser(t, "boss", model.RoleAdmin, "site-a")

	_, err := env.userService.DeleteUserCascade(ctx, "00000000-0000-0000-0000-000000000001", admin.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.userService.DeleteUserCascade(ctx, "not-a-uuid", admin.ID.String())
	assert.ErrorIs(t, err, ErrValidation)
}
