package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// refreshTokenTTL matches the refresh_token cookie lifetime set by the auth
// middleware.
const refreshTokenTTL = 7 * 24 * time.Hour

// DTOs for Request validation
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	Password    string `json:"password" binding:"required,min=6"`
	Role        string `json:"role" binding:"required"`
	ProjectSite string `json:"project_site" binding:"required"`
}

type UpdateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email" binding:"omitempty,email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	ProjectSite string `json:"project_site"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	ProjectSite string    `json:"project_site"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// CascadeSummary counts the rows removed by a user deletion.
type CascadeSummary struct {
	NotificationsDeleted int64 `json:"notifications_deleted"`
	RequestsDeleted      int64 `json:"requests_deleted"`
	ActualsDeleted       int64 `json:"actuals_deleted"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	// RefreshToken exchanges a stored refresh token for a new token pair. The
	// presented token is consumed (rotation): it cannot be replayed.
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	// DeleteUserCascade removes the user together with every notification the
	// user sent or received, every request authored by the user (and their
	// derived actuals), and every actual the user recorded. Sub-deletions are
	// best-effort: one failure does not abort the remaining steps.
	DeleteUserCascade(ctx context.Context, id, actorID string) (*CascadeSummary, error)
}

type userService struct {
	repo          repository.UserRepository
	requests      repository.RequestRepository
	actuals       repository.ActualRepository
	notifications repository.NotificationRepository
	audits        repository.AuditRepository
	logger        *zap.Logger
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	requests repository.RequestRepository,
	actuals repository.ActualRepository,
	notifications repository.NotificationRepository,
	audits repository.AuditRepository,
	logger *zap.Logger,
) UserService {
	return &userService{
		repo:          repo,
		requests:      requests,
		actuals:       actuals,
		notifications: notifications,
		audits:        audits,
		logger:        logger,
	}
}

// Helper: check if role is allowed
func validateRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleManager || role == model.RoleStaff
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Phone:       user.Phone,
		Role:        user.Role,
		ProjectSite: user.ProjectSite,
		CreatedAt:   user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if !validateRole(req.Role) {
		return nil, fmt.Errorf("%w: role must be admin, manager, or staff", ErrValidation)
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("%w: username already exists", ErrValidation)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("%w: email already exists", ErrValidation)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:    req.Username,
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    string(hashedPassword),
		Role:        req.Role,
		ProjectSite: req.ProjectSite,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ErrValidation)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ErrValidation)
	}

	return s.issueTokenPair(ctx, user)
}

func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	stored, err := s.repo.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invalid refresh token", ErrValidation)
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if time.Now().After(stored.ExpiresAt) {
		// Expired tokens are purged on sight.
		if err := s.repo.DeleteRefreshToken(ctx, req.RefreshToken); err != nil {
			s.logger.Warn("failed to purge expired refresh token", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: refresh token expired", ErrValidation)
	}

	user, err := s.repo.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user for refresh token", ErrNotFound)
	}

	// Rotate: the presented token is spent regardless of what follows.
	if err := s.repo.DeleteRefreshToken(ctx, req.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return s.issueTokenPair(ctx, user)
}

// issueTokenPair signs a fresh access JWT and persists a new opaque refresh
// token for the user.
func (s *userService) issueTokenPair(ctx context.Context, user *model.User) (*TokenResponse, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
	})

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_super_secret_key"
	}

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}
	if err := s.repo.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{Token: tokenString, RefreshToken: refresh.Token}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	var responses []UserResponse
	for _, u := range users {
		responses = append(responses, *mapToResponse(&u))
	}

	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Role != "" {
		if !validateRole(req.Role) {
			return nil, fmt.Errorf("%w: role must be admin, manager, or staff", ErrValidation)
		}
		user.Role = req.Role
	}

	if req.Username != "" && req.Username != user.Username {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, fmt.Errorf("%w: username already exists", ErrValidation)
		}
		user.Username = req.Username
	}

	if req.Email != "" && req.Email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return nil, fmt.Errorf("%w: email already exists", ErrValidation)
		}
		user.Email = req.Email
	}

	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.ProjectSite != "" {
		user.ProjectSite = req.ProjectSite
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUserCascade(ctx context.Context, id, actorID string) (*CascadeSummary, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := &CascadeSummary{}

	// Notifications the user sent or received.
	if n, err := s.notifications.DeleteByUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to delete notifications for user",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		summary.NotificationsDeleted += n
	}

	// Requests authored by the user, with their tagged actuals and
	// request-scoped notifications.
	requests, err := s.requests.FindByRequestedBy(ctx, user.Username)
	if err != nil {
		s.logger.Warn("failed to list requests for user",
			zap.String("username", user.Username), zap.Error(err))
	}
	for _, req := range requests {
		if n, err := s.actuals.DeleteBySourceRequestID(ctx, req.ID); err != nil {
			s.logger.Warn("failed to delete actual for request",
				zap.String("request_id", req.ID.String()), zap.Error(err))
		} else {
			summary.ActualsDeleted += n
		}
		if n, err := s.notifications.DeleteByRelatedRequest(ctx, req.ID); err != nil {
			s.logger.Warn("failed to delete notifications for request",
				zap.String("request_id", req.ID.String()), zap.Error(err))
		} else {
			summary.NotificationsDeleted += n
		}
		if err := s.requests.Delete(ctx, req.ID); err != nil {
			s.logger.Warn("failed to delete request",
				zap.String("request_id", req.ID.String()), zap.Error(err))
		} else {
			summary.RequestsDeleted++
		}
	}

	// Actuals the user recorded directly.
	if n, err := s.actuals.DeleteByRecordedBy(ctx, user.Username); err != nil {
		s.logger.Warn("failed to delete actuals recorded by user",
			zap.String("username", user.Username), zap.Error(err))
	} else {
		summary.ActualsDeleted += n
	}

	// Sessions die with the account.
	if err := s.repo.DeleteRefreshTokensByUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to delete refresh tokens for user",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return summary, fmt.Errorf("failed to delete user: %w", err)
	}

	s.writeCascadeAudit(ctx, actorID, user, summary)

	return summary, nil
}

func (s *userService) writeCascadeAudit(ctx context.Context, actorID string, user *model.User, summary *CascadeSummary) {
	var userID *uuid.UUID
	if parsed, err := uuid.Parse(actorID); err == nil {
		userID = &parsed
	}
	details, _ := json.Marshal(summary)
	entry := &model.AuditLog{
		UserID:     userID,
		Action:     model.ActionDeleteUserCascade,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
		Details:    string(details),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write cascade audit log",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (s *userService) lookup(ctx context.Context, id string) (*model.User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}
