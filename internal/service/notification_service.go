package service

import (
	"context"
	"errors"
	"fmt"

	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateNotificationDTO is the single creation primitive. A nil ReceiverID
// addresses all admins (broadcast); a non-empty EventKey makes the call
// idempotent.
type CreateNotificationDTO struct {
	SenderID         *uuid.UUID
	ReceiverID       *uuid.UUID
	Message          string
	Type             string
	EventKey         string
	RelatedRequestID *uuid.UUID
}

type NotificationResponse struct {
	ID               string  `json:"id"`
	SenderID         *string `json:"sender_id"`
	ReceiverID       *string `json:"receiver_id"`
	Message          string  `json:"message"`
	Type             string  `json:"type"`
	IsRead           bool    `json:"is_read"`
	EventKey         *string `json:"event_key,omitempty"`
	RelatedRequestID *string `json:"related_request_id,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

type NotificationService interface {
	// Create persists one notification. Returns created=false (and no error)
	// when a notification with the same event key already exists.
	Create(ctx context.Context, dto CreateNotificationDTO) (created bool, err error)
	// NotifyProjectPeers fans one message out to every user attached to
	// projectSite except the excluded one, with a per-peer event key derived
	// from eventKeyPrefix so replays cannot duplicate rows. Returns the
	// number of rows created.
	NotifyProjectPeers(ctx context.Context, projectSite string, exclude uuid.UUID, message, notifType, eventKeyPrefix string, relatedRequestID *uuid.UUID) (int, error)
	List(ctx context.Context, userID uuid.UUID, userRole string, unreadOnly bool, limit, offset int) ([]NotificationResponse, int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID, userRole string) (int64, error)
	MarkRead(ctx context.Context, id string) error
	// MarkAllRead clears every unread notification the user can see, broadcast
	// rows included for roles that read them.
	MarkAllRead(ctx context.Context, receiverID uuid.UUID, userRole string) (int64, error)
	Delete(ctx context.Context, id string) error
	// DeleteByRelatedRequest removes every notification referencing a request;
	// invoked by cascade cleanup when the request itself is deleted.
	DeleteByRelatedRequest(ctx context.Context, requestID uuid.UUID) (int64, error)
	// DeleteByUser removes every notification the user sent or received.
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	logger        *zap.Logger
}

func NewNotificationService(notifications repository.NotificationRepository, users repository.UserRepository, logger *zap.Logger) NotificationService {
	return &notificationService{notifications: notifications, users: users, logger: logger}
}

func (s *notificationService) Create(ctx context.Context, dto CreateNotificationDTO) (bool, error) {
	if dto.Message == "" {
		return false, fmt.Errorf("%w: notification message is required", ErrValidation)
	}
	if dto.Type == "" {
		dto.Type = model.NotifTypeInfo
	}

	n := &model.Notification{
		SenderID:         dto.SenderID,
		ReceiverID:       dto.ReceiverID,
		Message:          dto.Message,
		Type:             dto.Type,
		RelatedRequestID: dto.RelatedRequestID,
	}
	if dto.EventKey != "" {
		n.EventKey = &dto.EventKey
	}

	created, err := s.notifications.Create(ctx, n)
	if err != nil {
		return false, fmt.Errorf("failed to create notification: %w", err)
	}
	if !created {
		s.logger.Debug("notification with event key already exists, skipping",
			zap.String("event_key", dto.EventKey))
	}
	return created, nil
}

func (s *notificationService) NotifyProjectPeers(ctx context.Context, projectSite string, exclude uuid.UUID, message, notifType, eventKeyPrefix string, relatedRequestID *uuid.UUID) (int, error) {
	peers, err := s.users.ListByProjectSite(ctx, projectSite, exclude)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve peers for site %q: %w", projectSite, err)
	}

	sent := 0
	for _, peer := range peers {
		receiverID := peer.ID
		created, err := s.Create(ctx, CreateNotificationDTO{
			ReceiverID:       &receiverID,
			Message:          message,
			Type:             notifType,
			EventKey:         fmt.Sprintf("%s:%s", eventKeyPrefix, peer.ID),
			RelatedRequestID: relatedRequestID,
		})
		if err != nil {
			return sent, err
		}
		if created {
			sent++
		}
	}
	return sent, nil
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, userRole string, unreadOnly bool, limit, offset int) ([]NotificationResponse, int64, error) {
	notifications, total, err := s.notifications.ListForUser(ctx, userID, canSeeBroadcasts(userRole), unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	result := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, toNotificationResponse(n))
	}
	return result, total, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID, userRole string) (int64, error) {
	return s.notifications.UnreadCount(ctx, userID, canSeeBroadcasts(userRole))
}

func (s *notificationService) MarkRead(ctx context.Context, id string) error {
	notifID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid notification id", ErrValidation)
	}
	// Re-marking an already-read notification updates zero rows; still success.
	if _, err := s.notifications.MarkRead(ctx, notifID); err != nil {
		return fmt.Errorf("failed to mark notification %s as read: %w", notifID, err)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, receiverID uuid.UUID, userRole string) (int64, error) {
	marked, err := s.notifications.MarkAllRead(ctx, receiverID, canSeeBroadcasts(userRole))
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return marked, nil
}

func (s *notificationService) Delete(ctx context.Context, id string) error {
	notifID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid notification id", ErrValidation)
	}
	deleted, err := s.notifications.Delete(ctx, notifID)
	if err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", notifID, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: notification %s", ErrNotFound, notifID)
	}
	return nil
}

func (s *notificationService) DeleteByRelatedRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	return s.notifications.DeleteByRelatedRequest(ctx, requestID)
}

func (s *notificationService) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notifications.DeleteByUser(ctx, userID)
}

// canSeeBroadcasts reports whether a role reads admin-broadcast rows
// (nil receiver) in addition to its direct messages.
func canSeeBroadcasts(role string) bool {
	return role == model.RoleAdmin || role == model.RoleManager
}

// resolveUserByName maps a requester display name back to an account. A
// missing account (deleted user) is reported as ErrNotFound.
func resolveUserByName(ctx context.Context, users repository.UserRepository, name string) (*model.User, error) {
	user, err := users.GetByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %q", ErrNotFound, name)
		}
		return nil, err
	}
	return user, nil
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:        n.ID.String(),
		Message:   n.Message,
		Type:      n.Type,
		IsRead:    n.IsRead,
		EventKey:  n.EventKey,
		CreatedAt: n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if n.SenderID != nil {
		s := n.SenderID.String()
		resp.SenderID = &s
	}
	if n.ReceiverID != nil {
		s := n.ReceiverID.String()
		resp.ReceiverID = &s
	}
	if n.RelatedRequestID != nil {
		s := n.RelatedRequestID.String()
		resp.RelatedRequestID = &s
	}
	return resp
}
