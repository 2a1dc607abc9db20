package repository

import (
	"context"

	"sitestock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	// Create inserts the notification. When its event key is already used the
	// insert is skipped and created=false is returned with a nil error.
	Create(ctx context.Context, n *model.Notification) (created bool, err error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	// ListForUser returns rows addressed to userID; includeBroadcast also
	// returns admin-broadcast rows (nil receiver).
	ListForUser(ctx context.Context, userID uuid.UUID, includeBroadcast, unreadOnly bool, limit, offset int) ([]model.Notification, int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID, includeBroadcast bool) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID) (int64, error)
	// MarkAllRead marks every unread row the user can see: their direct rows,
	// plus broadcast rows when includeBroadcast is set. The visible set must
	// match ListForUser and UnreadCount or read-all leaves the unread count
	// non-zero.
	MarkAllRead(ctx context.Context, receiverID uuid.UUID, includeBroadcast bool) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteByRelatedRequest(ctx context.Context, requestID uuid.UUID) (int64, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) (bool, error) {
	result := GetDB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoNothing: true,
		}).
		Create(n)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	if err := GetDB(ctx, r.db).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) scopeForUser(db *gorm.DB, userID uuid.UUID, includeBroadcast bool) *gorm.DB {
	if includeBroadcast {
		return db.Where("receiver_id = ? OR receiver_id IS NULL", userID)
	}
	return db.Where("receiver_id = ?", userID)
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, includeBroadcast, unreadOnly bool, limit, offset int) ([]model.Notification, int64, error) {
	var notifications []model.Notification
	var total int64

	db := GetDB(ctx, r.db)
	countQuery := r.scopeForUser(db.Model(&model.Notification{}), userID, includeBroadcast)
	if unreadOnly {
		countQuery = countQuery.Where("is_read = ?", false)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetchQuery := r.scopeForUser(db.Model(&model.Notification{}), userID, includeBroadcast)
	if unreadOnly {
		fetchQuery = fetchQuery.Where("is_read = ?", false)
	}
	if err := fetchQuery.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error; err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID, includeBroadcast bool) (int64, error) {
	var count int64
	query := r.scopeForUser(GetDB(ctx, r.db).Model(&model.Notification{}), userID, includeBroadcast).
		Where("is_read = ?", false)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Model(&model.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, receiverID uuid.UUID, includeBroadcast bool) (int64, error) {
	query := r.scopeForUser(GetDB(ctx, r.db).Model(&model.Notification{}), receiverID, includeBroadcast).
		Where("is_read = ?", false)
	result := query.Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Delete(&model.Notification{}, "id = ?", id)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) DeleteByRelatedRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Delete(&model.Notification{}, "related_request_id = ?", requestID)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Delete(&model.Notification{}, "receiver_id = ? OR sender_id = ?", userID, userID)
	return result.RowsAffected, result.Error
}
