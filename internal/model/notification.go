package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types
const (
	NotifTypeInfo            = "info"
	NotifTypeSuccess         = "success"
	NotifTypeWarning         = "warning"
	NotifTypeError           = "error"
	NotifTypeNewRequest      = "new_request"
	NotifTypeRequestApproved = "request_approved"
	NotifTypeRequestRejected = "request_rejected"
)

// Notification is one delivered message. A nil ReceiverID means an admin
// broadcast, filtered by role at read time. EventKey, when set, deduplicates:
// at most one row exists per key, and re-creating with a used key is a no-op
// that reports success.
type Notification struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID         *uuid.UUID `gorm:"type:uuid;index" json:"sender_id"`   // nil = system
	ReceiverID       *uuid.UUID `gorm:"type:uuid;index" json:"receiver_id"` // nil = admin broadcast
	Message          string     `gorm:"type:text;not null" json:"message"`
	Type             string     `gorm:"type:varchar(30);not null;default:'info'" json:"type"`
	IsRead           bool       `gorm:"not null;default:false;index" json:"is_read"`
	EventKey         *string    `gorm:"type:varchar(255);uniqueIndex" json:"event_key,omitempty"`
	RelatedRequestID *uuid.UUID `gorm:"type:uuid;index" json:"related_request_id,omitempty"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
