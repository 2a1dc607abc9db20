package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Request statuses. A request starts Pending; approvals and rejections are
// revocable, so any status may transition to any other.
const (
	RequestStatusPending  = "Pending"
	RequestStatusApproved = "Approved"
	RequestStatusRejected = "Rejected"
)

// Request represents a demand for a quantity of a catalog item.
// Status is written only by the request service; PriceSnapshot freezes the
// unit price in force at submission time.
type Request struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Section       string          `gorm:"type:varchar(20);not null" json:"section"` // materials, labour
	ItemID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"item_id"`
	Item          *Item           `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	Qty           decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"qty"`
	RequestedBy   string          `gorm:"type:varchar(255);not null;index" json:"requested_by"` // requester display name
	Note          string          `gorm:"type:text" json:"note"`
	Status        string          `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	ApprovedBy    *string         `gorm:"type:varchar(255)" json:"approved_by"` // actor of the last transition
	PriceSnapshot decimal.Decimal `gorm:"type:decimal(14,2)" json:"price_snapshot"`
	ProjectSite   string          `gorm:"type:varchar(255);index" json:"project_site"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (r *Request) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ValidRequestStatus reports whether s is one of the three request statuses.
func ValidRequestStatus(s string) bool {
	return s == RequestStatusPending || s == RequestStatusApproved || s == RequestStatusRejected
}
