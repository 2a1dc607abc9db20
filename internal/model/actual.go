package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Actual is a derived ledger entry of real recorded spend. One Actual exists
// per Approved request, linked through SourceRequestID; the unique index lets
// the database enforce that.
type Actual struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"item_id"`
	Item            *Item           `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	Qty             decimal.Decimal `gorm:"type:decimal(14,3)" json:"qty"`
	Cost            decimal.Decimal `gorm:"type:decimal(14,2)" json:"cost"`
	Date            time.Time       `json:"date"`
	RecordedBy      string          `gorm:"type:varchar(255);index" json:"recorded_by"`
	Notes           string          `gorm:"type:text" json:"notes"`
	ProjectSite     string          `gorm:"type:varchar(255);index" json:"project_site"`
	SourceRequestID *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"source_request_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (a *Actual) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
