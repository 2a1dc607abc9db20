package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item categories. An item is either a material or a labour role.
const (
	CategoryMaterials = "materials"
	CategoryLabour    = "labour"
)

// Item is a budgeted catalog entry (material or labour role) that requests
// are raised against. Budget/Section/Grp carry the budget-sheet context the
// item was imported under.
type Item struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string          `gorm:"type:varchar(100);index" json:"code"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Category    string          `gorm:"type:varchar(20);not null;index" json:"category"` // materials, labour
	Unit        string          `gorm:"type:varchar(50)" json:"unit"`
	Qty         decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0" json:"qty"`
	UnitCost    decimal.Decimal `gorm:"type:decimal(14,2)" json:"unit_cost"`
	Budget      string          `gorm:"type:varchar(255)" json:"budget"`
	Section     string          `gorm:"type:varchar(255)" json:"section"`
	Grp         string          `gorm:"type:varchar(255)" json:"grp"`
	ProjectSite string          `gorm:"type:varchar(255);index" json:"project_site"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i *Item) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
