package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

// StockUnit is one sellable credential. OrderID is set exactly when the unit is reserved or sold.
type StockUnit struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SkuID      uuid.UUID             `gorm:"column:sku_id;type:uuid;not null;index:idx_stock_units_sku_status,priority:1"`
	Payload    string                `gorm:"column:payload;not null"`
	Status     enums.StockUnitStatus `gorm:"column:status;not null;default:'available';index:idx_stock_units_sku_status,priority:2;check:(order_id IS NULL) = (status = 'available')"`
	OrderID    *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	ReservedAt *time.Time            `gorm:"column:reserved_at"`
	SoldAt     *time.Time            `gorm:"column:sold_at"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockUnit) TableName() string { return "stock_units" }
