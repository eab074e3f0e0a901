package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

// Sku is a sellable catalog entry. Price is a currency-less integer amount.
type Sku struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code         string             `gorm:"column:code;not null;uniqueIndex"`
	Name         string             `gorm:"column:name;not null"`
	Price        int64              `gorm:"column:price;not null"`
	DeliveryMode enums.DeliveryMode `gorm:"column:delivery_mode;not null"`
	DurationDays int                `gorm:"column:duration_days;not null;default:0"`
	Active       bool               `gorm:"column:active;not null;default:true"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Sku) TableName() string { return "skus" }

// IsInstant reports whether the SKU is backed by stock units.
func (s Sku) IsInstant() bool {
	return s.DeliveryMode == enums.DeliveryModeInstant
}
