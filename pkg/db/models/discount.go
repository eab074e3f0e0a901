package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DiscountCode is a fixed-amount, multi-use, tier-aware code.
type DiscountCode struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code      string    `gorm:"column:code;not null;uniqueIndex"`
	Amount    int64     `gorm:"column:amount;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// Coupon is a percentage code with a global use counter and optional SKU allow-list.
type Coupon struct {
	ID          uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	Code        string                      `gorm:"column:code;not null;uniqueIndex"`
	Percent     int                         `gorm:"column:percent;not null"`
	MaxUses     int                         `gorm:"column:max_uses;not null"`
	UsedCount   int                         `gorm:"column:used_count;not null;default:0"`
	AllowedSkus datatypes.JSONSlice[string] `gorm:"column:allowed_skus"`
	ExpiresAt   *time.Time                  `gorm:"column:expires_at"`
	Active      bool                        `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (Coupon) TableName() string { return "coupons" }

// Restricted reports whether the coupon only applies to listed SKU codes.
func (c Coupon) Restricted() bool {
	return len(c.AllowedSkus) > 0
}

// Allows reports whether the coupon discounts the given SKU code. SKU codes
// compare case-insensitively, like catalog lookups.
func (c Coupon) Allows(skuCode string) bool {
	if !c.Restricted() {
		return true
	}
	skuCode = strings.TrimSpace(skuCode)
	for _, allowed := range c.AllowedSkus {
		if strings.EqualFold(strings.TrimSpace(allowed), skuCode) {
			return true
		}
	}
	return false
}
