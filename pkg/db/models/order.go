package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

// Order is the aggregate root of a storefront purchase.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderCode      string            `gorm:"column:order_code;not null;uniqueIndex"`
	CustomerEmail  string            `gorm:"column:customer_email;not null"`
	CustomerName   string            `gorm:"column:customer_name;not null;default:''"`
	CustomerPhone  *string           `gorm:"column:customer_phone"`
	Status         enums.OrderStatus `gorm:"column:status;not null;default:'pending_payment';index:idx_orders_status_created,priority:1"`
	Subtotal       int64             `gorm:"column:subtotal;not null"`
	AmountTotal    int64             `gorm:"column:amount_total;not null"`
	DiscountCode   *string           `gorm:"column:discount_code"`
	DiscountAmount int64             `gorm:"column:discount_amount;not null;default:0"`
	CouponCode     *string           `gorm:"column:coupon_code"`
	CouponPercent  *int              `gorm:"column:coupon_discount_percent"`
	ReservedUntil  time.Time         `gorm:"column:reserved_until;not null"`
	FulfilledAt    *time.Time        `gorm:"column:fulfilled_at"`
	ExpiredAt      *time.Time        `gorm:"column:expired_at"`
	CancelledAt    *time.Time        `gorm:"column:cancelled_at"`
	CancelReason   *string           `gorm:"column:cancel_reason"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_orders_status_created,priority:2"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// OrderLine freezes the catalog item at order time.
type OrderLine struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	SkuID           uuid.UUID          `gorm:"column:sku_id;type:uuid;not null"`
	SkuCode         string             `gorm:"column:sku_code;not null"`
	Quantity        int                `gorm:"column:quantity;not null"`
	UnitPrice       int64              `gorm:"column:unit_price;not null"`
	Subtotal        int64              `gorm:"column:subtotal;not null"`
	FulfillmentType enums.DeliveryMode `gorm:"column:fulfillment_type;not null"`
	DurationDays    int                `gorm:"column:duration_days;not null;default:0"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderLine) TableName() string { return "order_lines" }

// IsInstant reports whether the line consumes stock units.
func (l OrderLine) IsInstant() bool {
	return l.FulfillmentType == enums.DeliveryModeInstant
}
