package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

// Payment is one attempt to settle an order. At most one per order reaches confirmed.
type Payment struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Provider       enums.PaymentProvider `gorm:"column:provider;not null"`
	Amount         int64                 `gorm:"column:amount;not null"`
	ReceivedAmount *int64                `gorm:"column:received_amount"`
	Status         enums.PaymentStatus   `gorm:"column:status;not null;default:'initiated'"`
	ExternalTxnID  *string               `gorm:"column:external_txn_id;uniqueIndex"`
	ConfirmedAt    *time.Time            `gorm:"column:confirmed_at"`
	Evidence       datatypes.JSONMap     `gorm:"column:evidence"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
