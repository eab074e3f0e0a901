package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is issued once per fulfilled order and never modified.
type Invoice struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	InvoiceNumber string    `gorm:"column:invoice_number;not null;uniqueIndex"`
	Amount        int64     `gorm:"column:amount;not null"`
	IssuedAt      time.Time `gorm:"column:issued_at;not null"`
}

func (Invoice) TableName() string { return "invoices" }
