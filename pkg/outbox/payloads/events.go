package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineSummary is the per-line view carried on order events.
type OrderLineSummary struct {
	SkuCode         string `json:"sku_code"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
	FulfillmentType string `json:"fulfillment_type"`
}

// OrderCreatedEvent is emitted once intake commits a pending order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID          `json:"order_id" validate:"required"`
	OrderCode     string             `json:"order_code" validate:"required"`
	CustomerEmail string             `json:"customer_email"`
	AmountTotal   int64              `json:"amount_total"`
	ReservedUntil time.Time          `json:"reserved_until"`
	Lines         []OrderLineSummary `json:"lines"`
}

// OrderFulfilledEvent is emitted by the finalize transition.
type OrderFulfilledEvent struct {
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	OrderCode     string    `json:"order_code" validate:"required"`
	InvoiceNumber string    `json:"invoice_number"`
	AmountTotal   int64     `json:"amount_total"`
	ExternalTxnID string    `json:"external_txn_id"`
	Source        string    `json:"source"`
	FulfilledAt   time.Time `json:"fulfilled_at"`
	DeferredLines int       `json:"deferred_lines"`
}

// OrderExpiredEvent is emitted when the reaper expires an unpaid order.
type OrderExpiredEvent struct {
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	OrderCode     string    `json:"order_code" validate:"required"`
	ReleasedUnits int64     `json:"released_units"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// OrderCancelledEvent is emitted when an operator cancels a pending order.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	OrderCode     string    `json:"order_code" validate:"required"`
	ReleasedUnits int64     `json:"released_units"`
	CancelledAt   time.Time `json:"cancelled_at"`
	Reason        string    `json:"reason,omitempty"`
}

// NotificationRequestedEvent asks the notifier to tell the customer their order is ready.
type NotificationRequestedEvent struct {
	OrderID       uuid.UUID `json:"order_id" validate:"required"`
	OrderCode     string    `json:"order_code" validate:"required"`
	CustomerEmail string    `json:"customer_email"`
	Type          string    `json:"type" validate:"required,oneof=order_ready"`
	DeferredLines int       `json:"deferred_lines"`
}
