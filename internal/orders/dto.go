package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

// Evidence is the payment proof handed to the finalize transition.
type Evidence struct {
	Transaction paymentfeed.Transaction
	Source      enums.FinalizeSource
	Provider    enums.PaymentProvider
}

// FinalizeOutcome reports what a finalize call did. Finalized is false when the
// order was no longer pending and the call was a no-op.
type FinalizeOutcome struct {
	Finalized     bool
	OrderID       uuid.UUID
	OrderCode     string
	Status        enums.OrderStatus
	InvoiceNumber string
	DeliveryToken string
}

// LineView is the customer facing view of an order line.
type LineView struct {
	SkuCode         string             `json:"sku_code"`
	Quantity        int                `json:"quantity"`
	UnitPrice       int64              `json:"unit_price"`
	Subtotal        int64              `json:"subtotal"`
	FulfillmentType enums.DeliveryMode `json:"fulfillment_type"`
}

// OrderView is the status view returned to customers and operators.
type OrderView struct {
	OrderCode      string            `json:"order_code"`
	Status         enums.OrderStatus `json:"status"`
	CustomerEmail  string            `json:"customer_email"`
	Subtotal       int64             `json:"subtotal"`
	DiscountCode   *string           `json:"discount_code,omitempty"`
	DiscountAmount int64             `json:"discount_amount"`
	CouponCode     *string           `json:"coupon_code,omitempty"`
	CouponPercent  *int              `json:"coupon_discount_percent,omitempty"`
	AmountTotal    int64             `json:"amount_total"`
	ReservedUntil  time.Time         `json:"reserved_until"`
	FulfilledAt    *time.Time        `json:"fulfilled_at,omitempty"`
	InvoiceNumber  string            `json:"invoice_number,omitempty"`
	PaymentStatus  string            `json:"payment_status,omitempty"`
	Lines          []LineView        `json:"lines"`
}

// CancelInput names the pending order an operator wants to cancel.
type CancelInput struct {
	OrderCode string
	Reason    string
	Operator  string
}

// ManualFinalizeInput carries operator supplied payment evidence.
type ManualFinalizeInput struct {
	OrderCode     string
	TransactionID string
	Amount        int64
	Note          string
	Operator      string
}

// ListInput is the operator listing request. Cursor is the opaque value from a
// previous page.
type ListInput struct {
	Status string
	Email  string
	Cursor string
	Limit  int
}

// OrderSummary is one row of an operator listing.
type OrderSummary struct {
	OrderCode     string            `json:"order_code"`
	Status        enums.OrderStatus `json:"status"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	ReservedUntil time.Time         `json:"reserved_until"`
	FulfilledAt   *time.Time        `json:"fulfilled_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// OrderPage is a page of summaries plus the cursor for the next one.
type OrderPage struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
