package intake

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/internal/pricing"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

// LineInput is one requested SKU and quantity.
type LineInput struct {
	SkuCode  string `json:"sku_code" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

// PlaceOrderInput is the storefront order request.
type PlaceOrderInput struct {
	CustomerEmail string      `json:"customer_email" validate:"required,email,max=254"`
	CustomerName  string      `json:"customer_name" validate:"max=120"`
	CustomerPhone *string     `json:"customer_phone,omitempty" validate:"omitempty,max=32"`
	Lines         []LineInput `json:"lines" validate:"required,min=1,dive"`
	Code          string      `json:"code,omitempty" validate:"max=64"`
}

// DiscountSummary describes the code applied to an order.
type DiscountSummary struct {
	Kind          pricing.DiscountKind `json:"kind"`
	Code          string               `json:"code"`
	Amount        int64                `json:"amount"`
	CouponPercent *int                 `json:"coupon_discount_percent,omitempty"`
}

// PaymentInstructions tell the customer where to transfer and what to write in the memo.
type PaymentInstructions struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
}

// PlaceOrderResult is returned once the order is committed.
type PlaceOrderResult struct {
	OrderID       uuid.UUID           `json:"-"`
	OrderCode     string              `json:"order_code"`
	Status        enums.OrderStatus   `json:"status"`
	Subtotal      int64               `json:"subtotal"`
	Discount      *DiscountSummary    `json:"discount,omitempty"`
	AmountTotal   int64               `json:"amount_total"`
	ReservedUntil time.Time           `json:"reserved_until"`
	Lines         []orders.LineView   `json:"lines"`
	Payment       PaymentInstructions `json:"payment"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	DeliveryToken string              `json:"delivery_token,omitempty"`
}
