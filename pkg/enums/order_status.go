package enums

// OrderStatus tracks the lifecycle of a storefront order. Only pending_payment
// and paid orders can still move.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusFulfilled      OrderStatus = "fulfilled"
	OrderStatusExpired        OrderStatus = "expired"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusRefunded       OrderStatus = "refunded"
)

var orderStatuses = newSet("order status",
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusFulfilled,
	OrderStatusExpired,
	OrderStatusCancelled,
	OrderStatusFailed,
	OrderStatusRefunded,
)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPendingPayment && s != OrderStatusPaid
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return orderStatuses.list()
}
