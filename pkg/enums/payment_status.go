package enums

// PaymentStatus tracks one payment attempt against an order. An order has at
// most one initiated payment at a time.
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	// PaymentStatusTimeout closes the attempt of an order whose reservation expired.
	PaymentStatusTimeout PaymentStatus = "timeout"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusInitiated,
	PaymentStatusConfirmed,
	PaymentStatusFailed,
	PaymentStatusTimeout,
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

// IsOpen is true while the attempt can still be confirmed.
func (p PaymentStatus) IsOpen() bool { return p == PaymentStatusInitiated }

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}
