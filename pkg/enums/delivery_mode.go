package enums

// DeliveryMode decides whether a SKU is backed by stock units. Deferred SKUs
// are delivered by an operator after payment.
type DeliveryMode string

const (
	DeliveryModeInstant  DeliveryMode = "instant"
	DeliveryModeDeferred DeliveryMode = "deferred"
)

var deliveryModes = newSet("delivery mode", DeliveryModeInstant, DeliveryModeDeferred)

func (m DeliveryMode) String() string { return string(m) }

func (m DeliveryMode) IsValid() bool { return deliveryModes.has(m) }

func ParseDeliveryMode(value string) (DeliveryMode, error) {
	return deliveryModes.parse(value)
}
