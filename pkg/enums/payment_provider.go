package enums

// PaymentProvider names the channel that settled a payment.
type PaymentProvider string

const (
	PaymentProviderBankTransfer PaymentProvider = "bank_transfer"
	PaymentProviderFree         PaymentProvider = "free"
	PaymentProviderManual       PaymentProvider = "manual"
)

func (p PaymentProvider) String() string { return string(p) }

// FinalizeSource records which trigger finalized an order.
type FinalizeSource string

const (
	FinalizeSourceWebhook FinalizeSource = "webhook"
	FinalizeSourcePoller  FinalizeSource = "poller"
	FinalizeSourceCheck   FinalizeSource = "check"
	FinalizeSourceFree    FinalizeSource = "free"
	FinalizeSourceManual  FinalizeSource = "manual"
)

var finalizeSources = newSet("finalize source",
	FinalizeSourceWebhook,
	FinalizeSourcePoller,
	FinalizeSourceCheck,
	FinalizeSourceFree,
	FinalizeSourceManual,
)

func (s FinalizeSource) String() string { return string(s) }

func (s FinalizeSource) IsValid() bool { return finalizeSources.has(s) }
