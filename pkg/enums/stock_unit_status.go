package enums

// StockUnitStatus is the lifecycle of a single sellable unit:
// available -> reserved -> sold, or reserved -> available on release.
type StockUnitStatus string

const (
	StockUnitAvailable StockUnitStatus = "available"
	StockUnitReserved  StockUnitStatus = "reserved"
	StockUnitSold      StockUnitStatus = "sold"
)

var stockUnitStatuses = newSet("stock unit status", StockUnitAvailable, StockUnitReserved, StockUnitSold)

func (s StockUnitStatus) String() string { return string(s) }

func (s StockUnitStatus) IsValid() bool { return stockUnitStatuses.has(s) }
