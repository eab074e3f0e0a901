// Package dbtest opens isolated in-memory databases seeded with the keyshop schema.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

// Open returns a fresh in-memory database with every model migrated.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:keyshop_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// SeedSku inserts an active SKU.
func SeedSku(t testing.TB, db *gorm.DB, code string, mode enums.DeliveryMode, price int64, durationDays int) models.Sku {
	t.Helper()
	sku := models.Sku{
		Code:         code,
		Name:         code,
		Price:        price,
		DeliveryMode: mode,
		DurationDays: durationDays,
		Active:       true,
	}
	if err := db.Create(&sku).Error; err != nil {
		t.Fatalf("seed sku %s: %v", code, err)
	}
	return sku
}

// SeedUnits adds n available units for the SKU.
func SeedUnits(t testing.TB, db *gorm.DB, sku models.Sku, n int) []models.StockUnit {
	t.Helper()
	units := make([]models.StockUnit, 0, n)
	for i := 0; i < n; i++ {
		unit := models.StockUnit{
			SkuID:   sku.ID,
			Payload: fmt.Sprintf("%s-user%d:secret%d", sku.Code, i, i),
			Status:  enums.StockUnitAvailable,
		}
		if err := db.Create(&unit).Error; err != nil {
			t.Fatalf("seed unit: %v", err)
		}
		units = append(units, unit)
	}
	return units
}

// CountRows returns the row count for a model.
func CountRows(t testing.TB, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}

// LineSeed describes one line of a seeded order.
type LineSeed struct {
	Sku      models.Sku
	Quantity int
}

// SeedPendingOrder inserts a pending_payment order with its lines, reserves units
// for instant lines and opens an initiated bank transfer payment.
func SeedPendingOrder(t testing.TB, db *gorm.DB, code, email string, reservedUntil time.Time, lines ...LineSeed) models.Order {
	t.Helper()
	var subtotal int64
	for _, line := range lines {
		subtotal += line.Sku.Price * int64(line.Quantity)
	}
	order := models.Order{
		OrderCode:     code,
		CustomerEmail: email,
		Status:        enums.OrderStatusPendingPayment,
		Subtotal:      subtotal,
		AmountTotal:   subtotal,
		ReservedUntil: reservedUntil.UTC(),
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order %s: %v", code, err)
	}
	for _, line := range lines {
		row := models.OrderLine{
			OrderID:         order.ID,
			SkuID:           line.Sku.ID,
			SkuCode:         line.Sku.Code,
			Quantity:        line.Quantity,
			UnitPrice:       line.Sku.Price,
			Subtotal:        line.Sku.Price * int64(line.Quantity),
			FulfillmentType: line.Sku.DeliveryMode,
			DurationDays:    line.Sku.DurationDays,
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed order line: %v", err)
		}
		if line.Sku.DeliveryMode != enums.DeliveryModeInstant {
			continue
		}
		var ids []uuid.UUID
		if err := db.Model(&models.StockUnit{}).
			Where("sku_id = ? AND status = ?", line.Sku.ID, enums.StockUnitAvailable).
			Order("created_at ASC").
			Limit(line.Quantity).
			Pluck("id", &ids).Error; err != nil {
			t.Fatalf("pick units: %v", err)
		}
		if len(ids) != line.Quantity {
			t.Fatalf("seed order %s: only %d units available for %s", code, len(ids), line.Sku.Code)
		}
		now := time.Now().UTC()
		if err := db.Model(&models.StockUnit{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": enums.StockUnitReserved, "order_id": order.ID, "reserved_at": now}).Error; err != nil {
			t.Fatalf("reserve units: %v", err)
		}
	}
	payment := models.Payment{
		OrderID:  order.ID,
		Provider: enums.PaymentProviderBankTransfer,
		Amount:   subtotal,
		Status:   enums.PaymentStatusInitiated,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return order
}

// UnitsByStatus counts the order's units in the given status.
func UnitsByStatus(t testing.TB, db *gorm.DB, orderID uuid.UUID, status enums.StockUnitStatus) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.StockUnit{}).
		Where("order_id = ? AND status = ?", orderID, status).
		Count(&count).Error; err != nil {
		t.Fatalf("count units: %v", err)
	}
	return count
}
