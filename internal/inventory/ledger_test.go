package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

func seedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{
		OrderCode:     "KS" + uuid.NewString()[:8],
		CustomerEmail: "buyer@example.com",
		Status:        status,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestReserveClaimsUnits(t *testing.T) {
	db := dbtest.Open(t)
	sku := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	dbtest.SeedUnits(t, db, sku, 5)
	order := seedOrder(t, db, enums.OrderStatusPendingPayment)
	ledger := NewLedger(db)
	ctx := context.Background()

	var ids []uuid.UUID
	err := db.Transaction(func(tx *gorm.DB) error {
		var rerr error
		ids, rerr = ledger.Reserve(ctx, tx, &sku, 3, order.ID)
		return rerr
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	counts, err := ledger.Counts(ctx, sku.ID)
	require.NoError(t, err)
	assert.Equal(t, Counts{Available: 2, Reserved: 3}, counts)

	var reserved []models.StockUnit
	require.NoError(t, db.Where("status = ?", enums.StockUnitReserved).Find(&reserved).Error)
	for _, unit := range reserved {
		require.NotNil(t, unit.OrderID)
		assert.Equal(t, order.ID, *unit.OrderID)
		assert.NotNil(t, unit.ReservedAt)
	}
}

func TestReserveShortfallReportsAvailable(t *testing.T) {
	db := dbtest.Open(t)
	sku := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	dbtest.SeedUnits(t, db, sku, 2)
	ledger := NewLedger(db)

	_, err := ledger.Reserve(context.Background(), db, &sku, 3, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, "NF-30", details["sku"])
	assert.Equal(t, 3, details["requested"])
	assert.Equal(t, 2, details["available"])

	counts, err := ledger.Counts(context.Background(), sku.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts.Available)
}

func TestReleaseLeavesSoldUnits(t *testing.T) {
	db := dbtest.Open(t)
	sku := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	dbtest.SeedUnits(t, db, sku, 4)
	order := seedOrder(t, db, enums.OrderStatusPendingPayment)
	ledger := NewLedger(db)
	ctx := context.Background()

	ids, err := ledger.Reserve(ctx, db, &sku, 3, order.ID)
	require.NoError(t, err)
	sold, err := ledger.MarkSold(ctx, db, ids[:1], order.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sold)

	released, err := ledger.Release(ctx, db, order.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, released)

	counts, err := ledger.Counts(ctx, sku.ID)
	require.NoError(t, err)
	assert.Equal(t, Counts{Available: 3, Sold: 1}, counts)
	assert.EqualValues(t, 4, counts.Total())

	var unit models.StockUnit
	require.NoError(t, db.First(&unit, "id = ?", ids[1]).Error)
	assert.Nil(t, unit.OrderID)
	assert.Equal(t, enums.StockUnitAvailable, unit.Status)
}

func TestMarkSoldRequiresOwningOrder(t *testing.T) {
	db := dbtest.Open(t)
	sku := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	dbtest.SeedUnits(t, db, sku, 2)
	owner := seedOrder(t, db, enums.OrderStatusPendingPayment)
	stranger := seedOrder(t, db, enums.OrderStatusPendingPayment)
	ledger := NewLedger(db)
	ctx := context.Background()

	ids, err := ledger.Reserve(ctx, db, &sku, 2, owner.ID)
	require.NoError(t, err)

	sold, err := ledger.MarkSold(ctx, db, ids, stranger.ID)
	require.NoError(t, err)
	assert.Zero(t, sold)

	sold, err = ledger.MarkSold(ctx, db, ids, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sold)

	sold, err = ledger.MarkSold(ctx, db, ids, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, sold, "a second markSold must not touch sold units")
}

func TestReservedUnitsAndSoldPayloads(t *testing.T) {
	db := dbtest.Open(t)
	netflix := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	spotify := dbtest.SeedSku(t, db, "SP-30", enums.DeliveryModeInstant, 50000, 30)
	dbtest.SeedUnits(t, db, netflix, 2)
	dbtest.SeedUnits(t, db, spotify, 2)
	order := seedOrder(t, db, enums.OrderStatusPendingPayment)
	ledger := NewLedger(db)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, db, &spotify, 1, order.ID)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, db, &netflix, 2, order.ID)
	require.NoError(t, err)

	nfIDs, err := ledger.ReservedUnits(ctx, db, order.ID, netflix.ID)
	require.NoError(t, err)
	assert.Len(t, nfIDs, 2)
	spIDs, err := ledger.ReservedUnits(ctx, db, order.ID, spotify.ID)
	require.NoError(t, err)
	assert.Len(t, spIDs, 1)

	_, err = ledger.MarkSold(ctx, db, append(nfIDs, spIDs...), order.ID)
	require.NoError(t, err)

	payloads, err := ledger.SoldPayloads(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 3)
	assert.Equal(t, "NF-30", payloads[0].SkuCode)
	assert.Equal(t, "NF-30", payloads[1].SkuCode)
	assert.Equal(t, "SP-30", payloads[2].SkuCode)
	assert.NotEmpty(t, payloads[2].Payload)
}

func TestReleaseOrphanedOnlyTouchesDeadOrders(t *testing.T) {
	db := dbtest.Open(t)
	sku := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	dbtest.SeedUnits(t, db, sku, 6)
	expired := seedOrder(t, db, enums.OrderStatusExpired)
	cancelled := seedOrder(t, db, enums.OrderStatusCancelled)
	pending := seedOrder(t, db, enums.OrderStatusPendingPayment)
	ledger := NewLedger(db)
	ctx := context.Background()

	for _, order := range []models.Order{expired, cancelled, pending} {
		_, err := ledger.Reserve(ctx, db, &sku, 2, order.ID)
		require.NoError(t, err)
	}

	released, err := ledger.ReleaseOrphaned(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 4, released)

	counts, err := ledger.Counts(ctx, sku.ID)
	require.NoError(t, err)
	assert.Equal(t, Counts{Available: 4, Reserved: 2}, counts)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	db := dbtest.Open(t)
	sku := dbtest.SeedSku(t, db, "NF-30", enums.DeliveryModeInstant, 90000, 30)
	_, err := NewLedger(db).Reserve(context.Background(), db, &sku, 0, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
