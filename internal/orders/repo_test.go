package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/keyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
)

func TestRepositoryTransitionStatusIsGuarded(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	sku := dbtest.SeedSku(t, db, "SKU-1", enums.DeliveryModeDeferred, 1000, 30)
	order := dbtest.SeedPendingOrder(t, db, "KS5000001", "r@example.com", time.Now().Add(time.Hour), dbtest.LineSeed{Sku: sku, Quantity: 1})
	ctx := context.Background()

	rows, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusExpired, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	rows, err = repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusFulfilled, nil)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestRepositoryPendingWindows(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	sku := dbtest.SeedSku(t, db, "SKU-2", enums.DeliveryModeDeferred, 1000, 30)
	now := time.Now().UTC()
	lapsed := dbtest.SeedPendingOrder(t, db, "KS5000002", "a@example.com", now.Add(-time.Minute), dbtest.LineSeed{Sku: sku, Quantity: 1})
	dbtest.SeedPendingOrder(t, db, "KS5000003", "b@example.com", now.Add(time.Hour), dbtest.LineSeed{Sku: sku, Quantity: 1})
	old := dbtest.SeedPendingOrder(t, db, "KS5000004", "c@example.com", now.Add(time.Hour), dbtest.LineSeed{Sku: sku, Quantity: 1})
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", old.ID).Update("created_at", now.Add(-48*time.Hour)).Error)

	overdue, err := repo.ListPendingReservedBefore(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, lapsed.ID, overdue[0].ID)

	recent, err := repo.ListPendingCreatedBetween(context.Background(), now.Add(-24*time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRepositoryConfirmedTxnIDs(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	sku := dbtest.SeedSku(t, db, "SKU-3", enums.DeliveryModeDeferred, 1000, 30)
	order := dbtest.SeedPendingOrder(t, db, "KS5000005", "a@example.com", time.Now().Add(time.Hour), dbtest.LineSeed{Sku: sku, Quantity: 1})
	require.NoError(t, db.Model(&models.Payment{}).Where("order_id = ?", order.ID).
		Updates(map[string]any{"status": enums.PaymentStatusConfirmed, "external_txn_id": "T-1"}).Error)

	got, err := repo.ConfirmedTxnIDs(context.Background(), []string{"T-1", "T-2"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	_, ok := got["T-1"]
	assert.True(t, ok)

	empty, err := repo.ConfirmedTxnIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	invoice, err := repo.FindInvoice(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Nil(t, invoice)
}
