package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

// Ledger owns every stock unit status transition. All mutating calls run inside
// the caller's transaction so they commit or roll back with the order change.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// SoldUnit is a delivered credential.
type SoldUnit struct {
	UnitID  uuid.UUID `gorm:"column:id"`
	SkuID   uuid.UUID `gorm:"column:sku_id"`
	SkuCode string    `gorm:"column:sku_code"`
	Payload string    `gorm:"column:payload"`
}

// Counts is the per-status unit tally for one SKU.
type Counts struct {
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Sold      int64 `json:"sold"`
}

// Total returns the number of units ever imported for the SKU.
func (c Counts) Total() int64 {
	return c.Available + c.Reserved + c.Sold
}

// Reserve claims qty available units of the SKU for the order. Rows held by
// concurrent reservations are skipped rather than waited on.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, sku *models.Sku, qty int, orderID uuid.UUID) ([]uuid.UUID, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	var units []models.StockUnit
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Select("id").
		Where("sku_id = ? AND status = ?", sku.ID, enums.StockUnitAvailable).
		Order("created_at ASC").
		Order("id ASC").
		Limit(qty).
		Find(&units).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "select available units")
	}
	if len(units) < qty {
		return nil, insufficientStock(sku.Code, qty, len(units))
	}

	ids := make([]uuid.UUID, 0, len(units))
	for _, unit := range units {
		ids = append(ids, unit.ID)
	}
	res := tx.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("id IN ? AND status = ?", ids, enums.StockUnitAvailable).
		Updates(map[string]any{
			"status":      enums.StockUnitReserved,
			"order_id":    orderID,
			"reserved_at": l.now().UTC(),
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve units")
	}
	if res.RowsAffected != int64(len(ids)) {
		return nil, insufficientStock(sku.Code, qty, int(res.RowsAffected))
	}
	return ids, nil
}

// Release returns the order's reserved units to the pool. Sold units stay sold.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("order_id = ? AND status = ?", orderID, enums.StockUnitReserved).
		Updates(releaseUpdates())
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "release units")
	}
	return res.RowsAffected, nil
}

// MarkSold promotes reserved units to sold, only where the order still owns them.
// The caller compares the returned count against what it expected.
func (l *Ledger) MarkSold(ctx context.Context, tx *gorm.DB, unitIDs []uuid.UUID, orderID uuid.UUID) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("id IN ? AND order_id = ? AND status = ?", unitIDs, orderID, enums.StockUnitReserved).
		Updates(map[string]any{
			"status":  enums.StockUnitSold,
			"sold_at": l.now().UTC(),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "mark units sold")
	}
	return res.RowsAffected, nil
}

// ReservedUnits locks and returns the units the order holds for one SKU.
func (l *Ledger) ReservedUnits(ctx context.Context, tx *gorm.DB, orderID, skuID uuid.UUID) ([]uuid.UUID, error) {
	var units []models.StockUnit
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("order_id = ? AND sku_id = ? AND status = ?", orderID, skuID, enums.StockUnitReserved).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reserved units")
	}
	ids := make([]uuid.UUID, 0, len(units))
	for _, unit := range units {
		ids = append(ids, unit.ID)
	}
	return ids, nil
}

// SoldPayloads returns the credentials delivered for the order, grouped by SKU code.
func (l *Ledger) SoldPayloads(ctx context.Context, orderID uuid.UUID) ([]SoldUnit, error) {
	var out []SoldUnit
	err := l.db.WithContext(ctx).
		Table("stock_units").
		Select("stock_units.id, stock_units.sku_id, skus.code AS sku_code, stock_units.payload").
		Joins("JOIN skus ON skus.id = stock_units.sku_id").
		Where("stock_units.order_id = ? AND stock_units.status = ?", orderID, enums.StockUnitSold).
		Order("skus.code ASC").
		Order("stock_units.id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sold payloads")
	}
	return out, nil
}

// Counts tallies the SKU's units by status.
func (l *Ledger) Counts(ctx context.Context, skuID uuid.UUID) (Counts, error) {
	var rows []struct {
		Status enums.StockUnitStatus
		Total  int64
	}
	err := l.db.WithContext(ctx).
		Model(&models.StockUnit{}).
		Select("status, COUNT(*) AS total").
		Where("sku_id = ?", skuID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count units")
	}
	var counts Counts
	for _, row := range rows {
		switch row.Status {
		case enums.StockUnitAvailable:
			counts.Available = row.Total
		case enums.StockUnitReserved:
			counts.Reserved = row.Total
		case enums.StockUnitSold:
			counts.Sold = row.Total
		}
	}
	return counts, nil
}

// ReleaseOrphaned frees reserved units whose owning order already expired or was cancelled.
func (l *Ledger) ReleaseOrphaned(ctx context.Context, tx *gorm.DB) (int64, error) {
	dead := tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.Order{}).
		Select("id").
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusExpired, enums.OrderStatusCancelled})
	res := tx.WithContext(ctx).
		Model(&models.StockUnit{}).
		Where("status = ? AND order_id IN (?)", enums.StockUnitReserved, dead).
		Updates(releaseUpdates())
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "release orphaned units")
	}
	return res.RowsAffected, nil
}

func releaseUpdates() map[string]any {
	return map[string]any{
		"status":      enums.StockUnitAvailable,
		"order_id":    nil,
		"reserved_at": nil,
	}
}

func insufficientStock(code string, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+code).
		WithDetails(map[string]any{
			"sku":       code,
			"requested": requested,
			"available": available,
		})
}
