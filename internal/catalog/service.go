package catalog

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

// Service is the read-only view of sellable SKUs.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Lookup resolves an active SKU by code.
func (s *Service) Lookup(ctx context.Context, code string) (*models.Sku, error) {
	return s.LookupTx(ctx, s.db, code)
}

// LookupTx resolves an active SKU by code inside the caller's transaction.
// Unknown and inactive codes both yield PRODUCT_NOT_FOUND.
func (s *Service) LookupTx(ctx context.Context, tx *gorm.DB, code string) (*models.Sku, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, notFound(code)
	}
	var sku models.Sku
	err := tx.WithContext(ctx).
		Where("UPPER(code) = ? AND active = ?", normalized, true).
		First(&sku).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sku")
	}
	return &sku, nil
}

// List returns every active SKU ordered by code.
func (s *Service) List(ctx context.Context) ([]models.Sku, error) {
	var skus []models.Sku
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("code ASC").Find(&skus).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list skus")
	}
	return skus, nil
}

// NormalizeCode trims and upper-cases a SKU code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func notFound(code string) error {
	return pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found").
		WithDetails(map[string]any{"sku": code})
}
