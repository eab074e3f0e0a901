package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/api/responses"
	"github.com/angelmondragon/keyshop-backend/internal/inventory"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

type CatalogService interface {
	List(ctx context.Context) ([]models.Sku, error)
}

type StockCounter interface {
	Counts(ctx context.Context, skuID uuid.UUID) (inventory.Counts, error)
}

type catalogItem struct {
	Code         string             `json:"code"`
	Name         string             `json:"name"`
	Price        int64              `json:"price"`
	DeliveryMode enums.DeliveryMode `json:"delivery_mode"`
	DurationDays int                `json:"duration_days"`
	Available    *int64             `json:"available,omitempty"`
}

// CatalogList returns active SKUs. Instant SKUs carry their available unit count.
func CatalogList(svc CatalogService, stock StockCounter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		skus, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]catalogItem, 0, len(skus))
		for _, sku := range skus {
			item := catalogItem{
				Code:         sku.Code,
				Name:         sku.Name,
				Price:        sku.Price,
				DeliveryMode: sku.DeliveryMode,
				DurationDays: sku.DurationDays,
			}
			if sku.IsInstant() && stock != nil {
				counts, err := stock.Counts(r.Context(), sku.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				available := counts.Available
				item.Available = &available
			}
			items = append(items, item)
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}
