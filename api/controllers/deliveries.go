package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/keyshop-backend/api/responses"
	"github.com/angelmondragon/keyshop-backend/api/validators"
	"github.com/angelmondragon/keyshop-backend/internal/delivery"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

type DeliveryService interface {
	Retrieve(ctx context.Context, orderCode, token string) (*delivery.Delivery, error)
}

// DeliveryRetrieve returns the credentials of a fulfilled order to the holder of its delivery token.
func DeliveryRetrieve(svc DeliveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery service unavailable"))
			return
		}
		code, err := validators.OrderCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := validators.RequiredQuery(r, "token", 128)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "delivery token required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderCode(ctx, code)
		}
		result, err := svc.Retrieve(ctx, code, token)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, result)
	}
}
