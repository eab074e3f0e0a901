package orders

import (
	"context"
	"net/http"

	"github.com/angelmondragon/keyshop-backend/api/middleware"
	"github.com/angelmondragon/keyshop-backend/api/responses"
	"github.com/angelmondragon/keyshop-backend/api/validators"
	internalorders "github.com/angelmondragon/keyshop-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

type AdminService interface {
	Cancel(ctx context.Context, input internalorders.CancelInput) (*internalorders.OrderView, error)
	ManualFinalize(ctx context.Context, input internalorders.ManualFinalizeInput) (internalorders.FinalizeOutcome, error)
	List(ctx context.Context, input internalorders.ListInput) (*internalorders.OrderPage, error)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type finalizeRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=128"`
	Amount        int64  `json:"amount" validate:"min=0"`
	Note          string `json:"note" validate:"max=500"`
}

type finalizeResponse struct {
	OrderCode     string `json:"order_code"`
	Status        string `json:"status"`
	Finalized     bool   `json:"finalized"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	DeliveryToken string `json:"delivery_token,omitempty"`
}

// AdminList pages through orders, filtered by status and customer email.
func AdminList(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		limit, err := validators.OptionalIntQuery(r, "limit")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		page, err := svc.List(r.Context(), internalorders.ListInput{
			Status: validators.SanitizeString(query.Get("status"), 32),
			Email:  validators.SanitizeString(query.Get("email"), 254),
			Cursor: validators.SanitizeString(query.Get("cursor"), 256),
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminCancel cancels a pending order and releases its reservation.
func AdminCancel(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		code, err := validators.OrderCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderCode: code,
			Reason:    validators.SanitizeString(req.Reason, 500),
			Operator:  middleware.OperatorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminFinalize records operator supplied payment evidence and fulfills the order.
func AdminFinalize(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		code, err := validators.OrderCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req finalizeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.ManualFinalize(r.Context(), internalorders.ManualFinalizeInput{
			OrderCode:     code,
			TransactionID: validators.SanitizeString(req.TransactionID, 128),
			Amount:        req.Amount,
			Note:          validators.SanitizeString(req.Note, 500),
			Operator:      middleware.OperatorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, finalizeResponse{
			OrderCode:     outcome.OrderCode,
			Status:        outcome.Status.String(),
			Finalized:     outcome.Finalized,
			InvoiceNumber: outcome.InvoiceNumber,
			DeliveryToken: outcome.DeliveryToken,
		})
	}
}
