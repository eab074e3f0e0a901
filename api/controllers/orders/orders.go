package orders

import (
	"context"
	"net/http"

	"github.com/angelmondragon/keyshop-backend/api/responses"
	"github.com/angelmondragon/keyshop-backend/api/validators"
	"github.com/angelmondragon/keyshop-backend/internal/intake"
	internalorders "github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

type IntakeService interface {
	PlaceOrder(ctx context.Context, input intake.PlaceOrderInput) (*intake.PlaceOrderResult, error)
}

type ViewService interface {
	CustomerView(ctx context.Context, code, email string) (*internalorders.OrderView, error)
}

type PaymentChecker interface {
	CheckOrder(ctx context.Context, orderCode, email string) (payments.CheckResult, error)
}

type checkPaymentRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// Place accepts a storefront order and reserves stock for its instant lines.
func Place(svc IntakeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order intake unavailable"))
			return
		}

		var input intake.PlaceOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// View returns the order status to the customer who placed it.
func View(svc ViewService, logg *logger.Logger) http.HandlerFunc {
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
		email, err := validators.RequiredQuery(r, "email", 254)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.CustomerView(r.Context(), code, email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CheckPayment runs an on-demand match of the order against the bank feed.
func CheckPayment(svc PaymentChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment check unavailable"))
			return
		}
		code, err := validators.OrderCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req checkPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderCode(ctx, code)
		}
		result, err := svc.CheckOrder(ctx, code, req.Email)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
