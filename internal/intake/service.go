package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/internal/pricing"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

const (
	defaultReservationWindow = 30 * time.Minute
	defaultMaxLines          = 20
	defaultMaxQuantity       = 50

	freeTxnPrefix = "free-"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type priceResolver interface {
	Price(ctx context.Context, tx *gorm.DB, lines []pricing.LineRequest) (pricing.Quote, error)
	ApplyCode(ctx context.Context, tx *gorm.DB, code string, quote pricing.Quote) (pricing.Discount, error)
}

type unitReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, sku *models.Sku, qty int, orderID uuid.UUID) ([]uuid.UUID, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type orderCoder interface {
	OrderCode() string
}

type finalizer interface {
	FinalizeOrder(ctx context.Context, orderID uuid.UUID, evidence orders.Evidence) (orders.FinalizeOutcome, error)
}

// Config holds intake limits and the bank details shown to customers.
type Config struct {
	ReservationWindow time.Duration
	MaxLines          int
	MaxQuantity       int
	BankName          string
	AccountNumber     string
	AccountHolder     string
}

type Params struct {
	DB        txRunner
	Orders    orders.Repository
	Pricing   priceResolver
	Ledger    unitReserver
	Outbox    outboxEmitter
	Codes     orderCoder
	Finalizer finalizer
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
	Config    Config
}

// Service turns a storefront request into a pending order holding reserved stock.
type Service struct {
	tx        txRunner
	repo      orders.Repository
	pricing   priceResolver
	ledger    unitReserver
	outbox    outboxEmitter
	codes     orderCoder
	finalizer finalizer
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	cfg       Config
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(params Params) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Pricing == nil:
		return nil, fmt.Errorf("price resolver required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Codes == nil:
		return nil, fmt.Errorf("order code generator required")
	case params.Finalizer == nil:
		return nil, fmt.Errorf("finalizer required")
	}
	cfg := params.Config
	if cfg.ReservationWindow <= 0 {
		cfg.ReservationWindow = defaultReservationWindow
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = defaultMaxLines
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = defaultMaxQuantity
	}
	return &Service{
		tx:        params.DB,
		repo:      params.Orders,
		pricing:   params.Pricing,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		codes:     params.Codes,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       cfg,
		validate:  validator.New(),
		now:       time.Now,
	}, nil
}

// PlaceOrder prices the request, applies at most one code, creates the order and
// reserves stock for instant lines, all in one transaction. A zero total order is
// finalized straight away.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	email := strings.TrimSpace(input.CustomerEmail)
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid customer email is required").
			WithDetails(map[string]any{"field": "customer_email"})
	}
	requests, err := s.normalizeLines(input.Lines)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:            uuid.New(),
		OrderCode:     s.codes.OrderCode(),
		CustomerEmail: email,
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerPhone: trimmedPtr(input.CustomerPhone),
		Status:        enums.OrderStatusPendingPayment,
		ReservedUntil: now.Add(s.cfg.ReservationWindow),
	}
	var (
		lines    []models.OrderLine
		discount *DiscountSummary
	)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		quote, err := s.pricing.Price(ctx, tx, requests)
		if err != nil {
			return err
		}
		order.Subtotal = quote.Subtotal
		order.AmountTotal = quote.Total()

		if code := strings.TrimSpace(input.Code); code != "" {
			applied, err := s.pricing.ApplyCode(ctx, tx, code, quote)
			if err != nil {
				return err
			}
			discount = applyDiscount(order, applied)
		}

		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		lines = make([]models.OrderLine, 0, len(quote.Lines))
		for i := range quote.Lines {
			priced := quote.Lines[i]
			if priced.Sku.IsInstant() {
				if _, err := s.ledger.Reserve(ctx, tx, &priced.Sku, priced.Quantity, order.ID); err != nil {
					return err
				}
			}
			lines = append(lines, models.OrderLine{
				OrderID:         order.ID,
				SkuID:           priced.Sku.ID,
				SkuCode:         priced.Sku.Code,
				Quantity:        priced.Quantity,
				UnitPrice:       priced.UnitPrice,
				Subtotal:        priced.Subtotal,
				FulfillmentType: priced.Sku.DeliveryMode,
				DurationDays:    priced.Sku.DurationDays,
			})
		}
		if err := repo.CreateLines(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order lines")
		}

		if err := repo.CreatePayment(ctx, &models.Payment{
			OrderID:  order.ID,
			Provider: enums.PaymentProviderBankTransfer,
			Amount:   order.AmountTotal,
			Status:   enums.PaymentStatusInitiated,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorCustomer, ID: email},
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderCode:     order.OrderCode,
				CustomerEmail: email,
				AmountTotal:   order.AmountTotal,
				ReservedUntil: order.ReservedUntil,
				Lines:         lineSummaries(lines),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPlaced()

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderCode(ctx, order.OrderCode)
		s.logg.Info(logCtx, fmt.Sprintf("order placed total=%d lines=%d", order.AmountTotal, len(lines)))
	}

	result := &PlaceOrderResult{
		OrderID:       order.ID,
		OrderCode:     order.OrderCode,
		Status:        order.Status,
		Subtotal:      order.Subtotal,
		Discount:      discount,
		AmountTotal:   order.AmountTotal,
		ReservedUntil: order.ReservedUntil,
		Lines:         lineViews(lines),
		Payment: PaymentInstructions{
			BankName:      s.cfg.BankName,
			AccountNumber: s.cfg.AccountNumber,
			AccountHolder: s.cfg.AccountHolder,
			Amount:        order.AmountTotal,
			Reference:     order.OrderCode,
		},
	}

	if order.AmountTotal == 0 {
		outcome, err := s.finalizer.FinalizeOrder(ctx, order.ID, orders.Evidence{
			Transaction: paymentfeed.Transaction{
				ID:         freeTxnPrefix + order.OrderCode,
				Amount:     0,
				Content:    order.OrderCode,
				OccurredAt: now,
			},
			Source:   enums.FinalizeSourceFree,
			Provider: enums.PaymentProviderFree,
		})
		if err != nil {
			if s.logg != nil {
				s.logg.Error(logCtx, "free order finalize failed", err)
			}
			return nil, err
		}
		result.Status = outcome.Status
		result.InvoiceNumber = outcome.InvoiceNumber
		result.DeliveryToken = outcome.DeliveryToken
	}
	return result, nil
}

// normalizeLines checks limits and merges repeated SKUs, keeping first-seen order.
func (s *Service) normalizeLines(inputs []LineInput) ([]pricing.LineRequest, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if len(inputs) > s.cfg.MaxLines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d lines are allowed", s.cfg.MaxLines))
	}
	out := make([]pricing.LineRequest, 0, len(inputs))
	index := make(map[string]int, len(inputs))
	for _, line := range inputs {
		code := strings.ToUpper(strings.TrimSpace(line.SkuCode))
		if code == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku code is required")
		}
		if line.Quantity < 1 || line.Quantity > s.cfg.MaxQuantity {
			return nil, quantityError(code, s.cfg.MaxQuantity)
		}
		if i, ok := index[code]; ok {
			out[i].Quantity += line.Quantity
			if out[i].Quantity > s.cfg.MaxQuantity {
				return nil, quantityError(code, s.cfg.MaxQuantity)
			}
			continue
		}
		index[code] = len(out)
		out = append(out, pricing.LineRequest{SkuCode: code, Quantity: line.Quantity})
	}
	return out, nil
}

func applyDiscount(order *models.Order, applied pricing.Discount) *DiscountSummary {
	code := applied.Code
	order.DiscountAmount = applied.Amount
	order.AmountTotal = applied.FinalTotal
	summary := &DiscountSummary{Kind: applied.Kind, Code: code, Amount: applied.Amount}
	switch applied.Kind {
	case pricing.KindCoupon:
		percent := applied.CouponPercent
		order.CouponCode = &code
		order.CouponPercent = &percent
		summary.CouponPercent = &percent
	default:
		order.DiscountCode = &code
	}
	return summary
}

func quantityError(code string, max int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", max)).
		WithDetails(map[string]any{"sku": code})
}

func lineSummaries(lines []models.OrderLine) []payloads.OrderLineSummary {
	out := make([]payloads.OrderLineSummary, 0, len(lines))
	for _, line := range lines {
		out = append(out, payloads.OrderLineSummary{
			SkuCode:         line.SkuCode,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			FulfillmentType: line.FulfillmentType.String(),
		})
	}
	return out
}

func lineViews(lines []models.OrderLine) []orders.LineView {
	out := make([]orders.LineView, 0, len(lines))
	for _, line := range lines {
		out = append(out, orders.LineView{
			SkuCode:         line.SkuCode,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			Subtotal:        line.Subtotal,
			FulfillmentType: line.FulfillmentType,
		})
	}
	return out
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
