package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/keyshop-backend/pkg/pagination"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// UnitReleaser returns reserved stock to the pool.
type UnitReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
	ReleaseOrphaned(ctx context.Context, tx *gorm.DB) (int64, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// Finalizer runs the fulfill transition.
type Finalizer interface {
	FinalizeOrder(ctx context.Context, orderID uuid.UUID, evidence Evidence) (FinalizeOutcome, error)
}

type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Units     UnitReleaser
	Outbox    outboxEmitter
	Finalizer Finalizer
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

// Service covers status lookups and the transitions out of pending_payment that
// do not sell stock: cancel and expire.
type Service struct {
	tx        txRunner
	repo      Repository
	units     UnitReleaser
	outbox    outboxEmitter
	finalizer Finalizer
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Units == nil {
		return nil, fmt.Errorf("unit releaser required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{
		tx:        params.DB,
		repo:      params.Repo,
		units:     params.Units,
		outbox:    params.Outbox,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// GetByCode returns the full status view of an order.
func (s *Service) GetByCode(ctx context.Context, code string) (*OrderView, error) {
	order, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, order)
}

// CustomerView is GetByCode for the storefront. A wrong email reads as not found.
func (s *Service) CustomerView(ctx context.Context, code, email string) (*OrderView, error) {
	order, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(email), order.CustomerEmail) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.view(ctx, order)
}

// List pages through orders for operators, newest first.
func (s *Service) List(ctx context.Context, input ListInput) (*OrderPage, error) {
	filter := ListFilter{
		Email: strings.TrimSpace(input.Email),
		Limit: pagination.LimitWithBuffer(input.Limit),
	}
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status, err := enums.ParseOrderStatus(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
				WithDetails(map[string]any{"field": "status", "allowed": enums.OrderStatuses()})
		}
		filter.Status = &status
	}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		filter.Cursor = cursor
	}

	rows, err := s.repo.ListPage(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	rows, next := pagination.Trim(rows, input.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	page := &OrderPage{NextCursor: next}
	page.Orders = make([]OrderSummary, len(rows))
	for i, row := range rows {
		page.Orders[i] = OrderSummary{
			OrderCode:     row.OrderCode,
			Status:        row.Status,
			CustomerEmail: row.CustomerEmail,
			AmountTotal:   row.AmountTotal,
			ReservedUntil: row.ReservedUntil,
			FulfilledAt:   row.FulfilledAt,
			CreatedAt:     row.CreatedAt,
		}
	}
	return page, nil
}

// Cancel closes a pending order on an operator's request.
func (s *Service) Cancel(ctx context.Context, input CancelInput) (*OrderView, error) {
	order, err := s.findByCode(ctx, input.OrderCode)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}

	now := s.now().UTC()
	reason := strings.TrimSpace(input.Reason)
	updates := map[string]any{"cancelled_at": now}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	actor := &outbox.ActorRef{Kind: outbox.ActorOperator, ID: input.Operator}

	closed, _, err := s.closePending(ctx, order, enums.OrderStatusCancelled, enums.PaymentStatusFailed, updates,
		func(released int64) outbox.DomainEvent {
			return outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor,
				OccurredAt:    now,
				Data: payloads.OrderCancelledEvent{
					OrderID:       order.ID,
					OrderCode:     order.OrderCode,
					ReleasedUnits: released,
					CancelledAt:   now,
					Reason:        reason,
				},
			}
		})
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOperator(s.logg.WithOrderCode(ctx, order.OrderCode), input.Operator), "order cancelled")
	}
	return s.GetByCode(ctx, order.OrderCode)
}

// Expire moves a pending order past its reservation window to expired and frees
// its units. It reports false when another writer moved the order first.
func (s *Service) Expire(ctx context.Context, order models.Order) (bool, int64, error) {
	now := s.now().UTC()
	expired, released, err := s.closePending(ctx, &order, enums.OrderStatusExpired, enums.PaymentStatusTimeout,
		map[string]any{"expired_at": now},
		func(released int64) outbox.DomainEvent {
			return outbox.DomainEvent{
				EventType:     enums.EventOrderExpired,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.SystemActor("expiry-reaper"),
				OccurredAt:    now,
				Data: payloads.OrderExpiredEvent{
					OrderID:       order.ID,
					OrderCode:     order.OrderCode,
					ReleasedUnits: released,
					ExpiredAt:     now,
				},
			}
		})
	if err != nil {
		return false, 0, err
	}
	if expired {
		s.metrics.IncExpired()
	}
	return expired, released, nil
}

// ExpireOverdue expires every pending order whose reservation lapsed before now.
func (s *Service) ExpireOverdue(ctx context.Context) (expired int, released int64, err error) {
	overdue, err := s.repo.ListPendingReservedBefore(ctx, s.now().UTC())
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue orders")
	}
	for _, order := range overdue {
		ok, n, expireErr := s.Expire(ctx, order)
		if expireErr != nil {
			err = multierr.Append(err, fmt.Errorf("order %s: %w", order.OrderCode, expireErr))
			continue
		}
		if ok {
			expired++
			released += n
		}
	}
	return expired, released, err
}

// ReleaseOrphaned frees units still reserved by expired or cancelled orders.
func (s *Service) ReleaseOrphaned(ctx context.Context) (int64, error) {
	var released int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		released, err = s.units.ReleaseOrphaned(ctx, tx)
		return err
	})
	return released, err
}

// ManualFinalize records operator supplied evidence and runs the fulfill transition.
func (s *Service) ManualFinalize(ctx context.Context, input ManualFinalizeInput) (FinalizeOutcome, error) {
	if s.finalizer == nil {
		return FinalizeOutcome{}, pkgerrors.New(pkgerrors.CodeInternal, "finalizer not configured")
	}
	txnID := strings.TrimSpace(input.TransactionID)
	if txnID == "" {
		return FinalizeOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if input.Amount < 0 {
		return FinalizeOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	order, err := s.findByCode(ctx, input.OrderCode)
	if err != nil {
		return FinalizeOutcome{}, err
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return FinalizeOutcome{}, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be finalized").
			WithDetails(map[string]any{"status": order.Status})
	}

	content := strings.TrimSpace(input.Note)
	if content == "" {
		content = "manual:" + input.Operator
	}
	outcome, err := s.finalizer.FinalizeOrder(ctx, order.ID, Evidence{
		Transaction: paymentfeed.Transaction{
			ID:         txnID,
			Amount:     input.Amount,
			Content:    content,
			OccurredAt: s.now().UTC(),
		},
		Source:   enums.FinalizeSourceManual,
		Provider: enums.PaymentProviderManual,
	})
	if err != nil {
		return FinalizeOutcome{}, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOperator(s.logg.WithOrderCode(ctx, order.OrderCode), input.Operator), "order finalized manually")
	}
	return outcome, nil
}

// closePending runs the guarded pending_payment -> to transition with its side
// effects in one transaction. Zero rows on the guarded update means the order
// already left pending_payment and nothing else is touched.
func (s *Service) closePending(
	ctx context.Context,
	order *models.Order,
	to enums.OrderStatus,
	paymentStatus enums.PaymentStatus,
	updates map[string]any,
	event func(released int64) outbox.DomainEvent,
) (bool, int64, error) {
	var (
		closed   bool
		released int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if rows == 0 {
			return nil
		}
		released, err = s.units.Release(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if _, err := repo.CloseInitiatedPayments(ctx, order.ID, paymentStatus); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close payment")
		}
		if err := s.outbox.Emit(ctx, tx, event(released)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order event")
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return closed, released, nil
}

func (s *Service) findByCode(ctx context.Context, code string) (*models.Order, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	order, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *Service) view(ctx context.Context, order *models.Order) (*OrderView, error) {
	lines, err := s.repo.FindLines(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
	}
	invoice, err := s.repo.FindInvoice(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	payment, err := s.repo.FindLatestPayment(ctx, order.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}

	view := &OrderView{
		OrderCode:      order.OrderCode,
		Status:         order.Status,
		CustomerEmail:  order.CustomerEmail,
		Subtotal:       order.Subtotal,
		DiscountCode:   order.DiscountCode,
		DiscountAmount: order.DiscountAmount,
		CouponCode:     order.CouponCode,
		CouponPercent:  order.CouponPercent,
		AmountTotal:    order.AmountTotal,
		ReservedUntil:  order.ReservedUntil,
		FulfilledAt:    order.FulfilledAt,
		Lines:          make([]LineView, 0, len(lines)),
	}
	if invoice != nil {
		view.InvoiceNumber = invoice.InvoiceNumber
	}
	if payment != nil {
		view.PaymentStatus = payment.Status.String()
	}
	for _, line := range lines {
		view.Lines = append(view.Lines, LineView{
			SkuCode:         line.SkuCode,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			Subtotal:        line.Subtotal,
			FulfillmentType: line.FulfillmentType,
		})
	}
	return view, nil
}
