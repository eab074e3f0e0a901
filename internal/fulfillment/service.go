package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/internal/orders"
	dbpkg "github.com/angelmondragon/keyshop-backend/pkg/db"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox"
	"github.com/angelmondragon/keyshop-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type unitLedger interface {
	ReservedUnits(ctx context.Context, tx *gorm.DB, orderID, skuID uuid.UUID) ([]uuid.UUID, error)
	MarkSold(ctx context.Context, tx *gorm.DB, unitIDs []uuid.UUID, orderID uuid.UUID) (int64, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type invoiceNumberer interface {
	InvoiceNumber(t time.Time) string
}

type tokenIssuer interface {
	Issue(orderID uuid.UUID, email string, day time.Time) string
}

// Params wires the finalize transition.
type Params struct {
	DB       txRunner
	Orders   orders.Repository
	Ledger   unitLedger
	Outbox   outboxEmitter
	Invoices invoiceNumberer
	Tokens   tokenIssuer
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
}

// Service moves a paid order from pending_payment to fulfilled exactly once.
type Service struct {
	tx       txRunner
	repo     orders.Repository
	ledger   unitLedger
	outbox   outboxEmitter
	invoices invoiceNumberer
	tokens   tokenIssuer
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params Params) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice numberer required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token issuer required")
	}
	return &Service{
		tx:       params.DB,
		repo:     params.Orders,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		invoices: params.Invoices,
		tokens:   params.Tokens,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// FinalizeOrder confirms the payment, sells the reserved units and issues the
// invoice in one transaction. A call for an order that is no longer pending is a
// no-op and returns Finalized false without error.
func (s *Service) FinalizeOrder(ctx context.Context, orderID uuid.UUID, evidence orders.Evidence) (orders.FinalizeOutcome, error) {
	txnID := strings.TrimSpace(evidence.Transaction.ID)
	if txnID == "" {
		return orders.FinalizeOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if !evidence.Source.IsValid() {
		return orders.FinalizeOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown finalize source")
	}
	provider := evidence.Provider
	if provider == "" {
		provider = enums.PaymentProviderBankTransfer
	}

	var (
		outcome orders.FinalizeOutcome
		order   *models.Order
		now     = s.now().UTC()
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		order, err = repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		outcome = orders.FinalizeOutcome{OrderID: order.ID, OrderCode: order.OrderCode, Status: order.Status}
		if order.Status != enums.OrderStatusPendingPayment {
			return nil
		}

		if err := s.confirmPayment(ctx, repo, order, txnID, provider, evidence, now); err != nil {
			return err
		}

		rows, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusFulfilled, map[string]any{
			"fulfilled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order fulfilled")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed during finalize")
		}

		lines, err := repo.FindLines(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
		}
		deferred, err := s.sellUnits(ctx, tx, order, lines)
		if err != nil {
			return err
		}

		invoice := &models.Invoice{
			OrderID:       order.ID,
			InvoiceNumber: s.invoices.InvoiceNumber(now),
			Amount:        order.AmountTotal,
			IssuedAt:      now,
		}
		if err := repo.CreateInvoice(ctx, invoice); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice already issued")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create invoice")
		}

		actor := outbox.SystemActor(evidence.Source.String())
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderFulfilledEvent{
				OrderID:       order.ID,
				OrderCode:     order.OrderCode,
				InvoiceNumber: invoice.InvoiceNumber,
				AmountTotal:   order.AmountTotal,
				ExternalTxnID: txnID,
				Source:        evidence.Source.String(),
				FulfilledAt:   now,
				DeferredLines: deferred,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order fulfilled")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.NotificationRequestedEvent{
				OrderID:       order.ID,
				OrderCode:     order.OrderCode,
				CustomerEmail: order.CustomerEmail,
				Type:          "order_ready",
				DeferredLines: deferred,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit notification request")
		}

		outcome.Finalized = true
		outcome.Status = enums.OrderStatusFulfilled
		outcome.InvoiceNumber = invoice.InvoiceNumber
		return nil
	})
	if err != nil {
		return orders.FinalizeOutcome{}, err
	}

	source := evidence.Source.String()
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(s.logg.WithOrderCode(ctx, outcome.OrderCode), map[string]any{
			"source":          source,
			"external_txn_id": txnID,
		})
	}
	if !outcome.Finalized {
		s.metrics.IncFinalizeNoop(source)
		if s.logg != nil {
			s.logg.Info(logCtx, fmt.Sprintf("finalize skipped, order already %s", outcome.Status))
		}
		return outcome, nil
	}

	s.metrics.IncFinalized(source)
	outcome.DeliveryToken = s.tokens.Issue(order.ID, order.CustomerEmail, now)
	if s.logg != nil {
		s.logg.Info(logCtx, "order fulfilled")
	}
	return outcome, nil
}

func (s *Service) confirmPayment(ctx context.Context, repo orders.Repository, order *models.Order, txnID string, provider enums.PaymentProvider, evidence orders.Evidence, now time.Time) error {
	received := evidence.Transaction.Amount
	updates := map[string]any{
		"status":          enums.PaymentStatusConfirmed,
		"provider":        provider,
		"external_txn_id": txnID,
		"received_amount": received,
		"confirmed_at":    now,
		"evidence":        evidenceJSON(evidence),
	}

	payment, err := repo.FindInitiatedPayment(ctx, order.ID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		payment = &models.Payment{
			OrderID:        order.ID,
			Provider:       provider,
			Amount:         order.AmountTotal,
			ReceivedAmount: &received,
			Status:         enums.PaymentStatusConfirmed,
			ExternalTxnID:  &txnID,
			ConfirmedAt:    &now,
			Evidence:       evidenceJSON(evidence),
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return paymentWriteError(err)
		}
		return nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}

	rows, err := repo.UpdatePayment(ctx, payment.ID, enums.PaymentStatusInitiated, updates)
	if err != nil {
		return paymentWriteError(err)
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment changed during finalize")
	}
	return nil
}

// sellUnits flips every reserved unit of the order's instant lines to sold and
// returns the number of deferred lines left for manual delivery.
func (s *Service) sellUnits(ctx context.Context, tx *gorm.DB, order *models.Order, lines []models.OrderLine) (int, error) {
	deferred := 0
	for _, line := range lines {
		if !line.IsInstant() {
			deferred++
			continue
		}
		unitIDs, err := s.ledger.ReservedUnits(ctx, tx, order.ID, line.SkuID)
		if err != nil {
			return 0, err
		}
		if len(unitIDs) != line.Quantity {
			return 0, s.allocationMismatch(ctx, order, line, int64(len(unitIDs)))
		}
		sold, err := s.ledger.MarkSold(ctx, tx, unitIDs, order.ID)
		if err != nil {
			return 0, err
		}
		if sold != int64(line.Quantity) {
			return 0, s.allocationMismatch(ctx, order, line, sold)
		}
	}
	return deferred, nil
}

func (s *Service) allocationMismatch(ctx context.Context, order *models.Order, line models.OrderLine, found int64) error {
	s.metrics.IncAllocationMismatch()
	err := pkgerrors.New(pkgerrors.CodeAllocationMismatch, "reserved units do not match order line").
		WithDetails(map[string]any{
			"order_code": order.OrderCode,
			"sku":        line.SkuCode,
			"expected":   line.Quantity,
			"found":      found,
		})
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderCode(ctx, order.OrderCode), map[string]any{
			"sku":      line.SkuCode,
			"expected": line.Quantity,
			"found":    found,
		})
		s.logg.Error(logCtx, "allocation mismatch during finalize", err)
	}
	return err
}

func paymentWriteError(err error) error {
	if dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction already applied to a payment")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm payment")
}

func evidenceJSON(evidence orders.Evidence) datatypes.JSONMap {
	out := datatypes.JSONMap{
		"source":         evidence.Source.String(),
		"transaction_id": evidence.Transaction.ID,
		"amount":         evidence.Transaction.Amount,
		"content":        evidence.Transaction.Content,
	}
	if !evidence.Transaction.OccurredAt.IsZero() {
		out["occurred_at"] = evidence.Transaction.OccurredAt.UTC().Format(time.RFC3339)
	}
	return out
}
