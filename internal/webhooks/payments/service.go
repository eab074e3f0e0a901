package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/internal/payments"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

// Reasons reported when a notification does not settle an order.
const (
	ReasonNoOrderCode  = "no_order_code"
	ReasonUnknownOrder = "unknown_order"
	ReasonNotPending   = "not_pending"
	ReasonNoMatch      = "no_match"
)

type orderReader interface {
	FindByCode(ctx context.Context, code string) (*models.Order, error)
}

type ServiceParams struct {
	Orders    orderReader
	Matcher   *payments.Matcher
	Finalizer payments.Finalizer
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

// Result tells the bank what happened with one notification.
type Result struct {
	Matched   bool              `json:"matched"`
	Finalized bool              `json:"finalized"`
	OrderCode string            `json:"order_code,omitempty"`
	Status    enums.OrderStatus `json:"status,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Service settles orders from pushed bank transfer notifications.
type Service struct {
	orders    orderReader
	matcher   *payments.Matcher
	finalizer payments.Finalizer
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders reader required")
	}
	if params.Finalizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "finalizer required")
	}
	if params.Matcher == nil {
		params.Matcher = payments.NewMatcher(payments.MatcherConfig{})
	}
	return &Service{
		orders:    params.Orders,
		matcher:   params.Matcher,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// HandleTransaction matches one notified transaction against the order named in
// its memo. Anything that is not ours or not payable yields a non-matched result
// and a nil error; only internal failures return an error.
func (s *Service) HandleTransaction(ctx context.Context, txn paymentfeed.Transaction) (Result, error) {
	txn.ID = strings.TrimSpace(txn.ID)
	if txn.ID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	now := s.now().UTC()
	if txn.OccurredAt.IsZero() {
		txn.OccurredAt = now
	}

	order, code, err := s.resolveOrder(ctx, txn.Content)
	if err != nil {
		return Result{}, err
	}
	switch {
	case code == "":
		return s.unmatched(Result{Reason: ReasonNoOrderCode}), nil
	case order == nil:
		return s.unmatched(Result{OrderCode: code, Reason: ReasonUnknownOrder}), nil
	}
	result := Result{OrderCode: order.OrderCode, Status: order.Status}
	if order.Status != enums.OrderStatusPendingPayment {
		result.Reason = ReasonNotPending
		return s.unmatched(result), nil
	}
	target := payments.MatchTarget{OrderCode: order.OrderCode, AmountTotal: order.AmountTotal}
	if !s.matcher.Matches(target, txn, now) {
		result.Reason = ReasonNoMatch
		return s.unmatched(result), nil
	}

	outcome, err := s.finalizer.FinalizeOrder(ctx, order.ID, orders.Evidence{
		Transaction: txn,
		Source:      enums.FinalizeSourceWebhook,
		Provider:    enums.PaymentProviderBankTransfer,
	})
	if err != nil {
		s.metrics.IncDetection(enums.FinalizeSourceWebhook.String(), "error")
		return Result{}, err
	}
	result.Matched = true
	result.Finalized = outcome.Finalized
	result.Status = outcome.Status
	if outcome.Finalized {
		s.metrics.IncDetection(enums.FinalizeSourceWebhook.String(), "finalized")
	} else {
		s.metrics.IncDetection(enums.FinalizeSourceWebhook.String(), "noop")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderCode(ctx, order.OrderCode), fmt.Sprintf("webhook transaction %s matched", txn.ID))
	}
	return result, nil
}

// resolveOrder returns the first memo candidate that names a stored order.
// With no stored match it reports the best candidate and a nil order; an
// empty code means the memo names no order at all.
func (s *Service) resolveOrder(ctx context.Context, content string) (*models.Order, string, error) {
	candidates := payments.OrderCodeCandidates(content)
	if len(candidates) == 0 {
		return nil, "", nil
	}
	for _, code := range candidates {
		order, err := s.orders.FindByCode(ctx, code)
		if err == nil {
			return order, code, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
	}
	return nil, candidates[0], nil
}

func (s *Service) unmatched(result Result) Result {
	s.metrics.IncDetection(enums.FinalizeSourceWebhook.String(), result.Reason)
	return result
}
