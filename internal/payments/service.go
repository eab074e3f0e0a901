package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/metrics"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

const (
	defaultPollGrace  = 2 * time.Minute
	defaultPollMaxAge = 24 * time.Hour

	resultFinalized = "finalized"
	resultNoop      = "noop"
	resultNoMatch   = "no_match"
	resultError     = "error"
)

// FeedSource returns recent incoming transactions in feed order.
type FeedSource interface {
	Recent(ctx context.Context) ([]paymentfeed.Transaction, error)
}

// Finalizer runs the fulfill transition for a matched payment.
type Finalizer interface {
	FinalizeOrder(ctx context.Context, orderID uuid.UUID, evidence orders.Evidence) (orders.FinalizeOutcome, error)
}

// ServiceParams wires the polling and on-demand detectors.
type ServiceParams struct {
	Orders     orders.Repository
	Feed       FeedSource
	Matcher    *Matcher
	Finalizer  Finalizer
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	PollGrace  time.Duration
	PollMaxAge time.Duration
}

// Service detects bank transfers for pending orders by reading the feed.
type Service struct {
	repo      orders.Repository
	feed      FeedSource
	matcher   *Matcher
	finalizer Finalizer
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	grace     time.Duration
	maxAge    time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Feed == nil {
		return nil, fmt.Errorf("payment feed required")
	}
	if params.Finalizer == nil {
		return nil, fmt.Errorf("finalizer required")
	}
	if params.Matcher == nil {
		params.Matcher = NewMatcher(MatcherConfig{})
	}
	if params.PollGrace <= 0 {
		params.PollGrace = defaultPollGrace
	}
	if params.PollMaxAge <= 0 {
		params.PollMaxAge = defaultPollMaxAge
	}
	return &Service{
		repo:      params.Orders,
		feed:      params.Feed,
		matcher:   params.Matcher,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      params.Logger,
		grace:     params.PollGrace,
		maxAge:    params.PollMaxAge,
		now:       time.Now,
	}, nil
}

// ReconcileSummary counts what one polling pass did.
type ReconcileSummary struct {
	Candidates int `json:"candidates"`
	Finalized  int `json:"finalized"`
	Noop       int `json:"noop"`
	Unmatched  int `json:"unmatched"`
	Failed     int `json:"failed"`
}

// ReconcilePending matches pending orders against one feed fetch. A transaction
// already bound to a confirmed payment, or picked for another order in this pass,
// is never offered again. Per-order failures are aggregated and do not stop the pass.
func (s *Service) ReconcilePending(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	now := s.now().UTC()

	pending, err := s.repo.ListPendingCreatedBetween(ctx, now.Add(-s.maxAge), now.Add(-s.grace))
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending orders")
	}
	summary.Candidates = len(pending)
	if len(pending) == 0 {
		return summary, nil
	}

	available, err := s.unclaimedTransactions(ctx)
	if err != nil {
		return summary, err
	}

	consumed := make(map[string]struct{})
	var errs error
	for _, order := range pending {
		candidates := make([]paymentfeed.Transaction, 0, len(available))
		for _, txn := range available {
			if _, used := consumed[txn.ID]; !used {
				candidates = append(candidates, txn)
			}
		}

		txn, ok := s.matcher.FirstMatch(targetOf(order), candidates, now)
		if !ok {
			summary.Unmatched++
			s.metrics.IncDetection(enums.FinalizeSourcePoller.String(), resultNoMatch)
			continue
		}
		consumed[txn.ID] = struct{}{}

		outcome, err := s.finalizer.FinalizeOrder(ctx, order.ID, orders.Evidence{
			Transaction: txn,
			Source:      enums.FinalizeSourcePoller,
			Provider:    enums.PaymentProviderBankTransfer,
		})
		if err != nil {
			summary.Failed++
			s.metrics.IncDetection(enums.FinalizeSourcePoller.String(), resultError)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderCode, err))
			continue
		}
		if outcome.Finalized {
			summary.Finalized++
			s.metrics.IncDetection(enums.FinalizeSourcePoller.String(), resultFinalized)
		} else {
			summary.Noop++
			s.metrics.IncDetection(enums.FinalizeSourcePoller.String(), resultNoop)
		}
	}
	return summary, errs
}

// CheckResult is the outcome of an on-demand payment check.
type CheckResult struct {
	OrderCode     string            `json:"order_code"`
	Status        enums.OrderStatus `json:"status"`
	Matched       bool              `json:"matched"`
	DeliveryToken string            `json:"delivery_token,omitempty"`
}

// CheckOrder runs the single-order match against a fresh feed fetch. The email
// must belong to the order; a mismatch reads as an unknown order.
func (s *Service) CheckOrder(ctx context.Context, orderCode, email string) (CheckResult, error) {
	code := strings.ToUpper(strings.TrimSpace(orderCode))
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CheckResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return CheckResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !strings.EqualFold(strings.TrimSpace(email), order.CustomerEmail) {
		return CheckResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	result := CheckResult{OrderCode: order.OrderCode, Status: order.Status}
	if order.Status != enums.OrderStatusPendingPayment {
		return result, nil
	}

	available, err := s.unclaimedTransactions(ctx)
	if err != nil {
		return result, err
	}
	txn, ok := s.matcher.FirstMatch(targetOf(*order), available, s.now().UTC())
	if !ok {
		s.metrics.IncDetection(enums.FinalizeSourceCheck.String(), resultNoMatch)
		return result, nil
	}

	outcome, err := s.finalizer.FinalizeOrder(ctx, order.ID, orders.Evidence{
		Transaction: txn,
		Source:      enums.FinalizeSourceCheck,
		Provider:    enums.PaymentProviderBankTransfer,
	})
	if err != nil {
		s.metrics.IncDetection(enums.FinalizeSourceCheck.String(), resultError)
		return result, err
	}
	if outcome.Finalized {
		s.metrics.IncDetection(enums.FinalizeSourceCheck.String(), resultFinalized)
	} else {
		s.metrics.IncDetection(enums.FinalizeSourceCheck.String(), resultNoop)
	}
	result.Matched = true
	result.Status = outcome.Status
	result.DeliveryToken = outcome.DeliveryToken
	return result, nil
}

// unclaimedTransactions fetches the feed and drops transactions that already
// settled some order.
func (s *Service) unclaimedTransactions(ctx context.Context) ([]paymentfeed.Transaction, error) {
	txns, err := s.feed.Recent(ctx)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("payment feed fetch failed: %v", err))
		}
		return nil, err
	}
	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		ids = append(ids, txn.ID)
	}
	confirmed, err := s.repo.ConfirmedTxnIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load confirmed transactions")
	}
	out := make([]paymentfeed.Transaction, 0, len(txns))
	for _, txn := range txns {
		if _, done := confirmed[txn.ID]; done {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func targetOf(order models.Order) MatchTarget {
	return MatchTarget{OrderCode: order.OrderCode, AmountTotal: order.AmountTotal}
}
