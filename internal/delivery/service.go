package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/internal/inventory"
	"github.com/angelmondragon/keyshop-backend/internal/orders"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

type soldPayloadReader interface {
	SoldPayloads(ctx context.Context, orderID uuid.UUID) ([]inventory.SoldUnit, error)
}

// DeliveredSku groups the credentials sold for one SKU.
type DeliveredSku struct {
	SkuCode     string   `json:"sku_code"`
	Credentials []string `json:"credentials"`
}

// PendingLine is a deferred line an operator still has to deliver by hand.
type PendingLine struct {
	SkuCode  string `json:"sku_code"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`
}

// Delivery is everything a customer may see for a fulfilled order.
type Delivery struct {
	OrderCode     string         `json:"order_code"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	FulfilledAt   *time.Time     `json:"fulfilled_at,omitempty"`
	AmountTotal   int64          `json:"amount_total"`
	Items         []DeliveredSku `json:"items"`
	Pending       []PendingLine  `json:"pending"`
}

const pendingManualDelivery = "pending_manual_delivery"

type Service struct {
	repo   orders.Repository
	ledger soldPayloadReader
	tokens *Tokens
	now    func() time.Time
}

func NewService(repo orders.Repository, ledger soldPayloadReader, tokens *Tokens) (*Service, error) {
	if repo == nil {
		return nil, errors.New("orders repository required")
	}
	if ledger == nil {
		return nil, errors.New("ledger required")
	}
	if tokens == nil {
		return nil, errors.New("delivery tokens required")
	}
	return &Service{repo: repo, ledger: ledger, tokens: tokens, now: time.Now}, nil
}

// Retrieve returns the credentials for a fulfilled order when the token checks out.
func (s *Service) Retrieve(ctx context.Context, orderCode, token string) (*Delivery, error) {
	code := strings.ToUpper(strings.TrimSpace(orderCode))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code is required")
	}
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !s.tokens.Verify(order.ID, order.CustomerEmail, token, s.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid or expired delivery token")
	}
	if order.Status != enums.OrderStatusFulfilled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not fulfilled").
			WithDetails(map[string]any{"status": order.Status})
	}

	units, err := s.ledger.SoldPayloads(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load delivered units")
	}
	lines, err := s.repo.FindLines(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order lines")
	}
	invoice, err := s.repo.FindInvoice(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}

	out := &Delivery{
		OrderCode:   order.OrderCode,
		FulfilledAt: order.FulfilledAt,
		AmountTotal: order.AmountTotal,
		Items:       groupBySku(units),
		Pending:     []PendingLine{},
	}
	if invoice != nil {
		out.InvoiceNumber = invoice.InvoiceNumber
	}
	for _, line := range lines {
		if line.IsInstant() {
			continue
		}
		out.Pending = append(out.Pending, PendingLine{
			SkuCode:  line.SkuCode,
			Quantity: line.Quantity,
			Status:   pendingManualDelivery,
		})
	}
	return out, nil
}

// Token issues today's delivery token for a fulfilled order.
func (s *Service) Token(ctx context.Context, orderCode string) (string, error) {
	order, err := s.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(orderCode)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.Status != enums.OrderStatusFulfilled {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "order is not fulfilled")
	}
	return s.tokens.Issue(order.ID, order.CustomerEmail, s.now()), nil
}

func groupBySku(units []inventory.SoldUnit) []DeliveredSku {
	out := make([]DeliveredSku, 0)
	index := make(map[string]int)
	for _, unit := range units {
		i, ok := index[unit.SkuCode]
		if !ok {
			i = len(out)
			index[unit.SkuCode] = i
			out = append(out, DeliveredSku{SkuCode: unit.SkuCode})
		}
		out[i].Credentials = append(out[i].Credentials, unit.Payload)
	}
	return out
}
