package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/pagination"
)

// ListFilter narrows an operator order listing. Rows come back newest first.
type ListFilter struct {
	Status *enums.OrderStatus
	Email  string
	Cursor *pagination.Cursor
	Limit  int
}

// Repository defines persistence operations for orders, lines, payments and invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLines(ctx context.Context, lines []models.OrderLine) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByCode(ctx context.Context, code string) (*models.Order, error)
	FindLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	FindInitiatedPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindLatestPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindInvoice(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	ListPendingCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)
	ListPendingReservedBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	ListPage(ctx context.Context, filter ListFilter) ([]models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (int64, error)
	UpdatePayment(ctx context.Context, paymentID uuid.UUID, from enums.PaymentStatus, updates map[string]any) (int64, error)
	CloseInitiatedPayments(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) (int64, error)
	ConfirmedTxnIDs(ctx context.Context, txnIDs []string) (map[string]struct{}, error)
}
