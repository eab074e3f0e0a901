package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/keyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

// LongTermDays is the line duration at which a discount code pays out in full.
const LongTermDays = 30

type DiscountKind string

const (
	KindCoupon       DiscountKind = "coupon"
	KindDiscountCode DiscountKind = "discount_code"
)

type skuLookup interface {
	LookupTx(ctx context.Context, tx *gorm.DB, code string) (*models.Sku, error)
}

// LineRequest is a caller supplied line. Prices never come from the caller.
type LineRequest struct {
	SkuCode  string
	Quantity int
}

type PricedLine struct {
	Sku       models.Sku
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// Quote is the catalog-derived price of an order before any code.
type Quote struct {
	Lines    []PricedLine
	Subtotal int64
}

// HasLongTerm reports whether any line runs for LongTermDays or more.
func (q Quote) HasLongTerm() bool {
	for _, line := range q.Lines {
		if line.Sku.DurationDays >= LongTermDays {
			return true
		}
	}
	return false
}

// Discount is the effect of one applied code.
type Discount struct {
	Kind          DiscountKind
	Code          string
	Amount        int64
	CouponPercent int
	FinalTotal    int64
}

type Resolver struct {
	catalog skuLookup
	now     func() time.Time
}

func NewResolver(catalog skuLookup) *Resolver {
	return &Resolver{catalog: catalog, now: time.Now}
}

// Price re-reads every SKU inside tx and sums quantity times current price.
func (r *Resolver) Price(ctx context.Context, tx *gorm.DB, lines []LineRequest) (Quote, error) {
	quote := Quote{Lines: make([]PricedLine, 0, len(lines))}
	for _, line := range lines {
		sku, err := r.catalog.LookupTx(ctx, tx, line.SkuCode)
		if err != nil {
			return Quote{}, err
		}
		subtotal := sku.Price * int64(line.Quantity)
		quote.Lines = append(quote.Lines, PricedLine{
			Sku:       *sku,
			Quantity:  line.Quantity,
			UnitPrice: sku.Price,
			Subtotal:  subtotal,
		})
		quote.Subtotal += subtotal
	}
	return quote, nil
}

// Total is the amount due when no code is applied.
func (q Quote) Total() int64 {
	return q.Subtotal
}

// ApplyCode resolves code against coupons first and discount codes second.
// A coupon redemption is counted in tx, so it rolls back with the order.
func (r *Resolver) ApplyCode(ctx context.Context, tx *gorm.DB, code string, quote Quote) (Discount, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Discount{}, invalidCode(code, "empty")
	}

	var coupon models.Coupon
	err := tx.WithContext(ctx).Where("UPPER(code) = ? AND active = ?", normalized, true).First(&coupon).Error
	switch {
	case err == nil:
		return r.applyCoupon(ctx, tx, coupon, quote)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Discount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}

	var discount models.DiscountCode
	err = tx.WithContext(ctx).Where("UPPER(code) = ? AND active = ?", normalized, true).First(&discount).Error
	switch {
	case err == nil:
		return applyDiscountCode(discount, quote), nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Discount{}, invalidCode(code, "unknown")
	default:
		return Discount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load discount code")
	}
}

func (r *Resolver) applyCoupon(ctx context.Context, tx *gorm.DB, coupon models.Coupon, quote Quote) (Discount, error) {
	if coupon.ExpiresAt != nil && !r.now().UTC().Before(coupon.ExpiresAt.UTC()) {
		return Discount{}, invalidCode(coupon.Code, "expired")
	}
	if coupon.UsedCount >= coupon.MaxUses {
		return Discount{}, invalidCode(coupon.Code, "exhausted")
	}
	if coupon.Percent <= 0 || coupon.Percent > 100 {
		return Discount{}, invalidCode(coupon.Code, "misconfigured")
	}

	var base int64
	for _, line := range quote.Lines {
		if coupon.Allows(line.Sku.Code) {
			base += line.Subtotal
		}
	}
	if coupon.Restricted() && base == 0 {
		return Discount{}, invalidCode(coupon.Code, "not_applicable")
	}

	amount := decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(int64(coupon.Percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	amount = min(amount, quote.Subtotal)

	res := tx.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND used_count < max_uses", coupon.ID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return Discount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "redeem coupon")
	}
	if res.RowsAffected == 0 {
		return Discount{}, invalidCode(coupon.Code, "exhausted")
	}

	return Discount{
		Kind:          KindCoupon,
		Code:          coupon.Code,
		Amount:        amount,
		CouponPercent: coupon.Percent,
		FinalTotal:    finalTotal(quote.Subtotal, amount),
	}, nil
}

func applyDiscountCode(code models.DiscountCode, quote Quote) Discount {
	amount := code.Amount
	if !quote.HasLongTerm() {
		amount = code.Amount / 2
	}
	amount = min(amount, quote.Subtotal)
	return Discount{
		Kind:       KindDiscountCode,
		Code:       code.Code,
		Amount:     amount,
		FinalTotal: finalTotal(quote.Subtotal, amount),
	}
}

func finalTotal(subtotal, discount int64) int64 {
	return max(0, subtotal-discount)
}

// NormalizeCode trims and upper-cases a coupon or discount code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func invalidCode(code, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidCode, "discount code is not valid").
		WithDetails(map[string]any{"code": code, "reason": reason})
}
