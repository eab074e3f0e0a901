package payments

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

const (
	defaultTolerance = 0.95
	defaultLookback  = 180 * time.Minute
	defaultClockSkew = 10 * time.Minute

	minSuffixDigits = 6
)

var (
	orderCodePattern = regexp.MustCompile(`KS\d+`)
	// a code that starts its own word, allowing separators inside it ("KS-123", "ks 123")
	spacedCodePattern = regexp.MustCompile(`\bKS[^A-Z0-9]*(\d+)`)
)

// MatchTarget is the slice of an order the matcher looks at.
type MatchTarget struct {
	OrderCode   string
	AmountTotal int64
}

// MatcherConfig tunes the amount tolerance and the accepted time window.
type MatcherConfig struct {
	Tolerance float64
	Lookback  time.Duration
	ClockSkew time.Duration
}

// Matcher decides whether a bank transaction pays a given order. It has no side effects.
type Matcher struct {
	tolerance decimal.Decimal
	lookback  time.Duration
	skew      time.Duration
}

func NewMatcher(cfg MatcherConfig) *Matcher {
	if cfg.Tolerance <= 0 || cfg.Tolerance > 1 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	return &Matcher{
		tolerance: decimal.NewFromFloat(cfg.Tolerance),
		lookback:  cfg.Lookback,
		skew:      cfg.ClockSkew,
	}
}

// Matches requires the content to reference the order, the amount to clear the
// tolerance, and the transaction to fall inside the recency window.
func (m *Matcher) Matches(target MatchTarget, txn paymentfeed.Transaction, now time.Time) bool {
	return m.contentMatches(target.OrderCode, txn.Content) &&
		m.amountMatches(target.AmountTotal, txn.Amount) &&
		m.recent(txn.OccurredAt, now)
}

// FirstMatch returns the earliest transaction in feed order that matches target.
func (m *Matcher) FirstMatch(target MatchTarget, txns []paymentfeed.Transaction, now time.Time) (paymentfeed.Transaction, bool) {
	for _, txn := range txns {
		if m.Matches(target, txn, now) {
			return txn, true
		}
	}
	return paymentfeed.Transaction{}, false
}

func (m *Matcher) contentMatches(orderCode, content string) bool {
	code := NormalizeContent(orderCode)
	if code == "" {
		return false
	}
	normalized := NormalizeContent(content)
	if normalized == "" {
		return false
	}
	if strings.Contains(normalized, code) {
		return true
	}
	suffix := numericSuffix(code)
	return len(suffix) >= minSuffixDigits && strings.Contains(normalized, suffix)
}

func (m *Matcher) amountMatches(total, received int64) bool {
	required := decimal.NewFromInt(total).Mul(m.tolerance)
	return decimal.NewFromInt(received).GreaterThanOrEqual(required)
}

func (m *Matcher) recent(occurredAt, now time.Time) bool {
	if occurredAt.IsZero() {
		return false
	}
	return !occurredAt.Before(now.Add(-m.lookback)) && !occurredAt.After(now.Add(m.skew))
}

// NormalizeContent upper-cases s and strips everything but ASCII letters and digits.
func NormalizeContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractOrderCode returns the most likely order code in a transfer memo.
func ExtractOrderCode(content string) (string, bool) {
	candidates := OrderCodeCandidates(content)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

// OrderCodeCandidates lists every order code a memo could be naming, best
// first: codes that start their own word, then codes read from the memo with
// separators stripped ("KS1 234" reads as KS1234 there).
func OrderCodeCandidates(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(code string) {
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	for _, m := range spacedCodePattern.FindAllStringSubmatch(strings.ToUpper(content), -1) {
		add("KS" + m[1])
	}
	for _, code := range orderCodePattern.FindAllString(NormalizeContent(content), -1) {
		add(code)
	}
	return out
}

func numericSuffix(code string) string {
	i := len(code)
	for i > 0 && code[i-1] >= '0' && code[i-1] <= '9' {
		i--
	}
	return code[i:]
}
