package delivery

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokensIssueIsDeterministic(t *testing.T) {
	tokens, err := NewTokens("secret", 7)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	orderID := uuid.New()
	day := time.Date(2026, 2, 10, 23, 59, 0, 0, time.UTC)

	a := tokens.Issue(orderID, "Buyer@Example.com ", day)
	b := tokens.Issue(orderID, "buyer@example.com", day.Add(-time.Hour))
	if a != b {
		t.Fatalf("expected same token within a day and across email case, got %q and %q", a, b)
	}
	if len(a) != tokenLength {
		t.Fatalf("expected %d chars, got %d", tokenLength, len(a))
	}
	if c := tokens.Issue(orderID, "buyer@example.com", day.Add(time.Hour)); c == a {
		t.Fatal("expected next day to yield a different token")
	}
}

func TestTokensVerifyWindow(t *testing.T) {
	tokens, err := NewTokens("secret", 7)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	orderID := uuid.New()
	issued := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	token := tokens.Issue(orderID, "x@example.com", issued)

	if !tokens.Verify(orderID, "x@example.com", token, issued) {
		t.Fatal("expected token valid on issue day")
	}
	if !tokens.Verify(orderID, "X@EXAMPLE.COM", token, issued.AddDate(0, 0, 6)) {
		t.Fatal("expected token valid on the seventh day")
	}
	if tokens.Verify(orderID, "x@example.com", token, issued.AddDate(0, 0, 7)) {
		t.Fatal("expected token invalid on the eighth day")
	}
	if tokens.Verify(uuid.New(), "x@example.com", token, issued) {
		t.Fatal("expected token bound to order id")
	}
	if tokens.Verify(orderID, "y@example.com", token, issued) {
		t.Fatal("expected token bound to email")
	}
	if tokens.Verify(orderID, "x@example.com", "short", issued) {
		t.Fatal("expected malformed token rejected")
	}
}

func TestTokensDependOnSecret(t *testing.T) {
	a, _ := NewTokens("one", 7)
	b, _ := NewTokens("two", 7)
	orderID := uuid.New()
	now := time.Now()
	if a.Issue(orderID, "e@example.com", now) == b.Issue(orderID, "e@example.com", now) {
		t.Fatal("expected different secrets to produce different tokens")
	}
	if _, err := NewTokens(" ", 7); err == nil {
		t.Fatal("expected empty secret to fail")
	}
}
