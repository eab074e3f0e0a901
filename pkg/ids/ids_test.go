package ids

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestOrderCodeUniqueAndWellFormed(t *testing.T) {
	gen, err := NewGenerator(1)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code := gen.OrderCode()
		if !IsOrderCode(code) {
			t.Fatalf("malformed order code %q", code)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate order code %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestNewGeneratorRejectsBadNode(t *testing.T) {
	if _, err := NewGenerator(5000); err == nil {
		t.Fatal("expected node id out of range to fail")
	}
}

func TestInvoiceNumberCarriesTimestamp(t *testing.T) {
	gen, err := NewGenerator(2)
	require.NoError(t, err)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	number := gen.InvoiceNumber(at)
	require.True(t, strings.HasPrefix(number, InvoiceNumberPrefix))

	parsed, err := ulid.Parse(strings.TrimPrefix(number, InvoiceNumberPrefix))
	require.NoError(t, err)
	require.Equal(t, at.UnixMilli(), ulid.Time(parsed.Time()).UnixMilli())
}

func TestIsOrderCode(t *testing.T) {
	cases := map[string]bool{
		"KS123456":  true,
		"ks123456":  true,
		"KS":        false,
		"KS12A4":    false,
		"INV-12345": false,
	}
	for in, want := range cases {
		if got := IsOrderCode(in); got != want {
			t.Fatalf("IsOrderCode(%q) = %v, want %v", in, got, want)
		}
	}
}
