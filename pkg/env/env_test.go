package env

import "testing"

func TestGetTrimsAndFallsBack(t *testing.T) {
	t.Setenv("KEYSHOP_TEST_VALUE", "  ")
	if got := Get("KEYSHOP_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("KEYSHOP_TEST_VALUE", " console ")
	if got := Get("KEYSHOP_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
}

func TestFirstOf(t *testing.T) {
	t.Setenv("KEYSHOP_TEST_A", "")
	t.Setenv("KEYSHOP_TEST_B", "b")
	if got := FirstOf("KEYSHOP_TEST_A", "KEYSHOP_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := FirstOf("KEYSHOP_TEST_A"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
