package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	pkgredis "github.com/angelmondragon/keyshop-backend/pkg/redis"
)

type fakeRateStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	resetIn time.Duration
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (pkgredis.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	count := f.counts[scope]
	return pkgredis.Window{Allowed: count <= limit, Count: count, ResetIn: f.resetIn}, nil
}

func TestRateLimit_AllowsUnderLimitAndPreservesBody(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("orders", time.Minute, 2, 2)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), `"email":"buyer@example.com"`) {
			t.Fatalf("unexpected body: %s", string(body))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"email":"buyer@example.com","lines":[]}`))
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestRateLimit_EmailLimitIgnoresCase(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("orders", time.Minute, 0, 2)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	emails := []string{"Buyer@Example.com", "buyer@example.com ", "BUYER@EXAMPLE.COM"}
	var last *httptest.ResponseRecorder
	for i, email := range emails {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"email":"`+email+`"}`))
		req.RemoteAddr = "10.0.0." + string(rune('1'+i)) + ":1000"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third attempt, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", last.Header().Get("Retry-After"))
	}
	var body map[string]map[string]any
	if err := json.NewDecoder(last.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"]["code"] != string(pkgerrors.CodeRateLimit) {
		t.Fatalf("unexpected error code %v", body["error"]["code"])
	}
}

func TestRateLimit_IPLimitUsesForwardedFor(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("check", time.Minute, 1, 0)
	calls := 0
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/KS1/check-payment", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 1 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected second call limited, got %d", rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one call through, got %d", calls)
	}
	if store.counts["ip:check:203.0.113.9"] != 2 {
		t.Fatalf("expected counter keyed by first forwarded ip, got %v", store.counts)
	}
}

func TestRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RateLimit(NewRateLimitPolicy("off", 0, 1, 1), newFakeRateStore(), nil)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}

func TestRateLimit_RetryAfterUsesRemainingWindow(t *testing.T) {
	store := newFakeRateStore()
	store.resetIn = 12300 * time.Millisecond
	handler := RateLimit(NewRateLimitPolicy("check", time.Minute, 1, 0), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/KS1/check-payment", nil)
		req.RemoteAddr = "198.51.100.7:443"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "13" {
		t.Fatalf("expected Retry-After rounded up to 13, got %q", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		resetIn, window time.Duration
		want            int
	}{
		{0, time.Minute, 60},
		{time.Second, time.Minute, 1},
		{1500 * time.Millisecond, time.Minute, 2},
		{time.Millisecond, time.Minute, 1},
	}
	for _, tc := range cases {
		if got := retryAfterSeconds(tc.resetIn, tc.window); got != tc.want {
			t.Fatalf("retryAfterSeconds(%v, %v) = %d, want %d", tc.resetIn, tc.window, got, tc.want)
		}
	}
}
