package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	ordercontrollers "github.com/angelmondragon/keyshop-backend/api/controllers/orders"
	"github.com/angelmondragon/keyshop-backend/internal/intake"
	paymentwebhook "github.com/angelmondragon/keyshop-backend/internal/webhooks/payments"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/enums"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
	pkgredis "github.com/angelmondragon/keyshop-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	s, _ := value.(string)
	f.data[key] = s
	return true, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, _ := value.(string)
	f.data[key] = s
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (f *fakeRedis) Ping(context.Context) error {
	return nil
}

func (f *fakeRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[scope]++
	return pkgredis.Window{Allowed: f.hits[scope] <= limit, Count: f.hits[scope], ResetIn: window}, nil
}

type countingIntake struct {
	calls int
}

func (c *countingIntake) PlaceOrder(_ context.Context, input intake.PlaceOrderInput) (*intake.PlaceOrderResult, error) {
	c.calls++
	return &intake.PlaceOrderResult{OrderCode: "KS8000001", Status: enums.OrderStatusPendingPayment}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "dev"},
		Payments: config.PaymentsConfig{WebhookSecret: "hook"},
		Admin:    config.AdminConfig{JWTSecret: "jwt", JWTIssuer: "keyshop"},
		RateLimit: config.RateLimitConfig{
			OrdersWindow:  time.Minute,
			OrdersIPLimit: 100,
		},
	}
}

type stubWebhook struct{}

func (stubWebhook) HandleTransaction(context.Context, paymentfeed.Transaction) (paymentwebhook.Result, error) {
	return paymentwebhook.Result{}, nil
}

func newTestRouter(store RedisStore, intakeSvc *countingIntake) http.Handler {
	return newTestRouterWithConfig(testConfig(), store, intakeSvc)
}

func newTestRouterWithConfig(cfg *config.Config, store RedisStore, intakeSvc *countingIntake) http.Handler {
	var placer ordercontrollers.IntakeService
	if intakeSvc != nil {
		placer = intakeSvc
	}
	guard, _ := paymentwebhook.NewIdempotencyGuard(newFakeRedis(), time.Hour, "payments-webhook")
	return NewRouter(cfg, nil, stubPinger{}, store, nil, nil, placer, nil, nil, nil, stubWebhook{}, guard)
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(newFakeRedis(), nil)
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Keyshop-Env") != "dev" {
			t.Fatalf("%s: missing env header", path)
		}
	}
}

func TestPlaceOrderRequiresIdempotencyKey(t *testing.T) {
	svc := &countingIntake{}
	router := newTestRouter(newFakeRedis(), svc)
	body := `{"customer_email":"a@example.com","lines":[{"sku_code":"A","quantity":1}]}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "order-1")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if svc.calls != 1 {
		t.Fatalf("expected replay to skip intake, calls=%d", svc.calls)
	}
}

func TestWebhookRequiresToken(t *testing.T) {
	router := newTestRouter(newFakeRedis(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireBearer(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.OperatorKeyHash = "argon2id$hash"
	router := newTestRouterWithConfig(cfg, newFakeRedis(), nil)
	for _, path := range []string{"/api/admin/v1/ping", "/api/admin/v1/orders/KS1/cancel"} {
		method := http.MethodPost
		if strings.HasSuffix(path, "ping") {
			method = http.MethodGet
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestAdminRoutesDisabledWithoutHash(t *testing.T) {
	router := newTestRouter(newFakeRedis(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminTokenDisabledWithoutHash(t *testing.T) {
	router := newTestRouter(newFakeRedis(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/token", strings.NewReader(`{"operator":"a","key":"b"}`)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
