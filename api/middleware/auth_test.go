package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgAuth "github.com/angelmondragon/keyshop-backend/pkg/auth"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
)

func testAdmin() config.AdminConfig {
	return config.AdminConfig{JWTSecret: "secret", JWTIssuer: "keyshop", JWTExpirationMins: 10, OperatorKeyHash: "x"}
}

func TestOperatorAuthSeedsOperator(t *testing.T) {
	cfg := testAdmin()
	token, err := pkgAuth.MintOperatorToken(cfg, time.Now(), "ops-1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var seen string
	handler := OperatorAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/KS1/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != "ops-1" {
		t.Fatalf("expected operator in context, got %q", seen)
	}
}

func TestOperatorAuthRejects(t *testing.T) {
	cfg := testAdmin()
	handler := OperatorAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/KS1/cancel", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestOperatorAuthDisabledWithoutSecrets(t *testing.T) {
	handler := OperatorAuth(config.AdminConfig{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/ping", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc":   true,
		"bearer  abc ": true,
		"Basic abc":    false,
		"abc":          false,
		"Bearer":       false,
		"Bearer    ":   false,
	}
	for header, want := range cases {
		if _, ok := bearerToken(header); ok != want {
			t.Fatalf("header %q: expected %v", header, want)
		}
	}
}
