package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
)

const maxOrderCodeLen = 32

// RequiredQuery returns a trimmed query parameter or a validation error when it is absent.
func RequiredQuery(r *http.Request, key string, maxLen int) (string, error) {
	value := SanitizeString(r.URL.Query().Get(key), maxLen)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter required").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// OrderCodeParam reads the {code} path parameter and upper-cases it.
func OrderCodeParam(r *http.Request) (string, error) {
	code := strings.ToUpper(SanitizeString(chi.URLParam(r, "code"), maxOrderCodeLen))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order code required").WithDetails(map[string]any{"field": "code"})
	}
	return code, nil
}

// OptionalIntQuery parses an integer query parameter, returning 0 when it is absent.
func OptionalIntQuery(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a non-negative integer").WithDetails(map[string]any{"field": key})
	}
	return n, nil
}
