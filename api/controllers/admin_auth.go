package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/keyshop-backend/api/responses"
	"github.com/angelmondragon/keyshop-backend/api/validators"
	pkgAuth "github.com/angelmondragon/keyshop-backend/pkg/auth"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/security"
)

type adminTokenRequest struct {
	Operator string `json:"operator" validate:"required,max=64"`
	Key      string `json:"key" validate:"required,max=256"`
}

type adminTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AdminAuthToken exchanges the shared operator key for a short-lived bearer token.
func AdminAuthToken(cfg config.AdminConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Enabled() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access disabled"))
			return
		}

		var req adminTokenRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ok, err := security.VerifyOperatorKey(req.Key, cfg.OperatorKeyHash)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify operator key"))
			return
		}
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
			return
		}

		now := time.Now().UTC()
		operator := validators.SanitizeString(req.Operator, 64)
		token, err := pkgAuth.MintOperatorToken(cfg, now, operator)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithOperator(r.Context(), operator), "admin.token.issued")
		}
		responses.WriteSuccess(w, adminTokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   now.Add(cfg.TokenTTL()),
		})
	}
}
