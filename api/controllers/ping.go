package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/keyshop-backend/api/middleware"
	"github.com/angelmondragon/keyshop-backend/api/responses"
)

type pingResponse struct {
	Scope      string    `json:"scope"`
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
	Operator   string    `json:"operator,omitempty"`
}

// PublicPing lets the storefront check reachability and clock skew.
func PublicPing() http.HandlerFunc {
	return ping("public")
}

// AdminPing confirms an operator token is accepted and echoes its owner.
func AdminPing() http.HandlerFunc {
	return ping("admin")
}

func ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, pingResponse{
			Scope:      scope,
			Status:     "ok",
			ServerTime: time.Now().UTC(),
			Operator:   middleware.OperatorFromContext(r.Context()),
		})
	}
}
