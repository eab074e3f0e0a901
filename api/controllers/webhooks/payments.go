package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/keyshop-backend/api/responses"
	paymentwebhook "github.com/angelmondragon/keyshop-backend/internal/webhooks/payments"
	pkgerrors "github.com/angelmondragon/keyshop-backend/pkg/errors"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/paymentfeed"
)

const (
	webhookTokenHeader = "X-Webhook-Token"
	maxWebhookBody     = 64 << 10
)

type PaymentWebhookService interface {
	HandleTransaction(ctx context.Context, txn paymentfeed.Transaction) (paymentwebhook.Result, error)
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, txnID string) (bool, error)
	Delete(ctx context.Context, txnID string) error
}

type paymentNotification struct {
	ID         string     `json:"id"`
	Amount     int64      `json:"amount"`
	Content    string     `json:"content"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// PaymentWebhook receives incoming bank transfer notifications.
func PaymentWebhook(svc PaymentWebhookService, secret string, guard paymentWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		if !validToken(r.Header.Get(webhookTokenHeader), secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var note paymentNotification
		if err := json.Unmarshal(payload, &note); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed payload"))
			return
		}
		note.ID = strings.TrimSpace(note.ID)
		if note.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, note.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]any{"matched": false, "duplicate": true})
			return
		}

		txn := paymentfeed.Transaction{ID: note.ID, Amount: note.Amount, Content: note.Content}
		if note.OccurredAt != nil {
			txn.OccurredAt = note.OccurredAt.UTC()
		}

		result, err := svc.HandleTransaction(ctx, txn)
		if err != nil {
			_ = guard.Delete(ctx, note.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment webhook %s processed matched=%t", note.ID, result.Matched))
		}
		responses.WriteSuccess(w, result)
	}
}

func validToken(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
