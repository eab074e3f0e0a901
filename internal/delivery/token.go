package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	tokenLength     = 32
	tokenKeyInfo    = "keyshop/delivery-token/v1"
	defaultValidity = 7
	dayLayout       = "2006-01-02"
)

// Tokens issues and checks day-scoped delivery tokens. Nothing is stored: a token
// is recomputed from the order id, the customer email and a UTC calendar day.
type Tokens struct {
	key          []byte
	validityDays int
}

// NewTokens derives the signing key from secret.
func NewTokens(secret string, validityDays int) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("delivery secret is required")
	}
	if validityDays <= 0 {
		validityDays = defaultValidity
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive delivery key: %w", err)
	}
	return &Tokens{key: key, validityDays: validityDays}, nil
}

// Issue returns the token for the UTC calendar day containing day.
func (t *Tokens) Issue(orderID uuid.UUID, email string, day time.Time) string {
	mac := hmac.New(sha256.New, t.key)
	_, _ = fmt.Fprintf(mac, "%s|%s|%s", orderID.String(), normalizeEmail(email), day.UTC().Format(dayLayout))
	return hex.EncodeToString(mac.Sum(nil))[:tokenLength]
}

// Verify accepts a token issued on any of the trailing validity days, today included.
func (t *Tokens) Verify(orderID uuid.UUID, email, token string, now time.Time) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) != tokenLength {
		return false
	}
	ok := false
	for i := 0; i < t.validityDays; i++ {
		expected := t.Issue(orderID, email, now.AddDate(0, 0, -i))
		if hmac.Equal([]byte(expected), []byte(token)) {
			ok = true
		}
	}
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
