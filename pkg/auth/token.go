package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/keyshop-backend/pkg/config"
)

// clockSkew tolerated between the minting host and the api.
const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	errNoSecret = errors.New("jwt secret is required")
)

// MintOperatorToken signs an HS256 token for operator, valid for cfg.TokenTTL()
// from now.
func MintOperatorToken(cfg config.AdminConfig, now time.Time, operator string) (string, error) {
	switch {
	case cfg.JWTSecret == "":
		return "", errNoSecret
	case cfg.JWTIssuer == "":
		return "", errors.New("jwt issuer is required")
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", errors.New("operator is required")
	}
	claims := OperatorClaims{
		Operator: operator,
		Role:     RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.JWTIssuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// ParseOperatorToken verifies signature, issuer and expiry, then checks the
// keyshop-specific claims.
func ParseOperatorToken(cfg config.AdminConfig, raw string) (*OperatorClaims, error) {
	if cfg.JWTSecret == "" {
		return nil, errNoSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	claims := new(OperatorClaims)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}); err != nil {
		return nil, err
	}
	if claims.Role != RoleOperator {
		return nil, fmt.Errorf("unexpected role %q", claims.Role)
	}
	if claims.Operator == "" {
		return nil, errors.New("operator claim missing")
	}
	return claims, nil
}
