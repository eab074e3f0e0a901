package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator is the only role the admin surface accepts.
const RoleOperator = "operator"

// OperatorClaims represents the typed JWT issued to back-office operators.
type OperatorClaims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
