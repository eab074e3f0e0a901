package middleware

import "context"

type operatorKey struct{}

// WithOperator records the authenticated back-office operator on ctx.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFromContext is empty for customer and webhook requests.
func OperatorFromContext(ctx context.Context) string {
	operator, _ := ctx.Value(operatorKey{}).(string)
	return operator
}
