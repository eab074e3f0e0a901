package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// claimStore is the slice of the Redis client the guard needs.
type claimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyGuard remembers which bank transaction ids were already delivered.
type IdempotencyGuard struct {
	store claimStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store claimStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark claims txnID and reports whether it had been claimed before.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, txnID string) (bool, error) {
	if txnID == "" {
		return false, errors.New("transaction id is required")
	}
	key := g.store.IdempotencyKey(g.scope, txnID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete drops the claim so a redelivery is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, txnID string) error {
	if txnID == "" {
		return errors.New("transaction id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, txnID))
}
