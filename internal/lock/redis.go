// Package lock provides a short-lived, best-effort advisory lock used to
// reduce optimistic-concurrency retry storms on the per-product reserve-stock
// hot path. It is never the authority on correctness: the event store's
// unique constraint is.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Second

// ProductLock acquires and releases a SETNX-based advisory lock keyed by
// product ID. A nil client (REDIS_ADDR unset) degrades Acquire to always
// succeed, so the caller proceeds straight to plain optimistic-concurrency
// retries.
type ProductLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProductLock wires a ProductLock to client. client may be nil.
func NewProductLock(client *redis.Client) *ProductLock {
	return &ProductLock{client: client, ttl: defaultTTL}
}

// Handle is returned by Acquire; call Release (typically via defer) to drop
// the lock regardless of the path taken.
type Handle struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire attempts to hold the lock for productID for up to ttl. On any
// Redis error, or when the lock is already held, it logs and proceeds
// unlocked rather than blocking the caller on Redis availability; when no
// client is configured it proceeds unlocked without logging.
func (l *ProductLock) Acquire(ctx context.Context, productID string) *Handle {
	if l.client == nil {
		return &Handle{}
	}

	key := fmt.Sprintf("cartsourcing:lock:product:%s", productID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		slog.Warn("advisory lock unavailable, proceeding unlocked", "product_id", productID, "error", err)
		return &Handle{}
	}
	if !ok {
		slog.Debug("advisory lock already held, proceeding unlocked", "product_id", productID)
		return &Handle{}
	}

	return &Handle{client: l.client, key: key, token: token}
}

// Release drops the lock if this handle holds one. Safe to call on a
// no-op handle.
func (h *Handle) Release(ctx context.Context) {
	if h == nil || h.client == nil {
		return
	}
	// Only delete if we still own it: a plain DEL could remove a lock some
	// other holder acquired after our TTL lapsed.
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil {
		slog.Warn("advisory lock release failed", "key", h.key, "error", err)
	}
}
