// Package scheduler runs the background expiration sweep (§4.6): a
// ticker-driven goroutine that finds idle PENDING carts and expires them.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/egannguyen/cartsourcing/internal/coordinator"
	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
	"github.com/egannguyen/cartsourcing/internal/usecase"
)

const (
	// DefaultInterval is how often the sweep wakes.
	DefaultInterval = 60 * time.Second
	// DefaultTimeout is how long a PENDING cart may sit idle before expiring.
	DefaultTimeout = 15 * time.Minute
)

// ExpirationScheduler periodically expires carts that have been idle past
// timeout, releasing their product reservations.
type ExpirationScheduler struct {
	cartRM      repository.CartReadModelRepository
	carts       *usecase.CartUseCase
	coordinator *coordinator.Coordinator
	interval    time.Duration
	timeout     time.Duration
}

// New wires an ExpirationScheduler. Zero interval/timeout fall back to the
// spec defaults (60s / 15min).
func New(cartRM repository.CartReadModelRepository, carts *usecase.CartUseCase, coord *coordinator.Coordinator, interval, timeout time.Duration) *ExpirationScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExpirationScheduler{cartRM: cartRM, carts: carts, coordinator: coord, interval: interval, timeout: timeout}
}

// Run blocks, sweeping every interval until ctx is cancelled. A cancelled
// scheduler completes the in-flight tick before returning (bounded exit).
func (s *ExpirationScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("expiration scheduler started", "interval", s.interval, "timeout", s.timeout)

	for {
		select {
		case <-ctx.Done():
			slog.Info("expiration scheduler stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirationScheduler) sweep(ctx context.Context) {
	ids, err := s.cartRM.GetExpiredCartIDs(ctx, s.timeout)
	if err != nil {
		slog.Error("expiration sweep: failed to list expired carts", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	slog.Info("expiration sweep found idle carts", "count", len(ids))
	for _, cartID := range ids {
		s.expireOne(ctx, cartID)
	}
}

// expireOne mirrors the ExpireCart use case: load, capture items, expire,
// persist, project, then release each item's reservation. Release failures
// are logged, never abort the sweep.
func (s *ExpirationScheduler) expireOne(ctx context.Context, cartID string) {
	pending, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		slog.Error("expiration sweep: failed to load cart", "cart_id", cartID, "error", err)
		return
	}
	if pending.Status() != entity.CartStatusPending {
		return
	}
	items := pending.Items()

	if _, err := s.carts.ExpireCart(ctx, entity.ExpireCart{CartID: cartID, Reason: "idle_timeout"}); err != nil {
		slog.Error("expiration sweep: failed to expire cart", "cart_id", cartID, "error", err)
		return
	}

	for productID := range items {
		if _, err := s.coordinator.ReleaseExpiredReservation(ctx, productID, cartID); err != nil {
			slog.Error("expiration sweep: failed to release reservation", "product_id", productID, "cart_id", cartID, "error", err)
		}
	}
}
