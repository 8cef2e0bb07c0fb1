// Package usecase implements the command handlers (C6): load -> act -> save
// -> project, retried up to a fixed budget on optimistic-concurrency
// conflicts.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/egannguyen/cartsourcing/internal/repository"
)

// DefaultRetryBudget is the number of attempts a use case makes against a
// ConcurrencyConflict before surfacing it to the caller.
const DefaultRetryBudget = 3

// withRetry runs attempt up to budget times, continuing only on
// repository.ErrConcurrencyConflict. Any other error, or a conflict on the
// final attempt, is returned immediately.
func withRetry(ctx context.Context, budget int, op string, attempt func(ctx context.Context) error) error {
	if budget <= 0 {
		budget = DefaultRetryBudget
	}

	var lastErr error
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, repository.ErrConcurrencyConflict) {
			return lastErr
		}
		slog.Warn("retrying after concurrency conflict", "op", op, "attempt", i+1, "budget", budget)
	}
	return fmt.Errorf("%s: exhausted retry budget of %d: %w", op, budget, lastErr)
}
