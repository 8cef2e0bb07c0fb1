package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// ErrProductNotFound means a cart operation referenced a product absent from
// the product read model.
var ErrProductNotFound = errors.New("usecase: product not found")

// ErrCartNotFound means a cart operation referenced a cart with no event
// stream.
var ErrCartNotFound = errors.New("usecase: cart not found")

// CartUseCase implements the single-aggregate Cart command handlers (C6).
// Cross-aggregate composition (reserve-then-add, checkout fan-out) lives one
// layer up, in the coordinator.
type CartUseCase struct {
	events      repository.CartEventStore
	projections repository.CartReadModelRepository
	retryBudget int
}

// NewCartUseCase wires a CartUseCase to its event store and projection. A
// retryBudget <= 0 falls back to DefaultRetryBudget.
func NewCartUseCase(events repository.CartEventStore, projections repository.CartReadModelRepository, retryBudget int) *CartUseCase {
	if retryBudget <= 0 {
		retryBudget = DefaultRetryBudget
	}
	return &CartUseCase{events: events, projections: projections, retryBudget: retryBudget}
}

// CreateCart requires no prior aggregate; expected_version on save is 0.
func (uc *CartUseCase) CreateCart(ctx context.Context, cmd entity.CreateCart) (*entity.CartAggregate, error) {
	var cart *entity.CartAggregate
	err := withRetry(ctx, uc.retryBudget, "CreateCart", func(ctx context.Context) error {
		existing, err := uc.events.LoadAggregate(ctx, cmd.CartID)
		if err != nil {
			return fmt.Errorf("load existing cart: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: cart %s already exists", entity.ErrValidation, cmd.CartID)
		}

		cart = entity.NewCartAggregate(cmd.CartID)
		expectedVersion := cart.Version()
		if err := cart.Create(cmd.UserID, time.Now()); err != nil {
			return err
		}
		if err := uc.events.SaveEvents(ctx, cmd.CartID, cart.UncommittedEvents(), expectedVersion); err != nil {
			return err
		}
		cart.ClearUncommittedEvents()
		if err := uc.projections.CreateProjection(ctx, cart); err != nil {
			slog.Error("create cart projection failed", "cart_id", cmd.CartID, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItemToCart fetches product data from the product read model (never the
// product event store) and applies it to the cart. Coordinated reservation
// happens one layer up.
func (uc *CartUseCase) AddItemToCart(ctx context.Context, cmd entity.AddItemToCart, productName string, price float64) (*entity.CartAggregate, error) {
	var cart *entity.CartAggregate
	err := withRetry(ctx, uc.retryBudget, "AddItemToCart", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.CartID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrCartNotFound, cmd.CartID)
		}
		cart = loaded

		expectedVersion := cart.Version()
		if err := cart.AddItem(cmd.ProductID, productName, price, cmd.Quantity, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, cart, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItemFromCart drops a line item (cart-only; reservation release is
// coordinated separately).
func (uc *CartUseCase) RemoveItemFromCart(ctx context.Context, cmd entity.RemoveItemFromCart) (*entity.CartAggregate, error) {
	var cart *entity.CartAggregate
	err := withRetry(ctx, uc.retryBudget, "RemoveItemFromCart", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.CartID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrCartNotFound, cmd.CartID)
		}
		cart = loaded

		expectedVersion := cart.Version()
		if err := cart.RemoveItem(cmd.ProductID, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, cart, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ChangeItemQuantity overwrites a line item's quantity.
func (uc *CartUseCase) ChangeItemQuantity(ctx context.Context, cmd entity.ChangeItemQuantity) (*entity.CartAggregate, error) {
	var cart *entity.CartAggregate
	err := withRetry(ctx, uc.retryBudget, "ChangeItemQuantity", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.CartID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrCartNotFound, cmd.CartID)
		}
		cart = loaded

		expectedVersion := cart.Version()
		if err := cart.ChangeQuantity(cmd.ProductID, cmd.NewQuantity, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, cart, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// CheckoutCart finalizes the cart (cart-only; reservation checkout is
// coordinated separately).
func (uc *CartUseCase) CheckoutCart(ctx context.Context, cmd entity.CheckoutCart) (*entity.CartAggregate, error) {
	var cart *entity.CartAggregate
	err := withRetry(ctx, uc.retryBudget, "CheckoutCart", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.CartID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrCartNotFound, cmd.CartID)
		}
		cart = loaded

		expectedVersion := cart.Version()
		if err := cart.Checkout(cmd.OrderID, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, cart, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ExpireCart is idempotent on already-terminal carts: it silently returns
// without error when the cart is absent or not PENDING.
func (uc *CartUseCase) ExpireCart(ctx context.Context, cmd entity.ExpireCart) (*entity.CartAggregate, error) {
	var cart *entity.CartAggregate
	err := withRetry(ctx, uc.retryBudget, "ExpireCart", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.CartID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if loaded == nil {
			return nil
		}
		if loaded.Status() != entity.CartStatusPending {
			cart = loaded
			return nil
		}
		cart = loaded

		expectedVersion := cart.Version()
		if err := cart.Expire(cmd.Reason, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, cart, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// GetCart replays the cart's stream for a direct read (bypassing the
// projection); callers serving HTTP reads should prefer the read model.
func (uc *CartUseCase) GetCart(ctx context.Context, cartID string) (*entity.CartAggregate, error) {
	cart, err := uc.events.LoadAggregate(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, cartID)
	}
	return cart, nil
}

func (uc *CartUseCase) commitAndProject(ctx context.Context, cart *entity.CartAggregate, expectedVersion int) error {
	if err := uc.events.SaveEvents(ctx, cart.AggregateID(), cart.UncommittedEvents(), expectedVersion); err != nil {
		return err
	}
	cart.ClearUncommittedEvents()
	if err := uc.projections.UpdateProjection(ctx, cart); err != nil {
		slog.Error("update cart projection failed", "cart_id", cart.AggregateID(), "error", err)
	}
	return nil
}
