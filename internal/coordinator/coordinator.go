// Package coordinator composes the Cart and Product use cases into the
// cross-aggregate operations: reserve-then-add, remove-then-release, and
// checkout-then-decrement. These are saga-like compensations, never a single
// cross-aggregate database transaction (§4.5, §7).
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/lock"
	"github.com/egannguyen/cartsourcing/internal/messaging"
	"github.com/egannguyen/cartsourcing/internal/repository"
	"github.com/egannguyen/cartsourcing/internal/usecase"
)

// Coordinator wires the Cart and Product use cases together for the
// operations that span both aggregates.
type Coordinator struct {
	carts      *usecase.CartUseCase
	products   *usecase.ProductUseCase
	productRM  repository.ProductReadModelRepository
	locks      *lock.ProductLock
	publisher  messaging.Publisher
}

// New wires a Coordinator.
func New(carts *usecase.CartUseCase, products *usecase.ProductUseCase, productRM repository.ProductReadModelRepository, locks *lock.ProductLock, publisher messaging.Publisher) *Coordinator {
	return &Coordinator{carts: carts, products: products, productRM: productRM, locks: locks, publisher: publisher}
}

// AddItemToCart is the coordinated form: look up the product, acquire the
// advisory lock, reserve stock, add the line item, and compensate by
// releasing the reservation if the cart write fails.
func (c *Coordinator) AddItemToCart(ctx context.Context, cmd entity.AddItemToCart) (*entity.CartAggregate, error) {
	product, err := c.productRM.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", usecase.ErrProductNotFound, cmd.ProductID)
		}
		return nil, fmt.Errorf("look up product %s: %w", cmd.ProductID, err)
	}

	handle := c.locks.Acquire(ctx, cmd.ProductID)
	defer handle.Release(ctx)

	if _, err := c.products.ReserveStock(ctx, entity.ReserveStock{
		ProductID: cmd.ProductID,
		CartID:    cmd.CartID,
		Quantity:  cmd.Quantity,
	}); err != nil {
		return nil, fmt.Errorf("reserve stock for product %s: %w", cmd.ProductID, err)
	}

	cart, err := c.carts.AddItemToCart(ctx, cmd, product.Name, product.Price)
	if err != nil {
		// Compensate: the reservation must not outlive a failed cart write.
		if _, releaseErr := c.products.ReleaseReservation(ctx, entity.ReleaseReservation{
			ProductID: cmd.ProductID,
			CartID:    cmd.CartID,
			Reason:    "cart_operation_failed",
		}); releaseErr != nil {
			slog.Error("compensation release failed after cart write error",
				"product_id", cmd.ProductID, "cart_id", cmd.CartID, "cart_error", err, "release_error", releaseErr)
		}
		return nil, fmt.Errorf("add item to cart %s: %w", cmd.CartID, err)
	}

	return cart, nil
}

// RemoveItemFromCart removes the line item, then releases its reservation.
// If the release fails, the reservation is held until its TTL lapses: an
// expired reservation no longer counts toward reserved stock, and the
// product's next ReserveStock releases it with reason "timeout" (bounded
// divergence <= reservation TTL).
func (c *Coordinator) RemoveItemFromCart(ctx context.Context, cmd entity.RemoveItemFromCart) (*entity.CartAggregate, error) {
	cart, err := c.carts.RemoveItemFromCart(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("remove item from cart %s: %w", cmd.CartID, err)
	}

	if _, err := c.products.ReleaseReservation(ctx, entity.ReleaseReservation{
		ProductID: cmd.ProductID,
		CartID:    cmd.CartID,
		Reason:    "item_removed",
	}); err != nil {
		slog.Error("release reservation after item removal failed; will be swept at reservation timeout",
			"product_id", cmd.ProductID, "cart_id", cmd.CartID, "error", err)
	}

	return cart, nil
}

// CheckoutCart finalizes the cart, then checks out each reserved item's
// stock. A product-side failure is logged but never rolls back the cart
// checkout (§4.5, §7). On success, publishes a CartCheckedOut integration
// event.
func (c *Coordinator) CheckoutCart(ctx context.Context, cmd entity.CheckoutCart) (*entity.CartAggregate, error) {
	preCheckout, err := c.carts.GetCart(ctx, cmd.CartID)
	if err != nil {
		return nil, fmt.Errorf("load cart %s before checkout: %w", cmd.CartID, err)
	}
	items := preCheckout.Items()

	cart, err := c.carts.CheckoutCart(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("checkout cart %s: %w", cmd.CartID, err)
	}

	for productID := range items {
		if _, err := c.products.CheckoutReservation(ctx, entity.CheckoutReservation{
			ProductID: productID,
			CartID:    cmd.CartID,
			OrderID:   cmd.OrderID,
		}); err != nil {
			slog.Error("checkout reservation failed after cart checkout committed; stock not yet decremented",
				"product_id", productID, "cart_id", cmd.CartID, "order_id", cmd.OrderID, "error", err)
		}
	}

	if c.publisher != nil {
		event := messaging.CartCheckedOutEvent{
			CartID:      cart.AggregateID(),
			OrderID:     cmd.OrderID,
			UserID:      cart.UserID(),
			TotalAmount: cart.TotalAmount(),
		}
		if err := c.publisher.PublishCartCheckedOut(ctx, event); err != nil {
			slog.Error("publish CartCheckedOut integration event failed", "cart_id", cmd.CartID, "error", err)
		}
	}

	return cart, nil
}

// ReleaseExpiredReservation is invoked by the expiration scheduler after a
// cart has been expired, to release the matching product reservation with
// reason "cart_expired".
func (c *Coordinator) ReleaseExpiredReservation(ctx context.Context, productID, cartID string) (*entity.ProductAggregate, error) {
	return c.products.ReleaseReservation(ctx, entity.ReleaseReservation{
		ProductID: productID,
		CartID:    cartID,
		Reason:    "cart_expired",
	})
}
