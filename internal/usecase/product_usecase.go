package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// ProductUseCase implements the single-aggregate Product command handlers.
type ProductUseCase struct {
	events         repository.ProductEventStore
	projections    repository.ProductReadModelRepository
	retryBudget    int
	reservationTTL time.Duration
}

// NewProductUseCase wires a ProductUseCase to its event store and
// projection, with the reservation TTL applied by ReserveStock. A
// retryBudget <= 0 falls back to DefaultRetryBudget.
func NewProductUseCase(events repository.ProductEventStore, projections repository.ProductReadModelRepository, retryBudget int, reservationTTL time.Duration) *ProductUseCase {
	if retryBudget <= 0 {
		retryBudget = DefaultRetryBudget
	}
	if reservationTTL <= 0 {
		reservationTTL = 15 * time.Minute
	}
	return &ProductUseCase{events: events, projections: projections, retryBudget: retryBudget, reservationTTL: reservationTTL}
}

// CreateProduct stocks a brand-new product.
func (uc *ProductUseCase) CreateProduct(ctx context.Context, cmd entity.CreateProduct) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "CreateProduct", func(ctx context.Context) error {
		existing, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load existing product: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: product %s already exists", entity.ErrValidation, cmd.ProductID)
		}

		product = entity.NewProductAggregate(cmd.ProductID)
		expectedVersion := product.Version()
		if err := product.Create(cmd.Name, cmd.Price, cmd.InitialStock, cmd.Description, time.Now()); err != nil {
			return err
		}
		if err := uc.events.SaveEvents(ctx, cmd.ProductID, product.UncommittedEvents(), expectedVersion); err != nil {
			return err
		}
		product.ClearUncommittedEvents()
		if err := uc.projections.CreateProjection(ctx, product); err != nil {
			slog.Error("create product projection failed", "product_id", cmd.ProductID, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ReserveStock sweeps expired reservations and holds quantity units for
// cart_id if available stock allows it.
func (uc *ProductUseCase) ReserveStock(ctx context.Context, cmd entity.ReserveStock) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "ReserveStock", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		product = loaded

		expectedVersion := product.Version()
		if err := product.ReserveStock(cmd.CartID, cmd.Quantity, uc.reservationTTL, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, product, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ReleaseReservation is idempotent: releasing a cart with no reservation
// succeeds without emitting anything or touching the projection.
func (uc *ProductUseCase) ReleaseReservation(ctx context.Context, cmd entity.ReleaseReservation) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "ReleaseReservation", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		product = loaded

		expectedVersion := product.Version()
		if err := product.ReleaseReservation(cmd.CartID, cmd.Reason, time.Now()); err != nil {
			return err
		}
		if len(product.UncommittedEvents()) == 0 {
			return nil
		}
		return uc.commitAndProject(ctx, product, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// CheckoutReservation releases the reservation and decrements total stock.
func (uc *ProductUseCase) CheckoutReservation(ctx context.Context, cmd entity.CheckoutReservation) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "CheckoutReservation", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		product = loaded

		expectedVersion := product.Version()
		if err := product.CheckoutReservation(cmd.CartID, cmd.OrderID, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, product, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// IncreaseStock is a restock.
func (uc *ProductUseCase) IncreaseStock(ctx context.Context, cmd entity.IncreaseStock) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "IncreaseStock", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		product = loaded

		expectedVersion := product.Version()
		if err := product.IncreaseStock(cmd.Quantity, time.Now()); err != nil {
			return err
		}
		return uc.commitAndProject(ctx, product, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ChangePrice overwrites price.
func (uc *ProductUseCase) ChangePrice(ctx context.Context, cmd entity.ChangePrice) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "ChangePrice", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		product = loaded

		expectedVersion := product.Version()
		if err := product.ChangePrice(cmd.NewPrice, time.Now()); err != nil {
			return err
		}
		if len(product.UncommittedEvents()) == 0 {
			return nil
		}
		return uc.commitAndProject(ctx, product, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct overwrites name and/or description.
func (uc *ProductUseCase) UpdateProduct(ctx context.Context, cmd entity.UpdateProduct) (*entity.ProductAggregate, error) {
	var product *entity.ProductAggregate
	err := withRetry(ctx, uc.retryBudget, "UpdateProduct", func(ctx context.Context) error {
		loaded, err := uc.events.LoadAggregate(ctx, cmd.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if loaded == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, cmd.ProductID)
		}
		product = loaded

		expectedVersion := product.Version()
		if err := product.UpdateDetails(cmd.Name, cmd.Description, time.Now()); err != nil {
			return err
		}
		if len(product.UncommittedEvents()) == 0 {
			return nil
		}
		return uc.commitAndProject(ctx, product, expectedVersion)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct replays the product's stream for a direct read.
func (uc *ProductUseCase) GetProduct(ctx context.Context, productID string) (*entity.ProductAggregate, error) {
	product, err := uc.events.LoadAggregate(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return product, nil
}

func (uc *ProductUseCase) commitAndProject(ctx context.Context, product *entity.ProductAggregate, expectedVersion int) error {
	if err := uc.events.SaveEvents(ctx, product.AggregateID(), product.UncommittedEvents(), expectedVersion); err != nil {
		return err
	}
	product.ClearUncommittedEvents()
	if err := uc.projections.UpdateProjection(ctx, product); err != nil {
		slog.Error("update product projection failed", "product_id", product.AggregateID(), "error", err)
	}
	return nil
}
