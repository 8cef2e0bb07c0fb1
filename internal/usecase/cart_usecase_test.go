package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
	"github.com/egannguyen/cartsourcing/internal/usecase"
)

func newCartUseCase() (*usecase.CartUseCase, *fakeCartEventStore, *fakeCartReadModel) {
	events := newFakeCartEventStore()
	projections := newFakeCartReadModel()
	return usecase.NewCartUseCase(events, projections, usecase.DefaultRetryBudget), events, projections
}

func TestCartUseCase_CreateCart(t *testing.T) {
	uc, _, projections := newCartUseCase()
	ctx := context.Background()

	cart, err := uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.CartStatusPending, cart.Status())

	proj, err := projections.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", proj.UserID)
}

func TestCartUseCase_CreateCart_RejectsDuplicate(t *testing.T) {
	uc, _, _ := newCartUseCase()
	ctx := context.Background()

	_, err := uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	require.NoError(t, err)

	_, err = uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestCartUseCase_AddItemToCart_NotFound(t *testing.T) {
	uc, _, _ := newCartUseCase()
	ctx := context.Background()

	_, err := uc.AddItemToCart(ctx, entity.AddItemToCart{CartID: "missing", ProductID: "sku-1", Quantity: 1}, "Widget", 9.99)
	assert.ErrorIs(t, err, usecase.ErrCartNotFound)
}

// TestCartUseCase_RetriesOnConcurrencyConflict pins property 8.4: a writer
// that loses the version race retries against a freshly reloaded aggregate.
func TestCartUseCase_RetriesOnConcurrencyConflict(t *testing.T) {
	uc, events, _ := newCartUseCase()
	ctx := context.Background()

	_, err := uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	require.NoError(t, err)

	events.forceConflict("cart-1", 2)

	cart, err := uc.AddItemToCart(ctx, entity.AddItemToCart{CartID: "cart-1", ProductID: "sku-1", Quantity: 1}, "Widget", 9.99)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.ItemCount())
}

func TestCartUseCase_ExhaustsRetryBudget(t *testing.T) {
	uc, events, _ := newCartUseCase()
	ctx := context.Background()

	_, err := uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	require.NoError(t, err)

	events.forceConflict("cart-1", usecase.DefaultRetryBudget+5)

	_, err = uc.AddItemToCart(ctx, entity.AddItemToCart{CartID: "cart-1", ProductID: "sku-1", Quantity: 1}, "Widget", 9.99)
	assert.ErrorIs(t, err, repository.ErrConcurrencyConflict)
}

func TestCartUseCase_ExpireCart_IdempotentOnTerminal(t *testing.T) {
	uc, _, _ := newCartUseCase()
	ctx := context.Background()

	_, err := uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	require.NoError(t, err)
	_, err = uc.AddItemToCart(ctx, entity.AddItemToCart{CartID: "cart-1", ProductID: "sku-1", Quantity: 1}, "Widget", 9.99)
	require.NoError(t, err)

	_, err = uc.CheckoutCart(ctx, entity.CheckoutCart{CartID: "cart-1", OrderID: "order-1"})
	require.NoError(t, err)

	cart, err := uc.ExpireCart(ctx, entity.ExpireCart{CartID: "cart-1", Reason: "idle_timeout"})
	require.NoError(t, err)
	assert.Equal(t, entity.CartStatusChecked, cart.Status())
}

// TestCartUseCase_ConcurrentWriters_BothSucceedViaRetry pins property 8.4
// against two goroutines that actually race, not a scripted conflict
// sequence: both load the cart at the same version and save with the same
// expected_version, so the fake store's version check (guarded by its own
// mutex, exactly like the unique constraint in production) must let exactly
// one of them win per round and force the other to reload and retry. Both
// items must land.
func TestCartUseCase_ConcurrentWriters_BothSucceedViaRetry(t *testing.T) {
	uc, _, _ := newCartUseCase()
	ctx := context.Background()

	_, err := uc.CreateCart(ctx, entity.CreateCart{CartID: "cart-1", UserID: "user-1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = uc.AddItemToCart(ctx, entity.AddItemToCart{CartID: "cart-1", ProductID: "sku-1", Quantity: 2}, "Widget", 9.99)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = uc.AddItemToCart(ctx, entity.AddItemToCart{CartID: "cart-1", ProductID: "sku-2", Quantity: 3}, "Gadget", 19.99)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	cart, err := uc.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, 5, cart.ItemCount())
	assert.Equal(t, 3, cart.Version())
}

func TestCartUseCase_ExpireCart_AbsentCartIsNoOp(t *testing.T) {
	uc, _, _ := newCartUseCase()
	ctx := context.Background()

	cart, err := uc.ExpireCart(ctx, entity.ExpireCart{CartID: "never-existed", Reason: "idle_timeout"})
	require.NoError(t, err)
	assert.Nil(t, cart)
}
