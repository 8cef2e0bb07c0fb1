package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartAggregate_CreateThenAddItem(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")

	require.NoError(t, cart.Create("user-1", now))
	assert.Equal(t, CartStatusPending, cart.Status())
	assert.Equal(t, 1, cart.Version())

	require.NoError(t, cart.AddItem("sku-1", "Widget", 9.99, 2, now))
	assert.Equal(t, 2, cart.Version())
	assert.Equal(t, 2, cart.ItemCount())
	assert.InDelta(t, 19.98, cart.TotalAmount(), 0.001)
}

func TestCartAggregate_AddItem_MergesQuantity(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", now))
	require.NoError(t, cart.AddItem("sku-1", "Widget", 9.99, 2, now))
	require.NoError(t, cart.AddItem("sku-1", "Widget", 9.99, 3, now))

	assert.Equal(t, 5, cart.ItemCount())
	assert.Len(t, cart.Items(), 1)
}

func TestCartAggregate_CannotAddToCheckedOutCart(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", now))
	require.NoError(t, cart.AddItem("sku-1", "Widget", 9.99, 1, now))
	require.NoError(t, cart.Checkout("order-1", now))

	err := cart.AddItem("sku-2", "Gadget", 5.00, 1, now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCartAggregate_CannotCheckoutEmptyCart(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", now))

	err := cart.Checkout("order-1", now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCartAggregate_RemoveAndChangeQuantity(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", now))
	require.NoError(t, cart.AddItem("sku-1", "Widget", 9.99, 2, now))

	require.NoError(t, cart.ChangeQuantity("sku-1", 5, now))
	assert.Equal(t, 5, cart.ItemCount())

	require.NoError(t, cart.RemoveItem("sku-1", now))
	assert.Equal(t, 0, cart.ItemCount())
	assert.Empty(t, cart.Items())

	err := cart.RemoveItem("sku-1", now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCartAggregate_Expire(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", now))

	require.NoError(t, cart.Expire("idle_timeout", now))
	assert.Equal(t, CartStatusExpired, cart.Status())

	err := cart.Expire("idle_timeout", now)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCartAggregate_IsExpired(t *testing.T) {
	now := time.Now()
	cart := NewCartAggregate("cart-1")
	require.NoError(t, cart.Create("user-1", now.Add(-time.Hour)))

	assert.True(t, cart.IsExpired(15*time.Minute, now))
	assert.False(t, cart.IsExpired(2*time.Hour, now))
}

// TestCartAggregate_ReplayLaw pins property 8.1: replaying the event history
// onto a fresh aggregate reproduces the live state exactly.
func TestCartAggregate_ReplayLaw(t *testing.T) {
	now := time.Now()
	live := NewCartAggregate("cart-1")
	require.NoError(t, live.Create("user-1", now))
	require.NoError(t, live.AddItem("sku-1", "Widget", 9.99, 2, now))
	require.NoError(t, live.AddItem("sku-2", "Gadget", 4.50, 1, now))
	require.NoError(t, live.ChangeQuantity("sku-1", 3, now))

	events := live.UncommittedEvents()

	replayed := NewCartAggregate("cart-1")
	for _, e := range events {
		require.NoError(t, replayed.Apply(e, false))
	}

	assert.Equal(t, live.Version(), replayed.Version())
	assert.Equal(t, live.Status(), replayed.Status())
	assert.Equal(t, live.Items(), replayed.Items())
	assert.InDelta(t, live.TotalAmount(), replayed.TotalAmount(), 0.001)
	assert.Empty(t, replayed.UncommittedEvents())
}

func TestCartAggregate_Apply_UnknownEventType(t *testing.T) {
	cart := NewCartAggregate("cart-1")
	err := cart.Apply(unknownEvent{}, true)
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

type unknownEvent struct{}

func (unknownEvent) EventType() string { return "SomethingElse" }
