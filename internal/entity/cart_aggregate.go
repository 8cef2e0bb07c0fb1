package entity

import (
	"fmt"
	"time"
)

// CartStatus is the small closed set of states a cart moves through.
type CartStatus string

const (
	CartStatusPending       CartStatus = "PENDING"
	CartStatusChecked CartStatus = "CHECKED_OUT"
	CartStatusExpired CartStatus = "EXPIRED"
)

// CartItem is a line item currently held in the cart.
type CartItem struct {
	ProductID   string
	ProductName string
	Price       float64
	Quantity    int
}

// TotalPrice is price times quantity for this line item.
func (i CartItem) TotalPrice() float64 { return i.Price * float64(i.Quantity) }

// CartAggregate is the Cart aggregate root. It is rebuilt by replaying events
// through Apply and mutated through its command methods, which validate invariants
// and buffer the resulting events for the event store to persist.
type CartAggregate struct {
	aggregateBase

	cartID       string
	userID       string
	status       CartStatus
	items        map[string]*CartItem
	createdAt    time.Time
	lastActivity time.Time
}

// NewCartAggregate returns an empty, uninitialized cart ready for replay or
// for a Create command.
func NewCartAggregate(cartID string) *CartAggregate {
	return &CartAggregate{
		cartID: cartID,
		items:  make(map[string]*CartItem),
	}
}

func (a *CartAggregate) AggregateID() string     { return a.cartID }
func (a *CartAggregate) UserID() string          { return a.userID }
func (a *CartAggregate) Status() CartStatus      { return a.status }
func (a *CartAggregate) CreatedAt() time.Time    { return a.createdAt }
func (a *CartAggregate) LastActivity() time.Time { return a.lastActivity }

// Items returns a defensive copy of the current line items, keyed by
// product ID.
func (a *CartAggregate) Items() map[string]CartItem {
	out := make(map[string]CartItem, len(a.items))
	for k, v := range a.items {
		out[k] = *v
	}
	return out
}

// TotalAmount is the derived sum of price*quantity across all line items.
func (a *CartAggregate) TotalAmount() float64 {
	var total float64
	for _, item := range a.items {
		total += item.TotalPrice()
	}
	return total
}

// ItemCount is the derived sum of quantities across all line items.
func (a *CartAggregate) ItemCount() int {
	var n int
	for _, item := range a.items {
		n += item.Quantity
	}
	return n
}

// IsExpired reports whether a PENDING cart has been idle past timeout.
func (a *CartAggregate) IsExpired(timeout time.Duration, now time.Time) bool {
	if a.status != CartStatusPending || a.lastActivity.IsZero() {
		return false
	}
	return a.lastActivity.Before(now.Add(-timeout))
}

// Apply mutates state for event e. isNew distinguishes a freshly emitted
// event (buffered as uncommitted) from a replayed one (is_new=false).
func (a *CartAggregate) Apply(e Event, isNew bool) error {
	switch evt := e.(type) {
	case CartCreated:
		a.userID = evt.UserID
		a.status = CartStatusPending
		a.createdAt = evt.OccurredAt
		a.lastActivity = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	case ItemAddedToCart:
		if existing, ok := a.items[evt.ProductID]; ok {
			existing.Quantity += evt.Quantity
			existing.Price = evt.Price
			existing.ProductName = evt.ProductName
		} else {
			a.items[evt.ProductID] = &CartItem{
				ProductID:   evt.ProductID,
				ProductName: evt.ProductName,
				Price:       evt.Price,
				Quantity:    evt.Quantity,
			}
		}
		a.lastActivity = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	case ItemRemovedFromCart:
		delete(a.items, evt.ProductID)
		a.lastActivity = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	case ItemQuantityChanged:
		if item, ok := a.items[evt.ProductID]; ok {
			item.Quantity = evt.NewQuantity
		}
		a.lastActivity = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	case CartCheckedOut:
		a.status = CartStatusChecked
		a.lastActivity = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	case CartExpired:
		a.status = CartStatusExpired
		a.lastActivity = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	default:
		return fmt.Errorf("cart %s: %w: %s", a.cartID, ErrUnknownEventType, e.EventType())
	}
	return nil
}

// === Commands ===

// Create initializes a brand-new cart for user_id.
func (a *CartAggregate) Create(userID string, now time.Time) error {
	if a.status != "" {
		return fmt.Errorf("cart %s: %w: already created", a.cartID, ErrValidation)
	}
	return a.Apply(CartCreated{
		CartID:     a.cartID,
		UserID:     userID,
		OccurredAt: now,
	}, true)
}

// AddItem merges quantity into an existing line item or creates a new one.
func (a *CartAggregate) AddItem(productID, productName string, price float64, quantity int, now time.Time) error {
	if a.status != CartStatusPending {
		return fmt.Errorf("cart %s: %w: cannot add items to cart with status %s", a.cartID, ErrValidation, a.status)
	}
	if quantity <= 0 {
		return fmt.Errorf("cart %s: %w: quantity must be positive", a.cartID, ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("cart %s: %w: price cannot be negative", a.cartID, ErrValidation)
	}
	return a.Apply(ItemAddedToCart{
		CartID:      a.cartID,
		ProductID:   productID,
		ProductName: productName,
		Price:       price,
		Quantity:    quantity,
		OccurredAt:  now,
	}, true)
}

// RemoveItem drops a line item entirely.
func (a *CartAggregate) RemoveItem(productID string, now time.Time) error {
	if a.status != CartStatusPending {
		return fmt.Errorf("cart %s: %w: cannot remove items from cart with status %s", a.cartID, ErrValidation, a.status)
	}
	if _, ok := a.items[productID]; !ok {
		return fmt.Errorf("cart %s: %w: product %s not found in cart", a.cartID, ErrValidation, productID)
	}
	return a.Apply(ItemRemovedFromCart{
		CartID:     a.cartID,
		ProductID:  productID,
		OccurredAt: now,
	}, true)
}

// ChangeQuantity overwrites a line item's quantity.
func (a *CartAggregate) ChangeQuantity(productID string, newQuantity int, now time.Time) error {
	if a.status != CartStatusPending {
		return fmt.Errorf("cart %s: %w: cannot change quantity in cart with status %s", a.cartID, ErrValidation, a.status)
	}
	item, ok := a.items[productID]
	if !ok {
		return fmt.Errorf("cart %s: %w: product %s not found in cart", a.cartID, ErrValidation, productID)
	}
	if newQuantity <= 0 {
		return fmt.Errorf("cart %s: %w: quantity must be positive", a.cartID, ErrValidation)
	}
	return a.Apply(ItemQuantityChanged{
		CartID:      a.cartID,
		ProductID:   productID,
		OldQuantity: item.Quantity,
		NewQuantity: newQuantity,
		OccurredAt:  now,
	}, true)
}

// Checkout finalizes the cart, requiring a non-empty basket.
func (a *CartAggregate) Checkout(orderID string, now time.Time) error {
	if a.status != CartStatusPending {
		return fmt.Errorf("cart %s: %w: cannot checkout cart with status %s", a.cartID, ErrValidation, a.status)
	}
	if len(a.items) == 0 {
		return fmt.Errorf("cart %s: %w: cannot checkout empty cart", a.cartID, ErrValidation)
	}
	return a.Apply(CartCheckedOut{
		CartID:      a.cartID,
		OrderID:     orderID,
		TotalAmount: a.TotalAmount(),
		OccurredAt:  now,
	}, true)
}

// Expire transitions a PENDING cart to EXPIRED.
func (a *CartAggregate) Expire(reason string, now time.Time) error {
	if a.status != CartStatusPending {
		return fmt.Errorf("cart %s: %w: cannot expire cart with status %s", a.cartID, ErrValidation, a.status)
	}
	return a.Apply(CartExpired{
		CartID:     a.cartID,
		Reason:     reason,
		OccurredAt: now,
	}, true)
}
