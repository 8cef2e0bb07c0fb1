package entity

import (
	"fmt"
	"time"
)

// Reservation is a time-bounded hold on stock, owned by value and keyed by
// cart ID; there is no shared pointer graph back to the cart.
type Reservation struct {
	CartID        string
	Quantity      int
	ReservedUntil time.Time
}

// IsExpired reports whether the reservation's hold has lapsed as of now.
func (r Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ReservedUntil)
}

// ProductAggregate is the Product aggregate root: total stock plus the set
// of live reservations against it.
type ProductAggregate struct {
	aggregateBase

	productID    string
	name         string
	price        float64
	description  string
	totalStock   int
	reservations map[string]Reservation // cart_id -> reservation
	createdAt    time.Time
}

// NewProductAggregate returns an empty, uninitialized product ready for
// replay or for a Create command.
func NewProductAggregate(productID string) *ProductAggregate {
	return &ProductAggregate{
		productID:    productID,
		reservations: make(map[string]Reservation),
	}
}

func (a *ProductAggregate) AggregateID() string  { return a.productID }
func (a *ProductAggregate) Name() string         { return a.name }
func (a *ProductAggregate) Price() float64       { return a.price }
func (a *ProductAggregate) Description() string  { return a.description }
func (a *ProductAggregate) TotalStock() int      { return a.totalStock }
func (a *ProductAggregate) CreatedAt() time.Time { return a.createdAt }

// Reservation returns the live reservation for cartID, if any.
func (a *ProductAggregate) Reservation(cartID string) (Reservation, bool) {
	r, ok := a.reservations[cartID]
	return r, ok
}

// ReservedStock sums quantities across all non-expired reservations.
func (a *ProductAggregate) ReservedStock(now time.Time) int {
	var n int
	for _, r := range a.reservations {
		if !r.IsExpired(now) {
			n += r.Quantity
		}
	}
	return n
}

// AvailableStock is total_stock minus non-expired reserved_stock.
func (a *ProductAggregate) AvailableStock(now time.Time) int {
	return a.totalStock - a.ReservedStock(now)
}

// Apply mutates state for event e. isNew distinguishes a freshly emitted
// event (buffered as uncommitted) from a replayed one (is_new=false).
func (a *ProductAggregate) Apply(e Event, isNew bool) error {
	switch evt := e.(type) {
	case ProductCreated:
		a.name = evt.Name
		a.price = evt.Price
		a.description = evt.Description
		a.totalStock = evt.InitialStock
		a.createdAt = evt.OccurredAt
		a.record(e, a.version+1, isNew)

	case ProductStockReserved:
		a.reservations[evt.CartID] = Reservation{
			CartID:        evt.CartID,
			Quantity:      evt.Quantity,
			ReservedUntil: evt.ReservedUntil,
		}
		a.record(e, a.version+1, isNew)

	case ProductStockReservationReleased:
		delete(a.reservations, evt.CartID)
		a.record(e, a.version+1, isNew)

	case ProductStockIncreased:
		a.totalStock += evt.Quantity
		a.record(e, a.version+1, isNew)

	case ProductStockDecreased:
		a.totalStock -= evt.Quantity
		a.record(e, a.version+1, isNew)

	case ProductPriceChanged:
		a.price = evt.NewPrice
		a.record(e, a.version+1, isNew)

	case ProductUpdated:
		if evt.Name != nil {
			a.name = *evt.Name
		}
		if evt.Description != nil {
			a.description = *evt.Description
		}
		a.record(e, a.version+1, isNew)

	default:
		return fmt.Errorf("product %s: %w: %s", a.productID, ErrUnknownEventType, e.EventType())
	}
	return nil
}

// === Commands ===

// Create stocks a brand-new product.
func (a *ProductAggregate) Create(name string, price float64, initialStock int, description string, now time.Time) error {
	if a.name != "" {
		return fmt.Errorf("product %s: %w: already created", a.productID, ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("product %s: %w: price cannot be negative", a.productID, ErrValidation)
	}
	if initialStock < 0 {
		return fmt.Errorf("product %s: %w: stock cannot be negative", a.productID, ErrValidation)
	}
	return a.Apply(ProductCreated{
		ProductID:    a.productID,
		Name:         name,
		Description:  description,
		Price:        price,
		InitialStock: initialStock,
		OccurredAt:   now,
	}, true)
}

// ReserveStock first releases any expired reservations, then holds quantity
// units for cartID if available stock allows it.
func (a *ProductAggregate) ReserveStock(cartID string, quantity int, reservationTTL time.Duration, now time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("product %s: %w: quantity must be positive", a.productID, ErrValidation)
	}

	a.releaseExpiredReservations(now)

	available := a.AvailableStock(now)
	if quantity > available {
		return fmt.Errorf("product %s: %w: insufficient stock: requested %d, available %d (total %d, reserved %d)",
			a.productID, ErrValidation, quantity, available, a.totalStock, a.ReservedStock(now))
	}

	return a.Apply(ProductStockReserved{
		ProductID:     a.productID,
		CartID:        cartID,
		Quantity:      quantity,
		ReservedUntil: now.Add(reservationTTL),
		OccurredAt:    now,
	}, true)
}

// ReleaseReservation is idempotent: releasing a cart with no reservation
// emits nothing and succeeds.
func (a *ProductAggregate) ReleaseReservation(cartID, reason string, now time.Time) error {
	r, ok := a.reservations[cartID]
	if !ok {
		return nil
	}
	return a.Apply(ProductStockReservationReleased{
		ProductID:  a.productID,
		CartID:     cartID,
		Quantity:   r.Quantity,
		Reason:     reason,
		OccurredAt: now,
	}, true)
}

// CheckoutReservation releases the reservation (reason="checkout") and then
// decreases total stock by the reserved quantity, as two ordered events.
func (a *ProductAggregate) CheckoutReservation(cartID, orderID string, now time.Time) error {
	r, ok := a.reservations[cartID]
	if !ok {
		return fmt.Errorf("product %s: %w: no reservation found for cart %s", a.productID, ErrValidation, cartID)
	}

	if err := a.ReleaseReservation(cartID, "checkout", now); err != nil {
		return err
	}

	return a.Apply(ProductStockDecreased{
		ProductID:  a.productID,
		Quantity:   r.Quantity,
		OrderID:    orderID,
		OccurredAt: now,
	}, true)
}

// IncreaseStock is a restock.
func (a *ProductAggregate) IncreaseStock(quantity int, now time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("product %s: %w: quantity must be positive", a.productID, ErrValidation)
	}
	return a.Apply(ProductStockIncreased{
		ProductID:  a.productID,
		Quantity:   quantity,
		OccurredAt: now,
	}, true)
}

// ChangePrice overwrites price; a no-op if unchanged.
func (a *ProductAggregate) ChangePrice(newPrice float64, now time.Time) error {
	if newPrice < 0 {
		return fmt.Errorf("product %s: %w: price cannot be negative", a.productID, ErrValidation)
	}
	if newPrice == a.price {
		return nil
	}
	return a.Apply(ProductPriceChanged{
		ProductID:  a.productID,
		OldPrice:   a.price,
		NewPrice:   newPrice,
		OccurredAt: now,
	}, true)
}

// UpdateDetails overwrites name and/or description; a no-op if both are nil.
func (a *ProductAggregate) UpdateDetails(name, description *string, now time.Time) error {
	if name == nil && description == nil {
		return nil
	}
	return a.Apply(ProductUpdated{
		ProductID:   a.productID,
		Name:        name,
		Description: description,
		OccurredAt:  now,
	}, true)
}

// releaseExpiredReservations sweeps reservations whose TTL has lapsed,
// emitting a Released(reason="timeout") event for each.
func (a *ProductAggregate) releaseExpiredReservations(now time.Time) {
	var expired []string
	for cartID, r := range a.reservations {
		if r.IsExpired(now) {
			expired = append(expired, cartID)
		}
	}
	for _, cartID := range expired {
		_ = a.ReleaseReservation(cartID, "timeout", now)
	}
}
