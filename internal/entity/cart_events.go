package entity

import "time"

// CartCreated is emitted when a user opens a new cart.
type CartCreated struct {
	CartID    string    `json:"cart_id"`
	UserID    string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e CartCreated) EventType() string { return "CartCreated" }

// ItemAddedToCart is emitted when a product is dropped into the cart.
// Quantities merge: if the product is already present, the apply step sums
// the quantities rather than replacing the line item.
type ItemAddedToCart struct {
	CartID      string    `json:"cart_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e ItemAddedToCart) EventType() string { return "ItemAddedToCart" }

// ItemRemovedFromCart is emitted when a line item is dropped entirely.
type ItemRemovedFromCart struct {
	CartID     string    `json:"cart_id"`
	ProductID  string    `json:"product_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e ItemRemovedFromCart) EventType() string { return "ItemRemovedFromCart" }

// ItemQuantityChanged is emitted when a line item's quantity is overwritten.
type ItemQuantityChanged struct {
	CartID      string    `json:"cart_id"`
	ProductID   string    `json:"product_id"`
	OldQuantity int       `json:"old_quantity"`
	NewQuantity int       `json:"new_quantity"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e ItemQuantityChanged) EventType() string { return "ItemQuantityChanged" }

// CartCheckedOut is emitted once, terminally transitioning PENDING -> CHECKED_OUT.
type CartCheckedOut struct {
	CartID      string    `json:"cart_id"`
	OrderID     string    `json:"order_id"`
	TotalAmount float64   `json:"total_amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e CartCheckedOut) EventType() string { return "CartCheckedOut" }

// CartExpired is emitted by the expiration use case, terminally transitioning
// PENDING -> EXPIRED.
type CartExpired struct {
	CartID     string    `json:"cart_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e CartExpired) EventType() string { return "CartExpired" }
