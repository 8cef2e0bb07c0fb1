// Package repository declares the storage-facing interfaces the use cases
// and coordinator depend on: per-aggregate event stores and the cart/product
// read-model repositories. Concrete implementations live in ./postgres.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
)

// ErrConcurrencyConflict is returned by SaveEvents when expectedVersion does
// not match the stream's current version, whether detected by the pre-check
// or by the unique-constraint violation on insert.
var ErrConcurrencyConflict = errors.New("repository: concurrency conflict")

// ErrNotFound is returned by read-model lookups when no row exists.
var ErrNotFound = errors.New("repository: not found")

// CartEventStore is the append-only event log for the Cart aggregate type.
type CartEventStore interface {
	// SaveEvents is a no-op when events is empty. Otherwise it persists all
	// events atomically under expectedVersion, or fails with
	// ErrConcurrencyConflict.
	SaveEvents(ctx context.Context, cartID string, events []entity.Event, expectedVersion int) error
	// LoadEvents returns the ordered event history for cartID.
	LoadEvents(ctx context.Context, cartID string) ([]entity.EventStoreRecord, error)
	// LoadAggregate replays LoadEvents into a fresh aggregate. It returns
	// (nil, nil) when the stream is empty.
	LoadAggregate(ctx context.Context, cartID string) (*entity.CartAggregate, error)
}

// ProductEventStore is the append-only event log for the Product aggregate type.
type ProductEventStore interface {
	SaveEvents(ctx context.Context, productID string, events []entity.Event, expectedVersion int) error
	LoadEvents(ctx context.Context, productID string) ([]entity.EventStoreRecord, error)
	LoadAggregate(ctx context.Context, productID string) (*entity.ProductAggregate, error)
}

// CartItemProjection is one JSON line item inside a CartProjection.
type CartItemProjection struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	TotalPrice  float64 `json:"total_price"`
}

// CartProjection is the denormalized read model row for one cart.
type CartProjection struct {
	CartID       string
	UserID       string
	Status       string
	Items        []CartItemProjection
	TotalAmount  float64
	ItemCount    int
	Version      int
	CreatedAt    time.Time
	LastActivity time.Time
	UpdatedAt    time.Time
}

// CartReadModelRepository maintains and serves the cart projection.
type CartReadModelRepository interface {
	// CreateProjection inserts the initial row at CartCreated time.
	CreateProjection(ctx context.Context, cart *entity.CartAggregate) error
	// UpdateProjection upserts a full snapshot from the current aggregate
	// state. Implementations must not let version regress (property 8.3).
	UpdateProjection(ctx context.Context, cart *entity.CartAggregate) error
	GetCart(ctx context.Context, cartID string) (*CartProjection, error)
	GetUserCarts(ctx context.Context, userID string, status string) ([]CartProjection, error)
	// GetExpiredCartIDs lists PENDING carts idle past timeout, for the
	// expiration scheduler.
	GetExpiredCartIDs(ctx context.Context, timeout time.Duration) ([]string, error)
}

// ProductProjection is the denormalized read model row for one product.
type ProductProjection struct {
	ProductID      string
	Name           string
	Price          float64
	Description    string
	TotalStock     int
	ReservedStock  int
	AvailableStock int
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductReadModelRepository maintains and serves the product projection.
type ProductReadModelRepository interface {
	CreateProjection(ctx context.Context, product *entity.ProductAggregate) error
	UpdateProjection(ctx context.Context, product *entity.ProductAggregate) error
	GetProduct(ctx context.Context, productID string) (*ProductProjection, error)
	ListProducts(ctx context.Context) ([]ProductProjection, error)
}
