// Package messaging defines the integration-event publishing seam used by
// the coordinator. The in-process implementation is the default; relaying to
// Kafka (./kafka) is optional and never required for a checkout to be
// considered complete (§4.5).
package messaging

import (
	"context"
	"log/slog"
)

// CartCheckedOutEvent is the integration event published after a coordinated
// checkout commits, for hypothetical downstream consumers (shipping, email).
type CartCheckedOutEvent struct {
	CartID      string  `json:"cart_id"`
	OrderID     string  `json:"order_id"`
	UserID      string  `json:"user_id"`
	TotalAmount float64 `json:"total_amount"`
}

// Publisher relays integration events out of the coordinator. Failures are
// logged by the caller and never roll back the checkout that produced them.
type Publisher interface {
	PublishCartCheckedOut(ctx context.Context, event CartCheckedOutEvent) error
}

// InProcessPublisher is the default Publisher: it just logs the event. No
// external broker is required for the checkout path to be considered done.
type InProcessPublisher struct{}

// NewInProcessPublisher returns the default in-process Publisher.
func NewInProcessPublisher() *InProcessPublisher {
	return &InProcessPublisher{}
}

func (p *InProcessPublisher) PublishCartCheckedOut(ctx context.Context, event CartCheckedOutEvent) error {
	slog.Info("cart checked out", "cart_id", event.CartID, "order_id", event.OrderID, "user_id", event.UserID, "total_amount", event.TotalAmount)
	return nil
}

// Subscriber consumes a topic of raw payloads, handing each to handler until
// ctx is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error)
}
