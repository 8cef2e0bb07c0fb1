// Package kafka relays integration events to Kafka, as an optional alternate
// messaging.Publisher. Wiring it in main.go is conditional on KAFKA_BROKERS
// being set; its absence keeps the in-process publisher, never a hard
// failure (§6 environment inputs).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/egannguyen/cartsourcing/internal/messaging"
)

const (
	cartCheckedOutTopic = "cart.checked_out"
	publishTimeout      = 5 * time.Second
)

// Publisher relays CartCheckedOutEvent onto Kafka.
type Publisher struct {
	brokers []string
}

// NewPublisher wires a Kafka-backed messaging.Publisher against brokers.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{brokers: brokers}
}

func (p *Publisher) PublishCartCheckedOut(ctx context.Context, event messaging.CartCheckedOutEvent) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	w := &kafkaGo.Writer{
		Addr:     kafkaGo.TCP(p.brokers...),
		Topic:    cartCheckedOutTopic,
		Balancer: &kafkaGo.LeastBytes{},
	}
	defer w.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal CartCheckedOut event: %w", err)
	}

	return w.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(event.CartID),
		Value: payload,
	})
}

// Consumer subscribes to a raw Kafka topic, a thin wrapper used by
// hypothetical downstream consumers of the integration events above.
type Consumer struct {
	brokers []string
}

// NewConsumer wires a Kafka-backed messaging.Subscriber against brokers.
func NewConsumer(brokers []string) *Consumer {
	return &Consumer{brokers: brokers}
}

func (c *Consumer) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: c.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("kafka consumer shutting down", "topic", topic)
				return
			}
			slog.Error("error reading kafka message", "topic", topic, "error", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			slog.Error("error handling kafka message", "topic", topic, "error", err)
		}
	}
}
