// Package broker is the broker gateway (spec component 3): publishes
// outbound reservation requests, subscribes to confirmations, and
// manages ack/nack via manual offset commit — grounded on
// kafka_producer.go's ProduceJSON usage and payment_success_consumer.go's
// consumer-loop shape.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/kafka"
)

// ConfirmationHandler processes one inbound confirmation for a leg. A
// non-nil error leaves the message uncommitted for broker redelivery.
type ConfirmationHandler func(ctx context.Context, leg domain.Leg, event domain.ConfirmationEvent) error

// Gateway is the broker gateway: one producer for all outbound
// publishes, one consumer group for all inbound confirmation topics.
type Gateway struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
}

// Config configures a Gateway.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
}

// NewGateway constructs the producer and consumer sides of the broker
// gateway. The consumer subscribes to all three confirmation topics;
// Start must be called separately to begin the poll loop.
func NewGateway(ctx context.Context, cfg *Config) (*Gateway, error) {
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Brokers,
		ClientID: cfg.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create broker producer: %w", err)
	}

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		ClientID: cfg.ClientID,
		Topics:   []string{TopicFlightConfirmed, TopicHotelConfirmed, TopicCarConfirmed},
	})
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create broker consumer: %w", err)
	}

	return &Gateway{producer: producer, consumer: consumer}, nil
}

// PublishRequested publishes a …requested event for a leg.
func (g *Gateway) PublishRequested(ctx context.Context, leg domain.Leg, event *domain.RequestedEvent) error {
	topic := RequestedTopicFor(leg)
	if topic == "" {
		return fmt.Errorf("unknown leg %q", leg)
	}
	headers := map[string]string{"request_id": event.RequestID, "leg": string(leg)}
	return g.producer.ProduceJSON(ctx, topic, event.RequestID, event, headers)
}

// PublishCompensationFailed publishes a compensation.failed dead-letter event.
func (g *Gateway) PublishCompensationFailed(ctx context.Context, event *domain.CompensationFailedEvent) error {
	headers := map[string]string{"request_id": event.RequestID, "leg": string(event.Leg)}
	return g.producer.ProduceJSON(ctx, TopicCompensationFailed, event.RequestID, event, headers)
}

// Start runs the consumer loop, dispatching each confirmation record
// to handler. Acknowledgement is manual: the underlying kafka.Consumer
// commits offsets only after every record in a fetched batch has been
// handled, so a handler panic/error is reflected as a redelivery, not
// a silent drop. Blocks until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context, handler ConfirmationHandler) error {
	return g.consumer.Run(ctx, func(ctx context.Context, rec *kafka.Record) error {
		leg, ok := LegForConfirmedTopic(rec.Topic)
		if !ok {
			return fmt.Errorf("unrecognized confirmation topic %q", rec.Topic)
		}

		var event domain.ConfirmationEvent
		if err := json.Unmarshal(rec.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal confirmation event: %w", err)
		}

		return handler(ctx, leg, event)
	})
}

// Close shuts down both the producer and consumer sides.
func (g *Gateway) Close() {
	g.producer.Close()
	g.consumer.Close()
}
