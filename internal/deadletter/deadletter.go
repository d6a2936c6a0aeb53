// Package deadletter is the dead-letter sink (spec component 7):
// compensation-failed records are written to the durable store for
// operator/admin inspection and published on compensation.failed for
// external consumers — a dual sink, following dlq_handler.go's
// store-plus-topic pattern.
package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/broker"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
)

// Sink records compensation failures for manual or external recovery.
type Sink struct {
	store  store.Store
	broker *broker.Gateway
}

// NewSink wires the durable store and broker gateway sinks together.
func NewSink(s store.Store, b *broker.Gateway) *Sink {
	return &Sink{store: s, broker: b}
}

// Record persists a compensation failure and publishes it on
// compensation.failed. retryCount is left at 0 — retrying dead
// letters is an external consumer's responsibility (Design Notes §9),
// not something this sink or the orchestrator does automatically.
func (s *Sink) Record(ctx context.Context, requestID string, leg domain.Leg, reservationID string, cause error) error {
	now := time.Now()

	dl := &store.DeadLetter{
		RequestID:     requestID,
		Leg:           leg,
		ReservationID: reservationID,
		ErrorMessage:  cause.Error(),
		RetryCount:    0,
		CreatedAt:     now,
	}

	if err := s.store.SaveDeadLetter(ctx, dl); err != nil {
		return fmt.Errorf("failed to persist dead letter: %w", err)
	}

	event := &domain.CompensationFailedEvent{
		RequestID:     requestID,
		Leg:           leg,
		ReservationID: reservationID,
		ErrorMessage:  cause.Error(),
		Timestamp:     now,
		RetryCount:    0,
	}

	if err := s.broker.PublishCompensationFailed(ctx, event); err != nil {
		return fmt.Errorf("failed to publish compensation.failed: %w", err)
	}

	return nil
}

// Unprocessed returns up to limit unprocessed dead letters, for the
// admin surface.
func (s *Sink) Unprocessed(ctx context.Context, limit int) ([]*store.DeadLetter, error) {
	return s.store.GetUnprocessedDeadLetters(ctx, limit)
}

// MarkProcessed marks a dead letter as handled by an operator or an
// external recovery process.
func (s *Sink) MarkProcessed(ctx context.Context, id string) error {
	return s.store.MarkDeadLetterProcessed(ctx, id)
}
