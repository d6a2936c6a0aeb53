// Package di assembles the saga orchestrator's dependency graph —
// durable store, coordination store, broker gateway, reservation
// adapters, orchestrator, notification hub, dead-letter sink, and
// sweeper — the same config-driven container shape used across the
// source monorepo's per-service internal/di packages.
package di

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/broker"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/config"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/coordination"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/deadletter"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/logger"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/notify"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/saga"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/sweeper"
)

// Container holds every long-lived dependency a cmd entrypoint needs.
// Both cmd/admission-api and cmd/saga-orchestrator build one of these
// from the same config and pick the pieces they run.
type Container struct {
	Config *config.Config

	DBPool     *store.Pool
	RedisConn  *coordination.Client
	Store      store.Store
	Coord      *coordination.Store
	Broker     *broker.Gateway

	Adapters    map[domain.Leg]*reservation.Adapter
	Notify      *notify.Hub
	DeadLetters *deadletter.Sink
	Orchestrator *saga.Orchestrator
	Sweeper     *sweeper.Sweeper
}

// Build constructs every dependency and wires adapters to the
// orchestrator via the narrow AggregateFunc/FailureNotifier
// capabilities described in spec.md Design Notes §9 — no component
// holds a direct reference to Orchestrator except through that
// injected closure.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	pool, err := store.NewPool(ctx, &cfg.Database, cfg.OTel.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to connect durable store: %w", err)
	}
	c.DBPool = pool
	c.Store = store.NewPostgresStore(pool.Raw())

	redisClient, err := coordination.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect coordination store: %w", err)
	}
	c.RedisConn = redisClient
	c.Coord = coordination.New(redisClient)

	gateway, err := broker.NewGateway(ctx, &broker.Config{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
		ClientID:      cfg.Kafka.ClientID,
	})
	if err != nil {
		redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to connect broker gateway: %w", err)
	}
	c.Broker = gateway

	c.Notify = notify.NewHub()
	c.DeadLetters = deadletter.NewSink(c.Store, c.Broker)

	sagaLog := logger.NewSagaLogger()
	c.Orchestrator = saga.New(c.Store, c.Coord, nil, c.Notify, sagaLog, saga.Config{
		RateLimitPerMinute: cfg.Saga.RateLimitPerMinute,
		LockTTL:            cfg.Saga.LockTTL,
		ActiveStateTTL:     cfg.Saga.ActiveStateTTL,
	})

	c.Adapters = buildAdapters(c.Broker, c.Store, c.Coord, c.Orchestrator, c.Notify)
	c.Orchestrator.Adapters = c.Adapters

	c.Sweeper = sweeper.New(c.Store, c.Coord, c.Adapters, sweeper.Config{
		Interval:       cfg.Saga.SweeperInterval,
		StuckThreshold: cfg.Saga.StuckSagaThreshold,
	}, sagaLog)

	return c, nil
}

func buildAdapters(b *broker.Gateway, s store.Store, coord *coordination.Store, orch *saga.Orchestrator, hub *notify.Hub) map[domain.Leg]*reservation.Adapter {
	aggregate := func(ctx context.Context, requestID string) error {
		_, err := orch.Aggregate(ctx, requestID)
		return err
	}
	onFailure := func(ctx context.Context, requestID, errMessage string) {
		record, err := s.FindByRequestID(ctx, requestID)
		bookingID := ""
		if err == nil {
			bookingID = record.BookingID
		}
		hub.Publish(ctx, requestID, notify.Notification{
			BookingID: bookingID,
			RequestID: requestID,
			Status:    domain.StatusFailed.String(),
			EventType: notify.EventBookingFailed,
			Error:     errMessage,
		})
	}

	adapters := make(map[domain.Leg]*reservation.Adapter, 3)
	for _, leg := range []domain.Leg{domain.LegFlight, domain.LegHotel, domain.LegCar} {
		adapter := reservation.New(leg, b, s, coord, aggregate, onFailure)
		// No real downstream synchronous client is wired in this repo
		// (spec.md §1: the downstream services are out of scope); the
		// admin manual-cancel route still needs something that
		// satisfies SyncClient, so it gets the same dependency-free
		// default the legacy path falls back to.
		adapter.Sync = reservation.StubSyncClient{}
		adapters[leg] = adapter
	}
	return adapters
}

// Close tears down every connection the container opened, in reverse
// acquisition order.
func (c *Container) Close() {
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	if c.Broker != nil {
		c.Broker.Close()
	}
	if c.RedisConn != nil {
		c.RedisConn.Close()
	}
	if c.DBPool != nil {
		c.DBPool.Close()
	}
}
