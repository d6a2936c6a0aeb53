// Package sweeper is the stuck-saga sweeper (spec.md §4.7): a ticker
// loop, grounded on expiry_worker.go's scan-ticker-plus-graceful-stop
// shape, that republishes missing leg requests for sagas still Pending
// past the stuck threshold, or marks them Failed when republishing
// itself cannot be attempted.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/coordination"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
)

func decodeOriginalRequest(data []byte) (*domain.BookingRequest, error) {
	var req domain.BookingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Logger is the narrow logging capability the sweeper needs.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Config controls the sweeper's cadence and stuck threshold.
type Config struct {
	Interval       time.Duration
	StuckThreshold time.Duration
}

// DefaultConfig mirrors the teacher's DefaultExpiryWorkerConfig shape.
func DefaultConfig() Config {
	return Config{
		Interval:       60 * time.Second,
		StuckThreshold: 30 * time.Minute,
	}
}

// Sweeper periodically finds sagas admitted longer than StuckThreshold
// ago and still pending in the coordination queue, and either nudges
// them forward or fails them out.
type Sweeper struct {
	store        store.Store
	coordination *coordination.Store
	adapters     map[domain.Leg]*reservation.Adapter
	config       Config
	log          Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New constructs a Sweeper.
func New(s store.Store, c *coordination.Store, adapters map[domain.Leg]*reservation.Adapter, cfg Config, log Logger) *Sweeper {
	return &Sweeper{
		store:        s,
		coordination: c,
		adapters:     adapters,
		config:       cfg,
		log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the scan loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("starting stuck-saga sweeper")

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("stuck-saga sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Sweeper) scan(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.StuckThreshold)

	requestIDs, err := s.coordination.PendingOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("sweeper: failed to list pending-older-than", "error", err)
		return
	}

	for _, requestID := range requestIDs {
		if err := s.sweepOne(ctx, requestID); err != nil {
			s.log.Error("sweeper: failed to sweep saga", "requestId", requestID, "error", err)
		}
	}
}

// sweepOne disambiguates each unconfirmed leg by its _requested marker
// (spec.md §4.5.1 step 8 / §4.7): a leg whose request was never even
// published is republished, since that is a genuine partial-publish
// failure. A leg that was requested but never confirmed is not
// republished — it is a saga stuck waiting on a confirmation that may
// never arrive (spec.md §8 scenario 6), so the whole saga is marked
// Failed with a stuck annotation instead of being endlessly retried.
// The record itself failing to load, or already being terminal (in
// which case it is just dequeued), are handled the same as before.
func (s *Sweeper) sweepOne(ctx context.Context, requestID string) error {
	record, err := s.store.FindByRequestID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load saga: %w", err)
	}

	if record.Status.IsTerminal() {
		return s.coordination.DequeuePending(ctx, requestID)
	}

	req, err := decodeOriginalRequest(record.OriginalRequest)
	if err != nil {
		return s.failStuck(ctx, requestID, fmt.Sprintf("stuck: cannot decode original request: %v", err))
	}

	var missing, unconfirmed []domain.Leg
	for _, leg := range []domain.Leg{domain.LegFlight, domain.LegHotel, domain.LegCar} {
		if record.HasStep(domain.ConfirmedStep(leg)) {
			continue
		}
		if record.HasStep(domain.RequestedStep(leg)) {
			unconfirmed = append(unconfirmed, leg)
			continue
		}
		missing = append(missing, leg)
	}

	if len(unconfirmed) > 0 {
		return s.failStuck(ctx, requestID, fmt.Sprintf("stuck: awaiting confirmation for %v", unconfirmed))
	}

	if len(missing) == 0 {
		return nil
	}

	var republishErrs []string
	for _, leg := range missing {
		adapter, ok := s.adapters[leg]
		if !ok {
			continue
		}
		if err := adapter.MakeReservation(ctx, req, requestID); err != nil {
			republishErrs = append(republishErrs, fmt.Sprintf("%s: %v", leg, err))
			continue
		}
		if err := s.coordination.IncrementStepCounter(ctx, requestID, domain.RequestedStep(leg)); err != nil {
			s.log.Warn("sweeper: step counter increment failed", "requestId", requestID, "leg", leg, "error", err)
		}
	}

	if len(republishErrs) > 0 {
		return s.failStuck(ctx, requestID, fmt.Sprintf("stuck: republish failed: %v", republishErrs))
	}

	s.log.Info("sweeper: republished missing legs", "requestId", requestID, "legs", missing)
	return nil
}

func (s *Sweeper) failStuck(ctx context.Context, requestID, reason string) error {
	if err := s.store.SetError(ctx, requestID, domain.StatusFailed, reason, ""); err != nil {
		return fmt.Errorf("mark stuck saga failed: %w", err)
	}
	if err := s.coordination.DequeuePending(ctx, requestID); err != nil {
		s.log.Warn("sweeper: dequeue after stuck-fail failed", "requestId", requestID, "error", err)
	}
	if err := s.coordination.ClearActiveSnapshot(ctx, requestID); err != nil {
		s.log.Warn("sweeper: active snapshot clear after stuck-fail failed", "requestId", requestID, "error", err)
	}
	return nil
}
