// Package saga is the orchestrator (spec component 5): the state
// machine that drives a booking request from admission through
// parallel reservation, exactly-once aggregation, and — on the legacy
// synchronous path — reverse-order compensation.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/coordination"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/notify"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
)

// Config holds the orchestrator's business-rule knobs, sourced from
// config.SagaConfig.
type Config struct {
	RateLimitPerMinute int
	LockTTL            time.Duration
	ActiveStateTTL     time.Duration
}

// Orchestrator drives the saga state machine. One instance is shared
// by the admission HTTP surface and the broker gateway's confirmation
// dispatch.
type Orchestrator struct {
	Store        store.Store
	Coordination *coordination.Store
	Adapters     map[domain.Leg]*reservation.Adapter
	Notify       *notify.Hub
	Logger       Logger
	Config       Config
}

// New constructs an Orchestrator. adapters must have an entry for
// LegFlight, LegHotel, and LegCar.
func New(s store.Store, c *coordination.Store, adapters map[domain.Leg]*reservation.Adapter, hub *notify.Hub, logger Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Orchestrator{
		Store:        s,
		Coordination: c,
		Adapters:     adapters,
		Notify:       hub,
		Logger:       logger,
		Config:       cfg,
	}
}

// Execute is the admission pipeline (spec.md §4.5.1). It validates the
// request, deduplicates on requestId (durable store first, then the
// coordination cache), acquires a per-request admission lock,
// rate-limits the user, creates the durable Pending record, caches an
// active snapshot, enqueues the pending-sweep entry, and publishes all
// three …requested events. Lock and active-snapshot cleanup is
// guaranteed via defer regardless of which step fails.
func (o *Orchestrator) Execute(ctx context.Context, req *domain.BookingRequest) (*domain.ExecuteResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	requestID := req.RequestID
	if requestID == "" {
		generated, err := generateRequestID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate request id: %w", err)
		}
		requestID = generated
	}

	// Step 2: durable dedup. A prior admission of the same requestId is
	// the authoritative source of truth and is returned as-is.
	if existing, err := o.Store.FindByRequestID(ctx, requestID); err == nil {
		return &domain.ExecuteResult{RequestID: existing.RequestID, BookingID: existing.BookingID, Status: existing.Status}, nil
	} else if !domain.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check existing saga: %w", err)
	}

	// Step 3: coordination dedup. A cached active snapshot means a
	// concurrent admission attempt is already mid-flight.
	var cached domain.SagaRecord
	if hit, err := o.Coordination.GetActiveSnapshot(ctx, requestID, &cached); err != nil {
		o.Logger.WarnContext(ctx, "active snapshot lookup failed", "requestId", requestID, "error", err)
	} else if hit {
		return &domain.ExecuteResult{RequestID: cached.RequestID, BookingID: cached.BookingID, Status: cached.Status}, nil
	}

	// Step 4: admission lock. Held for the duration of this call only;
	// released unconditionally via defer. Unlike the rate limit below,
	// the lock fails CLOSED: a coordination-store error here is treated
	// the same as a failed acquisition, per spec.md §7/§8 — admission
	// must not proceed without a confirmed lock.
	acquired, err := o.Coordination.AcquireLock(ctx, requestID, o.Config.LockTTL)
	if err != nil {
		o.Logger.WarnContext(ctx, "lock acquire failed", "requestId", requestID, "error", err)
	}
	if !acquired {
		return nil, domain.ErrLockHeld
	}
	defer func() {
		if releaseErr := o.Coordination.ReleaseLock(ctx, requestID); releaseErr != nil {
			o.Logger.WarnContext(ctx, "lock release failed", "requestId", requestID, "error", releaseErr)
		}
		if clearErr := o.Coordination.ClearActiveSnapshot(ctx, requestID); clearErr != nil {
			o.Logger.WarnContext(ctx, "active snapshot clear failed", "requestId", requestID, "error", clearErr)
		}
	}()

	// Step 5: rate limit. Fails open — CheckAndIncrement already
	// returns (true, err) on a coordination-store error.
	withinLimit, err := o.Coordination.CheckAndIncrement(ctx, req.UserID, o.Config.RateLimitPerMinute)
	if err != nil {
		o.Logger.WarnContext(ctx, "rate limit check failed", "userId", req.UserID, "error", err)
	}
	if !withinLimit {
		return nil, domain.ErrRateLimited
	}

	originalRequest, err := marshalRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal booking request: %w", err)
	}

	now := time.Now()
	record := &domain.SagaRecord{
		RequestID:       requestID,
		UserID:          req.UserID,
		TotalAmount:     req.TotalAmount,
		OriginalRequest: originalRequest,
		Status:          domain.StatusPending,
		CompletedSteps:  []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Step 6: durable Pending record. A unique-violation here means a
	// concurrent admission won the durable dedup race; treat it the
	// same as step 2's dedup hit.
	if err := o.Store.Create(ctx, record); err != nil {
		if domain.IsConflictError(err) {
			if existing, findErr := o.Store.FindByRequestID(ctx, requestID); findErr == nil {
				return &domain.ExecuteResult{RequestID: existing.RequestID, BookingID: existing.BookingID, Status: existing.Status}, nil
			}
		}
		return nil, fmt.Errorf("failed to create saga record: %w", err)
	}

	// Step 7: cache the active snapshot and enqueue the pending-sweep
	// entry. Both are best-effort bookkeeping, not correctness-bearing.
	if err := o.Coordination.SetActiveSnapshot(ctx, requestID, record, o.Config.ActiveStateTTL); err != nil {
		o.Logger.WarnContext(ctx, "active snapshot cache failed", "requestId", requestID, "error", err)
	}
	if err := o.Coordination.EnqueuePending(ctx, requestID, now); err != nil {
		o.Logger.WarnContext(ctx, "pending enqueue failed", "requestId", requestID, "error", err)
	}

	// Step 8: publish all three requested events, fixed order hotel ->
	// flight -> car. Order is cosmetic — confirmation and aggregation
	// never depend on publish order — but fixed for reproducible logs.
	for _, leg := range []domain.Leg{domain.LegHotel, domain.LegFlight, domain.LegCar} {
		adapter, ok := o.Adapters[leg]
		if !ok {
			return nil, fmt.Errorf("no adapter registered for leg %q", leg)
		}
		if err := adapter.MakeReservation(ctx, req, requestID); err != nil {
			o.Logger.ErrorContext(ctx, "reservation publish failed", "requestId", requestID, "leg", leg, "error", err)
			if setErr := o.Store.SetError(ctx, requestID, domain.StatusFailed, err.Error(), ""); setErr != nil {
				o.Logger.ErrorContext(ctx, "failed to record publish failure", "requestId", requestID, "error", setErr)
			}
			return nil, fmt.Errorf("failed to publish %s reservation: %w", leg, err)
		}
		if err := o.Coordination.IncrementStepCounter(ctx, requestID, domain.RequestedStep(leg)); err != nil {
			o.Logger.WarnContext(ctx, "step counter increment failed", "requestId", requestID, "leg", leg, "error", err)
		}
	}

	return &domain.ExecuteResult{RequestID: requestID, Status: domain.StatusPending}, nil
}

// Aggregate is the join point (spec.md §4.5.2), invoked by a
// reservation adapter the moment it observes all three legs confirmed
// in the durable store. It is safe to call concurrently for the same
// requestId: ConfirmAggregate's atomicity makes every call but the
// first a benign no-op.
func (o *Orchestrator) Aggregate(ctx context.Context, requestID string) (*domain.AggregateResult, error) {
	record, err := o.Store.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saga record: %w", err)
	}

	if record.BookingID != "" {
		// Already aggregated by a prior call; return the existing result.
		return aggregateResultFrom(record), nil
	}

	if record.FlightReservationID == "" || record.HotelReservationID == "" || record.CarReservationID == "" {
		return nil, fmt.Errorf("cannot aggregate %s: a reservation id is missing", requestID)
	}

	bookingID, err := generateBookingID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate booking id: %w", err)
	}

	updated, alreadyDone, err := o.Store.ConfirmAggregate(ctx, requestID, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm aggregate: %w", err)
	}

	if err := o.Coordination.DequeuePending(ctx, requestID); err != nil {
		o.Logger.WarnContext(ctx, "pending dequeue failed", "requestId", requestID, "error", err)
	}
	if err := o.Coordination.ClearActiveSnapshot(ctx, requestID); err != nil {
		o.Logger.WarnContext(ctx, "active snapshot clear failed", "requestId", requestID, "error", err)
	}

	result := aggregateResultFrom(updated)

	if !alreadyDone {
		o.Notify.Publish(ctx, requestID, notify.Notification{
			BookingID:           updated.BookingID,
			RequestID:           requestID,
			Status:              updated.Status.String(),
			EventType:           notify.EventBookingConfirmed,
			FlightReservationID: updated.FlightReservationID,
			HotelReservationID:  updated.HotelReservationID,
			CarReservationID:    updated.CarReservationID,
			Timestamp:           time.Now(),
		})
	}

	return result, nil
}

func aggregateResultFrom(r *domain.SagaRecord) *domain.AggregateResult {
	return &domain.AggregateResult{
		RequestID:           r.RequestID,
		BookingID:           r.BookingID,
		Status:              r.Status,
		FlightReservationID: r.FlightReservationID,
		HotelReservationID:  r.HotelReservationID,
		CarReservationID:    r.CarReservationID,
	}
}

// notifyFailure publishes booking.failed to the push stream and any
// registered webhook, with the signature of a reservation.Adapter's
// FailureNotifier. This package's tests wire it into their adapters;
// internal/di wires an equivalent closure of its own.
func (o *Orchestrator) notifyFailure(ctx context.Context, requestID, errMessage string) {
	record, err := o.Store.FindByRequestID(ctx, requestID)
	bookingID := ""
	if err == nil {
		bookingID = record.BookingID
	}
	o.Notify.Publish(ctx, requestID, notify.Notification{
		BookingID: bookingID,
		RequestID: requestID,
		Status:    domain.StatusFailed.String(),
		EventType: notify.EventBookingFailed,
		Error:     errMessage,
		Timestamp: time.Now(),
	})
}
