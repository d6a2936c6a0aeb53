// Package reservation implements the reservation service adapters
// (spec component 4) as one generic Adapter parameterised by leg,
// collapsing the three near-identical per-leg handlers the source
// repository has into a single implementation (Design Notes §9).
package reservation

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/coordination"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
)

// AggregateFunc is the narrow capability an Adapter is given instead
// of a full orchestrator reference — this is what breaks the
// adapter<->orchestrator cycle present in the source.
type AggregateFunc func(ctx context.Context, requestID string) error

// FailureNotifier is invoked when a confirmation cannot be processed,
// so the Notification Hub can emit booking.failed without the adapter
// importing the hub package directly.
type FailureNotifier func(ctx context.Context, requestID, errMessage string)

// Publisher is the narrow capability an Adapter needs from the broker
// gateway. *broker.Gateway satisfies it; tests substitute a fake so a
// leg's confirmation/aggregation logic can be exercised without a live
// Kafka cluster.
type Publisher interface {
	PublishRequested(ctx context.Context, leg domain.Leg, event *domain.RequestedEvent) error
}

// Adapter is the generic per-leg reservation adapter.
type Adapter struct {
	Leg          domain.Leg
	Broker       Publisher
	Store        store.Store
	Coordination *coordination.Store
	Aggregate    AggregateFunc
	OnFailure    FailureNotifier

	// Sync is the synchronous downstream client CancelReservation calls
	// through. Left nil by New; callers that want the admin cancel path
	// (internal/adminhttp) wired to a real downstream set it after
	// construction, the same SyncClient interface the legacy forward-
	// reservation path (internal/saga.ExecuteLegacy) injects directly.
	Sync SyncClient
}

// New constructs an Adapter for one leg.
func New(leg domain.Leg, b Publisher, s store.Store, c *coordination.Store, aggregate AggregateFunc, onFailure FailureNotifier) *Adapter {
	return &Adapter{Leg: leg, Broker: b, Store: s, Coordination: c, Aggregate: aggregate, OnFailure: onFailure}
}

// MakeReservation shapes this leg's slice of the booking request
// (amount is a fixed fraction of the total) and publishes the
// corresponding …requested message. Returns immediately after publish.
func (a *Adapter) MakeReservation(ctx context.Context, req *domain.BookingRequest, requestID string) error {
	amount := req.TotalAmount * a.Leg.AmountShare()

	event := &domain.RequestedEvent{
		RequestID: requestID,
		UserID:    req.UserID,
		Amount:    amount,
	}

	switch a.Leg {
	case domain.LegFlight:
		event.Origin = req.Flight.Origin
		event.Destination = req.Flight.Destination
		event.DepartureDate = req.Flight.DepartDate
		event.ReturnDate = req.Flight.ReturnDate
	case domain.LegHotel:
		event.HotelID = req.Hotel.HotelID
		event.CheckInDate = req.Hotel.CheckIn
		event.CheckOutDate = req.Hotel.CheckOut
	case domain.LegCar:
		event.PickupLocation = req.Car.PickupLocation
		event.DropoffLocation = req.Car.DropoffLocation
		event.PickupDate = req.Car.PickupDate
		event.DropoffDate = req.Car.DropoffDate
	}

	if err := a.Broker.PublishRequested(ctx, a.Leg, event); err != nil {
		return fmt.Errorf("failed to publish %s reservation request: %w", a.Leg, err)
	}
	return nil
}

// CancelReservation invokes the downstream cancellation (spec.md
// §4.4). The actual downstream service is out of scope (spec.md §1):
// this calls through Sync, the same synchronous-client contract the
// legacy forward-reservation path uses, naming both the leg and the
// reservation id being cancelled. Callers (internal/adminhttp's manual
// cancel route) are responsible for dead-lettering a failure via
// internal/deadletter.
func (a *Adapter) CancelReservation(ctx context.Context, requestID, reservationID string) error {
	if a.Sync == nil {
		return fmt.Errorf("no synchronous downstream client configured for %s cancellation", a.Leg)
	}
	if err := a.Sync.Cancel(ctx, a.Leg, requestID, reservationID); err != nil {
		return fmt.Errorf("failed to cancel %s reservation %s: %w", a.Leg, reservationID, err)
	}
	return nil
}

// ConfirmReservation is invoked by the broker gateway on an inbound
// confirmation. It performs, in order: the atomic durable update, a
// best-effort step-counter increment, the join-point test against the
// durable store's post-update state, and — only when this call
// observes all three legs confirmed and is not a replay — a single call
// into Aggregate.
func (a *Adapter) ConfirmReservation(ctx context.Context, requestID, reservationID string) error {
	marker := domain.ConfirmedStep(a.Leg)

	// A confirmation whose marker the durable record already holds is a
	// replay: the update below is a no-op for it and it never triggers
	// aggregation again.
	replay := false
	if prior, findErr := a.Store.FindByRequestID(ctx, requestID); findErr == nil {
		replay = prior.HasStep(marker)
	}

	record, err := a.Store.UpdateReservationID(ctx, requestID, a.Leg, reservationID, marker)
	if err != nil {
		a.notifyFailure(ctx, requestID, err)
		return fmt.Errorf("failed to record %s confirmation: %w", a.Leg, err)
	}

	if err := a.Coordination.IncrementStepCounter(ctx, requestID, marker); err != nil {
		// best-effort only; the coordination store is never authoritative
	}

	// Join point: the decision is made from record, the durable
	// store's post-update state, not from any locally counted event;
	// with the replay check above, a duplicate delivery of the same
	// confirmation does not aggregate again.
	if replay || !record.AllLegsConfirmed() {
		return nil
	}

	if err := a.Aggregate(ctx, requestID); err != nil {
		a.notifyFailure(ctx, requestID, err)
		return fmt.Errorf("failed to aggregate after %s confirmation: %w", a.Leg, err)
	}

	return nil
}

func (a *Adapter) notifyFailure(ctx context.Context, requestID string, err error) {
	if a.OnFailure != nil {
		a.OnFailure(ctx, requestID, err.Error())
	}
}
