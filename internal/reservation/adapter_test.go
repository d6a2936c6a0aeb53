package reservation

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/config"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/coordination"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*domain.RequestedEvent
}

func (p *fakePublisher) PublishRequested(ctx context.Context, leg domain.Leg, event *domain.RequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func setupCoordination(t *testing.T) (*coordination.Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("failed to parse miniredis port: %v", err)
	}
	client, err := coordination.NewClient(context.Background(), &config.RedisConfig{
		Host:         mr.Host(),
		Port:         port,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err != nil {
		mr.Close()
		t.Fatalf("failed to connect coordination client: %v", err)
	}
	return coordination.New(client), mr
}

func TestAdapter_MakeReservation_SplitsAmountByLeg(t *testing.T) {
	coord, mr := setupCoordination(t)
	defer mr.Close()
	fs := newFakeStore()
	pub := &fakePublisher{}

	req := &domain.BookingRequest{UserID: "user-1", TotalAmount: 1000}
	req.Flight.Origin = "BKK"
	req.Flight.Destination = "NRT"

	adapter := New(domain.LegFlight, pub, fs, coord, nil, nil)
	if err := adapter.MakeReservation(context.Background(), req, "req-1"); err != nil {
		t.Fatalf("MakeReservation() error = %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
	want := 1000 * domain.LegFlight.AmountShare()
	if pub.events[0].Amount != want {
		t.Errorf("published amount = %v, want %v", pub.events[0].Amount, want)
	}
	if pub.events[0].Origin != "BKK" || pub.events[0].Destination != "NRT" {
		t.Errorf("published event missing flight fields: %+v", pub.events[0])
	}
}

func TestAdapter_ConfirmReservation_JoinPointFiresOnce(t *testing.T) {
	coord, mr := setupCoordination(t)
	defer mr.Close()
	fs := newFakeStore()
	pub := &fakePublisher{}
	ctx := context.Background()

	if err := fs.Create(ctx, &domain.SagaRecord{RequestID: "req-1", Status: domain.StatusPending, CompletedSteps: []string{}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var aggregateCalls int
	var mu sync.Mutex
	aggregate := func(ctx context.Context, requestID string) error {
		mu.Lock()
		defer mu.Unlock()
		aggregateCalls++
		return nil
	}

	flightAdapter := New(domain.LegFlight, pub, fs, coord, aggregate, nil)
	hotelAdapter := New(domain.LegHotel, pub, fs, coord, aggregate, nil)
	carAdapter := New(domain.LegCar, pub, fs, coord, aggregate, nil)

	if err := flightAdapter.ConfirmReservation(ctx, "req-1", "fl-res"); err != nil {
		t.Fatalf("ConfirmReservation(flight) error = %v", err)
	}
	if err := hotelAdapter.ConfirmReservation(ctx, "req-1", "ho-res"); err != nil {
		t.Fatalf("ConfirmReservation(hotel) error = %v", err)
	}

	mu.Lock()
	if aggregateCalls != 0 {
		t.Errorf("aggregate called after 2 of 3 legs confirmed: %d calls", aggregateCalls)
	}
	mu.Unlock()

	if err := carAdapter.ConfirmReservation(ctx, "req-1", "ca-res"); err != nil {
		t.Fatalf("ConfirmReservation(car) error = %v", err)
	}

	mu.Lock()
	if aggregateCalls != 1 {
		t.Errorf("aggregate called %d times after all 3 legs confirmed, want 1", aggregateCalls)
	}
	mu.Unlock()

	// A duplicate delivery of the same confirmation must not trigger
	// another Aggregate call, even though the durable store's
	// post-update state still reflects all 3 legs.
	if err := carAdapter.ConfirmReservation(ctx, "req-1", "ca-res"); err != nil {
		t.Fatalf("duplicate ConfirmReservation(car) error = %v", err)
	}
	mu.Lock()
	if aggregateCalls != 1 {
		t.Errorf("aggregate called %d times after a duplicate car confirmation, want 1 (a replay must not re-trigger aggregation)", aggregateCalls)
	}
	mu.Unlock()
}

func TestAdapter_ConfirmReservation_NotifiesOnAggregateFailure(t *testing.T) {
	coord, mr := setupCoordination(t)
	defer mr.Close()
	fs := newFakeStore()
	pub := &fakePublisher{}
	ctx := context.Background()

	rec := &domain.SagaRecord{
		RequestID:           "req-2",
		Status:              domain.StatusPending,
		CompletedSteps:      []string{domain.StepFlightConfirmed, domain.StepHotelConfirmed},
		FlightReservationID: "fl-res",
		HotelReservationID:  "ho-res",
	}
	if err := fs.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var notified bool
	onFailure := func(ctx context.Context, requestID, errMessage string) {
		notified = true
	}
	aggregate := func(ctx context.Context, requestID string) error {
		return assertAlwaysFails
	}

	carAdapter := New(domain.LegCar, pub, fs, coord, aggregate, onFailure)
	if err := carAdapter.ConfirmReservation(ctx, "req-2", "ca-res"); err == nil {
		t.Fatal("expected ConfirmReservation() to return an error when Aggregate fails")
	}
	if !notified {
		t.Error("expected OnFailure to be invoked when Aggregate fails")
	}
}

var assertAlwaysFails = &alwaysFailsError{}

type alwaysFailsError struct{}

func (e *alwaysFailsError) Error() string { return "aggregate failed" }

type recordingSyncClient struct {
	mu      sync.Mutex
	cancels []cancelCall
	failLeg domain.Leg
}

type cancelCall struct {
	leg           domain.Leg
	requestID     string
	reservationID string
}

func (c *recordingSyncClient) Reserve(ctx context.Context, leg domain.Leg, req *domain.BookingRequest, requestID string) (string, error) {
	return string(leg) + "-" + requestID, nil
}

func (c *recordingSyncClient) Cancel(ctx context.Context, leg domain.Leg, requestID, reservationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels = append(c.cancels, cancelCall{leg: leg, requestID: requestID, reservationID: reservationID})
	if leg == c.failLeg {
		return assertAlwaysFails
	}
	return nil
}

func TestAdapter_CancelReservation_InvokesSyncClient(t *testing.T) {
	coord, mr := setupCoordination(t)
	defer mr.Close()
	fs := newFakeStore()
	pub := &fakePublisher{}
	sync := &recordingSyncClient{}

	adapter := New(domain.LegHotel, pub, fs, coord, nil, nil)
	adapter.Sync = sync

	if err := adapter.CancelReservation(context.Background(), "req-1", "ho-res"); err != nil {
		t.Fatalf("CancelReservation() error = %v", err)
	}

	sync.mu.Lock()
	defer sync.mu.Unlock()
	if len(sync.cancels) != 1 {
		t.Fatalf("expected 1 Cancel() call, got %d", len(sync.cancels))
	}
	got := sync.cancels[0]
	if got.leg != domain.LegHotel || got.requestID != "req-1" || got.reservationID != "ho-res" {
		t.Errorf("Cancel() call = %+v, want {hotel req-1 ho-res}", got)
	}
}

func TestAdapter_CancelReservation_PropagatesSyncFailure(t *testing.T) {
	coord, mr := setupCoordination(t)
	defer mr.Close()
	fs := newFakeStore()
	pub := &fakePublisher{}
	sync := &recordingSyncClient{failLeg: domain.LegCar}

	adapter := New(domain.LegCar, pub, fs, coord, nil, nil)
	adapter.Sync = sync

	if err := adapter.CancelReservation(context.Background(), "req-1", "ca-res"); err == nil {
		t.Fatal("expected CancelReservation() to propagate the sync client's failure")
	}
}

func TestAdapter_CancelReservation_NoSyncClientConfigured(t *testing.T) {
	coord, mr := setupCoordination(t)
	defer mr.Close()
	fs := newFakeStore()
	pub := &fakePublisher{}

	adapter := New(domain.LegFlight, pub, fs, coord, nil, nil)

	if err := adapter.CancelReservation(context.Background(), "req-1", "fl-res"); err == nil {
		t.Fatal("expected CancelReservation() to fail when no Sync client is configured")
	}
}
