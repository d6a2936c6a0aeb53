package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/notify"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
)

// failingSyncClient reserves every leg successfully except failLeg,
// which always errors, and records cancels in call order.
type failingSyncClient struct {
	mu          sync.Mutex
	failLeg     domain.Leg
	cancelOrder []domain.Leg
}

func (c *failingSyncClient) Reserve(ctx context.Context, leg domain.Leg, req *domain.BookingRequest, requestID string) (string, error) {
	if leg == c.failLeg {
		return "", errors.New("downstream reservation rejected")
	}
	return string(leg) + "-res", nil
}

func (c *failingSyncClient) Cancel(ctx context.Context, leg domain.Leg, requestID, reservationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelOrder = append(c.cancelOrder, leg)
	return nil
}

// failingCancelClient fails every cancel it is asked to perform, so
// dead-lettering can be exercised independently per leg.
type failingCancelClient struct {
	failLeg domain.Leg
}

func (c *failingCancelClient) Reserve(ctx context.Context, leg domain.Leg, req *domain.BookingRequest, requestID string) (string, error) {
	if leg == c.failLeg {
		return "", errors.New("downstream reservation rejected")
	}
	return string(leg) + "-res", nil
}

func (c *failingCancelClient) Cancel(ctx context.Context, leg domain.Leg, requestID, reservationID string) error {
	return errors.New("downstream cancel rejected")
}

type recordingDeadLetterer struct {
	mu      sync.Mutex
	records []domain.Leg
}

func (r *recordingDeadLetterer) Record(ctx context.Context, requestID string, leg domain.Leg, reservationID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, leg)
	return nil
}

func TestExecuteLegacy_Success(t *testing.T) {
	fs := newFakeStore()
	orch := New(fs, nil, nil, notify.NewHub(), nil, Config{})

	req := validBookingRequest()
	req.RequestID = "legacy-ok"

	result, err := orch.ExecuteLegacy(context.Background(), req, reservation.StubSyncClient{}, &recordingDeadLetterer{})
	if err != nil {
		t.Fatalf("ExecuteLegacy() error = %v", err)
	}
	if result.Status != domain.StatusConfirmed {
		t.Errorf("ExecuteLegacy() status = %v, want Confirmed", result.Status)
	}
	if result.BookingID == "" {
		t.Error("expected ExecuteLegacy() to assign a booking id on success")
	}
}

func TestExecuteLegacy_CompensatesInReverseOrder(t *testing.T) {
	fs := newFakeStore()
	orch := New(fs, nil, nil, notify.NewHub(), nil, Config{})

	sync := &failingSyncClient{failLeg: domain.LegCar}
	req := validBookingRequest()
	req.RequestID = "legacy-fail"

	result, err := orch.ExecuteLegacy(context.Background(), req, sync, &recordingDeadLetterer{})
	if err != nil {
		t.Fatalf("ExecuteLegacy() error = %v", err)
	}
	if result.Status != domain.StatusCompensated {
		t.Errorf("ExecuteLegacy() status = %v, want Compensated", result.Status)
	}

	// flight and hotel were reserved before car failed; compensation
	// must run in strict reverse order: hotel, then flight.
	want := []domain.Leg{domain.LegHotel, domain.LegFlight}
	if len(sync.cancelOrder) != len(want) {
		t.Fatalf("cancelOrder = %v, want %v", sync.cancelOrder, want)
	}
	for i, leg := range want {
		if sync.cancelOrder[i] != leg {
			t.Errorf("cancelOrder[%d] = %v, want %v", i, sync.cancelOrder[i], leg)
		}
	}
}

func TestExecuteLegacy_DeadLettersEachFailedCancelIndependently(t *testing.T) {
	fs := newFakeStore()
	orch := New(fs, nil, nil, notify.NewHub(), nil, Config{})

	sync := &failingCancelClient{failLeg: domain.LegCar}
	dl := &recordingDeadLetterer{}
	req := validBookingRequest()
	req.RequestID = "legacy-dlq"

	result, err := orch.ExecuteLegacy(context.Background(), req, sync, dl)
	if err != nil {
		t.Fatalf("ExecuteLegacy() error = %v", err)
	}
	if result.Status != domain.StatusCompensated {
		t.Errorf("ExecuteLegacy() status = %v, want Compensated", result.Status)
	}

	// Both flight and hotel cancels fail (Cancel always errors);
	// each must be dead-lettered independently.
	if len(dl.records) != 2 {
		t.Fatalf("dead-lettered legs = %v, want 2 entries", dl.records)
	}
}
