package sweeper

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/config"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/coordination"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []domain.Leg
}

func (p *fakePublisher) PublishRequested(ctx context.Context, leg domain.Leg, event *domain.RequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, leg)
	return nil
}

func setupSweeper(t *testing.T) (*Sweeper, *fakeStore, *coordination.Store, *fakePublisher, *miniredis.Miniredis) {
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
	coord := coordination.New(client)
	fs := newFakeStore()
	pub := &fakePublisher{}

	adapters := make(map[domain.Leg]*reservation.Adapter, 3)
	for _, leg := range []domain.Leg{domain.LegFlight, domain.LegHotel, domain.LegCar} {
		adapters[leg] = reservation.New(leg, pub, fs, coord, nil, nil)
	}

	sw := New(fs, coord, adapters, Config{Interval: time.Hour, StuckThreshold: 30 * time.Minute}, noopLogger{})
	return sw, fs, coord, pub, mr
}

func TestSweeper_RepublishesMissingLegs(t *testing.T) {
	sw, fs, coord, pub, mr := setupSweeper(t)
	defer mr.Close()
	ctx := context.Background()

	req := &domain.BookingRequest{UserID: "user-1", TotalAmount: 100}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	record := &domain.SagaRecord{
		RequestID:       "stuck-1",
		Status:          domain.StatusPending,
		OriginalRequest: data,
		CompletedSteps:  []string{},
	}
	if err := fs.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := coord.EnqueuePending(ctx, "stuck-1", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("EnqueuePending() error = %v", err)
	}

	sw.scan(ctx)

	pub.mu.Lock()
	gotLegs := len(pub.calls)
	pub.mu.Unlock()
	if gotLegs != 3 {
		t.Errorf("republished %d legs, want 3", gotLegs)
	}
}

func TestSweeper_DequeuesTerminalSagas(t *testing.T) {
	sw, fs, coord, _, mr := setupSweeper(t)
	defer mr.Close()
	ctx := context.Background()

	record := &domain.SagaRecord{
		RequestID:      "done-1",
		Status:         domain.StatusConfirmed,
		CompletedSteps: []string{},
	}
	if err := fs.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := coord.EnqueuePending(ctx, "done-1", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("EnqueuePending() error = %v", err)
	}

	sw.scan(ctx)

	ids, err := coord.PendingOlderThan(ctx, time.Now())
	if err != nil {
		t.Fatalf("PendingOlderThan() error = %v", err)
	}
	for _, id := range ids {
		if id == "done-1" {
			t.Error("expected a terminal saga to be dequeued, not republished")
		}
	}
}

func TestSweeper_FailsStuckWhenRequestedLegsNeverConfirm(t *testing.T) {
	sw, fs, coord, pub, mr := setupSweeper(t)
	defer mr.Close()
	ctx := context.Background()

	req := &domain.BookingRequest{UserID: "user-1", TotalAmount: 100}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	// Hotel and flight were both requested and confirmed; car was
	// requested but its confirmation never arrived. This must fail the
	// saga as stuck, not republish the car leg.
	record := &domain.SagaRecord{
		RequestID:       "stuck-2",
		Status:          domain.StatusPending,
		OriginalRequest: data,
		CompletedSteps: []string{
			domain.StepHotelRequested, domain.StepHotelConfirmed,
			domain.StepFlightRequested, domain.StepFlightConfirmed,
			domain.StepCarRequested,
		},
	}
	if err := fs.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := coord.EnqueuePending(ctx, "stuck-2", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("EnqueuePending() error = %v", err)
	}

	sw.scan(ctx)

	pub.mu.Lock()
	gotCalls := len(pub.calls)
	pub.mu.Unlock()
	if gotCalls != 0 {
		t.Errorf("republished %d legs, want 0 (a requested-but-unconfirmed leg must not be republished)", gotCalls)
	}

	updated, err := fs.FindByRequestID(ctx, "stuck-2")
	if err != nil {
		t.Fatalf("FindByRequestID() error = %v", err)
	}
	if updated.Status != domain.StatusFailed {
		t.Errorf("status = %v, want Failed", updated.Status)
	}
	if !strings.Contains(updated.ErrorMessage, "stuck") {
		t.Errorf("errorMessage = %q, want it to contain %q", updated.ErrorMessage, "stuck")
	}
}

func TestSweeper_FailsStuckOnUndecodableRequest(t *testing.T) {
	sw, fs, coord, _, mr := setupSweeper(t)
	defer mr.Close()
	ctx := context.Background()

	record := &domain.SagaRecord{
		RequestID:       "bad-1",
		Status:          domain.StatusPending,
		OriginalRequest: []byte("not json"),
		CompletedSteps:  []string{},
	}
	if err := fs.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := coord.EnqueuePending(ctx, "bad-1", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("EnqueuePending() error = %v", err)
	}

	sw.scan(ctx)

	updated, err := fs.FindByRequestID(ctx, "bad-1")
	if err != nil {
		t.Fatalf("FindByRequestID() error = %v", err)
	}
	if updated.Status != domain.StatusFailed {
		t.Errorf("status = %v, want Failed", updated.Status)
	}
}
