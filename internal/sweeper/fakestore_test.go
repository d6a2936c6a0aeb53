package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	byRequest map[string]*domain.SagaRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{byRequest: make(map[string]*domain.SagaRecord)}
}

func cloneRecord(r *domain.SagaRecord) *domain.SagaRecord {
	c := *r
	c.CompletedSteps = append([]string(nil), r.CompletedSteps...)
	return &c
}

func (f *fakeStore) Create(ctx context.Context, record *domain.SagaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byRequest[record.RequestID] = cloneRecord(record)
	return nil
}

func (f *fakeStore) FindByRequestID(ctx context.Context, requestID string) (*domain.SagaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byRequest[requestID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	return cloneRecord(r), nil
}

func (f *fakeStore) FindByBookingID(ctx context.Context, bookingID string) (*domain.SagaRecord, error) {
	return nil, domain.ErrSagaNotFound
}

func (f *fakeStore) UpdateStatus(ctx context.Context, requestID string, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byRequest[requestID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	r.Status = status
	return nil
}

func (f *fakeStore) UpdateReservationID(ctx context.Context, requestID string, leg domain.Leg, reservationID, stepMarker string) (*domain.SagaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byRequest[requestID]
	if !ok {
		return nil, domain.ErrSagaNotFound
	}
	if !r.HasStep(stepMarker) {
		r.CompletedSteps = append(r.CompletedSteps, stepMarker)
	}
	return cloneRecord(r), nil
}

func (f *fakeStore) ConfirmAggregate(ctx context.Context, requestID, bookingID string) (*domain.SagaRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byRequest[requestID]
	if !ok {
		return nil, false, domain.ErrSagaNotFound
	}
	r.BookingID = bookingID
	r.Status = domain.StatusConfirmed
	return cloneRecord(r), false, nil
}

func (f *fakeStore) SetError(ctx context.Context, requestID string, status domain.Status, errMessage, errStack string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byRequest[requestID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	r.Status = status
	r.ErrorMessage = errMessage
	return nil
}

func (f *fakeStore) FindPending(ctx context.Context, olderThan time.Time) ([]*domain.SagaRecord, error) {
	return nil, nil
}

func (f *fakeStore) AggregateStatsByUser(ctx context.Context, userID string) (*store.UserStats, error) {
	return &store.UserStats{UserID: userID}, nil
}

func (f *fakeStore) SaveDeadLetter(ctx context.Context, dl *store.DeadLetter) error { return nil }

func (f *fakeStore) GetUnprocessedDeadLetters(ctx context.Context, limit int) ([]*store.DeadLetter, error) {
	return nil, nil
}

func (f *fakeStore) MarkDeadLetterProcessed(ctx context.Context, id string) error { return nil }

var _ store.Store = (*fakeStore)(nil)

type noopLogger struct{}

func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}
