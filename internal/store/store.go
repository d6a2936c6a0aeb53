package store

import (
	"context"
	"time"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
)

// Store is the durable state store's contract (spec component 1).
// requestId is unique; bookingId is unique where present (sparse).
type Store interface {
	Create(ctx context.Context, record *domain.SagaRecord) error
	FindByRequestID(ctx context.Context, requestID string) (*domain.SagaRecord, error)
	FindByBookingID(ctx context.Context, bookingID string) (*domain.SagaRecord, error)
	UpdateStatus(ctx context.Context, requestID string, status domain.Status) error

	// UpdateReservationID is a single atomic update: it sets the
	// reservation id field for leg and appends stepMarker to
	// completedSteps in one statement. Idempotent: re-applying the
	// same (leg, reservationID, stepMarker) leaves the record
	// unchanged and returns the record as last written.
	UpdateReservationID(ctx context.Context, requestID string, leg domain.Leg, reservationID, stepMarker string) (*domain.SagaRecord, error)

	// ConfirmAggregate is the atomic "first writer wins" transition to
	// Confirmed: sets bookingId and appends aggregated, guarded by the
	// bookingId uniqueness constraint. Returns (updated, alreadyDone, err);
	// alreadyDone is true when a concurrent aggregator won the race and
	// this call is a benign no-op.
	ConfirmAggregate(ctx context.Context, requestID, bookingID string) (record *domain.SagaRecord, alreadyDone bool, err error)

	SetError(ctx context.Context, requestID string, status domain.Status, errMessage, errStack string) error
	FindPending(ctx context.Context, olderThan time.Time) ([]*domain.SagaRecord, error)
	AggregateStatsByUser(ctx context.Context, userID string) (*UserStats, error)

	SaveDeadLetter(ctx context.Context, dl *DeadLetter) error
	GetUnprocessedDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)
	MarkDeadLetterProcessed(ctx context.Context, id string) error
}

// UserStats is a small audit aggregate for the admin surface.
type UserStats struct {
	UserID          string  `json:"userId"`
	TotalSagas      int     `json:"totalSagas"`
	Confirmed       int     `json:"confirmed"`
	Failed          int     `json:"failed"`
	Compensated     int     `json:"compensated"`
	TotalAmount     float64 `json:"totalAmount"`
}

// DeadLetter is a compensation-failed record surfaced for recovery.
type DeadLetter struct {
	ID            string
	RequestID     string
	Leg           domain.Leg
	ReservationID string
	ErrorMessage  string
	ErrorStack    string
	RetryCount    int
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	Processed     bool
}
