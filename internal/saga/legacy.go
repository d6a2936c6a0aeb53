package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/notify"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
)

// legacyLegOrder is the forward-reservation order for the synchronous
// path: flight, then hotel, then car. Reverse of this is the
// compensation order.
var legacyLegOrder = []domain.Leg{domain.LegFlight, domain.LegHotel, domain.LegCar}

// ExecuteLegacy is the older synchronous reservation path (spec.md
// §4.5.3): it reserves each leg in turn via sync, and if any leg
// fails, compensates every leg reserved so far in strict reverse
// order before returning. Each failed cancellation is independently
// dead-lettered; one cancel failure does not stop the others.
//
// DeadLetter is the sink used to record cancel failures; it is
// accepted as a parameter rather than held on Orchestrator because
// only this legacy path needs it.
func (o *Orchestrator) ExecuteLegacy(ctx context.Context, req *domain.BookingRequest, sync reservation.SyncClient, dl DeadLetterRecorder) (*domain.ExecuteResult, error) {
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
	if err := o.Store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create saga record: %w", err)
	}

	reserved := make(map[domain.Leg]string, len(legacyLegOrder))

	var reserveErr error
	for _, leg := range legacyLegOrder {
		reservationID, err := sync.Reserve(ctx, leg, req, requestID)
		if err != nil {
			reserveErr = fmt.Errorf("failed to reserve %s: %w", leg, err)
			break
		}
		reserved[leg] = reservationID

		if _, err := o.Store.UpdateReservationID(ctx, requestID, leg, reservationID, domain.ConfirmedStep(leg)); err != nil {
			reserveErr = fmt.Errorf("failed to record %s reservation: %w", leg, err)
			break
		}
	}

	if reserveErr == nil {
		bookingID, err := generateBookingID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate booking id: %w", err)
		}
		updated, _, err := o.Store.ConfirmAggregate(ctx, requestID, bookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to confirm aggregate: %w", err)
		}
		return &domain.ExecuteResult{RequestID: requestID, BookingID: updated.BookingID, Status: updated.Status}, nil
	}

	// Compensate every leg reserved so far, strict reverse order.
	if err := o.Store.UpdateStatus(ctx, requestID, domain.StatusCompensating); err != nil {
		o.Logger.ErrorContext(ctx, "failed to mark saga compensating", "requestId", requestID, "error", err)
	}

	for i := len(legacyLegOrder) - 1; i >= 0; i-- {
		leg := legacyLegOrder[i]
		reservationID, ok := reserved[leg]
		if !ok {
			continue
		}
		if cancelErr := sync.Cancel(ctx, leg, requestID, reservationID); cancelErr != nil {
			o.Logger.ErrorContext(ctx, "compensation cancel failed", "requestId", requestID, "leg", leg, "error", cancelErr)
			if dlErr := dl.Record(ctx, requestID, leg, reservationID, cancelErr); dlErr != nil {
				o.Logger.ErrorContext(ctx, "failed to record dead letter", "requestId", requestID, "leg", leg, "error", dlErr)
			}
		}
	}

	if err := o.Store.UpdateStatus(ctx, requestID, domain.StatusCompensated); err != nil {
		return nil, fmt.Errorf("failed to mark saga compensated: %w", err)
	}

	o.Notify.Publish(ctx, requestID, notify.Notification{
		RequestID: requestID,
		Status:    domain.StatusCompensated.String(),
		EventType: notify.EventBookingFailed,
		Error:     reserveErr.Error(),
		Timestamp: time.Now(),
	})

	return &domain.ExecuteResult{RequestID: requestID, Status: domain.StatusCompensated, Message: reserveErr.Error()}, nil
}

// DeadLetterRecorder is the narrow capability ExecuteLegacy needs from
// the dead-letter sink.
type DeadLetterRecorder interface {
	Record(ctx context.Context, requestID string, leg domain.Leg, reservationID string, cause error) error
}
