// Package adminhttp is the admin/recovery HTTP surface (spec component
// 8): lists stuck sagas, inspects a single saga's state, and issues
// manual retries, grounded on admin_handler.go's
// span-wrapped-gin-handler-plus-JSON-envelope shape.
package adminhttp

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/deadletter"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/httpresponse"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/reservation"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/saga"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/store"
)

// Handler exposes the admin/recovery endpoints. Manual retry
// re-publishes the missing leg requests through the same adapters the
// sweeper uses; manual cancel is the one route that changes a saga's
// status (to Compensating, then Compensated).
type Handler struct {
	store       store.Store
	adapters    map[domain.Leg]*reservation.Adapter
	deadLetters *deadletter.Sink
	orch        *saga.Orchestrator
}

// New constructs a Handler.
func New(s store.Store, adapters map[domain.Leg]*reservation.Adapter, dl *deadletter.Sink, orch *saga.Orchestrator) *Handler {
	return &Handler{store: s, adapters: adapters, deadLetters: dl, orch: orch}
}

// Register mounts the admin routes under group, each guarded by
// JWTGuard at the caller's discretion.
func (h *Handler) Register(group gin.IRouter) {
	group.GET("/sagas/stuck", h.ListStuck)
	group.GET("/sagas/:requestId", h.Inspect)
	group.POST("/sagas/:requestId/retry", h.Retry)
	group.POST("/sagas/:requestId/cancel", h.Cancel)
	group.GET("/dead-letters", h.ListDeadLetters)
	group.POST("/dead-letters/:id/mark-processed", h.MarkDeadLetterProcessed)
}

// ListStuck handles GET /admin/sagas/stuck?olderThanMinutes=30.
// Returns every still-Pending saga admitted before the threshold —
// the same population the sweeper itself scans.
func (h *Handler) ListStuck(c *gin.Context) {
	minutes := 30
	if q := c.Query("olderThanMinutes"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			minutes = parsed
		}
	}
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)

	records, err := h.store.FindPending(c.Request.Context(), cutoff)
	if err != nil {
		httpresponse.InternalError(c, err)
		return
	}
	httpresponse.Success(c, records)
}

// Inspect handles GET /admin/sagas/:requestId.
func (h *Handler) Inspect(c *gin.Context) {
	requestID := c.Param("requestId")
	record, err := h.store.FindByRequestID(c.Request.Context(), requestID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			httpresponse.NotFound(c, "saga not found")
			return
		}
		httpresponse.InternalError(c, err)
		return
	}
	httpresponse.Success(c, record)
}

// Retry handles POST /admin/sagas/:requestId/retry. It re-publishes
// every leg not yet marked confirmed; a saga already in a terminal
// status is rejected rather than silently republished.
func (h *Handler) Retry(c *gin.Context) {
	requestID := c.Param("requestId")
	ctx := c.Request.Context()

	record, err := h.store.FindByRequestID(ctx, requestID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			httpresponse.NotFound(c, "saga not found")
			return
		}
		httpresponse.InternalError(c, err)
		return
	}

	if record.Status.IsTerminal() {
		httpresponse.Conflict(c, "saga "+requestID+" is already "+record.Status.String())
		return
	}

	var req domain.BookingRequest
	if err := json.Unmarshal(record.OriginalRequest, &req); err != nil {
		httpresponse.InternalError(c, err)
		return
	}

	var republished []domain.Leg
	for _, leg := range []domain.Leg{domain.LegFlight, domain.LegHotel, domain.LegCar} {
		if record.HasStep(domain.ConfirmedStep(leg)) {
			continue
		}
		adapter, ok := h.adapters[leg]
		if !ok {
			continue
		}
		if err := adapter.MakeReservation(ctx, &req, requestID); err != nil {
			httpresponse.InternalError(c, err)
			return
		}
		republished = append(republished, leg)
	}

	httpresponse.Success(c, gin.H{"requestId": requestID, "republished": republished})
}

// Cancel handles POST /admin/sagas/:requestId/cancel, the manual
// recovery counterpart to spec.md §4.5.3's compensation protocol for
// sagas stuck on the asynchronous path: every leg that already holds a
// reservation id is cancelled in strict reverse order (car, hotel,
// flight), a failed cancel is dead-lettered rather than aborting the
// others, and the saga transitions Compensating -> Compensated once
// every attempted cancellation has either succeeded or been
// dead-lettered.
func (h *Handler) Cancel(c *gin.Context) {
	requestID := c.Param("requestId")
	ctx := c.Request.Context()

	record, err := h.store.FindByRequestID(ctx, requestID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			httpresponse.NotFound(c, "saga not found")
			return
		}
		httpresponse.InternalError(c, err)
		return
	}

	if record.Status.IsTerminal() {
		httpresponse.Conflict(c, "saga "+requestID+" is already "+record.Status.String())
		return
	}

	if err := h.store.UpdateStatus(ctx, requestID, domain.StatusCompensating); err != nil {
		httpresponse.InternalError(c, err)
		return
	}

	var cancelled []domain.Leg
	for _, leg := range []domain.Leg{domain.LegCar, domain.LegHotel, domain.LegFlight} {
		reservationID := record.ReservationIDFor(leg)
		if reservationID == "" {
			continue
		}
		adapter, ok := h.adapters[leg]
		if !ok {
			continue
		}
		if cancelErr := adapter.CancelReservation(ctx, requestID, reservationID); cancelErr != nil {
			if dlErr := h.deadLetters.Record(ctx, requestID, leg, reservationID, cancelErr); dlErr != nil {
				httpresponse.InternalError(c, dlErr)
				return
			}
			continue
		}
		cancelled = append(cancelled, leg)
	}

	if err := h.store.UpdateStatus(ctx, requestID, domain.StatusCompensated); err != nil {
		httpresponse.InternalError(c, err)
		return
	}

	httpresponse.Success(c, gin.H{"requestId": requestID, "cancelledLegs": cancelled, "status": domain.StatusCompensated.String()})
}

// ListDeadLetters handles GET /admin/dead-letters?limit=50.
func (h *Handler) ListDeadLetters(c *gin.Context) {
	limit := 50
	if q := c.Query("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	letters, err := h.deadLetters.Unprocessed(c.Request.Context(), limit)
	if err != nil {
		httpresponse.InternalError(c, err)
		return
	}
	httpresponse.Success(c, letters)
}

// MarkDeadLetterProcessed handles POST /admin/dead-letters/:id/mark-processed.
func (h *Handler) MarkDeadLetterProcessed(c *gin.Context) {
	id := c.Param("id")
	if err := h.deadLetters.MarkProcessed(c.Request.Context(), id); err != nil {
		httpresponse.InternalError(c, err)
		return
	}
	httpresponse.Success(c, gin.H{"id": id, "processed": true})
}
