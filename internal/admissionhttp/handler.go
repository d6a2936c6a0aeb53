// Package admissionhttp is the thin HTTP admission surface (spec.md
// §1, explicitly out of the orchestrator core): it decodes a booking
// request, hands it to internal/saga.Orchestrator.Execute, and renders
// the result — no business logic of its own, grounded on
// booking_handler.go's ShouldBindJSON-plus-envelope shape.
package admissionhttp

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/httpresponse"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/notify"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/saga"
)

// BookingRequest is the wire shape accepted at POST /bookings.
type BookingRequest struct {
	UserID      string    `json:"userId" binding:"required"`
	TotalAmount float64   `json:"totalAmount" binding:"required,gt=0"`
	RequestID   string    `json:"requestId,omitempty"`

	Flight struct {
		Origin      string    `json:"origin" binding:"required"`
		Destination string    `json:"destination" binding:"required"`
		DepartDate  time.Time `json:"departDate" binding:"required"`
		ReturnDate  time.Time `json:"returnDate" binding:"required"`
	} `json:"flight" binding:"required"`

	Hotel struct {
		HotelID  string    `json:"hotelId" binding:"required"`
		CheckIn  time.Time `json:"checkIn" binding:"required"`
		CheckOut time.Time `json:"checkOut" binding:"required"`
	} `json:"hotel" binding:"required"`

	Car struct {
		PickupLocation  string    `json:"pickupLocation" binding:"required"`
		DropoffLocation string    `json:"dropoffLocation" binding:"required"`
		PickupDate      time.Time `json:"pickupDate" binding:"required"`
		DropoffDate     time.Time `json:"dropoffDate" binding:"required"`
	} `json:"car" binding:"required"`
}

func (r *BookingRequest) toDomain() *domain.BookingRequest {
	req := &domain.BookingRequest{
		UserID:      r.UserID,
		TotalAmount: r.TotalAmount,
		RequestID:   r.RequestID,
	}
	req.Flight.Origin = r.Flight.Origin
	req.Flight.Destination = r.Flight.Destination
	req.Flight.DepartDate = r.Flight.DepartDate
	req.Flight.ReturnDate = r.Flight.ReturnDate
	req.Hotel.HotelID = r.Hotel.HotelID
	req.Hotel.CheckIn = r.Hotel.CheckIn
	req.Hotel.CheckOut = r.Hotel.CheckOut
	req.Car.PickupLocation = r.Car.PickupLocation
	req.Car.DropoffLocation = r.Car.DropoffLocation
	req.Car.PickupDate = r.Car.PickupDate
	req.Car.DropoffDate = r.Car.DropoffDate
	return req
}

// BookingResponse is the wire shape of §6's "Inbound admission"
// response: `{requestId, bookingId?, status, message?, errorMessage?, timestamp}`.
type BookingResponse struct {
	RequestID    string    `json:"requestId"`
	BookingID    string    `json:"bookingId,omitempty"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Handler wraps an Orchestrator with the HTTP admission surface and an
// optional subscribe-before-return convenience for callers that want
// to block for the terminal event inline.
type Handler struct {
	orch *saga.Orchestrator
	hub  *notify.Hub
}

// New constructs a Handler.
func New(orch *saga.Orchestrator, hub *notify.Hub) *Handler {
	return &Handler{orch: orch, hub: hub}
}

// Register mounts the admission routes under group.
func (h *Handler) Register(group gin.IRouter) {
	group.POST("/bookings", h.CreateBooking)
	group.GET("/bookings/:requestId", h.GetBooking)
	group.GET("/bookings/:requestId/stream", h.StreamBooking)
	group.POST("/bookings/:requestId/webhook", h.RegisterWebhook)
}

// CreateBooking handles POST /bookings (spec.md §6 inbound admission).
// It always returns promptly: the saga's terminal outcome arrives
// later via the Notification Hub, not on this response.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresponse.BadRequest(c, err.Error())
		return
	}

	result, err := h.orch.Execute(c.Request.Context(), req.toDomain())
	if err != nil {
		if domain.IsRateLimitError(err) {
			httpresponse.TooManyRequests(c, err.Error())
			return
		}
		if domain.IsValidationError(err) {
			httpresponse.BadRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusOK, BookingResponse{
			RequestID:    req.RequestID,
			Status:       domain.StatusFailed.String(),
			ErrorMessage: err.Error(),
			Timestamp:    time.Now(),
		})
		return
	}

	httpresponse.Accepted(c, BookingResponse{
		RequestID: result.RequestID,
		BookingID: result.BookingID,
		Status:    result.Status.String(),
		Message:   result.Message,
		Timestamp: time.Now(),
	})
}

// GetBooking handles GET /bookings/:requestId, a read-only lookup for
// clients polling instead of subscribing to the push stream.
func (h *Handler) GetBooking(c *gin.Context) {
	requestID := c.Param("requestId")
	record, err := h.orch.Store.FindByRequestID(c.Request.Context(), requestID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			httpresponse.NotFound(c, "booking not found")
			return
		}
		httpresponse.InternalError(c, err)
		return
	}
	httpresponse.Success(c, record)
}

// StreamBooking handles GET /bookings/:requestId/stream, the HTTP
// surface for the Notification Hub's push stream (spec.md §4.6). The
// caller must subscribe before the saga's terminal event fires — a
// request for an already-terminal saga holds the connection open until
// the client disconnects, since the hub only ever delivers to
// subscribers registered ahead of the Publish call.
func (h *Handler) StreamBooking(c *gin.Context) {
	requestID := c.Param("requestId")
	sub := h.hub.Subscribe(requestID)

	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(string(n.EventType), n)
			return false
		case <-c.Request.Context().Done():
			h.hub.CleanupSubscription(requestID)
			return false
		}
	})
}

// webhookRegistration is the body of POST /bookings/:requestId/webhook.
type webhookRegistration struct {
	URL string `json:"url" binding:"required,url"`
}

// RegisterWebhook handles POST /bookings/:requestId/webhook, registering
// a one-shot callback URL for the saga's terminal event (spec.md §4.6).
// Must be called before the saga reaches a terminal state; a booking
// already terminal silently never fires the callback, matching the
// push stream's same subscribe-before-fire contract.
func (h *Handler) RegisterWebhook(c *gin.Context) {
	requestID := c.Param("requestId")

	var body webhookRegistration
	if err := c.ShouldBindJSON(&body); err != nil {
		httpresponse.BadRequest(c, err.Error())
		return
	}

	h.hub.RegisterWebhook(requestID, body.URL)
	httpresponse.Accepted(c, gin.H{"requestId": requestID, "webhookRegistered": true})
}
