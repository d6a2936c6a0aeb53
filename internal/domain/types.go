package domain

import "time"

// Leg identifies one of the three reservation legs.
type Leg string

const (
	LegFlight Leg = "flight"
	LegHotel  Leg = "hotel"
	LegCar    Leg = "car"
)

// AmountShare returns the fixed fraction of the booking total allotted
// to this leg (flight 40%, hotel 35%, car 25%).
func (l Leg) AmountShare() float64 {
	switch l {
	case LegFlight:
		return 0.40
	case LegHotel:
		return 0.35
	case LegCar:
		return 0.25
	default:
		return 0
	}
}

// Status is the saga's closed lifecycle enum. Serialised UPPERCASE at
// the JSON wire boundary only (MarshalJSON/UnmarshalJSON below); kept
// as a Go-native typed constant everywhere else in the codebase.
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusCompensating
	StatusCompensated
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:      "PENDING",
	StatusConfirmed:    "CONFIRMED",
	StatusCompensating: "COMPENSATING",
	StatusCompensated:  "COMPENSATED",
	StatusFailed:       "FAILED",
}

var statusValues = map[string]Status{
	"PENDING":      StatusPending,
	"CONFIRMED":    StatusConfirmed,
	"COMPENSATING": StatusCompensating,
	"COMPENSATED":  StatusCompensated,
	"FAILED":       StatusFailed,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalJSON renders the status as its UPPERCASE wire form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the UPPERCASE wire form back into the enum.
func (s *Status) UnmarshalJSON(data []byte) error {
	raw := string(data)
	raw = raw[1 : len(raw)-1] // strip quotes
	v, ok := statusValues[raw]
	if !ok {
		return ErrInvalidSagaStatus
	}
	*s = v
	return nil
}

// IsTerminal reports whether s is one of the terminal states (Confirmed,
// Compensated, Failed). No transition leaves a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCompensated || s == StatusFailed
}

// Step markers recorded in a saga's CompletedSteps set.
const (
	StepFlightRequested = "flight_requested"
	StepFlightConfirmed = "flight_confirmed"
	StepHotelRequested  = "hotel_requested"
	StepHotelConfirmed  = "hotel_confirmed"
	StepCarRequested    = "car_requested"
	StepCarConfirmed    = "car_confirmed"
	StepAggregated      = "aggregated"
)

// RequestedStep and ConfirmedStep return the step markers for a leg.
func RequestedStep(l Leg) string {
	switch l {
	case LegFlight:
		return StepFlightRequested
	case LegHotel:
		return StepHotelRequested
	case LegCar:
		return StepCarRequested
	}
	return ""
}

func ConfirmedStep(l Leg) string {
	switch l {
	case LegFlight:
		return StepFlightConfirmed
	case LegHotel:
		return StepHotelConfirmed
	case LegCar:
		return StepCarConfirmed
	}
	return ""
}

// FlightSpec describes the flight leg of a booking request.
type FlightSpec struct {
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	DepartDate   time.Time `json:"departDate"`
	ReturnDate   time.Time `json:"returnDate"`
}

// HotelSpec describes the hotel leg of a booking request.
type HotelSpec struct {
	HotelID    string    `json:"hotelId"`
	CheckIn    time.Time `json:"checkIn"`
	CheckOut   time.Time `json:"checkOut"`
}

// CarSpec describes the car-rental leg of a booking request.
type CarSpec struct {
	PickupLocation  string    `json:"pickupLocation"`
	DropoffLocation string    `json:"dropoffLocation"`
	PickupDate      time.Time `json:"pickupDate"`
	DropoffDate     time.Time `json:"dropoffDate"`
}

// BookingRequest is the immutable input accepted at admission.
type BookingRequest struct {
	UserID      string     `json:"userId"`
	TotalAmount float64    `json:"totalAmount"`
	Flight      FlightSpec `json:"flight"`
	Hotel       HotelSpec  `json:"hotel"`
	Car         CarSpec    `json:"car"`
	RequestID   string     `json:"requestId,omitempty"`
}

// SagaRecord is the durable entity: exactly one per request.
type SagaRecord struct {
	RequestID       string    `json:"requestId"`
	BookingID       string    `json:"bookingId,omitempty"`
	UserID          string    `json:"userId"`
	TotalAmount     float64   `json:"totalAmount"`
	OriginalRequest []byte    `json:"originalRequest"`
	Status          Status    `json:"status"`

	FlightReservationID string `json:"flightReservationId,omitempty"`
	HotelReservationID  string `json:"hotelReservationId,omitempty"`
	CarReservationID    string `json:"carReservationId,omitempty"`

	CompletedSteps []string `json:"completedSteps"`

	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorStack   string `json:"errorStack,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasStep reports whether marker is present in CompletedSteps.
func (r *SagaRecord) HasStep(marker string) bool {
	for _, m := range r.CompletedSteps {
		if m == marker {
			return true
		}
	}
	return false
}

// AllLegsConfirmed reports whether all three "_confirmed" markers are
// present — the join-point test.
func (r *SagaRecord) AllLegsConfirmed() bool {
	return r.HasStep(StepFlightConfirmed) && r.HasStep(StepHotelConfirmed) && r.HasStep(StepCarConfirmed)
}

// ReservationIDFor returns the stored reservation id for a leg.
func (r *SagaRecord) ReservationIDFor(l Leg) string {
	switch l {
	case LegFlight:
		return r.FlightReservationID
	case LegHotel:
		return r.HotelReservationID
	case LegCar:
		return r.CarReservationID
	}
	return ""
}

// ExecuteResult is the response shape for Orchestrator.Execute.
type ExecuteResult struct {
	RequestID string `json:"requestId"`
	BookingID string `json:"bookingId,omitempty"`
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
}

// AggregateResult is the response shape for Orchestrator.Aggregate.
type AggregateResult struct {
	RequestID           string `json:"requestId"`
	BookingID           string `json:"bookingId"`
	Status              Status `json:"status"`
	FlightReservationID string `json:"flightReservationId"`
	HotelReservationID  string `json:"hotelReservationId"`
	CarReservationID    string `json:"carReservationId"`
}

// ConfirmationEvent is the inbound wire payload for
// reservation.{flight,hotel,car}.confirmed.
type ConfirmationEvent struct {
	RequestID     string    `json:"requestId"`
	UserID        string    `json:"userId"`
	ReservationID string    `json:"reservationId"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// RequestedEvent is the outbound wire payload for
// reservation.{flight,hotel,car}.requested. Not every field applies to
// every leg; unused fields are omitted by json tags.
type RequestedEvent struct {
	RequestID       string    `json:"requestId"`
	UserID          string    `json:"userId"`
	Amount          float64   `json:"amount"`
	Origin          string    `json:"origin,omitempty"`
	Destination     string    `json:"destination,omitempty"`
	DepartureDate   time.Time `json:"departureDate,omitempty"`
	ReturnDate      time.Time `json:"returnDate,omitempty"`
	HotelID         string    `json:"hotelId,omitempty"`
	CheckInDate     time.Time `json:"checkInDate,omitempty"`
	CheckOutDate    time.Time `json:"checkOutDate,omitempty"`
	PickupLocation  string    `json:"pickupLocation,omitempty"`
	DropoffLocation string    `json:"dropoffLocation,omitempty"`
	PickupDate      time.Time `json:"pickupDate,omitempty"`
	DropoffDate     time.Time `json:"dropoffDate,omitempty"`
}

// CompensationFailedEvent is the outbound dead-letter payload.
type CompensationFailedEvent struct {
	RequestID     string    `json:"requestId"`
	Leg           Leg       `json:"leg"`
	ReservationID string    `json:"reservationId"`
	ErrorMessage  string    `json:"errorMessage"`
	ErrorStack    string    `json:"errorStack,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	RetryCount    int       `json:"retryCount"`
}
