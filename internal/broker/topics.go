package broker

import "github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"

// Outbound topics (orchestrator/adapters -> downstream services).
const (
	TopicFlightRequested     = "reservation.flight.requested"
	TopicHotelRequested      = "reservation.hotel.requested"
	TopicCarRequested        = "reservation.car.requested"
	TopicCompensationFailed  = "compensation.failed"
)

// Inbound topics (downstream services -> orchestrator/adapters).
const (
	TopicFlightConfirmed = "reservation.flight.confirmed"
	TopicHotelConfirmed  = "reservation.hotel.confirmed"
	TopicCarConfirmed    = "reservation.car.confirmed"
)

// RequestedTopicFor returns the outbound "requested" topic for a leg.
func RequestedTopicFor(l domain.Leg) string {
	switch l {
	case domain.LegFlight:
		return TopicFlightRequested
	case domain.LegHotel:
		return TopicHotelRequested
	case domain.LegCar:
		return TopicCarRequested
	}
	return ""
}

// ConfirmedTopicFor returns the inbound "confirmed" topic for a leg.
func ConfirmedTopicFor(l domain.Leg) string {
	switch l {
	case domain.LegFlight:
		return TopicFlightConfirmed
	case domain.LegHotel:
		return TopicHotelConfirmed
	case domain.LegCar:
		return TopicCarConfirmed
	}
	return ""
}

// LegForConfirmedTopic is the inverse of ConfirmedTopicFor.
func LegForConfirmedTopic(topic string) (domain.Leg, bool) {
	switch topic {
	case TopicFlightConfirmed:
		return domain.LegFlight, true
	case TopicHotelConfirmed:
		return domain.LegHotel, true
	case TopicCarConfirmed:
		return domain.LegCar, true
	default:
		return "", false
	}
}
