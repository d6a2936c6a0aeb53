package saga

import "github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"

func validateRequest(req *domain.BookingRequest) error {
	if req.UserID == "" {
		return domain.ErrInvalidUserID
	}
	if req.TotalAmount <= 0 {
		return domain.ErrInvalidAmount
	}
	if req.Flight.Origin == "" || req.Flight.Destination == "" {
		return domain.ErrNoLegsRequested
	}
	if req.Hotel.HotelID == "" {
		return domain.ErrNoLegsRequested
	}
	if req.Car.PickupLocation == "" || req.Car.DropoffLocation == "" {
		return domain.ErrNoLegsRequested
	}
	return nil
}
