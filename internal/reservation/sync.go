package reservation

import (
	"context"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
)

// SyncClient is the synchronous downstream reservation call used only
// by the legacy forward-reservation path (spec.md §4.5.3). The actual
// downstream services are out of scope; callers inject whatever
// synchronous client fits their deployment, or use StubSyncClient for
// a dependency-free default.
type SyncClient interface {
	Reserve(ctx context.Context, leg domain.Leg, req *domain.BookingRequest, requestID string) (reservationID string, err error)
	Cancel(ctx context.Context, leg domain.Leg, requestID, reservationID string) error
}

// StubSyncClient always succeeds, returning a deterministic
// reservation id. Useful as a default when no real synchronous
// downstream integration is configured.
type StubSyncClient struct{}

func (StubSyncClient) Reserve(ctx context.Context, leg domain.Leg, req *domain.BookingRequest, requestID string) (string, error) {
	return string(leg) + "-" + requestID, nil
}

func (StubSyncClient) Cancel(ctx context.Context, leg domain.Leg, requestID, reservationID string) error {
	return nil
}
