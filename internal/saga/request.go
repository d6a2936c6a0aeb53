package saga

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
)

// generateRequestID produces a fallback idempotency key when the
// caller supplies none. No dedup is possible across retries in this
// case — the client forgoes idempotency by omitting requestId.
func generateRequestID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func marshalRequest(req *domain.BookingRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}
