package saga

import (
	"crypto/rand"
	"fmt"
	"time"
)

const bookingIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateBookingID produces an id matching ^TRV-\d+-[A-Z0-9]{9}$: a
// monotonic timestamp component plus a short random suffix, assigned
// once at the join point and never reused.
func generateBookingID() (string, error) {
	suffix, err := randomAlphanumeric(9)
	if err != nil {
		return "", fmt.Errorf("failed to generate booking id suffix: %w", err)
	}
	return fmt.Sprintf("TRV-%d-%s", time.Now().UnixNano(), suffix), nil
}

func randomAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = bookingIDAlphabet[int(b)%len(bookingIDAlphabet)]
	}
	return string(out), nil
}
