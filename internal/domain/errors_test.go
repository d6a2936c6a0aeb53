package domain

import (
	"fmt"
	"testing"
)

func TestIsNotFoundError(t *testing.T) {
	if !IsNotFoundError(ErrSagaNotFound) {
		t.Error("expected ErrSagaNotFound to be a not-found error")
	}
	if IsNotFoundError(ErrInvalidUserID) {
		t.Error("expected ErrInvalidUserID not to be a not-found error")
	}
	if IsNotFoundError(fmt.Errorf("wrapped: %w", ErrSagaNotFound)) != true {
		t.Error("expected a wrapped ErrSagaNotFound to still match")
	}
}

func TestIsValidationError(t *testing.T) {
	validationErrs := []error{ErrInvalidBookingID, ErrInvalidUserID, ErrInvalidLeg, ErrInvalidAmount, ErrNoLegsRequested}
	for _, err := range validationErrs {
		if !IsValidationError(err) {
			t.Errorf("expected %v to be a validation error", err)
		}
	}

	if IsValidationError(ErrRateLimited) {
		t.Error("expected ErrRateLimited not to be a validation error")
	}
}

func TestIsConflictError(t *testing.T) {
	conflictErrs := []error{ErrSagaAlreadyExists, ErrDuplicateRequest, ErrLegAlreadyConfirmed, ErrLegAlreadyCancelled, ErrInvalidSagaStatus}
	for _, err := range conflictErrs {
		if !IsConflictError(err) {
			t.Errorf("expected %v to be a conflict error", err)
		}
	}

	if IsConflictError(ErrSagaNotFound) {
		t.Error("expected ErrSagaNotFound not to be a conflict error")
	}
}

func TestIsRateLimitError(t *testing.T) {
	if !IsRateLimitError(ErrRateLimited) {
		t.Error("expected ErrRateLimited to be a rate-limit error")
	}
	if IsRateLimitError(ErrLockHeld) {
		t.Error("expected ErrLockHeld not to be a rate-limit error")
	}
}
