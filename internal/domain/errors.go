package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrResourceInactive    = errors.New("resource inactive")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrInvalidState        = errors.New("invalid reservation state")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrValidation          = errors.New("validation failed")

	ErrAccountNotFound        = errors.New("account not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAmountTooLarge         = errors.New("amount exceeds maximum")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrRefundExceedsBalance   = errors.New("refund exceeds refundable balance")
	ErrTransactionNotPending  = errors.New("transaction is not processing")
	ErrHighRiskBlocked        = errors.New("transaction blocked by risk policy")

	ErrLockTimeout = errors.New("resource lock timeout")
	ErrInvalidID   = errors.New("invalid id")
)

// Kind classifies errors so callers branch on category rather than
// matching individual sentinels.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindDuplicate         Kind = "duplicate"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindSystem            Kind = "system"
)

// KindOf maps any error to its taxonomy kind. Unknown errors are system
// errors; only those are candidates for bounded retry.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInterval),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountTooLarge),
		errors.Is(err, ErrIdempotencyKeyRequired),
		errors.Is(err, ErrRefundExceedsBalance),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrResourceInactive),
		errors.Is(err, ErrHighRiskBlocked),
		errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSlotConflict):
		return KindConflict
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrDuplicateTransaction):
		return KindDuplicate
	case errors.Is(err, ErrResourceNotFound),
		errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrTransactionNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrTransactionNotPending):
		return KindInvalidState
	default:
		return KindSystem
	}
}

// Retryable reports whether the caller may retry the operation as-is.
// Lock timeouts and other system errors qualify; everything else needs a
// changed request (different slot, different key) first.
func Retryable(err error) bool {
	return KindOf(err) == KindSystem
}

// SlotConflictError reports the interval that blocked a booking so the
// caller can pick a different slot.
type SlotConflictError struct {
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
	Blocked    bool // the collision is an administrative hold, not a reservation
}

func (e *SlotConflictError) Error() string {
	kind := "reservation"
	if e.Blocked {
		kind = "blocked slot"
	}
	return fmt.Sprintf("slot conflict: %s %s-%s on resource %s",
		kind,
		e.StartsAt.Format(time.RFC3339),
		e.EndsAt.Format(time.RFC3339),
		e.ResourceID,
	)
}

func (e *SlotConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}
