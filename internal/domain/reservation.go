package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "pending"
	ReservationConfirmed  ReservationStatus = "confirmed"
	ReservationInProgress ReservationStatus = "in_progress"
	ReservationCompleted  ReservationStatus = "completed"
	ReservationCancelled  ReservationStatus = "cancelled"
)

// Active reports whether the status counts toward overlap conflicts.
func (s ReservationStatus) Active() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationInProgress:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial_refund"
	PaymentFailed        PaymentStatus = "failed"
)

// paymentTransitions is the only legal movement through payment states.
// Reconciliation may correct a stuck state, but never outside this map.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:       {PaymentPaid, PaymentFailed},
	PaymentFailed:        {PaymentPending, PaymentPaid},
	PaymentPaid:          {PaymentRefunded, PaymentPartialRefund},
	PaymentPartialRefund: {PaymentRefunded, PaymentPartialRefund},
}

// CanTransition reports whether payment status may move from one state to
// another along the defined state machine.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Reservation is a booking of one resource over a half-open interval
// [StartsAt, EndsAt).
type Reservation struct {
	ID              string
	OrgID           string
	ResourceID      string
	StartsAt        time.Time
	EndsAt          time.Time
	PartySize       int
	Price           decimal.Decimal
	Status          ReservationStatus
	PaymentStatus   PaymentStatus
	TransactionID   string
	CancellationFee decimal.Decimal
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Overlaps applies the half-open overlap rule to two intervals.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ValidInterval rejects zero-length and reversed intervals.
func ValidInterval(start, end time.Time) bool {
	return start.Before(end)
}

type CancellationPolicy string

const (
	PolicyFlexible CancellationPolicy = "flexible"
	PolicyModerate CancellationPolicy = "moderate"
	PolicyStrict   CancellationPolicy = "strict"
)

// CancellationFee returns the fee charged for cancelling at a given
// instant. Each policy defines a deadline before the start; cancelling
// inside the deadline charges a share of the price.
func (p CancellationPolicy) CancellationFee(price decimal.Decimal, startsAt, at time.Time) decimal.Decimal {
	var deadline time.Duration
	var share decimal.Decimal
	switch p {
	case PolicyFlexible:
		deadline, share = 2*time.Hour, decimal.NewFromFloat(0.25)
	case PolicyModerate:
		deadline, share = 12*time.Hour, decimal.NewFromFloat(0.50)
	case PolicyStrict:
		deadline, share = 24*time.Hour, decimal.NewFromFloat(1.00)
	default:
		return decimal.Zero
	}
	if startsAt.Sub(at) >= deadline {
		return decimal.Zero
	}
	return price.Mul(share).Round(2)
}
