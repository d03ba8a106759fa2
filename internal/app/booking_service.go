package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/clock"
	"github.com/nvila/courtbook/internal/domain"
)

// BookingRepository is the storage surface the coordinator needs. All
// mutating calls run inside WithTx; AcquireResourceLock serializes
// writers on one resource until the transaction commits or aborts.
type BookingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireResourceLock(ctx context.Context, resourceID string) error
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	UpdateReservationInterval(ctx context.Context, id, resourceID string, start, end, updatedAt time.Time) error
	CancelReservation(ctx context.Context, id string, fee decimal.Decimal, at time.Time) error
	SetReservationPayment(ctx context.Context, id string, status domain.ReservationStatus, payment domain.PaymentStatus, transactionID string, at time.Time) error
}

type BookingService struct {
	repo        BookingRepository
	avail       *AvailabilityChecker
	validator   *Validator
	clock       clock.Clock
	events      EventPublisher
	lockRetries int
	backoff     time.Duration
}

func NewBookingService(repo BookingRepository, avail *AvailabilityChecker, validator *Validator, clk clock.Clock, opts ...BookingServiceOption) *BookingService {
	svc := &BookingService{
		repo:        repo,
		avail:       avail,
		validator:   validator,
		clock:       clk,
		lockRetries: 2,
		backoff:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type BookingServiceOption func(*BookingService)

// WithBookingEvents wires a fire-and-forget publisher for state transitions.
func WithBookingEvents(pub EventPublisher) BookingServiceOption {
	return func(s *BookingService) { s.events = pub }
}

// WithLockRetry overrides the bounded retry applied to lock timeouts.
func WithLockRetry(retries int, backoff time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if retries >= 0 {
			s.lockRetries = retries
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

type CreateReservationInput struct {
	OrgID      string
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
	PartySize  int
	Price      decimal.Decimal
}

// Create books [StartsAt, EndsAt) on the resource. Exactly one of two
// concurrent creators for the same slot wins: availability is re-checked
// under the per-resource lock against the latest committed state, and the
// active-slot exclusion constraint backstops the insert.
func (s *BookingService) Create(ctx context.Context, in CreateReservationInput) (domain.Reservation, error) {
	now := s.clock.Now()
	res := domain.Reservation{
		ID:            newID(),
		OrgID:         in.OrgID,
		ResourceID:    in.ResourceID,
		StartsAt:      in.StartsAt.UTC(),
		EndsAt:        in.EndsAt.UTC(),
		PartySize:     in.PartySize,
		Price:         in.Price.Round(2),
		Status:        domain.ReservationPending,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := withRetry(ctx, s.lockRetries, s.backoff, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			resource, err := s.repo.GetResource(txCtx, in.ResourceID)
			if err != nil {
				return err
			}
			if v := s.validator.ValidateReservation(res, resource, now); !v.IsValid() {
				return fmt.Errorf("%w: %s", domain.ErrValidation, v.Errors[0].Message)
			}
			if err := s.repo.AcquireResourceLock(txCtx, in.ResourceID); err != nil {
				return err
			}
			if err := s.avail.Check(txCtx, in.OrgID, in.ResourceID, res.StartsAt, res.EndsAt, ""); err != nil {
				return err
			}
			return s.repo.CreateReservation(txCtx, res)
		})
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	fireAndForget(s.events, "booking.created", ReservationEvent{
		ReservationID: res.ID,
		ResourceID:    res.ResourceID,
		Status:        string(res.Status),
		StartsAt:      res.StartsAt,
		EndsAt:        res.EndsAt,
	})
	return res, nil
}

// Cancel sets the reservation cancelled and computes the policy fee.
// Cancelling never touches an already-completed payment transaction;
// refunds are a separate instruction to the payment service.
func (s *BookingService) Cancel(ctx context.Context, reservationID, reason string) (domain.Reservation, error) {
	now := s.clock.Now()
	var out domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.Status == domain.ReservationCancelled || res.Status == domain.ReservationCompleted {
			return fmt.Errorf("%w: reservation is %s", domain.ErrInvalidState, res.Status)
		}

		resource, err := s.repo.GetResource(txCtx, res.ResourceID)
		if err != nil {
			return err
		}
		fee := resource.CancelPolicy.CancellationFee(res.Price, res.StartsAt, now)

		if err := s.repo.CancelReservation(txCtx, reservationID, fee, now); err != nil {
			return err
		}
		res.Status = domain.ReservationCancelled
		res.CancellationFee = fee
		res.CancelledAt = &now
		res.UpdatedAt = now
		out = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	fireAndForget(s.events, "booking.cancelled", ReservationEvent{
		ReservationID: out.ID,
		ResourceID:    out.ResourceID,
		Status:        string(out.Status),
		StartsAt:      out.StartsAt,
		EndsAt:        out.EndsAt,
	})
	return out, nil
}

// Reschedule moves an active reservation to a new interval. Availability
// is re-checked excluding the reservation's own row; on conflict the
// original interval is left untouched.
func (s *BookingService) Reschedule(ctx context.Context, reservationID string, newStart, newEnd time.Time) (domain.Reservation, error) {
	if !domain.ValidInterval(newStart, newEnd) {
		return domain.Reservation{}, domain.ErrInvalidInterval
	}
	now := s.clock.Now()
	var out domain.Reservation

	err := withRetry(ctx, s.lockRetries, s.backoff, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
			if err != nil {
				return err
			}
			if !res.Status.Active() {
				return fmt.Errorf("%w: reservation is %s", domain.ErrInvalidState, res.Status)
			}
			if err := s.repo.AcquireResourceLock(txCtx, res.ResourceID); err != nil {
				return err
			}
			if err := s.avail.Check(txCtx, res.OrgID, res.ResourceID, newStart.UTC(), newEnd.UTC(), res.ID); err != nil {
				return err
			}
			if err := s.repo.UpdateReservationInterval(txCtx, res.ID, res.ResourceID, newStart.UTC(), newEnd.UTC(), now); err != nil {
				return err
			}
			res.StartsAt = newStart.UTC()
			res.EndsAt = newEnd.UTC()
			res.UpdatedAt = now
			out = res
			return nil
		})
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	fireAndForget(s.events, "booking.rescheduled", ReservationEvent{
		ReservationID: out.ID,
		ResourceID:    out.ResourceID,
		Status:        string(out.Status),
		StartsAt:      out.StartsAt,
		EndsAt:        out.EndsAt,
	})
	return out, nil
}

// MarkPaid confirms a reservation once its payment completed. The payment
// status may only move along the defined state machine.
func (s *BookingService) MarkPaid(ctx context.Context, reservationID, transactionID string) error {
	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if !res.PaymentStatus.CanTransition(domain.PaymentPaid) {
			return fmt.Errorf("%w: payment status %s cannot become paid", domain.ErrInvalidState, res.PaymentStatus)
		}
		return s.repo.SetReservationPayment(txCtx, reservationID, domain.ReservationConfirmed, domain.PaymentPaid, transactionID, now)
	})
}

// MarkPaymentFailed records a failed charge; the reservation stays pending
// and is never partially applied.
func (s *BookingService) MarkPaymentFailed(ctx context.Context, reservationID string) error {
	now := s.clock.Now()
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetReservationForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if !res.PaymentStatus.CanTransition(domain.PaymentFailed) {
			return fmt.Errorf("%w: payment status %s cannot become failed", domain.ErrInvalidState, res.PaymentStatus)
		}
		return s.repo.SetReservationPayment(txCtx, reservationID, res.Status, domain.PaymentFailed, res.TransactionID, now)
	})
}
