package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/domain"
)

type BookingRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

const defaultLockTimeout = 30 * time.Second

func NewBookingRepository(pool *pgxpool.Pool, opts ...BookingRepositoryOption) *BookingRepository {
	r := &BookingRepository{pool: pool, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type BookingRepositoryOption func(*BookingRepository)

// WithLockTimeout bounds the wait for a per-resource lock.
func WithLockTimeout(d time.Duration) BookingRepositoryOption {
	return func(r *BookingRepository) {
		if d > 0 {
			r.lockTimeout = d
		}
	}
}

func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// AcquireResourceLock serializes writers on one resource for the duration
// of the surrounding transaction. The wait is bounded; a timeout surfaces
// as a retryable error instead of a deadlock.
func (r *BookingRepository) AcquireResourceLock(ctx context.Context, resourceID string) error {
	if _, err := r.exec(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, r.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	if _, err := r.exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 7001))`, resourceID); err != nil {
		if isLockTimeout(err) {
			return domain.ErrLockTimeout
		}
		return fmt.Errorf("acquire resource lock: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	const query = `
SELECT id, org_id, name, active, opens_at_min, closes_at_min, cancel_policy, created_at
FROM resources
WHERE id = $1`

	var res domain.Resource
	var policy string
	err := r.queryRow(ctx, query, id).
		Scan(&res.ID, &res.OrgID, &res.Name, &res.Active, &res.OpensAtMin, &res.ClosesAtMin, &policy, &res.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Resource{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Resource{}, domain.ErrResourceNotFound
		}
		return domain.Resource{}, fmt.Errorf("get resource: %w", err)
	}
	res.CancelPolicy = domain.CancellationPolicy(policy)
	return res, nil
}

func (r *BookingRepository) ListActiveOverlapping(ctx context.Context, resourceID string, start, end time.Time, excludeID string) ([]domain.Reservation, error) {
	const query = `
SELECT id, org_id, resource_id, starts_at, ends_at, party_size, price, status, payment_status
FROM reservations
WHERE resource_id = $1
  AND status IN ('pending', 'confirmed', 'in_progress')
  AND starts_at < $3
  AND ends_at > $2
  AND ($4 = '' OR id::text <> $4)
ORDER BY starts_at`

	rows, err := r.query(ctx, query, resourceID, start, end, excludeID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list overlapping reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		var status, payment string
		if err := rows.Scan(&res.ID, &res.OrgID, &res.ResourceID, &res.StartsAt, &res.EndsAt,
			&res.PartySize, &res.Price, &status, &payment); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		res.Status = domain.ReservationStatus(status)
		res.PaymentStatus = domain.PaymentStatus(payment)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *BookingRepository) ListBlockedOverlapping(ctx context.Context, orgID, resourceID string, start, end time.Time) ([]domain.BlockedSlot, error) {
	const query = `
SELECT id, org_id, COALESCE(resource_id::text, ''), starts_at, ends_at, reason, created_at
FROM blocked_slots
WHERE org_id = $1
  AND (resource_id IS NULL OR resource_id = $2)
  AND starts_at < $4
  AND ends_at > $3
ORDER BY starts_at`

	rows, err := r.query(ctx, query, orgID, resourceID, start, end)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list blocked slots: %w", err)
	}
	defer rows.Close()

	var out []domain.BlockedSlot
	for rows.Next() {
		var b domain.BlockedSlot
		var reason string
		if err := rows.Scan(&b.ID, &b.OrgID, &b.ResourceID, &b.StartsAt, &b.EndsAt, &reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blocked slot: %w", err)
		}
		b.Reason = domain.BlockReason(reason)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, org_id, resource_id, starts_at, ends_at, party_size, price, status, payment_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.OrgID,
		res.ResourceID,
		res.StartsAt,
		res.EndsAt,
		res.PartySize,
		res.Price,
		string(res.Status),
		string(res.PaymentStatus),
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		if isExclusionViolation(err) {
			return &domain.SlotConflictError{
				ResourceID: res.ResourceID,
				StartsAt:   res.StartsAt,
				EndsAt:     res.EndsAt,
			}
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	const query = `
SELECT id, org_id, resource_id, starts_at, ends_at, party_size, price, status, payment_status,
       COALESCE(transaction_id::text, ''), cancellation_fee, cancelled_at, created_at, updated_at
FROM reservations
WHERE id = $1
FOR UPDATE`

	var res domain.Reservation
	var status, payment string
	err := r.queryRow(ctx, query, id).Scan(
		&res.ID, &res.OrgID, &res.ResourceID, &res.StartsAt, &res.EndsAt,
		&res.PartySize, &res.Price, &status, &payment,
		&res.TransactionID, &res.CancellationFee, &res.CancelledAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)
	res.PaymentStatus = domain.PaymentStatus(payment)
	return res, nil
}

func (r *BookingRepository) UpdateReservationInterval(ctx context.Context, id, resourceID string, start, end, updatedAt time.Time) error {
	const stmt = `UPDATE reservations SET starts_at = $2, ends_at = $3, updated_at = $4 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, start, end, updatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return &domain.SlotConflictError{ResourceID: resourceID, StartsAt: start, EndsAt: end}
		}
		return fmt.Errorf("update reservation interval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *BookingRepository) CancelReservation(ctx context.Context, id string, fee decimal.Decimal, at time.Time) error {
	const stmt = `
UPDATE reservations
SET status = 'cancelled', cancellation_fee = $2, cancelled_at = $3, updated_at = $3
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, fee, at)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *BookingRepository) SetReservationPayment(ctx context.Context, id string, status domain.ReservationStatus, payment domain.PaymentStatus, transactionID string, at time.Time) error {
	const stmt = `
UPDATE reservations
SET status = $2, payment_status = $3, transaction_id = NULLIF($4, '')::uuid, updated_at = $5
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, string(status), string(payment), transactionID, at)
	if err != nil {
		return fmt.Errorf("set reservation payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (r *BookingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *BookingRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *BookingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
