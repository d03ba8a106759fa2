package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvila/courtbook/internal/domain"
)

type ResourceRepository struct {
	pool *pgxpool.Pool
}

func NewResourceRepository(pool *pgxpool.Pool) *ResourceRepository {
	return &ResourceRepository{pool: pool}
}

func (r *ResourceRepository) CreateResource(ctx context.Context, res domain.Resource) error {
	const stmt = `
INSERT INTO resources (id, org_id, name, active, opens_at_min, closes_at_min, cancel_policy, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, stmt,
		res.ID, res.OrgID, res.Name, res.Active, res.OpensAtMin, res.ClosesAtMin, string(res.CancelPolicy), res.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

func (r *ResourceRepository) ListResources(ctx context.Context, orgID string) ([]domain.Resource, error) {
	const query = `
SELECT id, org_id, name, active, opens_at_min, closes_at_min, cancel_policy, created_at
FROM resources
WHERE org_id = $1
ORDER BY name`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		var res domain.Resource
		var policy string
		if err := rows.Scan(&res.ID, &res.OrgID, &res.Name, &res.Active,
			&res.OpensAtMin, &res.ClosesAtMin, &policy, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		res.CancelPolicy = domain.CancellationPolicy(policy)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ResourceRepository) CreateBlockedSlot(ctx context.Context, b domain.BlockedSlot) error {
	const stmt = `
INSERT INTO blocked_slots (id, org_id, resource_id, starts_at, ends_at, reason, created_at)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, stmt, b.ID, b.OrgID, b.ResourceID, b.StartsAt, b.EndsAt, string(b.Reason), b.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create blocked slot: %w", err)
	}
	return nil
}

func (r *ResourceRepository) ListBlockedSlots(ctx context.Context, orgID string, from, to time.Time) ([]domain.BlockedSlot, error) {
	const query = `
SELECT id, org_id, COALESCE(resource_id::text, ''), starts_at, ends_at, reason, created_at
FROM blocked_slots
WHERE org_id = $1 AND starts_at < $3 AND ends_at > $2
ORDER BY starts_at`

	rows, err := r.pool.Query(ctx, query, orgID, from, to)
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
