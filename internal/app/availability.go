package app

import (
	"context"
	"time"

	"github.com/nvila/courtbook/internal/domain"
)

// AvailabilityRepository reads the committed active state for one resource.
// Both queries must run inside the caller's transaction so the decision and
// the subsequent insert see the same snapshot.
type AvailabilityRepository interface {
	ListActiveOverlapping(ctx context.Context, resourceID string, start, end time.Time, excludeID string) ([]domain.Reservation, error)
	ListBlockedOverlapping(ctx context.Context, orgID, resourceID string, start, end time.Time) ([]domain.BlockedSlot, error)
}

type AvailabilityChecker struct {
	repo AvailabilityRepository
}

func NewAvailabilityChecker(repo AvailabilityRepository) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo}
}

// Check returns nil when [start, end) is free on the resource, or a
// SlotConflictError naming the blocking interval. excludeID skips the
// caller's own row when rescheduling.
func (c *AvailabilityChecker) Check(ctx context.Context, orgID, resourceID string, start, end time.Time, excludeID string) error {
	if !domain.ValidInterval(start, end) {
		return domain.ErrInvalidInterval
	}

	active, err := c.repo.ListActiveOverlapping(ctx, resourceID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return &domain.SlotConflictError{
			ResourceID: resourceID,
			StartsAt:   active[0].StartsAt,
			EndsAt:     active[0].EndsAt,
		}
	}

	blocked, err := c.repo.ListBlockedOverlapping(ctx, orgID, resourceID, start, end)
	if err != nil {
		return err
	}
	if len(blocked) > 0 {
		return &domain.SlotConflictError{
			ResourceID: resourceID,
			StartsAt:   blocked[0].StartsAt,
			EndsAt:     blocked[0].EndsAt,
			Blocked:    true,
		}
	}
	return nil
}
