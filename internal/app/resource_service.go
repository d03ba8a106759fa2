package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nvila/courtbook/internal/clock"
	"github.com/nvila/courtbook/internal/domain"
)

type ResourceRepository interface {
	CreateResource(ctx context.Context, r domain.Resource) error
	ListResources(ctx context.Context, orgID string) ([]domain.Resource, error)
	CreateBlockedSlot(ctx context.Context, b domain.BlockedSlot) error
	ListBlockedSlots(ctx context.Context, orgID string, from, to time.Time) ([]domain.BlockedSlot, error)
}

// ResourceService manages courts and administrative holds.
type ResourceService struct {
	repo  ResourceRepository
	clock clock.Clock
}

func NewResourceService(repo ResourceRepository, clk clock.Clock) *ResourceService {
	return &ResourceService{repo: repo, clock: clk}
}

type CreateResourceInput struct {
	OrgID        string
	Name         string
	OpensAtMin   int
	ClosesAtMin  int
	CancelPolicy domain.CancellationPolicy
}

func (s *ResourceService) CreateResource(ctx context.Context, in CreateResourceInput) (domain.Resource, error) {
	if in.Name == "" {
		return domain.Resource{}, fmt.Errorf("%w: resource name required", domain.ErrValidation)
	}
	if in.OpensAtMin < 0 || in.ClosesAtMin > 24*60 || (in.ClosesAtMin != 0 && in.ClosesAtMin <= in.OpensAtMin) {
		return domain.Resource{}, fmt.Errorf("%w: invalid operating hours", domain.ErrValidation)
	}
	policy := in.CancelPolicy
	if policy == "" {
		policy = domain.PolicyModerate
	}

	r := domain.Resource{
		ID:           newID(),
		OrgID:        in.OrgID,
		Name:         in.Name,
		Active:       true,
		OpensAtMin:   in.OpensAtMin,
		ClosesAtMin:  in.ClosesAtMin,
		CancelPolicy: policy,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.CreateResource(ctx, r); err != nil {
		return domain.Resource{}, err
	}
	return r, nil
}

func (s *ResourceService) ListResources(ctx context.Context, orgID string) ([]domain.Resource, error) {
	return s.repo.ListResources(ctx, orgID)
}

type BlockSlotInput struct {
	OrgID      string
	ResourceID string // empty blocks the whole scope
	StartsAt   time.Time
	EndsAt     time.Time
	Reason     domain.BlockReason
}

func (s *ResourceService) BlockSlot(ctx context.Context, in BlockSlotInput) (domain.BlockedSlot, error) {
	if !domain.ValidInterval(in.StartsAt, in.EndsAt) {
		return domain.BlockedSlot{}, domain.ErrInvalidInterval
	}
	reason := in.Reason
	if reason == "" {
		reason = domain.BlockAdminHold
	}

	b := domain.BlockedSlot{
		ID:         newID(),
		OrgID:      in.OrgID,
		ResourceID: in.ResourceID,
		StartsAt:   in.StartsAt.UTC(),
		EndsAt:     in.EndsAt.UTC(),
		Reason:     reason,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.CreateBlockedSlot(ctx, b); err != nil {
		return domain.BlockedSlot{}, err
	}
	return b, nil
}

func (s *ResourceService) ListBlockedSlots(ctx context.Context, orgID string, from, to time.Time) ([]domain.BlockedSlot, error) {
	return s.repo.ListBlockedSlots(ctx, orgID, from, to)
}
