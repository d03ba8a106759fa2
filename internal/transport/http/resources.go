package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nvila/courtbook/internal/app"
	"github.com/nvila/courtbook/internal/domain"
)

type ResourceAdmin interface {
	CreateResource(ctx context.Context, in app.CreateResourceInput) (domain.Resource, error)
	ListResources(ctx context.Context, orgID string) ([]domain.Resource, error)
	BlockSlot(ctx context.Context, in app.BlockSlotInput) (domain.BlockedSlot, error)
}

// HandleResources routes GET and POST /admin/resources.
func HandleResources(svc ResourceAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFromContext(r.Context())

		switch r.Method {
		case http.MethodGet:
			orgID := r.URL.Query().Get("org_id")
			if id.OrgID != "" {
				orgID = id.OrgID
			}
			resources, err := svc.ListResources(r.Context(), orgID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			out := make([]resourceResponse, 0, len(resources))
			for _, res := range resources {
				out = append(out, toResourceResponse(res))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)

		case http.MethodPost:
			var req createResourceRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if req.Name == "" {
				writeError(w, http.StatusBadRequest, codeValidation, "name is required")
				return
			}
			orgID := req.OrgID
			if id.OrgID != "" {
				orgID = id.OrgID
			}
			res, err := svc.CreateResource(r.Context(), app.CreateResourceInput{
				OrgID:        orgID,
				Name:         req.Name,
				OpensAtMin:   req.OpensAtMin,
				ClosesAtMin:  req.ClosesAtMin,
				CancelPolicy: domain.CancellationPolicy(req.CancelPolicy),
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(toResourceResponse(res))

		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleBlockSlot returns the handler for POST /admin/blocked-slots.
func HandleBlockSlot(svc ResourceAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req blockSlotRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}

		id := identityFromContext(r.Context())
		orgID := req.OrgID
		if id.OrgID != "" {
			orgID = id.OrgID
		}

		b, err := svc.BlockSlot(r.Context(), app.BlockSlotInput{
			OrgID:      orgID,
			ResourceID: req.ResourceID,
			StartsAt:   req.StartsAt,
			EndsAt:     req.EndsAt,
			Reason:     domain.BlockReason(req.Reason),
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(blockSlotResponse{
			ID:         b.ID,
			ResourceID: b.ResourceID,
			StartsAt:   b.StartsAt,
			EndsAt:     b.EndsAt,
			Reason:     string(b.Reason),
		})
	}
}

type createResourceRequest struct {
	OrgID        string `json:"org_id"`
	Name         string `json:"name"`
	OpensAtMin   int    `json:"opens_at_min"`
	ClosesAtMin  int    `json:"closes_at_min"`
	CancelPolicy string `json:"cancel_policy"`
}

type resourceResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	OpensAtMin   int    `json:"opens_at_min"`
	ClosesAtMin  int    `json:"closes_at_min"`
	CancelPolicy string `json:"cancel_policy"`
}

func toResourceResponse(res domain.Resource) resourceResponse {
	return resourceResponse{
		ID:           res.ID,
		Name:         res.Name,
		Active:       res.Active,
		OpensAtMin:   res.OpensAtMin,
		ClosesAtMin:  res.ClosesAtMin,
		CancelPolicy: string(res.CancelPolicy),
	}
}

type blockSlotRequest struct {
	OrgID      string    `json:"org_id"`
	ResourceID string    `json:"resource_id"`
	StartsAt   time.Time `json:"start"`
	EndsAt     time.Time `json:"end"`
	Reason     string    `json:"reason"`
}

func (r blockSlotRequest) validate() error {
	if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
		return errors.New("start and end are required")
	}
	return nil
}

type blockSlotResponse struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id,omitempty"`
	StartsAt   time.Time `json:"start"`
	EndsAt     time.Time `json:"end"`
	Reason     string    `json:"reason"`
}
