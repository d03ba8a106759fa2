package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/app"
	"github.com/nvila/courtbook/internal/domain"
)

// BookingCoordinator is the minimal interface the booking routes need.
type BookingCoordinator interface {
	Create(ctx context.Context, in app.CreateReservationInput) (domain.Reservation, error)
	Cancel(ctx context.Context, reservationID, reason string) (domain.Reservation, error)
	Reschedule(ctx context.Context, reservationID string, newStart, newEnd time.Time) (domain.Reservation, error)
}

// HandleCreateBooking returns the handler for POST /bookings.
func HandleCreateBooking(svc BookingCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createBookingRequest
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

		price := decimal.Zero
		if req.Price != "" {
			var err error
			price, err = decimal.NewFromString(req.Price)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeValidation, "invalid price")
				return
			}
		}

		id := identityFromContext(r.Context())
		orgID := req.OrgID
		if id.OrgID != "" {
			orgID = id.OrgID
		}

		res, err := svc.Create(r.Context(), app.CreateReservationInput{
			OrgID:      orgID,
			ResourceID: req.ResourceID,
			StartsAt:   req.StartsAt,
			EndsAt:     req.EndsAt,
			PartySize:  req.PartySize,
			Price:      price,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(bookingResponse{
			ID:            res.ID,
			ResourceID:    res.ResourceID,
			StartsAt:      res.StartsAt,
			EndsAt:        res.EndsAt,
			Status:        string(res.Status),
			PaymentStatus: string(res.PaymentStatus),
			Price:         res.Price.StringFixed(2),
		})
	}
}

// HandleBookingAction routes POST /bookings/{id}/cancel and
// POST /bookings/{id}/reschedule.
func HandleBookingAction(svc BookingCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, action, ok := parseBookingPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "cancel":
			var req cancelBookingRequest
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&req)
			}
			res, err := svc.Cancel(r.Context(), id, req.Reason)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(cancelBookingResponse{
				ID:              res.ID,
				Status:          string(res.Status),
				CancellationFee: res.CancellationFee.StringFixed(2),
				CancelledAt:     res.CancelledAt,
			})
		case "reschedule":
			var req rescheduleBookingRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			res, err := svc.Reschedule(r.Context(), id, req.StartsAt, req.EndsAt)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(bookingResponse{
				ID:            res.ID,
				ResourceID:    res.ResourceID,
				StartsAt:      res.StartsAt,
				EndsAt:        res.EndsAt,
				Status:        string(res.Status),
				PaymentStatus: string(res.PaymentStatus),
				Price:         res.Price.StringFixed(2),
			})
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseBookingPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "bookings" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type createBookingRequest struct {
	OrgID      string    `json:"org_id"`
	ResourceID string    `json:"resource_id"`
	StartsAt   time.Time `json:"start"`
	EndsAt     time.Time `json:"end"`
	PartySize  int       `json:"party_size"`
	Price      string    `json:"price"`
}

func (r createBookingRequest) validate() error {
	if r.ResourceID == "" {
		return errors.New("resource_id is required")
	}
	if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
		return errors.New("start and end are required")
	}
	return nil
}

type bookingResponse struct {
	ID            string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	StartsAt      time.Time `json:"start"`
	EndsAt        time.Time `json:"end"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Price         string    `json:"price"`
}

type rescheduleBookingRequest struct {
	StartsAt time.Time `json:"start"`
	EndsAt   time.Time `json:"end"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type cancelBookingResponse struct {
	ID              string     `json:"reservation_id"`
	Status          string     `json:"status"`
	CancellationFee string     `json:"cancellation_fee"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}
