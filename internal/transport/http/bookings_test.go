package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/app"
	"github.com/nvila/courtbook/internal/domain"
)

func TestHandleCreateBooking(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	successReservation := domain.Reservation{
		ID:            "resv-123",
		ResourceID:    "court-1",
		StartsAt:      start,
		EndsAt:        start.Add(time.Hour),
		Status:        domain.ReservationPending,
		PaymentStatus: domain.PaymentPending,
		Price:         decimal.NewFromInt(40),
	}

	validBody := `{"org_id":"org-1","resource_id":"court-1","start":"2026-06-01T10:00:00Z","end":"2026-06-01T11:00:00Z","party_size":4,"price":"40.00"}`

	tests := []struct {
		name           string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			body:           validBody,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"reservation_id":"resv-123"`,
		},
		{
			name:           "invalid json",
			body:           `{"resource_id":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing resource",
			body:           `{"start":"2026-06-01T10:00:00Z","end":"2026-06-01T11:00:00Z"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid price",
			body:           `{"resource_id":"court-1","start":"2026-06-01T10:00:00Z","end":"2026-06-01T11:00:00Z","price":"forty"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "slot conflict",
			body:           validBody,
			serviceErr:     &domain.SlotConflictError{ResourceID: "court-1", StartsAt: start, EndsAt: start.Add(time.Hour)},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"kind":"conflict"`,
		},
		{
			name:           "resource not found",
			body:           validBody,
			serviceErr:     domain.ErrResourceNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "validation failure",
			body:           validBody,
			serviceErr:     domain.ErrValidation,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "lock timeout",
			body:           validBody,
			serviceErr:     domain.ErrLockTimeout,
			expectedStatus: http.StatusServiceUnavailable,
			expectedSubstr: `"retryable":true`,
		},
		{
			name:           "internal error",
			body:           validBody,
			serviceErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubBookingService{reservation: successReservation, err: tt.serviceErr}
			req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			HandleCreateBooking(svc).ServeHTTP(rec, req)

			res := rec.Result()
			if res.StatusCode != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, res.StatusCode, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		HandleCreateBooking(&stubBookingService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}

func TestHandleBookingAction(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("cancel returns the fee", func(t *testing.T) {
		t.Parallel()
		cancelled := domain.Reservation{
			ID:              "resv-123",
			Status:          domain.ReservationCancelled,
			CancellationFee: decimal.NewFromInt(20),
		}
		svc := &stubBookingService{reservation: cancelled}
		req := httptest.NewRequest(http.MethodPost, "/bookings/resv-123/cancel", bytes.NewBufferString(`{"reason":"rain"}`))
		rec := httptest.NewRecorder()

		HandleBookingAction(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"cancellation_fee":"20.00"`) {
			t.Fatalf("expected fee in response, got %q", rec.Body.String())
		}
	})

	t.Run("reschedule returns the new interval", func(t *testing.T) {
		t.Parallel()
		moved := domain.Reservation{
			ID:       "resv-123",
			StartsAt: start.Add(2 * time.Hour),
			EndsAt:   start.Add(3 * time.Hour),
			Status:   domain.ReservationConfirmed,
		}
		svc := &stubBookingService{reservation: moved}
		body := `{"start":"2026-06-01T12:00:00Z","end":"2026-06-01T13:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/bookings/resv-123/reschedule", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()

		HandleBookingAction(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if svc.rescheduleStart.IsZero() {
			t.Fatalf("expected reschedule to be called")
		}
	})

	t.Run("invalid state maps to conflict", func(t *testing.T) {
		t.Parallel()
		svc := &stubBookingService{err: domain.ErrInvalidState}
		req := httptest.NewRequest(http.MethodPost, "/bookings/resv-123/cancel", nil)
		rec := httptest.NewRecorder()

		HandleBookingAction(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/bookings/resv-123/extend", nil)
		rec := httptest.NewRecorder()

		HandleBookingAction(&stubBookingService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("malformed path", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/bookings//cancel", nil)
		rec := httptest.NewRecorder()

		HandleBookingAction(&stubBookingService{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

type stubBookingService struct {
	reservation domain.Reservation
	err         error

	rescheduleStart time.Time
}

func (s *stubBookingService) Create(_ context.Context, _ app.CreateReservationInput) (domain.Reservation, error) {
	return s.reservation, s.err
}

func (s *stubBookingService) Cancel(_ context.Context, _, _ string) (domain.Reservation, error) {
	return s.reservation, s.err
}

func (s *stubBookingService) Reschedule(_ context.Context, _ string, newStart, _ time.Time) (domain.Reservation, error) {
	s.rescheduleStart = newStart
	return s.reservation, s.err
}
