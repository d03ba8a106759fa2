package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nvila/courtbook/internal/app"
)

type Reconciler interface {
	Reconcile(ctx context.Context, date time.Time, autoFix bool) (app.ReconcileReport, error)
}

// HandleReconcile returns the handler for POST /reconciliation.
func HandleReconcile(svc Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req reconcileRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "date must be YYYY-MM-DD")
			return
		}

		report, err := svc.Reconcile(r.Context(), date, req.AutoFix)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}
}

type reconcileRequest struct {
	Date    string `json:"date"`
	AutoFix bool   `json:"auto_fix"`
}
