package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/app"
	"github.com/nvila/courtbook/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

// PaymentExecutor is the minimal interface the payment routes need.
type PaymentExecutor interface {
	Execute(ctx context.Context, in app.ExecuteInput) (app.ExecuteResult, error)
	Refund(ctx context.Context, in app.RefundInput) (app.ExecuteResult, error)
	ConfirmGateway(ctx context.Context, gatewayRef string, confirmed bool, actor string) (domain.Transaction, error)
}

// HandleExecutePayment returns the handler for POST /payments. The
// idempotency key comes from the Idempotency-Key header or the body; a
// repeat of a completed key answers 409 duplicate_transaction.
func HandleExecutePayment(svc PaymentExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req executePaymentRequest
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

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "invalid amount")
			return
		}

		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			key = req.IdempotencyKey
		}

		id := identityFromContext(r.Context())
		res, err := svc.Execute(r.Context(), app.ExecuteInput{
			OrgID:                id.OrgID,
			Amount:               amount,
			Type:                 domain.TransactionType(req.Type),
			Method:               req.Method,
			SourceAccountID:      req.SourceAccountID,
			DestinationAccountID: req.DestinationAccountID,
			Reference:            req.Reference,
			IdempotencyKey:       key,
			Actor:                id.Actor,
			Metadata:             req.Metadata,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		status := http.StatusCreated
		if res.Transaction.Status == domain.TxProcessing {
			status = http.StatusAccepted
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(paymentResponse{
			TransactionID: res.Transaction.ID,
			Status:        string(res.Transaction.Status),
			Amount:        res.Transaction.Amount.StringFixed(2),
			AuditID:       res.AuditID,
			RiskScore:     res.Risk.Score,
		})
	}
}

// HandleRefundPayment returns the handler for POST /payments/{id}/refund.
func HandleRefundPayment(svc PaymentExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		txID, ok := parseRefundPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req refundPaymentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		amount := decimal.Zero
		if req.Amount != "" {
			var err error
			amount, err = decimal.NewFromString(req.Amount)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeValidation, "invalid amount")
				return
			}
		}

		id := identityFromContext(r.Context())
		res, err := svc.Refund(r.Context(), app.RefundInput{
			TransactionID: txID,
			Amount:        amount,
			Reason:        req.Reason,
			Actor:         id.Actor,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(paymentResponse{
			TransactionID: res.Transaction.ID,
			Status:        string(res.Transaction.Status),
			Amount:        res.Transaction.Amount.StringFixed(2),
			AuditID:       res.AuditID,
		})
	}
}

// HandleGatewayConfirmation feeds asynchronous gateway results back into
// the transaction state machine.
func HandleGatewayConfirmation(svc PaymentExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req gatewayConfirmRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.GatewayRef == "" {
			writeError(w, http.StatusBadRequest, codeValidation, "gateway_ref is required")
			return
		}

		id := identityFromContext(r.Context())
		tx, err := svc.ConfirmGateway(r.Context(), req.GatewayRef, req.Confirmed, id.Actor)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(paymentResponse{
			TransactionID: tx.ID,
			Status:        string(tx.Status),
			Amount:        tx.Amount.StringFixed(2),
		})
	}
}

func parseRefundPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "payments" || parts[1] == "" || parts[2] != "refund" {
		return "", false
	}
	return parts[1], true
}

type executePaymentRequest struct {
	Amount               string            `json:"amount"`
	Type                 string            `json:"type"`
	Method               string            `json:"method"`
	SourceAccountID      string            `json:"source_account_id"`
	DestinationAccountID string            `json:"destination_account_id"`
	Reference            string            `json:"reference"`
	IdempotencyKey       string            `json:"idempotency_key"`
	Metadata             map[string]string `json:"metadata"`
}

func (r executePaymentRequest) validate() error {
	if r.Amount == "" {
		return errors.New("amount is required")
	}
	if r.Type == "" {
		return errors.New("type is required")
	}
	return nil
}

type refundPaymentRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type gatewayConfirmRequest struct {
	GatewayRef string `json:"gateway_ref"`
	Confirmed  bool   `json:"confirmed"`
}

type paymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	AuditID       string `json:"audit_id,omitempty"`
	RiskScore     int    `json:"risk_score,omitempty"`
}
