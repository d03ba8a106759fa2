package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nvila/courtbook/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeValidation         = "validation_failed"
	codeConflict           = "conflict"
	codeInsufficientFunds  = "insufficient_funds"
	codeDuplicate          = "duplicate_transaction"
	codeInvalidState       = "invalid_state"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Conflict
// responses carry the blocking interval in the message so the caller can
// pick another slot.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	var status int
	var code string
	switch kind {
	case domain.KindValidation:
		status, code = http.StatusBadRequest, codeValidation
	case domain.KindConflict:
		status, code = http.StatusConflict, codeConflict
	case domain.KindInsufficientFunds:
		status, code = http.StatusUnprocessableEntity, codeInsufficientFunds
	case domain.KindDuplicate:
		status, code = http.StatusConflict, codeDuplicate
	case domain.KindNotFound:
		status, code = http.StatusNotFound, codeNotFound
	case domain.KindInvalidState:
		status, code = http.StatusConflict, codeInvalidState
	default:
		if errors.Is(err, domain.ErrLockTimeout) {
			status, code = http.StatusServiceUnavailable, codeInternalError
		} else {
			status, code = http.StatusInternalServerError, codeInternalError
		}
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, merr := json.Marshal(errorResponse{
		Error:     msg,
		Code:      code,
		Kind:      string(kind),
		Retryable: domain.Retryable(err),
	})
	if merr != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
