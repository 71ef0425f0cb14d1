package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Error codes carried in error bodies.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeUnknownLocation   = "unknown_location"
	CodeAlreadyExists     = "already_exists"
	CodeOwnershipConflict = "ownership_conflict"
	CodeVersionConflict   = "version_conflict"
	CodeIllegalTransition = "illegal_transition"
	CodeIntegrityDrift    = "integrity_drift"
	CodeSyncIncomplete    = "sync_incomplete"
	CodePolicyExhausted   = "policy_exhausted"
	CodeInvalidResult     = "invalid_result"
	CodeInternal          = "internal"
)

var errorTable = []struct {
	sentinel error
	status   int
	code     string
}{
	{domain.ErrUOWNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrUnknownLocation, http.StatusUnprocessableEntity, CodeUnknownLocation},
	{domain.ErrAlreadyExists, http.StatusConflict, CodeAlreadyExists},
	{domain.ErrOwnershipConflict, http.StatusConflict, CodeOwnershipConflict},
	{domain.ErrVersionConflict, http.StatusConflict, CodeVersionConflict},
	{domain.ErrIllegalTransition, http.StatusUnprocessableEntity, CodeIllegalTransition},
	{domain.ErrIntegrityDrift, http.StatusPreconditionFailed, CodeIntegrityDrift},
	{domain.ErrSynchronizationIncomplete, http.StatusConflict, CodeSyncIncomplete},
	{domain.ErrPolicyExhausted, http.StatusUnprocessableEntity, CodePolicyExhausted},
	{domain.ErrInvalidResult, http.StatusUnprocessableEntity, CodeInvalidResult},
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIError is a non-2xx response decoded by the Client. It matches the
// domain sentinel its code stands for, so errors.Is works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (e *APIError) Is(target error) bool {
	for _, row := range errorTable {
		if row.code == e.Code && row.sentinel == target {
			return true
		}
	}
	return false
}

func classify(err error) (int, string) {
	for _, row := range errorTable {
		if errors.Is(err, row.sentinel) {
			return row.status, row.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "err", err)
	}
	writeJSON(w, logger, status, ErrorBody{Error: err.Error(), Code: code})
}

func badRequest(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Debug("Invalid request", "err", err)
	writeJSON(w, logger, http.StatusBadRequest, ErrorBody{Error: err.Error(), Code: CodeInvalidRequest})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}
