package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/iho/jibledger/internal/adapter/http/dto"
	"github.com/iho/jibledger/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError maps err to a status and writes it. Server errors are
// logged with the request logger and their details are not exposed.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := mapDomainError(err)
	resp := dto.ErrorResponse{Error: message, Code: errorCode(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(message)
		resp.Message = ""
	}
	writeJSON(w, status, resp)
}

// mapDomainError maps domain errors to HTTP status codes. Validation errors
// are checked first because some of them also wrap ErrInvalidStateTransition.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrLedgerNotFound),
		errors.Is(err, domain.ErrObligationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAllocationInput),
		errors.Is(err, domain.ErrInvalidWorkingInterest),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidPaymentAmount),
		errors.Is(err, domain.ErrInvalidPenaltyAmount),
		errors.Is(err, domain.ErrDisputeReasonRequired),
		errors.Is(err, domain.ErrInvalidLedger):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrExternalReferenceConflict),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrNotYetDue),
		errors.Is(err, domain.ErrLedgerNotSent),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrLedgerNotFound, "ledger_not_found"},
	{domain.ErrObligationNotFound, "obligation_not_found"},
	{domain.ErrInvalidWorkingInterest, "invalid_working_interest"},
	{domain.ErrInvalidAllocationInput, "invalid_allocation_input"},
	{domain.ErrInvalidCurrency, "invalid_currency"},
	{domain.ErrInvalidPaymentAmount, "invalid_payment_amount"},
	{domain.ErrInvalidPenaltyAmount, "invalid_penalty_amount"},
	{domain.ErrDisputeReasonRequired, "dispute_reason_required"},
	{domain.ErrInvalidLedger, "invalid_ledger"},
	{domain.ErrExternalReferenceConflict, "external_reference_conflict"},
	{domain.ErrAlreadyTerminal, "already_terminal"},
	{domain.ErrNotYetDue, "not_yet_due"},
	{domain.ErrLedgerNotSent, "ledger_not_sent"},
	{domain.ErrConcurrentModification, "concurrent_modification"},
	{domain.ErrInvalidStateTransition, "invalid_state_transition"},
}

// errorCode returns a stable machine-readable code for err.
func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}
