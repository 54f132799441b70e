package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// maxBodyBytes leaves room for a base64 encoded proof.
const maxBodyBytes = domain.MaxProofSize*4/3 + 64<<10

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError writes err with its mapped status and machine readable type.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, mapDomainError(err), dto.ErrorResponse{
		Error:   message,
		Message: err.Error(),
		Type:    usecase.ErrorType(err),
	})
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLoanNotFound),
		errors.Is(err, domain.ErrLoanGroupNotFound),
		errors.Is(err, domain.ErrInstallmentMissing),
		errors.Is(err, domain.ErrProofNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStaleState),
		errors.Is(err, domain.ErrLoanBusy),
		errors.Is(err, domain.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentTooLow),
		errors.Is(err, domain.ErrSequenceViolation),
		errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrAlreadyReduced):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInsufficientRole):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
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

// installmentNumber reads the {number} path parameter.
func installmentNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: installment number must be a positive integer", domain.ErrInvalidInput)
	}
	return n, nil
}

// advisorID returns the caller's id when the caller is an advisor. Admins
// and unauthenticated deployments name the advisor in the body.
func advisorID(r *http.Request) string {
	if u, ok := domain.UserFromContext(r.Context()); ok && u.Role == domain.RoleAdvisor {
		return u.ID
	}
	return ""
}
