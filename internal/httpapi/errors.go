package httpapi

import (
	"errors"
	"net/http"

	"ai_selector/internal/billing"
	"ai_selector/internal/generation"
	"ai_selector/internal/ledger"
	"ai_selector/internal/models"
	"ai_selector/internal/queue"
	"ai_selector/internal/utils"
)

// errServiceUnavailable is the body of every 503 caused by the selector
// having nothing to offer.
const errServiceUnavailable = "service temporarily unavailable"

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvalidGeneration),
		errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, billing.ErrInvalidRange),
		errors.Is(err, models.ErrInvalidBudget):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrBudgetExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrReadOnlyBudgets):
		return http.StatusMethodNotAllowed
	case errors.Is(err, queue.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrCatalogUnavailable),
		errors.Is(err, generation.ErrNoProviderAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, generation.ErrAllProvidersFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err with its mapped status. Server-side
// failures are logged and answered with a generic message.
func (d *Dependencies) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusServiceUnavailable:
		utils.RespondWithError(w, status, errServiceUnavailable)
	case status == http.StatusBadGateway:
		d.logger.Warn("Every provider failed", "path", r.URL.Path, "error", err)
		utils.RespondWithError(w, status, "all providers failed")
	case status >= http.StatusInternalServerError:
		d.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		utils.RespondWithError(w, status, "internal error")
	default:
		utils.RespondWithError(w, status, err.Error())
	}
}
