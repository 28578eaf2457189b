package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/api/response"
	"github.com/edvin/hosting-billing/internal/billing"
	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/queue"
)

// writeServiceError maps domain errors to HTTP statuses. Unknown errors are
// logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		circuitErr *queue.CircuitOpenError
		statusErr  queue.StatusCoder
	)
	switch {
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, model.ErrInvalidBillingConfig):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, billing.ErrAlreadySuspended),
		errors.Is(err, billing.ErrNotSuspended),
		errors.Is(err, billing.ErrNotSuspendable):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitErr):
		response.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &statusErr):
		response.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
