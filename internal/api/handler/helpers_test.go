package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/edvin/hosting-billing/internal/billing"
	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/provision"
	"github.com/edvin/hosting-billing/internal/queue"
)

func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", errors.Join(errors.New("get owner"), core.ErrNotFound), http.StatusNotFound},
		{"invalid amount", core.ErrInvalidAmount, http.StatusBadRequest},
		{"invalid config", model.ErrInvalidBillingConfig, http.StatusBadRequest},
		{"already suspended", billing.ErrAlreadySuspended, http.StatusConflict},
		{"not suspended", billing.ErrNotSuspended, http.StatusConflict},
		{"not suspendable", billing.ErrNotSuspendable, http.StatusConflict},
		{"circuit open", &queue.CircuitOpenError{Endpoint: provision.EndpointStatus}, http.StatusServiceUnavailable},
		{"upstream error", &provision.APIError{Method: "GET", Path: "/servers/x", Code: 500}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decodeErrorResponse(rec)["error"])
		})
	}
}
