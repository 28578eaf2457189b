package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/hosting-billing/internal/api/middleware"
	"github.com/edvin/hosting-billing/internal/api/request"
	"github.com/edvin/hosting-billing/internal/api/response"
	"github.com/edvin/hosting-billing/internal/billing"
	"github.com/edvin/hosting-billing/internal/model"
)

type ResourceLookup interface {
	GetByID(ctx context.Context, id string) (*model.ManagedResource, error)
}

type StatusReader interface {
	Status(ctx context.Context, externalID string) (model.ResourceStatus, error)
}

type ResourceManager interface {
	SuspendResource(ctx context.Context, resourceID, actor string) (*billing.Transition, error)
	UnsuspendResource(ctx context.Context, resourceID, actor string) (*billing.Transition, error)
}

type Resource struct {
	resources ResourceLookup
	status    StatusReader
	manager   ResourceManager
}

func NewResource(resources ResourceLookup, status StatusReader, manager ResourceManager) *Resource {
	return &Resource{resources: resources, status: status, manager: manager}
}

type resourceStatusResponse struct {
	Resource model.ManagedResource `json:"resource"`
	Remote   model.ResourceStatus  `json:"remote"`
}

// Status returns the local record together with the provisioning backend's
// view, which may be served from cache.
func (h *Resource) Status(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.resources.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	remote, err := h.status.Status(r.Context(), res.ExternalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, resourceStatusResponse{Resource: *res, Remote: remote})
}

func (h *Resource) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.SuspendResource)
}

func (h *Resource) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.manager.UnsuspendResource)
}

func (h *Resource) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*billing.Transition, error)) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tr, err := fn(r.Context(), id, mw.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, tr)
}
