package handler

import (
	"context"
	"net/http"

	"github.com/edvin/hosting-billing/internal/api/request"
	"github.com/edvin/hosting-billing/internal/api/response"
	"github.com/edvin/hosting-billing/internal/cache"
	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/queue"
)

type CacheAdmin interface {
	Stats(ctx context.Context) cache.Stats
	ClearAll(ctx context.Context) error
	Invalidate(ctx context.Context, pattern string) (int, error)
}

type QueueAdmin interface {
	Stats() queue.Stats
	Circuits() []model.CircuitState
	Pause()
	Resume()
}

// Ops exposes cache, queue and circuit breaker state to operators.
type Ops struct {
	cache CacheAdmin
	queue QueueAdmin
}

func NewOps(c CacheAdmin, q QueueAdmin) *Ops {
	return &Ops{cache: c, queue: q}
}

type statsResponse struct {
	Cache cache.Stats `json:"cache"`
	Queue queue.Stats `json:"queue"`
}

func (h *Ops) Stats(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, statsResponse{
		Cache: h.cache.Stats(r.Context()),
		Queue: h.queue.Stats(),
	})
}

func (h *Ops) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearAll(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteNoContent(w)
}

func (h *Ops) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req request.InvalidateCache
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.cache.Invalidate(r.Context(), req.Pattern)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (h *Ops) Circuits(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.queue.Circuits())
}

func (h *Ops) PauseQueue(w http.ResponseWriter, _ *http.Request) {
	h.queue.Pause()
	response.WriteJSON(w, http.StatusOK, h.queue.Stats())
}

func (h *Ops) ResumeQueue(w http.ResponseWriter, _ *http.Request) {
	h.queue.Resume()
	response.WriteJSON(w, http.StatusOK, h.queue.Stats())
}
