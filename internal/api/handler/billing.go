package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/api/request"
	"github.com/edvin/hosting-billing/internal/api/response"
	"github.com/edvin/hosting-billing/internal/billing"
	"github.com/edvin/hosting-billing/internal/model"
)

// ConfigSaver persists billing configuration. It is nil when the config comes
// from a read-only source.
type ConfigSaver interface {
	SaveBillingConfig(ctx context.Context, cfg model.BillingConfig) error
}

type CycleScheduler interface {
	TriggerNow(ctx context.Context) (billing.Report, bool, error)
	Reload(ctx context.Context) error
	Running() bool
	Interval() time.Duration
}

type Billing struct {
	config    billing.ConfigSource
	saver     ConfigSaver
	scheduler CycleScheduler
}

func NewBilling(config billing.ConfigSource, saver ConfigSaver, scheduler CycleScheduler) *Billing {
	return &Billing{config: config, saver: saver, scheduler: scheduler}
}

type billingConfigResponse struct {
	Config        model.BillingConfig `json:"config"`
	Running       bool                `json:"running"`
	ArmedInterval string              `json:"armed_interval,omitempty"`
	ReloadError   string              `json:"reload_error,omitempty"`
}

func (h *Billing) view(cfg model.BillingConfig) billingConfigResponse {
	resp := billingConfigResponse{Config: cfg, Running: h.scheduler.Running()}
	if d := h.scheduler.Interval(); d > 0 {
		resp.ArmedInterval = d.String()
	}
	return resp
}

func (h *Billing) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.BillingConfig(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, h.view(cfg))
}

// UpdateConfig merges the body onto the current config, persists it and
// re-arms the scheduler.
func (h *Billing) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if h.saver == nil {
		response.WriteError(w, http.StatusMethodNotAllowed, "billing config is read-only in this deployment")
		return
	}

	var req request.UpdateBillingConfig
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := h.config.BillingConfig(r.Context())
	if err != nil && !errors.Is(err, model.ErrInvalidBillingConfig) {
		writeServiceError(w, r, err)
		return
	}
	cfg, err := req.Merge(current).Normalize()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.saver.SaveBillingConfig(r.Context(), cfg); err != nil {
		writeServiceError(w, r, err)
		return
	}

	reloadErr := h.scheduler.Reload(r.Context())
	resp := h.view(cfg)
	if reloadErr != nil {
		zerolog.Ctx(r.Context()).Warn().Err(reloadErr).Msg("reload scheduler after config update")
		resp.ReloadError = reloadErr.Error()
	}
	response.WriteJSON(w, http.StatusOK, resp)
}

// Run starts a cycle now and returns its report. The cycle is not tied to the
// client connection.
func (h *Billing) Run(w http.ResponseWriter, r *http.Request) {
	report, ran, err := h.scheduler.TriggerNow(context.WithoutCancel(r.Context()))
	if !ran {
		response.WriteError(w, http.StatusConflict, "billing cycle already running")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, report)
}
