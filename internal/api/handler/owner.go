package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	mw "github.com/edvin/hosting-billing/internal/api/middleware"
	"github.com/edvin/hosting-billing/internal/api/request"
	"github.com/edvin/hosting-billing/internal/api/response"
	"github.com/edvin/hosting-billing/internal/model"
)

type OwnerLedger interface {
	GetOwner(ctx context.Context, ownerID string) (*model.Owner, error)
	Credit(ctx context.Context, ownerID string, amount decimal.Decimal, description string, metadata map[string]string) (*model.LedgerEntry, error)
	ListEntries(ctx context.Context, ownerID string, limit int) ([]model.LedgerEntry, error)
}

type Owner struct {
	ledger OwnerLedger
}

func NewOwner(ledger OwnerLedger) *Owner {
	return &Owner{ledger: ledger}
}

// Credit tops up an owner's balance. Amounts are rounded up to the smallest
// coin unit.
func (h *Owner) Credit(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.CreditOwner
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.ledger.Credit(r.Context(), id, req.Amount, req.Description, map[string]string{
		"actor": mw.Actor(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, entry)
}

type ledgerResponse struct {
	Owner   model.Owner         `json:"owner"`
	Entries []model.LedgerEntry `json:"entries"`
}

func (h *Owner) Ledger(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner, err := h.ledger.GetOwner(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entries, err := h.ledger.ListEntries(r.Context(), id, request.ParseLimit(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	response.WriteJSON(w, http.StatusOK, ledgerResponse{Owner: *owner, Entries: entries})
}
