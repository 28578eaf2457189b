package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/model"
)

func TestOwnerCredit(t *testing.T) {
	t.Run("credits", func(t *testing.T) {
		m := &mockLedger{}
		entry := &model.LedgerEntry{
			ID:           "e1",
			OwnerID:      "o1",
			Type:         model.LedgerCredit,
			Amount:       decimal.RequireFromString("25"),
			BalanceAfter: decimal.RequireFromString("30.5"),
		}
		m.On("Credit", mock.Anything, "o1", "25", "manual top-up", map[string]string{"actor": "admin"}).Return(entry, nil)
		rec := httptest.NewRecorder()
		req := withChiURLParam(newRequestRaw(http.MethodPost, "/admin/owners/o1/credit", `{"amount":"25","description":"manual top-up"}`), "id", "o1")

		NewOwner(m).Credit(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var got model.LedgerEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "30.5", got.BalanceAfter.String())
		m.AssertExpectations(t)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		m := &mockLedger{}
		rec := httptest.NewRecorder()
		req := withChiURLParam(newRequestRaw(http.MethodPost, "/admin/owners/o1/credit", `{"amount":"0","description":"x"}`), "id", "o1")

		NewOwner(m).Credit(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		m.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown owner", func(t *testing.T) {
		m := &mockLedger{}
		m.On("Credit", mock.Anything, "ghost", "1", "x", mock.Anything).Return(nil, fmt.Errorf("credit owner ghost: %w", core.ErrNotFound))
		rec := httptest.NewRecorder()
		req := withChiURLParam(newRequestRaw(http.MethodPost, "/admin/owners/ghost/credit", `{"amount":1,"description":"x"}`), "id", "ghost")

		NewOwner(m).Credit(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestOwnerLedger(t *testing.T) {
	t.Run("lists entries", func(t *testing.T) {
		m := &mockLedger{}
		m.On("GetOwner", mock.Anything, "o1").Return(&model.Owner{ID: "o1", CoinBalance: decimal.NewFromInt(8)}, nil)
		m.On("ListEntries", mock.Anything, "o1", 10).Return([]model.LedgerEntry{
			{ID: "e2", Type: model.LedgerDebit, Amount: decimal.NewFromInt(2), BalanceAfter: decimal.NewFromInt(8)},
		}, nil)
		rec := httptest.NewRecorder()
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/admin/owners/o1/ledger?limit=10", nil), "id", "o1")

		NewOwner(m).Ledger(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Owner   model.Owner         `json:"owner"`
			Entries []model.LedgerEntry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "8", body.Owner.CoinBalance.String())
		require.Len(t, body.Entries, 1)
		assert.Equal(t, model.LedgerDebit, body.Entries[0].Type)
	})

	t.Run("empty ledger is an empty list", func(t *testing.T) {
		m := &mockLedger{}
		m.On("GetOwner", mock.Anything, "o1").Return(&model.Owner{ID: "o1"}, nil)
		m.On("ListEntries", mock.Anything, "o1", 50).Return(nil, nil)
		rec := httptest.NewRecorder()
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/admin/owners/o1/ledger", nil), "id", "o1")

		NewOwner(m).Ledger(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"entries":[]`)
	})

	t.Run("unknown owner", func(t *testing.T) {
		m := &mockLedger{}
		m.On("GetOwner", mock.Anything, "ghost").Return(nil, core.ErrNotFound)
		rec := httptest.NewRecorder()
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/admin/owners/ghost/ledger", nil), "id", "ghost")

		NewOwner(m).Ledger(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
