package request

import (
	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/model"
)

// UpdateBillingConfig is a partial update; omitted fields keep their current value.
type UpdateBillingConfig struct {
	Enabled         *bool   `json:"enabled"`
	IntervalMinutes *int    `json:"interval_minutes" validate:"omitempty,min=1,max=1440"`
	RatePerGBHour   *string `json:"rate_per_gb_hour" validate:"omitempty,numeric"`
	AutoSuspend     *bool   `json:"auto_suspend"`
	AutoResume      *bool   `json:"auto_resume"`
}

// Merge overlays the update onto current.
func (u UpdateBillingConfig) Merge(current model.BillingConfig) model.BillingSettings {
	s := current.Settings()
	if u.Enabled != nil {
		s.Enabled = u.Enabled
	}
	if u.IntervalMinutes != nil {
		s.IntervalMinutes = u.IntervalMinutes
	}
	if u.RatePerGBHour != nil {
		s.RatePerGBHour = u.RatePerGBHour
	}
	if u.AutoSuspend != nil {
		s.AutoSuspend = u.AutoSuspend
	}
	if u.AutoResume != nil {
		s.AutoResume = u.AutoResume
	}
	return s
}

type InvalidateCache struct {
	Pattern string `json:"pattern" validate:"required,max=256"`
}

type CreditOwner struct {
	Amount      decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Description string          `json:"description" validate:"required,max=255"`
}
