package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Billing defaults applied when a settings source leaves a field unset.
const (
	DefaultBillingEnabled  = false
	DefaultIntervalMinutes = 1
	DefaultAutoSuspend     = true
	DefaultAutoResume      = true
	MaxIntervalMinutes     = 24 * 60
)

// ErrInvalidBillingConfig is returned when billing settings fail validation.
var ErrInvalidBillingConfig = errors.New("invalid billing config")

// BillingConfig is the normalized billing configuration read once per cycle.
type BillingConfig struct {
	Enabled         bool            `json:"enabled"`
	IntervalMinutes int             `json:"interval_minutes" validate:"min=1,max=1440"`
	RatePerGBHour   decimal.Decimal `json:"rate_per_gb_hour" validate:"-"`
	AutoSuspend     bool            `json:"auto_suspend"`
	AutoResume      bool            `json:"auto_resume"`
}

// Interval returns the cycle interval as a duration.
func (c BillingConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Chargeable reports whether a cycle should do any work.
func (c BillingConfig) Chargeable() bool {
	return c.Enabled && c.RatePerGBHour.IsPositive()
}

// BillingSettings is the raw form of the billing configuration as stored by a
// settings source. Nil fields take the named defaults.
type BillingSettings struct {
	Enabled         *bool   `json:"enabled,omitempty" yaml:"enabled"`
	IntervalMinutes *int    `json:"interval_minutes,omitempty" yaml:"interval_minutes"`
	RatePerGBHour   *string `json:"rate_per_gb_hour,omitempty" yaml:"rate_per_gb_hour"`
	AutoSuspend     *bool   `json:"auto_suspend,omitempty" yaml:"auto_suspend"`
	AutoResume      *bool   `json:"auto_resume,omitempty" yaml:"auto_resume"`
}

// Normalize fills defaults and validates the settings, producing the config
// the billing engine consumes.
func (s BillingSettings) Normalize() (BillingConfig, error) {
	cfg := BillingConfig{
		Enabled:         DefaultBillingEnabled,
		IntervalMinutes: DefaultIntervalMinutes,
		RatePerGBHour:   decimal.Zero,
		AutoSuspend:     DefaultAutoSuspend,
		AutoResume:      DefaultAutoResume,
	}

	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.IntervalMinutes != nil {
		cfg.IntervalMinutes = *s.IntervalMinutes
	}
	if s.AutoSuspend != nil {
		cfg.AutoSuspend = *s.AutoSuspend
	}
	if s.AutoResume != nil {
		cfg.AutoResume = *s.AutoResume
	}
	if s.RatePerGBHour != nil && *s.RatePerGBHour != "" {
		rate, err := decimal.NewFromString(*s.RatePerGBHour)
		if err != nil {
			return BillingConfig{}, fmt.Errorf("%w: rate_per_gb_hour %q: %v", ErrInvalidBillingConfig, *s.RatePerGBHour, err)
		}
		cfg.RatePerGBHour = rate
	}

	if err := validate.Struct(cfg); err != nil {
		return BillingConfig{}, fmt.Errorf("%w: interval_minutes must be between 1 and %d, got %d",
			ErrInvalidBillingConfig, MaxIntervalMinutes, cfg.IntervalMinutes)
	}
	if cfg.RatePerGBHour.IsNegative() {
		return BillingConfig{}, fmt.Errorf("%w: rate_per_gb_hour must not be negative", ErrInvalidBillingConfig)
	}

	return cfg, nil
}

// Settings converts a normalized config back to its stored form.
func (c BillingConfig) Settings() BillingSettings {
	rate := c.RatePerGBHour.String()
	return BillingSettings{
		Enabled:         &c.Enabled,
		IntervalMinutes: &c.IntervalMinutes,
		RatePerGBHour:   &rate,
		AutoSuspend:     &c.AutoSuspend,
		AutoResume:      &c.AutoResume,
	}
}
