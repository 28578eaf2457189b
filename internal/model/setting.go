package model

// Setting is one key/value row of the platform settings table.
type Setting struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}

// Billing setting keys in the platform settings table.
const (
	SettingBillingEnabled         = "billing.enabled"
	SettingBillingIntervalMinutes = "billing.interval_minutes"
	SettingBillingRatePerGBHour   = "billing.rate_per_gb_hour"
	SettingBillingAutoSuspend     = "billing.auto_suspend"
	SettingBillingAutoResume      = "billing.auto_resume"
)
