package billing

import (
	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/model"
)

var (
	mbPerGB        = decimal.NewFromInt(1024)
	minutesPerHour = decimal.NewFromInt(60)
)

// Cost is the charge for running ramMB of memory for intervalMinutes at
// ratePerGBHour, rounded up to the smallest coin unit. Non-positive inputs
// cost nothing.
func Cost(ramMB int, ratePerGBHour decimal.Decimal, intervalMinutes int) decimal.Decimal {
	if ramMB <= 0 || intervalMinutes <= 0 || !ratePerGBHour.IsPositive() {
		return decimal.Zero
	}
	raw := decimal.NewFromInt(int64(ramMB)).
		Mul(ratePerGBHour).
		Mul(decimal.NewFromInt(int64(intervalMinutes))).
		Div(mbPerGB.Mul(minutesPerHour))
	return model.RoundUpCoins(raw)
}
