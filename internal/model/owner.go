package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Owner struct {
	ID          string          `json:"id" db:"id"`
	CoinBalance decimal.Decimal `json:"coin_balance" db:"coin_balance"`
	IsBanned    bool            `json:"is_banned" db:"is_banned"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// CanAfford reports whether the owner's balance covers amount.
func (o Owner) CanAfford(amount decimal.Decimal) bool {
	return o.CoinBalance.GreaterThanOrEqual(amount)
}
