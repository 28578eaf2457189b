package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types.
const (
	LedgerCredit = "credit"
	LedgerDebit  = "debit"
)

// CoinScale is the number of decimal places in the smallest coin unit (0.01).
const CoinScale int32 = 2

// LedgerEntry is an immutable audit record of a balance change. BalanceAfter is
// the owner's balance immediately after this entry was applied.
type LedgerEntry struct {
	ID           string            `json:"id" db:"id"`
	OwnerID      string            `json:"owner_id" db:"owner_id"`
	Type         string            `json:"type" db:"type"`
	Amount       decimal.Decimal   `json:"amount" db:"amount"`
	Description  string            `json:"description" db:"description"`
	BalanceAfter decimal.Decimal   `json:"balance_after" db:"balance_after"`
	Metadata     map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// RoundUpCoins rounds d up to the smallest coin unit.
func RoundUpCoins(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(CoinScale)
}
