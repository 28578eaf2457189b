package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/platform"
)

// LedgerTx is the set of balance operations available inside one ledger
// transaction. Everything done through a LedgerTx commits or rolls back as a unit.
type LedgerTx interface {
	// DecrementBalance subtracts amount only if the balance covers it and
	// returns the new balance. Returns ErrInsufficientFunds otherwise.
	DecrementBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (decimal.Decimal, error)
	IncrementBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (decimal.Decimal, error)
	AppendEntry(ctx context.Context, entry *model.LedgerEntry) error
}

type LedgerService struct {
	db  DB
	now func() time.Time
}

func NewLedgerService(db DB) *LedgerService {
	return &LedgerService{db: db, now: time.Now}
}

// WithTransaction runs fn in a database transaction. fn returning an error
// rolls back every balance change and entry made through the LedgerTx.
func (s *LedgerService) WithTransaction(ctx context.Context, fn func(LedgerTx) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx, now: s.now})
	})
}

// Credit adds amount to the owner's balance and records a credit entry.
func (s *LedgerService) Credit(ctx context.Context, ownerID string, amount decimal.Decimal, description string, metadata map[string]string) (*model.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount = model.RoundUpCoins(amount)

	entry := &model.LedgerEntry{
		OwnerID:     ownerID,
		Type:        model.LedgerCredit,
		Amount:      amount,
		Description: description,
		Metadata:    metadata,
	}
	err := s.WithTransaction(ctx, func(tx LedgerTx) error {
		balance, err := tx.IncrementBalance(ctx, ownerID, amount)
		if err != nil {
			return err
		}
		entry.BalanceAfter = balance
		return tx.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("credit owner %s: %w", ownerID, err)
	}
	return entry, nil
}

// GetOwner returns the owner's current balance and ban flag.
func (s *LedgerService) GetOwner(ctx context.Context, ownerID string) (*model.Owner, error) {
	var (
		o       model.Owner
		balance string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, coin_balance::text, is_banned, created_at, updated_at FROM owners WHERE id = $1`, ownerID,
	).Scan(&o.ID, &balance, &o.IsBanned, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get owner %s: %w", ownerID, notFound(err))
	}
	if o.CoinBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("get owner %s: parse balance %q: %w", ownerID, balance, err)
	}
	return &o, nil
}

// ListEntries returns the owner's most recent ledger entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, ownerID string, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, type, amount::text, description, balance_after::text, metadata, created_at
		 FROM ledger_entries WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e             model.LedgerEntry
			amount, after string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Type, &amount, &e.Description, &after, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse ledger amount %q: %w", amount, err)
		}
		if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, fmt.Errorf("parse ledger balance %q: %w", after, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

type ledgerTx struct {
	tx  pgx.Tx
	now func() time.Time
}

func (l *ledgerTx) DecrementBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance string
	err := l.tx.QueryRow(ctx,
		`UPDATE owners SET coin_balance = coin_balance - $1::numeric, updated_at = now()
		 WHERE id = $2 AND coin_balance >= $1::numeric
		 RETURNING coin_balance::text`,
		amount.String(), ownerID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("debit owner %s: %w", ownerID, ErrInsufficientFunds)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit owner %s: %w", ownerID, err)
	}
	return decimal.NewFromString(balance)
}

func (l *ledgerTx) IncrementBalance(ctx context.Context, ownerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	var balance string
	err := l.tx.QueryRow(ctx,
		`UPDATE owners SET coin_balance = coin_balance + $1::numeric, updated_at = now()
		 WHERE id = $2
		 RETURNING coin_balance::text`,
		amount.String(), ownerID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit owner %s: %w", ownerID, notFound(err))
	}
	return decimal.NewFromString(balance)
}

func (l *ledgerTx) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if e.ID == "" {
		e.ID = platform.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	_, err := l.tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, owner_id, type, amount, description, balance_after, metadata, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7, $8)`,
		e.ID, e.OwnerID, e.Type, e.Amount.String(), e.Description, e.BalanceAfter.String(), e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append %s entry for %s: %w", e.Type, e.OwnerID, err)
	}
	return nil
}
