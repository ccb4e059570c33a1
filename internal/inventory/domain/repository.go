package domain

import (
	"context"
)

// StockDebitRepository persists the per-order deduction ledger
type StockDebitRepository interface {
	// Insert stores a debit record. The unique orderId index turns a
	// replayed insert into ErrAlreadyDebited. Callers pass a session
	// context so the insert commits or aborts with the stock decrements.
	Insert(ctx context.Context, debit *StockDebit) error

	// MarkReversed flips a debit from debited to reversed in one
	// conditional update and returns the debit that was flipped.
	// ErrDebitNotFound when no debit in debited state exists, which is
	// the signal that a restore has nothing to undo.
	MarkReversed(ctx context.Context, orderID string) (*StockDebit, error)

	GetByOrderID(ctx context.Context, orderID string) (*StockDebit, error)
}
