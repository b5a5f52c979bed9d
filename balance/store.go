package balance

import (
	"context"
	"errors"
)

// ErrDuplicateIdempotencyKey is returned when a transaction with the same
// idempotency key already exists. Retries of an applied debit hit this.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// Store persists ledger transactions.
// Append-only: there is no Update and no Delete. Corrections are reversals.
type Store interface {
	// Append persists tx atomically with its idempotency check.
	// Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) error

	// LoadTransactions returns an employee's transactions in append order.
	LoadTransactions(ctx context.Context, employeeID string) ([]Transaction, error)

	// Exists checks if an idempotency key was already used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
