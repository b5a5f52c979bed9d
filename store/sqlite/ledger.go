package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/balance"
)

// =============================================================================
// LEDGER STORE (balance.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx balance.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_transactions
		(id, employee_id, tx_type, delta_days, delta_hours, reference_id, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.EmployeeID,
		string(tx.Type),
		tx.DeltaDays.String(),
		tx.DeltaHours.String(),
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return balance.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// LoadTransactions returns an employee's transactions in append order.
func (s *Store) LoadTransactions(ctx context.Context, employeeID string) ([]balance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, tx_type, delta_days, delta_hours, reference_id, reason, idempotency_key, created_at
		FROM balance_transactions
		WHERE employee_id = ?
		ORDER BY seq
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []balance.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM balance_transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func scanTransaction(rows *sql.Rows) (balance.Transaction, error) {
	var (
		tx             balance.Transaction
		txType         string
		deltaDays      string
		deltaHours     string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EmployeeID, &txType, &deltaDays, &deltaHours,
		&referenceID, &reason, &idempotencyKey, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = balance.TransactionType(txType)
	if tx.DeltaDays, err = decimal.NewFromString(deltaDays); err != nil {
		return tx, fmt.Errorf("parse delta_days: %w", err)
	}
	if tx.DeltaHours, err = decimal.NewFromString(deltaHours); err != nil {
		return tx, fmt.Errorf("parse delta_hours: %w", err)
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return tx, err
	}
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String

	return tx, nil
}

var _ balance.Store = (*Store)(nil)
