package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/directory"
	"go.uber.org/zap"
)

// ContractLookup resolves contract hours. directory.Directory satisfies it.
type ContractLookup interface {
	ContractHoursOf(ctx context.Context, employeeID string) (float64, error)
}

// Ledger is the Balance Ledger. It never mutates a stored figure; every
// operation appends a transaction and every read derives the balance.
type Ledger struct {
	store     Store
	contracts ContractLookup
	logger    *zap.Logger
	now       func() time.Time
}

func NewLedger(store Store, contracts ContractLookup, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     store,
		contracts: contracts,
		logger:    logger.Named("balance.ledger"),
		now:       time.Now,
	}
}

// Balance returns the current balance of an employee.
func (l *Ledger) Balance(ctx context.Context, employeeID string) (Balance, error) {
	hours, err := l.contracts.ContractHoursOf(ctx, employeeID)
	if err != nil {
		return Balance{}, fmt.Errorf("balance for %s: %w", employeeID, err)
	}

	txs, err := l.store.LoadTransactions(ctx, employeeID)
	if err != nil {
		return Balance{}, fmt.Errorf("load transactions: %w", err)
	}

	return Derive(employeeID, hours, txs), nil
}

// Debit consumes days and hours for an approved leave. The remaining balance
// may go negative; that is representable, not an error.
// Returns directory.ErrEmployeeNotFound (wrapped) for unknown employees and
// ErrDuplicateIdempotencyKey if this leave was already debited.
func (l *Ledger) Debit(ctx context.Context, employeeID string, days, hours decimal.Decimal, referenceID string) error {
	return l.append(ctx, Transaction{
		EmployeeID:     employeeID,
		Type:           TxConsumption,
		DeltaDays:      days.Neg(),
		DeltaHours:     hours.Neg(),
		ReferenceID:    referenceID,
		Reason:         "leave approved",
		IdempotencyKey: fmt.Sprintf("leave-%s-consume", referenceID),
	})
}

// Credit restores days and hours, e.g. when an approved leave is removed.
func (l *Ledger) Credit(ctx context.Context, employeeID string, days, hours decimal.Decimal, referenceID, reason string) error {
	return l.append(ctx, Transaction{
		EmployeeID:     employeeID,
		Type:           TxReversal,
		DeltaDays:      days,
		DeltaHours:     hours,
		ReferenceID:    referenceID,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("leave-%s-reversal", referenceID),
	})
}

// Open sets the starting remaining balance of an employee whose history
// predates the ledger. It can be applied once per employee.
func (l *Ledger) Open(ctx context.Context, employeeID string, remainingDays, remainingHours decimal.Decimal) error {
	contractHours, err := l.contracts.ContractHoursOf(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("open balance for %s: %w", employeeID, err)
	}
	totalDays, totalHours := Entitlement(contractHours)

	return l.append(ctx, Transaction{
		EmployeeID:     employeeID,
		Type:           TxOpening,
		DeltaDays:      remainingDays.Sub(totalDays),
		DeltaHours:     remainingHours.Sub(totalHours),
		Reason:         "opening balance",
		IdempotencyKey: fmt.Sprintf("opening-%s", employeeID),
	})
}

// Transactions returns the ledger history of an employee, in append order.
func (l *Ledger) Transactions(ctx context.Context, employeeID string) ([]Transaction, error) {
	if _, err := l.contracts.ContractHoursOf(ctx, employeeID); err != nil {
		return nil, fmt.Errorf("transactions for %s: %w", employeeID, err)
	}
	return l.store.LoadTransactions(ctx, employeeID)
}

func (l *Ledger) append(ctx context.Context, tx Transaction) error {
	if _, err := l.contracts.ContractHoursOf(ctx, tx.EmployeeID); err != nil {
		if errors.Is(err, directory.ErrEmployeeNotFound) {
			l.logger.Warn("ledger append for unknown employee",
				zap.String("employee_id", tx.EmployeeID),
				zap.String("type", string(tx.Type)),
			)
		}
		return fmt.Errorf("%s for %s: %w", tx.Type, tx.EmployeeID, err)
	}

	tx.ID = uuid.NewString()
	tx.CreatedAt = l.now().UTC()

	if err := l.store.Append(ctx, tx); err != nil {
		return err
	}

	l.logger.Info("ledger transaction appended",
		zap.String("employee_id", tx.EmployeeID),
		zap.String("type", string(tx.Type)),
		zap.String("delta_days", tx.DeltaDays.String()),
		zap.String("delta_hours", tx.DeltaHours.String()),
		zap.String("reference_id", tx.ReferenceID),
	)
	return nil
}
