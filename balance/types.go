/*
Package balance tracks leave entitlement consumption per employee.

PURPOSE:
  The ledger is the only place a leave balance changes. Every change is an
  append-only Transaction; the balance an employee sees is derived from the
  entitlement granted by their contract plus the sum of those transactions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: immutable ledger entry with signed day/hour deltas
  - Balance:     derived view (total, used, remaining) in days and hours
  - Entitlement: yearly grant scaled by contract hours

INVARIANT:
  Total = Used + Remaining, for days and for hours.
  Remaining is Total + sum(deltas); Used is Total - Remaining. Nothing else
  writes either figure, so the invariant cannot drift.

TRANSACTION TYPES:
  opening      One-time adjustment so a migrated employee starts at a known remaining balance
  consumption  Approved standard leave (negative delta)
  reversal     Approved leave removed before it started (positive delta)

SEE ALSO:
  - ledger.go: Debit, Credit, Open, Balance
  - store.go: persistence contract
*/
package balance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// TRANSACTION - Atomic change to an employee's remaining balance
// =============================================================================

type TransactionType string

const (
	TxOpening     TransactionType = "opening"
	TxConsumption TransactionType = "consumption"
	TxReversal    TransactionType = "reversal"
)

type Transaction struct {
	ID             string
	EmployeeID     string
	Type           TransactionType
	DeltaDays      decimal.Decimal
	DeltaHours     decimal.Decimal
	ReferenceID    string // leave ID for consumption/reversal
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// BALANCE - Derived view
// =============================================================================

type Balance struct {
	EmployeeID     string
	TotalDays      decimal.Decimal
	UsedDays       decimal.Decimal
	RemainingDays  decimal.Decimal
	TotalHours     decimal.Decimal
	UsedHours      decimal.Decimal
	RemainingHours decimal.Decimal
}

// =============================================================================
// ENTITLEMENT
// =============================================================================

// FullTimeDays is the yearly entitlement of a 40-hour contract.
const FullTimeDays = 25

// FullTimeHours is the weekly length of a full-time contract.
const FullTimeHours = 40

// Entitlement returns the yearly days and hours granted to a contract.
// Part-time contracts are scaled and rounded half away from zero to whole days.
func Entitlement(contractHours float64) (days, hours decimal.Decimal) {
	if contractHours == FullTimeHours {
		days = decimal.NewFromInt(FullTimeDays)
	} else {
		days = decimal.NewFromInt(FullTimeDays).
			Mul(decimal.NewFromFloat(contractHours)).
			Div(decimal.NewFromInt(FullTimeHours)).
			Round(0)
	}
	return days, days.Mul(decimal.NewFromInt(calendar.HoursPerDay))
}

// Derive builds the balance view from an entitlement and the ledger history.
func Derive(employeeID string, contractHours float64, txs []Transaction) Balance {
	totalDays, totalHours := Entitlement(contractHours)

	remainingDays, remainingHours := totalDays, totalHours
	for _, tx := range txs {
		remainingDays = remainingDays.Add(tx.DeltaDays)
		remainingHours = remainingHours.Add(tx.DeltaHours)
	}

	return Balance{
		EmployeeID:     employeeID,
		TotalDays:      totalDays,
		UsedDays:       totalDays.Sub(remainingDays),
		RemainingDays:  remainingDays,
		TotalHours:     totalHours,
		UsedHours:      totalHours.Sub(remainingHours),
		RemainingHours: remainingHours,
	}
}
