/*
Package leave is the leave request validation and lifecycle engine.

PURPOSE:
  Employees submit leave requests, managers approve or reject them. This
  package owns the records, the rules a request must pass, and the state
  machine. Balance consumption is delegated to the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind:     standard or special leave; a special kind always carries its type
  - Decision: who decided and how; nil while the request is pending
  - Record:   persisted leave with totals computed once at creation
  - Request:  caller input for validation and creation

STATE MACHINE:
  ┌───────────┐  Approve(true)   ┌──────────┐
  │ REQUESTED │ ───────────────▶ │ APPROVED │ ── Delete (future start only)
  └───────────┘                  └──────────┘
        │  Approve(false)        ┌──────────┐
        └──────────────────────▶ │  CLOSED  │ ── Delete
                                 └──────────┘
  Status is derived from Decision, so an approved record without an
  approver cannot be built.

SEE ALSO:
  - validate.go: acceptance rules
  - service.go: lifecycle operations
  - errors.go: error taxonomy
*/
package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusClosed    Status = "CLOSED"
)

// =============================================================================
// KIND - Standard or special leave
// =============================================================================

type SpecialType string

const (
	SpecialMoving       SpecialType = "MOVING"
	SpecialWedding      SpecialType = "WEDDING"
	SpecialChildBirth   SpecialType = "CHILD_BIRTH"
	SpecialParentalCare SpecialType = "PARENTAL_CARE"
)

// SpecialTypes lists every recognized special leave type.
var SpecialTypes = []SpecialType{SpecialMoving, SpecialWedding, SpecialChildBirth, SpecialParentalCare}

// ParseSpecialType returns the SpecialType named s.
func ParseSpecialType(s string) (SpecialType, error) {
	for _, t := range SpecialTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown special leave type %q", ErrInvalidInput, s)
}

// Kind is the leave variant. The zero value is a standard leave.
type Kind struct {
	special SpecialType
}

func Standard() Kind { return Kind{} }

func Special(t SpecialType) Kind { return Kind{special: t} }

// KindOf builds a Kind from the flag-plus-type shape used on the wire.
// A special flag without a type, or a type without the flag, is invalid.
func KindOf(isSpecial bool, specialType string) (Kind, error) {
	if !isSpecial {
		if specialType != "" {
			return Kind{}, fmt.Errorf("%w: special type %q given for a standard leave", ErrInvalidInput, specialType)
		}
		return Standard(), nil
	}
	if specialType == "" {
		return Kind{}, fmt.Errorf("%w: special leave requires a type", ErrInvalidInput)
	}
	t, err := ParseSpecialType(specialType)
	if err != nil {
		return Kind{}, err
	}
	return Special(t), nil
}

func (k Kind) IsSpecial() bool { return k.special != "" }

// SpecialType returns the special type, or "" for a standard leave.
func (k Kind) SpecialType() SpecialType { return k.special }

func (k Kind) String() string {
	if k.IsSpecial() {
		return "special:" + string(k.special)
	}
	return "standard"
}

// =============================================================================
// RECORD
// =============================================================================

type Decision struct {
	ApproverID string
	Approved   bool
	DecidedAt  time.Time
}

type Record struct {
	ID         string
	Label      string
	EmployeeID string
	Start      time.Time
	End        time.Time
	Kind       Kind
	TotalDays  decimal.Decimal
	TotalHours decimal.Decimal
	Decision   *Decision
	CreatedAt  time.Time
}

func (r Record) Status() Status {
	switch {
	case r.Decision == nil:
		return StatusRequested
	case r.Decision.Approved:
		return StatusApproved
	default:
		return StatusClosed
	}
}

// ApproverID returns the deciding approver, or "" while pending.
func (r Record) ApproverID() string {
	if r.Decision == nil {
		return ""
	}
	return r.Decision.ApproverID
}

// Overlaps reports whether [start, end] intersects the record's range.
// Touching endpoints count as overlap.
func (r Record) Overlaps(start, end time.Time) bool {
	return !(r.End.Before(start) || r.Start.After(end))
}

// Clone returns a copy that shares no pointers with r.
func (r Record) Clone() Record {
	if r.Decision != nil {
		d := *r.Decision
		r.Decision = &d
	}
	return r
}

// =============================================================================
// REQUEST
// =============================================================================

type Request struct {
	Label string
	Start time.Time
	End   time.Time
	Kind  Kind
}
