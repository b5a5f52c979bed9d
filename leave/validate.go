package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/calendar"
)

// SpecialLeadDays is how many calendar days ahead a special leave must start.
const SpecialLeadDays = 14

// Rejection reasons, as shown to the requester.
const (
	ReasonNotFuture      = "Leave must be scheduled for the future"
	ReasonEndBeforeStart = "End date must be after start date"
	ReasonWeekend        = "Leaves cannot be scheduled on weekends"
	ReasonOverlap        = "Leave overlaps with existing leave"
	ReasonSpecialLead    = "Special leaves must be requested 2 weeks in advance"
)

// CheckInput verifies the request is well formed. It runs before the rules.
func CheckInput(req Request) error {
	if strings.TrimSpace(req.Label) == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidInput)
	}
	return nil
}

// Validate decides whether req may be created for requesterID given the
// records already stored. Rules run in order and the first failure wins:
//
//	future_dated, range_order, no_weekends, no_overlap, special_lead_time
//
// Records of other employees and CLOSED records are ignored for overlap.
// Validate is pure; now is the evaluation instant.
func Validate(req Request, requesterID string, existing []Record, now time.Time) error {
	if !req.Start.After(now) {
		return reject(RuleFutureDated, ReasonNotFuture)
	}

	if !req.End.After(req.Start) {
		return reject(RuleRangeOrder, ReasonEndBeforeStart)
	}

	if _, found := calendar.FirstWeekend(req.Start, req.End); found {
		return reject(RuleNoWeekends, ReasonWeekend)
	}

	for _, r := range existing {
		if r.EmployeeID != requesterID || r.Status() == StatusClosed {
			continue
		}
		if r.Overlaps(req.Start, req.End) {
			return reject(RuleNoOverlap, ReasonOverlap)
		}
	}

	if req.Kind.IsSpecial() && req.Start.Before(now.AddDate(0, 0, SpecialLeadDays)) {
		return reject(RuleSpecialLeadTime, ReasonSpecialLead)
	}

	return nil
}
