package leave

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday; +10 days is a Friday and +20 days a Monday.
var validateNow = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func requireRule(t *testing.T, err error, rule Rule, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej), "want *RejectionError, got %T", err)
	assert.Equal(t, rule, rej.Rule)
	assert.Equal(t, reason, rej.Reason)
}

func TestValidate_Accepts(t *testing.T) {
	req := Request{Label: "holiday", Start: at(2025, 9, 15, 9), End: at(2025, 9, 19, 17)}
	assert.NoError(t, Validate(req, "K123456", nil, validateNow))
}

func TestValidate_FutureDated(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
	}{
		{"past", validateNow.Add(-24 * time.Hour)},
		{"exactly now", validateNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Label: "x", Start: tt.start, End: tt.start.Add(time.Hour)}
			requireRule(t, Validate(req, "K123456", nil, validateNow), RuleFutureDated, ReasonNotFuture)
		})
	}
}

func TestValidate_RangeOrder(t *testing.T) {
	start := at(2025, 9, 15, 14)

	// Equal endpoints are rejected too.
	for _, end := range []time.Time{start, start.Add(-time.Hour)} {
		req := Request{Label: "x", Start: start, End: end}
		requireRule(t, Validate(req, "K123456", nil, validateNow), RuleRangeOrder, ReasonEndBeforeStart)
	}
}

func TestValidate_Weekends(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"starts on saturday", at(2025, 9, 13, 9), at(2025, 9, 15, 17)},
		{"ends on sunday", at(2025, 9, 12, 9), at(2025, 9, 14, 17)},
		{"spans a weekend", at(2025, 9, 11, 9), at(2025, 9, 16, 17)},
		{"same day saturday", at(2025, 9, 13, 9), at(2025, 9, 13, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Label: "x", Start: tt.start, End: tt.end, Kind: Special(SpecialMoving)}
			requireRule(t, Validate(req, "K123456", nil, validateNow), RuleNoWeekends, ReasonWeekend)
		})
	}
}

func TestValidate_OverlapWithApprovedRange(t *testing.T) {
	// GIVEN: an approved leave 2025-08-01..2025-08-15
	existing := []Record{{
		ID:         "existing",
		EmployeeID: "K123456",
		Start:      at(2025, 8, 1, 0),
		End:        at(2025, 8, 15, 0),
		Decision:   &Decision{ApproverID: "K789012", Approved: true},
	}}

	// WHEN: a new request starts on Tuesday 2025-08-05
	req := Request{Label: "x", Start: at(2025, 8, 5, 9), End: at(2025, 8, 5, 17)}

	// THEN: it is rejected as overlapping
	requireRule(t, Validate(req, "K123456", existing, validateNow), RuleNoOverlap, ReasonOverlap)
}

func TestValidate_Overlap(t *testing.T) {
	base := Record{
		ID:         "existing",
		EmployeeID: "K123456",
		Start:      at(2025, 9, 16, 9),
		End:        at(2025, 9, 17, 17),
	}

	tests := []struct {
		name       string
		start, end time.Time
		overlaps   bool
	}{
		{"inside", at(2025, 9, 16, 10), at(2025, 9, 16, 12), true},
		{"touching end", at(2025, 9, 17, 17), at(2025, 9, 18, 17), true},
		{"touching start", at(2025, 9, 15, 9), at(2025, 9, 16, 9), true},
		{"covering", at(2025, 9, 15, 9), at(2025, 9, 19, 17), true},
		{"before", at(2025, 9, 15, 9), at(2025, 9, 16, 8), false},
		{"after", at(2025, 9, 17, 18), at(2025, 9, 18, 17), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Label: "x", Start: tt.start, End: tt.end}
			err := Validate(req, "K123456", []Record{base}, validateNow)
			if tt.overlaps {
				requireRule(t, err, RuleNoOverlap, ReasonOverlap)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_OverlapIgnoresClosedAndOthers(t *testing.T) {
	closed := Record{
		EmployeeID: "K123456",
		Start:      at(2025, 9, 16, 9),
		End:        at(2025, 9, 16, 17),
		Decision:   &Decision{ApproverID: "K789012", Approved: false},
	}
	someoneElse := Record{
		EmployeeID: "K234567",
		Start:      at(2025, 9, 16, 9),
		End:        at(2025, 9, 16, 17),
	}

	req := Request{Label: "x", Start: at(2025, 9, 16, 9), End: at(2025, 9, 16, 17)}
	assert.NoError(t, Validate(req, "K123456", []Record{closed, someoneElse}, validateNow))
}

func TestValidate_SpecialLeadTime(t *testing.T) {
	in10 := validateNow.AddDate(0, 0, 10)
	req := Request{Label: "moving", Start: in10, End: in10.Add(3 * time.Hour), Kind: Special(SpecialMoving)}
	requireRule(t, Validate(req, "K123456", nil, validateNow), RuleSpecialLeadTime, ReasonSpecialLead)

	in20 := validateNow.AddDate(0, 0, 20)
	req = Request{Label: "moving", Start: in20, End: in20.Add(3 * time.Hour), Kind: Special(SpecialMoving)}
	assert.NoError(t, Validate(req, "K123456", nil, validateNow))

	exactly := validateNow.AddDate(0, 0, SpecialLeadDays)
	req = Request{Label: "wedding", Start: exactly, End: exactly.Add(time.Hour), Kind: Special(SpecialWedding)}
	assert.NoError(t, Validate(req, "K123456", nil, validateNow), "exactly two weeks ahead is enough")

	// Standard leave has no lead time.
	req = Request{Label: "holiday", Start: in10, End: in10.Add(3 * time.Hour)}
	assert.NoError(t, Validate(req, "K123456", nil, validateNow))
}

func TestValidate_RuleOrder(t *testing.T) {
	// Past and on a weekend: the first rule wins.
	req := Request{Label: "x", Start: at(2025, 6, 7, 9), End: at(2025, 6, 7, 12)}
	requireRule(t, Validate(req, "K123456", nil, validateNow), RuleFutureDated, ReasonNotFuture)

	// Weekend and overlapping: weekend is checked first.
	existing := []Record{{EmployeeID: "K123456", Start: at(2025, 9, 12, 9), End: at(2025, 9, 15, 17)}}
	req = Request{Label: "x", Start: at(2025, 9, 12, 9), End: at(2025, 9, 15, 17)}
	requireRule(t, Validate(req, "K123456", existing, validateNow), RuleNoWeekends, ReasonWeekend)
}

func TestCheckInput(t *testing.T) {
	assert.ErrorIs(t, CheckInput(Request{Label: "  ", Start: at(2025, 9, 15, 9), End: at(2025, 9, 15, 12)}), ErrInvalidInput)
	assert.ErrorIs(t, CheckInput(Request{Label: "x"}), ErrInvalidInput)
	assert.NoError(t, CheckInput(Request{Label: "x", Start: at(2025, 9, 15, 9), End: at(2025, 9, 15, 12)}))
}

func TestKindOf(t *testing.T) {
	k, err := KindOf(false, "")
	require.NoError(t, err)
	assert.False(t, k.IsSpecial())

	k, err = KindOf(true, "CHILD_BIRTH")
	require.NoError(t, err)
	assert.True(t, k.IsSpecial())
	assert.Equal(t, SpecialChildBirth, k.SpecialType())

	_, err = KindOf(true, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = KindOf(true, "SABBATICAL")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = KindOf(false, "WEDDING")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecord_Status(t *testing.T) {
	r := Record{}
	assert.Equal(t, StatusRequested, r.Status())
	assert.Empty(t, r.ApproverID())

	r.Decision = &Decision{ApproverID: "K789012", Approved: true}
	assert.Equal(t, StatusApproved, r.Status())
	assert.Equal(t, "K789012", r.ApproverID())

	r.Decision = &Decision{ApproverID: "K789012", Approved: false}
	assert.Equal(t, StatusClosed, r.Status())
}
