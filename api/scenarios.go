/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Populates the stores with a small team so the API can be explored
  without manual setup. Leave records are created through the lifecycle
  service, so every seeded record passed the same rules as a real request
  and every approval went through the ledger.

AVAILABLE SCENARIOS:
  team:  Two managers, three reports, opening balances only
  demo:  team + requested, approved and rejected leaves

THE TEAM:
  K789012 Alice Johnson  manager              40h  22 days left
  K890123 David Brown    manager              40h  25 days left
  K123456 John Doe       reports to K789012   40h  23 days left
  K234567 Jane Smith     reports to K789012   32h  18 days left
  K345678 Bob Wilson     reports to K890123   40h  20 days left

HOW SCENARIOS WORK:
  1. Reset the store (clear all data)
  2. Save employees, reload the approver policy
  3. Open balances in the ledger
  4. (demo) Request leaves relative to the current date, then decide some

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "demo"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	ScenarioTeam = "team"
	ScenarioDemo = "demo"
)

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioTeam,
		Name:        "Team",
		Description: "Two managers and three reports with opening balances",
	},
	{
		ID:          ScenarioDemo,
		Name:        "Demo",
		Description: "Team plus pending, approved and rejected leave requests",
	},
}

type seedEmployee struct {
	directory.Employee
	remainingDays int64
}

var team = []seedEmployee{
	{directory.Employee{ID: "K789012", Name: "Alice Johnson", IsManager: true, ContractHours: 40}, 22},
	{directory.Employee{ID: "K890123", Name: "David Brown", IsManager: true, ContractHours: 40}, 25},
	{directory.Employee{ID: "K123456", Name: "John Doe", ManagerID: "K789012", ContractHours: 40}, 23},
	{directory.Employee{ID: "K234567", Name: "Jane Smith", ManagerID: "K789012", ContractHours: 32}, 18},
	{directory.Employee{ID: "K345678", Name: "Bob Wilson", ManagerID: "K890123", ContractHours: 40}, 20},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// Load resets the store and seeds the named scenario.
func (h *Handler) Load(ctx context.Context, scenarioID string) error {
	var load func(context.Context) error
	switch scenarioID {
	case ScenarioTeam:
		load = h.loadTeam
	case ScenarioDemo:
		load = h.loadDemo
	default:
		return &errBadRequest{msg: fmt.Sprintf("Unknown scenario %q", scenarioID)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return fmt.Errorf("load scenario %s: %w", scenarioID, err)
	}

	h.currentScenario = scenarioID
	h.logger.Info("scenario loaded", zap.String("scenario", scenarioID))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadTeam(ctx context.Context) error {
	for _, e := range team {
		if err := h.Employees.SaveEmployee(ctx, e.Employee); err != nil {
			return fmt.Errorf("save employee %s: %w", e.ID, err)
		}
	}
	if h.Reloader != nil {
		if err := h.Reloader.Reload(ctx); err != nil {
			return fmt.Errorf("reload approver policy: %w", err)
		}
	}

	for _, e := range team {
		days := decimal.NewFromInt(e.remainingDays)
		hours := days.Mul(decimal.NewFromInt(calendar.HoursPerDay))
		if err := h.Ledger.Open(ctx, e.ID, days, hours); err != nil {
			return fmt.Errorf("open balance %s: %w", e.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadDemo(ctx context.Context) error {
	if err := h.loadTeam(ctx); err != nil {
		return err
	}

	// Week A starts on the second Monday from today, keeping every request
	// future-dated and the special leave past its lead time.
	weekA := nextMonday(h.now().In(h.Location)).AddDate(0, 0, 7)
	at := func(week, weekday, hour int) time.Time {
		d := weekA.AddDate(0, 0, 7*week+weekday)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, h.Location)
	}

	type seedLeave struct {
		employeeID string
		req        leave.Request
		approverID string
		approved   bool
	}
	leaves := []seedLeave{
		{"K123456", leave.Request{Label: "Dentist", Start: at(0, 0, 14), End: at(0, 0, 17), Kind: leave.Standard()}, "K789012", true},
		{"K123456", leave.Request{Label: "Moving day", Start: at(2, 2, 9), End: at(2, 2, 17), Kind: leave.Special(leave.SpecialMoving)}, "K789012", false},
		{"K234567", leave.Request{Label: "Summer holiday", Start: at(1, 0, 9), End: at(1, 4, 17), Kind: leave.Standard()}, "", false},
		{"K345678", leave.Request{Label: "Wedding", Start: at(3, 4, 9), End: at(3, 4, 17), Kind: leave.Special(leave.SpecialWedding)}, "", false},
		{"K789012", leave.Request{Label: "Conference", Start: at(0, 2, 9), End: at(0, 3, 17), Kind: leave.Standard()}, "", false},
	}

	for _, l := range leaves {
		rec, err := h.Leaves.Create(ctx, l.req, l.employeeID)
		if err != nil {
			return fmt.Errorf("request %q for %s: %w", l.req.Label, l.employeeID, err)
		}
		if l.approverID == "" {
			continue
		}
		if _, err := h.Leaves.Approve(ctx, rec.ID, l.approverID, l.approved); err != nil {
			return fmt.Errorf("decide %q for %s: %w", l.req.Label, l.employeeID, err)
		}
	}
	return nil
}

// nextMonday returns midnight of the first Monday strictly after t.
func nextMonday(t time.Time) time.Time {
	days := (8 - int(t.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	d := t.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}
