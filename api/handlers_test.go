package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
	"github.com/xuri/excelize/v2"
)

// Tuesday.
var testNow = time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store  *memory.Store
	ledger *balance.Ledger
	h      *Handler
	router http.Handler
}

func newTestEnv(t *testing.T, scenario string) *testEnv {
	t.Helper()
	store := memory.New()
	ledger := balance.NewLedger(store, store, nil)
	svc := leave.NewService(store, ledger, store,
		leave.WithApproverPolicy(approval.NewDirectManager(store)),
		leave.WithClock(func() time.Time { return testNow }),
	)
	h := NewHandler(Deps{
		Leaves:    svc,
		Ledger:    ledger,
		Directory: store,
		Employees: store,
		Store:     store,
	}, nil)
	h.now = func() time.Time { return testNow }

	if scenario != "" {
		require.NoError(t, h.Load(context.Background(), scenario))
	}
	return &testEnv{store: store, ledger: ledger, h: h, router: NewRouter(h, config.ServerConfig{}, nil)}
}

func (e *testEnv) do(t *testing.T, method, path, identity string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func leaveBody(label string, start, end time.Time) map[string]any {
	return map[string]any{"label": label, "start": start, "end": end}
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestListEmployees(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)

	rec := env.do(t, http.MethodGet, "/api/employees", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeAs[[]EmployeeDTO](t, rec)
	require.Len(t, got, 5)
	assert.Equal(t, "K123456", got[0].ID)
	assert.Equal(t, "K789012", got[0].ManagerID)
}

func TestGetEmployee(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)

	rec := env.do(t, http.MethodGet, "/api/employees/K234567", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[EmployeeDTO](t, rec)
	assert.Equal(t, "Jane Smith", got.Name)
	assert.Equal(t, 32.0, got.ContractHours)

	rec = env.do(t, http.MethodGet, "/api/employees/K000000", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeAs[ErrorResponse](t, rec).Code)
}

func TestCreateEmployee_WithOpeningBalance(t *testing.T) {
	// GIVEN: a team with a manager
	env := newTestEnv(t, ScenarioTeam)

	// WHEN: a new report is saved with 10 days left
	rec := env.do(t, http.MethodPost, "/api/employees", "", map[string]any{
		"id":                      "K456789",
		"name":                    "Eve Adams",
		"manager_id":              "K890123",
		"contract_hours":          40,
		"opening_remaining_days":  10,
		"opening_remaining_hours": 80,
	})

	// THEN: the employee exists and the balance starts at the opening value
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/employees/K456789/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decodeAs[BalanceDTO](t, rec)
	assert.Equal(t, 25.0, b.TotalDays)
	assert.Equal(t, 10.0, b.RemainingDays)
	assert.Equal(t, 80.0, b.RemainingHours)
	assert.Equal(t, 15.0, b.UsedDays)

	rec = env.do(t, http.MethodGet, "/api/employees/K456789", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "K890123", decodeAs[EmployeeDTO](t, rec).ManagerID)
}

func TestCreateEmployee_Invalid(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)

	tests := []struct {
		name      string
		body      any
		wantField string
		wantTag   string
	}{
		{"bad id", map[string]any{"id": "X1", "name": "x", "contract_hours": 40}, "id", "employee_id"},
		{"missing name", map[string]any{"id": "K456789", "contract_hours": 40}, "name", "required"},
		{"contract too long", map[string]any{"id": "K456789", "name": "x", "contract_hours": 48}, "contract_hours", "lte"},
		{"own manager", map[string]any{"id": "K456789", "name": "x", "manager_id": "K456789", "contract_hours": 40}, "manager_id", "nefield"},
		{"days without hours", map[string]any{"id": "K456789", "name": "x", "contract_hours": 40, "opening_remaining_days": 3}, "opening_remaining_hours", "required_with"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/employees", "", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Code    string       `json:"code"`
				Details []FieldError `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "bad_request", resp.Code)
			require.NotEmpty(t, resp.Details)
			assert.Equal(t, tt.wantField, resp.Details[0].Field)
			assert.Equal(t, tt.wantTag, resp.Details[0].Tag)
		})
	}

	t.Run("unknown manager", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/employees", "", map[string]any{
			"id": "K456789", "name": "x", "manager_id": "K999999", "contract_hours": 40,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("second opening balance", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/employees", "", map[string]any{
			"id": "K123456", "name": "John Doe", "manager_id": "K789012", "contract_hours": 40,
			"opening_remaining_days": 1, "opening_remaining_hours": 8,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// =============================================================================
// BALANCE
// =============================================================================

func TestGetBalance_PartTime(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)

	rec := env.do(t, http.MethodGet, "/api/employees/K234567/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	b := decodeAs[BalanceDTO](t, rec)
	assert.Equal(t, 20.0, b.TotalDays)
	assert.Equal(t, 160.0, b.TotalHours)
	assert.Equal(t, 18.0, b.RemainingDays)
	assert.Equal(t, 144.0, b.RemainingHours)

	rec = env.do(t, http.MethodGet, "/api/employees/K000000/balance", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// LEAVE LIFECYCLE
// =============================================================================

func TestCreateLeave(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)

	t.Run("requires identity", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/leaves", "", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown identity", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/leaves", "K999999", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthenticated", decodeAs[ErrorResponse](t, rec).Code)

		rec = env.do(t, http.MethodPost, "/api/leaves/validate", "K999999", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/employees/K999999/leaves", "", nil)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("accepted", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := decodeAs[LeaveDTO](t, rec)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "K123456", got.EmployeeID)
		assert.Equal(t, 0.375, got.TotalDays)
		assert.Equal(t, 3.0, got.TotalHours)
		assert.Equal(t, string(leave.StatusRequested), got.Status)
		assert.False(t, got.IsSpecial)
	})

	t.Run("rejected by rule", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", leaveBody("weekend", at(9, 19, 9), at(9, 22, 17)))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp struct {
			Error   string            `json:"error"`
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "rejected", resp.Code)
		assert.Equal(t, string(leave.RuleNoWeekends), resp.Details["rule"])
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("unknown special type", func(t *testing.T) {
		body := leaveBody("party", at(9, 22, 9), at(9, 22, 17))
		body["is_special"] = true
		body["special_type"] = "BIRTHDAY"
		rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decodeAs[ErrorResponse](t, rec).Code)
	})

	t.Run("special without type", func(t *testing.T) {
		body := leaveBody("party", at(9, 22, 9), at(9, 22, 17))
		body["is_special"] = true
		rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", `{"label": "x", "start": "tomorrow"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(t, http.MethodPost, "/api/leaves", "K123456", `{"label": "x", "colour": "red"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		// GIVEN: a label padded past the body cap
		body := `{"label": "` + strings.Repeat("x", maxBodyBytes) + `"}`

		// WHEN: it is posted
		rec := env.do(t, http.MethodPost, "/api/leaves", "K345678", body)

		// THEN: it is refused without being stored
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "payload_too_large", decodeAs[ErrorResponse](t, rec).Code)

		rec = env.do(t, http.MethodGet, "/api/employees/K345678/leaves", "", nil)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestCreateLeave_InterpretsConfiguredTimezone(t *testing.T) {
	// GIVEN: a deployment on CEST
	env := newTestEnv(t, ScenarioTeam)
	cest := time.FixedZone("CEST", 2*60*60)
	env.h.Location = cest

	// WHEN: a request ends Saturday 00:30 CEST, which is still Friday in UTC
	start := time.Date(2025, 9, 19, 22, 30, 0, 0, cest)
	rec := env.do(t, http.MethodPost, "/api/leaves", "K123456",
		leaveBody("late", start.Add(-13*time.Hour), start.Add(2*time.Hour)))

	// THEN: the weekend rule sees the local Saturday
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestValidateLeave(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)

	rec := env.do(t, http.MethodPost, "/api/leaves/validate", "K123456", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeAs[ValidationResultDTO](t, rec).Valid)

	rec = env.do(t, http.MethodPost, "/api/leaves/validate", "K123456", leaveBody("past", at(9, 1, 9), at(9, 1, 17)))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAs[ValidationResultDTO](t, rec)
	assert.False(t, got.Valid)
	assert.Equal(t, string(leave.RuleFutureDated), got.Rule)
	assert.NotEmpty(t, got.Reason)

	// Dry-run stores nothing.
	list, err := env.store.ListByEmployee(context.Background(), "K123456")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApproveLeave(t *testing.T) {
	// GIVEN: a pending request from John
	env := newTestEnv(t, ScenarioTeam)
	rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeAs[LeaveDTO](t, rec).ID
	path := "/api/leaves/" + id + "/approve"

	// WHEN/THEN: decisions by the wrong people fail
	rec = env.do(t, http.MethodPost, path, "", map[string]any{"approved": true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, path, "K890123", map[string]any{"approved": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, path, "K789012", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/leaves/missing/approve", "K789012", map[string]any{"approved": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// WHEN: the direct manager approves
	rec = env.do(t, http.MethodPost, path, "K789012", map[string]any{"approved": true})

	// THEN: the record is approved and the balance debited once
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[LeaveDTO](t, rec)
	assert.Equal(t, string(leave.StatusApproved), got.Status)
	assert.Equal(t, "K789012", got.ApproverID)
	assert.NotEmpty(t, got.DecidedAt)

	rec = env.do(t, http.MethodPost, path, "K789012", map[string]any{"approved": true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/employees/K123456/balance", "", nil)
	b := decodeAs[BalanceDTO](t, rec)
	assert.Equal(t, 22.625, b.RemainingDays)
	assert.Equal(t, 181.0, b.RemainingHours)

	rec = env.do(t, http.MethodGet, "/api/employees/K123456/transactions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeAs[[]TransactionDTO](t, rec)
	require.Len(t, txs, 2)
	assert.Equal(t, string(balance.TxOpening), txs[0].Type)
	assert.Equal(t, string(balance.TxConsumption), txs[1].Type)
	assert.Equal(t, -0.375, txs[1].DeltaDays)
	assert.Equal(t, id, txs[1].ReferenceID)
}

func TestListPending(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)
	for _, id := range []string{"K123456", "K234567", "K345678"} {
		rec := env.do(t, http.MethodPost, "/api/leaves", id, leaveBody("day off", at(9, 16, 9), at(9, 16, 17)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/managers/K789012/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeAs[[]LeaveDTO](t, rec)
	require.Len(t, pending, 2)
	assert.ElementsMatch(t, []string{"K123456", "K234567"}, []string{pending[0].EmployeeID, pending[1].EmployeeID})

	rec = env.do(t, http.MethodGet, "/api/managers/K123456/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestDeleteLeave(t *testing.T) {
	// GIVEN: an approved future leave
	env := newTestEnv(t, ScenarioTeam)
	rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", leaveBody("week off", at(9, 15, 9), at(9, 19, 17)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeAs[LeaveDTO](t, rec).ID
	rec = env.do(t, http.MethodPost, "/api/leaves/"+id+"/approve", "K789012", map[string]any{"approved": true})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN/THEN: only the owner may delete it
	rec = env.do(t, http.MethodDelete, "/api/leaves/"+id, "K234567", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/leaves/"+id, "K123456", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/leaves/"+id, "K123456", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// THEN: the balance is restored
	rec = env.do(t, http.MethodGet, "/api/employees/K123456/balance", "", nil)
	assert.Equal(t, 23.0, decodeAs[BalanceDTO](t, rec).RemainingDays)

	rec = env.do(t, http.MethodGet, "/api/employees/K123456/leaves", "", nil)
	assert.JSONEq(t, "[]", rec.Body.String())
}

// =============================================================================
// EXPORTS
// =============================================================================

func TestExports(t *testing.T) {
	env := newTestEnv(t, ScenarioTeam)
	rec := env.do(t, http.MethodPost, "/api/leaves", "K123456", leaveBody("dentist", at(9, 15, 14), at(9, 15, 17)))
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("ics", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/employees/K123456/leaves.ics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, contentTypeICS, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "leaves-K123456.ics")
		body := rec.Body.String()
		assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
		assert.Contains(t, body, "dentist")
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/employees/K123456/leaves.xlsx", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Leaves")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "dentist", rows[1][1])
	})

	t.Run("unknown employee", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/employees/K000000/leaves.ics", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
