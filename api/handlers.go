/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave lifecycle, the balance ledger and the employee
  directory via REST. Handles HTTP request/response and JSON, and delegates
  every decision to the domain packages.

ENDPOINTS:
  Employees:
    GET    /api/employees                    List employees
    POST   /api/employees                    Save employee (+ opening balance)
    GET    /api/employees/{id}               Employee details
    GET    /api/employees/{id}/balance       Derived balance
    GET    /api/employees/{id}/transactions  Ledger history
    GET    /api/employees/{id}/leaves        Leave records
    GET    /api/employees/{id}/leaves.ics    iCalendar export
    GET    /api/employees/{id}/leaves.xlsx   Spreadsheet export

  Approvals:
    GET    /api/managers/{id}/pending        REQUESTED leaves of reports

  Leaves (caller = X-Employee-ID):
    POST   /api/leaves                       Request leave
    POST   /api/leaves/validate              Dry-run the acceptance rules
    POST   /api/leaves/{id}/approve          Approve or reject
    DELETE /api/leaves/{id}                  Withdraw own leave

REQUEST FLOW:
  1. Parse and tag-validate the body (decode)
  2. Convert to domain types in the configured timezone
  3. Call the service / ledger / directory
  4. Serialize response, or map the error in writeServiceError

ERROR MAPPING:
  422 rejected by a rule (details.rule)   401 no identity
  404 unknown leave or employee           403 not an authorized approver
  409 wrong status or duplicate           400 malformed input
  500 anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/export"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all stored data. Used by scenario loading.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Leaves    *leave.Service
	Ledger    *balance.Ledger
	Directory directory.Directory
	Employees directory.Writer
	Store     Resetter

	// Reloader is refreshed after directory writes. Nil when the approver
	// policy reads the directory directly.
	Reloader approval.Reloader

	// Location renders and interprets timestamps. Defaults to UTC.
	Location *time.Location
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Deps

	logger *zap.Logger
	now    func() time.Time

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(d Deps, logger *zap.Logger) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Deps:   d,
		logger: logger.Named("api"),
		now:    time.Now,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Directory.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee saves an employee and, when given, their opening balance.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := decode(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	ctx := r.Context()

	if req.ManagerID != "" {
		if _, err := h.Directory.Employee(ctx, req.ManagerID); err != nil {
			if errors.Is(err, directory.ErrEmployeeNotFound) {
				err = &errBadRequest{msg: "Unknown manager", err: err}
			}
			h.writeServiceError(w, r, err)
			return
		}
	}

	emp := directory.Employee{
		ID:            req.ID,
		Name:          req.Name,
		IsManager:     req.IsManager,
		ManagerID:     req.ManagerID,
		ContractHours: req.ContractHours,
	}
	if err := h.saveEmployee(ctx, emp); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if req.OpeningRemainingDays != nil {
		days := decimal.NewFromFloat(*req.OpeningRemainingDays)
		hours := decimal.NewFromFloat(*req.OpeningRemainingHours)
		if err := h.Ledger.Open(ctx, emp.ID, days, hours); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

func (h *Handler) saveEmployee(ctx context.Context, e directory.Employee) error {
	if err := h.Employees.SaveEmployee(ctx, e); err != nil {
		return fmt.Errorf("save employee %s: %w", e.ID, err)
	}
	if h.Reloader != nil {
		if err := h.Reloader.Reload(ctx); err != nil {
			return fmt.Errorf("reload approver policy: %w", err)
		}
	}
	return nil
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the derived balance of an employee.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetTransactions returns the ledger history of an employee.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListLeaves returns all leave records of an employee.
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	records, err := h.Leaves.ListByEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(records, h.Location))
}

// ListPending returns the approval queue of a manager.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.Leaves.ListPendingForManager(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(records, h.Location))
}

// CreateLeave requests leave for the caller.
func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	req, err := h.decodeLeaveRequest(w, r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rec, err := h.Leaves.Create(r.Context(), req, requester)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(rec, h.Location))
}

// ValidateLeave runs the acceptance rules for the caller without storing
// anything.
func (h *Handler) ValidateLeave(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	req, err := h.decodeLeaveRequest(w, r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	err = h.Leaves.Validate(r.Context(), req, requester)
	var rej *leave.RejectionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ValidationResultDTO{Valid: true})
	case errors.As(err, &rej):
		writeJSON(w, http.StatusOK, ValidationResultDTO{Rule: string(rej.Rule), Reason: rej.Reason})
	default:
		h.writeServiceError(w, r, err)
	}
}

// ApproveLeave records the caller's decision.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	approver, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := decode(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rec, err := h.Leaves.Approve(r.Context(), chi.URLParam(r, "id"), approver, *req.Approved)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(rec, h.Location))
}

// DeleteLeave withdraws one of the caller's leaves.
func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.Leaves.Delete(r.Context(), chi.URLParam(r, "id"), requester); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeLeaveRequest(w http.ResponseWriter, r *http.Request) (leave.Request, error) {
	var body LeaveRequest
	if err := decode(w, r, &body); err != nil {
		return leave.Request{}, err
	}
	return body.toRequest(h.Location)
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := IdentityFrom(r.Context())
	if id == "" {
		h.writeServiceError(w, r, leave.ErrUnauthenticated)
		return "", false
	}
	return id, true
}

// =============================================================================
// EXPORTS
// =============================================================================

const (
	contentTypeICS  = "text/calendar; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportICS returns an employee's leaves as an iCalendar feed.
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "ics", contentTypeICS, func(buf *bytes.Buffer, emp directory.Employee, records []leave.Record) error {
		return export.WriteICS(buf, emp.Name+" leave", records, h.now())
	})
}

// ExportXLSX returns an employee's leaves as a spreadsheet.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", contentTypeXLSX, func(buf *bytes.Buffer, _ directory.Employee, records []leave.Record) error {
		return export.WriteXLSX(buf, records, h.Location)
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(*bytes.Buffer, directory.Employee, []leave.Record) error) {
	ctx := r.Context()
	emp, err := h.Directory.Employee(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	records, err := h.Leaves.ListByEmployee(ctx, emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Rendered fully before the header goes out so failures still map to 500.
	var buf bytes.Buffer
	if err := write(&buf, emp, records); err != nil {
		h.writeServiceError(w, r, fmt.Errorf("export %s: %w", ext, err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leaves-%s.%s"`, emp.ID, ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad *errBadRequest
		rej *leave.RejectionError
	)

	switch {
	case errors.As(err, &bad):
		status, code := http.StatusBadRequest, "bad_request"
		if bad.status == http.StatusRequestEntityTooLarge {
			status, code = bad.status, "payload_too_large"
		}
		resp := ErrorResponse{Error: bad.msg, Code: code}
		if len(bad.fields) > 0 {
			resp.Details = bad.fields
		} else if bad.err != nil {
			resp.Details = bad.err.Error()
		}
		writeJSON(w, status, resp)
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   rej.Reason,
			Code:    "rejected",
			Details: map[string]string{"rule": string(rej.Rule)},
		})
	case errors.Is(err, leave.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", fmt.Sprintf("Missing or unknown %s", IdentityHeader), err)
	case errors.Is(err, leave.ErrNotFound), errors.Is(err, directory.ErrEmployeeNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Not found", err)
	case errors.Is(err, leave.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "forbidden", "Not authorized", err)
	case errors.Is(err, leave.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", "Invalid leave state", err)
	case errors.Is(err, balance.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "conflict", "Already applied", err)
	case errors.Is(err, leave.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid input", err)
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error", nil)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
