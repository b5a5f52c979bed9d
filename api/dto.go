/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the domain
  model (leave.Record, balance.Balance, directory.Employee) from the wire
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator/v10 tags and are checked by decode() before
  reaching the service. The custom employee_id tag accepts K followed by
  six digits. Business rules stay in the leave package; a tag here only
  rejects malformed input.

AMOUNTS:
  Days and hours are exact decimals internally. They are rendered as JSON
  numbers, which is lossless for the quarter-hour granularity in use.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateEmployeeRequest saves an employee, optionally with the balance they
// carry over from before the ledger existed.
type CreateEmployeeRequest struct {
	ID                    string   `json:"id" validate:"required,employee_id"`
	Name                  string   `json:"name" validate:"required"`
	IsManager             bool     `json:"is_manager"`
	ManagerID             string   `json:"manager_id" validate:"omitempty,employee_id,nefield=ID"`
	ContractHours         float64  `json:"contract_hours" validate:"required,gt=0,lte=40"`
	OpeningRemainingDays  *float64 `json:"opening_remaining_days" validate:"required_with=OpeningRemainingHours"`
	OpeningRemainingHours *float64 `json:"opening_remaining_hours" validate:"required_with=OpeningRemainingDays"`
}

// LeaveRequest is the body of POST /api/leaves and /api/leaves/validate.
type LeaveRequest struct {
	Label       string    `json:"label" validate:"required,max=200"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
	IsSpecial   bool      `json:"is_special"`
	SpecialType string    `json:"special_type" validate:"required_if=IsSpecial true"`
}

// ApproveRequest is the body of POST /api/leaves/{id}/approve.
type ApproveRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type EmployeeDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	IsManager     bool    `json:"is_manager"`
	ManagerID     string  `json:"manager_id,omitempty"`
	ContractHours float64 `json:"contract_hours"`
}

type BalanceDTO struct {
	EmployeeID     string  `json:"employee_id"`
	TotalDays      float64 `json:"total_days"`
	UsedDays       float64 `json:"used_days"`
	RemainingDays  float64 `json:"remaining_days"`
	TotalHours     float64 `json:"total_hours"`
	UsedHours      float64 `json:"used_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

type TransactionDTO struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	DeltaDays   float64 `json:"delta_days"`
	DeltaHours  float64 `json:"delta_hours"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type LeaveDTO struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	EmployeeID  string  `json:"employee_id"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	IsSpecial   bool    `json:"is_special"`
	SpecialType string  `json:"special_type,omitempty"`
	TotalDays   float64 `json:"total_days"`
	TotalHours  float64 `json:"total_hours"`
	Status      string  `json:"status"`
	ApproverID  string  `json:"approver_id,omitempty"`
	DecidedAt   string  `json:"decided_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// ValidationResultDTO answers a dry-run. A failed rule is a result, not
// an error.
type ValidationResultDTO struct {
	Valid  bool   `json:"valid"`
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldError describes one failed validator tag.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e directory.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:            e.ID,
		Name:          e.Name,
		IsManager:     e.IsManager,
		ManagerID:     e.ManagerID,
		ContractHours: e.ContractHours,
	}
}

func toBalanceDTO(b balance.Balance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:     b.EmployeeID,
		TotalDays:      b.TotalDays.InexactFloat64(),
		UsedDays:       b.UsedDays.InexactFloat64(),
		RemainingDays:  b.RemainingDays.InexactFloat64(),
		TotalHours:     b.TotalHours.InexactFloat64(),
		UsedHours:      b.UsedHours.InexactFloat64(),
		RemainingHours: b.RemainingHours.InexactFloat64(),
	}
}

func toTransactionDTO(tx balance.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID,
		Type:        string(tx.Type),
		DeltaDays:   tx.DeltaDays.InexactFloat64(),
		DeltaHours:  tx.DeltaHours.InexactFloat64(),
		ReferenceID: tx.ReferenceID,
		Reason:      tx.Reason,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

func toLeaveDTO(r leave.Record, loc *time.Location) LeaveDTO {
	dto := LeaveDTO{
		ID:          r.ID,
		Label:       r.Label,
		EmployeeID:  r.EmployeeID,
		Start:       r.Start.In(loc).Format(time.RFC3339),
		End:         r.End.In(loc).Format(time.RFC3339),
		IsSpecial:   r.Kind.IsSpecial(),
		SpecialType: string(r.Kind.SpecialType()),
		TotalDays:   r.TotalDays.InexactFloat64(),
		TotalHours:  r.TotalHours.InexactFloat64(),
		Status:      string(r.Status()),
		ApproverID:  r.ApproverID(),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.Decision != nil {
		dto.DecidedAt = r.Decision.DecidedAt.Format(time.RFC3339)
	}
	return dto
}

func toLeaveDTOs(records []leave.Record, loc *time.Location) []LeaveDTO {
	dtos := make([]LeaveDTO, len(records))
	for i, r := range records {
		dtos[i] = toLeaveDTO(r, loc)
	}
	return dtos
}

// toRequest converts the wire request, interpreting timestamps in loc so
// date rules see the employee's local calendar.
func (req LeaveRequest) toRequest(loc *time.Location) (leave.Request, error) {
	kind, err := leave.KindOf(req.IsSpecial, req.SpecialType)
	if err != nil {
		return leave.Request{}, err
	}
	return leave.Request{
		Label: strings.TrimSpace(req.Label),
		Start: req.Start.In(loc),
		End:   req.End.In(loc),
		Kind:  kind,
	}, nil
}

// =============================================================================
// DECODING & VALIDATION
// =============================================================================

var employeeIDPattern = regexp.MustCompile(`^K[0-9]{6}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("employee_id", func(fl validator.FieldLevel) bool {
		return employeeIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// errBadRequest marks body decoding and tag failures.
type errBadRequest struct {
	msg    string
	status int // http.StatusBadRequest when zero
	fields []FieldError
	err    error
}

func (e *errBadRequest) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *errBadRequest) Unwrap() error { return e.err }

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// decode reads a JSON body of at most maxBodyBytes into dst and runs its
// validator tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &errBadRequest{msg: "Request body is empty"}
		case errors.As(err, &tooLarge):
			return &errBadRequest{
				msg:    fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
				status: http.StatusRequestEntityTooLarge,
			}
		}
		return &errBadRequest{msg: "Invalid request body", err: err}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &errBadRequest{msg: "Invalid request body", err: err}
		}
		fields := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			fields[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
		}
		return &errBadRequest{msg: "Validation failed", fields: fields}
	}
	return nil
}
