// Package directory defines the employee data the leave engine reads but
// never owns: who an employee is, who manages them, and their contract hours.
package directory

import (
	"context"
	"errors"
)

// ErrEmployeeNotFound is returned when an employee ID is unknown.
var ErrEmployeeNotFound = errors.New("employee not found")

// Employee is an entry in the employee directory.
type Employee struct {
	ID            string
	Name          string
	IsManager     bool
	ManagerID     string  // empty for top-level managers
	ContractHours float64 // 40 for full-time
}

// Directory is the read side of the employee directory.
type Directory interface {
	// Employee returns the employee or ErrEmployeeNotFound.
	Employee(ctx context.Context, id string) (Employee, error)

	// EmployeesManagedBy returns the IDs of the direct reports of managerID.
	EmployeesManagedBy(ctx context.Context, managerID string) ([]string, error)

	// ContractHoursOf returns the weekly contract hours or ErrEmployeeNotFound.
	ContractHoursOf(ctx context.Context, id string) (float64, error)

	// List returns every employee.
	List(ctx context.Context) ([]Employee, error)
}

// Writer persists employees. Stores implement both sides.
type Writer interface {
	SaveEmployee(ctx context.Context, e Employee) error
}
