package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/directory"
)

// =============================================================================
// EMPLOYEE DIRECTORY (directory.Directory, directory.Writer interfaces)
// =============================================================================

// SaveEmployee creates or updates an employee.
func (s *Store) SaveEmployee(ctx context.Context, e directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, is_manager, manager_id, contract_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_manager = excluded.is_manager,
			manager_id = excluded.manager_id,
			contract_hours = excluded.contract_hours
	`,
		e.ID, e.Name, e.IsManager, nullString(e.ManagerID), e.ContractHours,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// Employee retrieves an employee by ID.
func (s *Store) Employee(ctx context.Context, id string) (directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		e         directory.Employee
		managerID sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, is_manager, manager_id, contract_hours FROM employees WHERE id = ?",
		id,
	).Scan(&e.ID, &e.Name, &e.IsManager, &managerID, &e.ContractHours)

	if errors.Is(err, sql.ErrNoRows) {
		return directory.Employee{}, directory.ErrEmployeeNotFound
	}
	if err != nil {
		return directory.Employee{}, fmt.Errorf("failed to query employee: %w", err)
	}
	e.ManagerID = managerID.String
	return e, nil
}

// EmployeesManagedBy returns the IDs of managerID's direct reports.
func (s *Store) EmployeesManagedBy(ctx context.Context, managerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM employees WHERE manager_id = ? ORDER BY id",
		managerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ContractHoursOf returns the weekly contract hours of an employee.
func (s *Store) ContractHoursOf(ctx context.Context, id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours float64
	err := s.db.QueryRowContext(ctx,
		"SELECT contract_hours FROM employees WHERE id = ?",
		id,
	).Scan(&hours)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, directory.ErrEmployeeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query contract hours: %w", err)
	}
	return hours, nil
}

// List returns all employees ordered by ID.
func (s *Store) List(ctx context.Context) ([]directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, is_manager, manager_id, contract_hours FROM employees ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	employees := []directory.Employee{}
	for rows.Next() {
		var (
			e         directory.Employee
			managerID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.IsManager, &managerID, &e.ContractHours); err != nil {
			return nil, err
		}
		e.ManagerID = managerID.String
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

var (
	_ directory.Directory = (*Store)(nil)
	_ directory.Writer    = (*Store)(nil)
)
