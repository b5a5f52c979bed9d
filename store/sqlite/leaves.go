package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE REPOSITORY (leave.Repository interface)
// =============================================================================

const leaveColumns = `id, employee_id, label, start_at, end_at, special_type,
	total_days, total_hours, approver_id, approved, decided_at, created_at`

// Create inserts a new leave record.
func (s *Store) Create(ctx context.Context, r leave.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	approverID, approved, decidedAt := decisionColumns(r.Decision)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaves (`+leaveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.EmployeeID, r.Label,
		formatTime(r.Start), formatTime(r.End),
		nullString(string(r.Kind.SpecialType())),
		r.TotalDays.String(), r.TotalHours.String(),
		approverID, approved, decidedAt,
		formatTime(r.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: leave %s already exists", leave.ErrInvalidState, r.ID)
		}
		return fmt.Errorf("failed to insert leave: %w", err)
	}
	return nil
}

// Get retrieves a leave by ID.
func (s *Store) Get(ctx context.Context, id string) (leave.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+leaveColumns+" FROM leaves WHERE id = ?", id)
	if err != nil {
		return leave.Record{}, fmt.Errorf("failed to query leave: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return leave.Record{}, err
		}
		return leave.Record{}, leave.ErrNotFound
	}
	return scanLeave(rows)
}

// Update replaces the mutable fields of a leave: its label and decision.
func (s *Store) Update(ctx context.Context, r leave.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	approverID, approved, decidedAt := decisionColumns(r.Decision)

	res, err := s.db.ExecContext(ctx, `
		UPDATE leaves
		SET label = ?, approver_id = ?, approved = ?, decided_at = ?
		WHERE id = ?
	`, r.Label, approverID, approved, decidedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update leave: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a leave.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM leaves WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete leave: %w", err)
	}
	return requireAffected(res)
}

// ListByEmployee returns an employee's leaves in insertion order.
func (s *Store) ListByEmployee(ctx context.Context, employeeID string) ([]leave.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+leaveColumns+" FROM leaves WHERE employee_id = ? ORDER BY seq",
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	records := []leave.Record{}
	for rows.Next() {
		r, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanLeave(rows *sql.Rows) (leave.Record, error) {
	var (
		r           leave.Record
		startAt     string
		endAt       string
		specialType sql.NullString
		totalDays   string
		totalHours  string
		approverID  sql.NullString
		approved    sql.NullBool
		decidedAt   sql.NullString
		createdAt   string
	)

	err := rows.Scan(
		&r.ID, &r.EmployeeID, &r.Label, &startAt, &endAt, &specialType,
		&totalDays, &totalHours, &approverID, &approved, &decidedAt, &createdAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan leave: %w", err)
	}

	if r.Start, err = parseTime(startAt); err != nil {
		return r, err
	}
	if r.End, err = parseTime(endAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.TotalDays, err = decimal.NewFromString(totalDays); err != nil {
		return r, fmt.Errorf("parse total_days: %w", err)
	}
	if r.TotalHours, err = decimal.NewFromString(totalHours); err != nil {
		return r, fmt.Errorf("parse total_hours: %w", err)
	}

	r.Kind = leave.Standard()
	if specialType.Valid {
		t, err := leave.ParseSpecialType(specialType.String)
		if err != nil {
			return r, err
		}
		r.Kind = leave.Special(t)
	}

	if approverID.Valid {
		d := &leave.Decision{ApproverID: approverID.String, Approved: approved.Bool}
		if decidedAt.Valid {
			if d.DecidedAt, err = parseTime(decidedAt.String); err != nil {
				return r, err
			}
		}
		r.Decision = d
	}

	return r, nil
}

func decisionColumns(d *leave.Decision) (approverID sql.NullString, approved sql.NullBool, decidedAt sql.NullString) {
	if d == nil {
		return
	}
	return sql.NullString{String: d.ApproverID, Valid: true},
		sql.NullBool{Bool: d.Approved, Valid: true},
		nullString(formatTime(d.DecidedAt))
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return leave.ErrNotFound
	}
	return nil
}

var _ leave.Repository = (*Store)(nil)
