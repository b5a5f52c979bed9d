// Package memory provides in-memory implementations of the leave repository,
// the ledger store and the employee directory (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store implements leave.Repository, balance.Store, directory.Directory and
// directory.Writer. All reads return copies.
type Store struct {
	mu sync.RWMutex

	employees map[string]directory.Employee

	leaves map[string]leave.Record
	order  map[string]int // leave ID -> insertion sequence
	seq    int

	transactions []balance.Transaction
	idempotency  map[string]bool
}

func New() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}

func (s *Store) resetLocked() {
	s.employees = make(map[string]directory.Employee)
	s.leaves = make(map[string]leave.Record)
	s.order = make(map[string]int)
	s.seq = 0
	s.transactions = nil
	s.idempotency = make(map[string]bool)
}

// =============================================================================
// LEAVE REPOSITORY (leave.Repository interface)
// =============================================================================

func (s *Store) Create(_ context.Context, r leave.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leaves[r.ID]; exists {
		return fmt.Errorf("%w: leave %s already exists", leave.ErrInvalidState, r.ID)
	}
	s.seq++
	s.order[r.ID] = s.seq
	s.leaves[r.ID] = r.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (leave.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.leaves[id]
	if !ok {
		return leave.Record{}, leave.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Store) Update(_ context.Context, r leave.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leaves[r.ID]; !ok {
		return leave.ErrNotFound
	}
	s.leaves[r.ID] = r.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leaves[id]; !ok {
		return leave.ErrNotFound
	}
	delete(s.leaves, id)
	delete(s.order, id)
	return nil
}

func (s *Store) ListByEmployee(_ context.Context, employeeID string) ([]leave.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []leave.Record{}
	for _, r := range s.leaves {
		if r.EmployeeID == employeeID {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result, nil
}

// =============================================================================
// LEDGER STORE (balance.Store interface)
// =============================================================================

// Append adds a single transaction. Append-only.
func (s *Store) Append(_ context.Context, tx balance.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.IdempotencyKey != "" && s.idempotency[tx.IdempotencyKey] {
		return balance.ErrDuplicateIdempotencyKey
	}
	s.transactions = append(s.transactions, tx)
	if tx.IdempotencyKey != "" {
		s.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (s *Store) LoadTransactions(_ context.Context, employeeID string) ([]balance.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []balance.Transaction
	for _, tx := range s.transactions {
		if tx.EmployeeID == employeeID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idempotency[idempotencyKey], nil
}

// =============================================================================
// EMPLOYEE DIRECTORY (directory.Directory, directory.Writer interfaces)
// =============================================================================

func (s *Store) SaveEmployee(_ context.Context, e directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *Store) Employee(_ context.Context, id string) (directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return directory.Employee{}, directory.ErrEmployeeNotFound
	}
	return e, nil
}

func (s *Store) EmployeesManagedBy(_ context.Context, managerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.employees {
		if e.ManagerID == managerID && managerID != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ContractHoursOf(_ context.Context, id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return 0, directory.ErrEmployeeNotFound
	}
	return e.ContractHours, nil
}

func (s *Store) List(_ context.Context) ([]directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]directory.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
