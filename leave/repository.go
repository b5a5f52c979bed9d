package leave

import "context"

// Repository persists leave records. Implementations are safe for concurrent
// use and hand out copies, never references to their internal state.
type Repository interface {
	// Create stores a new record. The ID must not exist yet.
	Create(ctx context.Context, r Record) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Update replaces an existing record or returns ErrNotFound.
	Update(ctx context.Context, r Record) error

	// Delete removes a record or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// ListByEmployee returns an employee's records in insertion order.
	ListByEmployee(ctx context.Context, employeeID string) ([]Record, error)
}
