/*
service.go - Leave request lifecycle

PURPOSE:
  Orchestrates creation, approval and removal of leave records. The
  service is the only writer of records and the only caller of the
  ledger for leave consumption.

REQUEST FLOW:
  Create   ──▶ lock(employee) ──▶ Validate ──▶ BusinessDuration ──▶ store REQUESTED
  Approve  ──▶ lock(employee) ──▶ policy check ──▶ [standard] Debit ──▶ store decision
  Delete   ──▶ lock(employee) ──▶ owner check ──▶ [approved standard] Credit ──▶ remove

  Every mutation for one employee runs under that employee's lock, so two
  concurrent Create calls can never both pass the overlap rule.

LEDGER IDEMPOTENCY:
  Debit uses the key leave-<id>-consume. If an earlier Approve debited the
  ledger but failed before storing the decision, the retry finds the key
  taken and treats the debit as already applied.

SEE ALSO:
  - validate.go: rules applied on Create and Validate
  - balance/ledger.go: Debit and Credit
  - approval: ApproverPolicy implementations
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/balance"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/lock"
	"go.uber.org/zap"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Ledger is the part of the balance ledger the lifecycle needs.
type Ledger interface {
	Debit(ctx context.Context, employeeID string, days, hours decimal.Decimal, referenceID string) error
	Credit(ctx context.Context, employeeID string, days, hours decimal.Decimal, referenceID, reason string) error
}

// Directory resolves requesters and a manager's direct reports.
type Directory interface {
	Employee(ctx context.Context, id string) (directory.Employee, error)
	EmployeesManagedBy(ctx context.Context, managerID string) ([]string, error)
}

// ApproverPolicy decides whether approverID may decide on employeeID's leave.
type ApproverPolicy interface {
	IsAuthorizedApprover(ctx context.Context, approverID, employeeID string) (bool, error)
}

type Action string

const (
	ActionRequested Action = "requested"
	ActionApproved  Action = "approved"
	ActionRejected  Action = "rejected"
	ActionCancelled Action = "cancelled"
)

// Change describes a lifecycle transition that has been persisted.
type Change struct {
	Action  Action
	Record  Record
	ActorID string
	At      time.Time
}

// Notifier receives every persisted lifecycle change. Notify must not block
// for long; it runs while the employee's lock is held.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

type allowAll struct{}

func (allowAll) IsAuthorizedApprover(context.Context, string, string) (bool, error) { return true, nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo      Repository
	ledger    Ledger
	directory Directory
	policy    ApproverPolicy
	locker    lock.Locker
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

// WithApproverPolicy sets who may approve. Default: anyone.
func WithApproverPolicy(p ApproverPolicy) Option { return func(s *Service) { s.policy = p } }

// WithLocker sets the per-employee lock. Default: lock.NewLocal().
func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(repo Repository, ledger Ledger, dir Directory, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		ledger:    ledger,
		directory: dir,
		policy:    allowAll{},
		locker:    lock.NewLocal(),
		notifier:  nopNotifier{},
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("leave.service")
	return s
}

// =============================================================================
// QUERIES
// =============================================================================

// Validate runs the acceptance rules against the current store without
// creating anything.
func (s *Service) Validate(ctx context.Context, req Request, requesterID string) error {
	if err := s.resolveRequester(ctx, requesterID); err != nil {
		return err
	}
	if err := CheckInput(req); err != nil {
		return err
	}

	existing, err := s.repo.ListByEmployee(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("list leaves of %s: %w", requesterID, err)
	}
	return Validate(req, requesterID, existing, s.now())
}

func (s *Service) ListByEmployee(ctx context.Context, employeeID string) ([]Record, error) {
	return s.repo.ListByEmployee(ctx, employeeID)
}

// ListPendingForManager returns the REQUESTED records of managerID's reports.
func (s *Service) ListPendingForManager(ctx context.Context, managerID string) ([]Record, error) {
	reports, err := s.directory.EmployeesManagedBy(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("reports of %s: %w", managerID, err)
	}

	pending := []Record{}
	for _, id := range reports {
		records, err := s.repo.ListByEmployee(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list leaves of %s: %w", id, err)
		}
		for _, r := range records {
			if r.Status() == StatusRequested {
				pending = append(pending, r)
			}
		}
	}
	return pending, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create validates req and stores it as a REQUESTED record.
func (s *Service) Create(ctx context.Context, req Request, requesterID string) (Record, error) {
	if err := s.resolveRequester(ctx, requesterID); err != nil {
		return Record{}, err
	}
	if err := CheckInput(req); err != nil {
		return Record{}, err
	}

	s.logger.Debug("create leave",
		zap.String("employee_id", requesterID),
		zap.Time("start", req.Start),
		zap.Time("end", req.End),
		zap.Stringer("kind", req.Kind),
	)

	unlock, err := s.locker.Lock(ctx, requesterID)
	if err != nil {
		return Record{}, fmt.Errorf("lock %s: %w", requesterID, err)
	}
	defer unlock()

	existing, err := s.repo.ListByEmployee(ctx, requesterID)
	if err != nil {
		return Record{}, fmt.Errorf("list leaves of %s: %w", requesterID, err)
	}

	now := s.now()
	if err := Validate(req, requesterID, existing, now); err != nil {
		s.logger.Warn("leave rejected",
			zap.String("employee_id", requesterID),
			zap.Error(err),
		)
		return Record{}, err
	}

	d := calendar.BusinessDuration(req.Start, req.End)
	rec := Record{
		ID:         s.newID(),
		Label:      req.Label,
		EmployeeID: requesterID,
		Start:      req.Start,
		End:        req.End,
		Kind:       req.Kind,
		TotalDays:  d.Days,
		TotalHours: d.Hours,
		CreatedAt:  now,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("store leave", zap.String("leave_id", rec.ID), zap.Error(err))
		return Record{}, fmt.Errorf("store leave: %w", err)
	}

	s.logger.Info("leave requested",
		zap.String("leave_id", rec.ID),
		zap.String("employee_id", requesterID),
		zap.String("days", rec.TotalDays.String()),
	)
	s.notify(ctx, ActionRequested, rec, requesterID, now)
	return rec, nil
}

// Approve records approverID's decision on a REQUESTED leave. Approving a
// standard leave debits its totals from the employee's balance.
func (s *Service) Approve(ctx context.Context, leaveID, approverID string, approved bool) (Record, error) {
	if approverID == "" {
		return Record{}, ErrUnauthenticated
	}

	rec, unlock, err := s.getLocked(ctx, leaveID)
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	ok, err := s.policy.IsAuthorizedApprover(ctx, approverID, rec.EmployeeID)
	if err != nil {
		return Record{}, fmt.Errorf("approver policy: %w", err)
	}
	if !ok {
		s.logger.Warn("approver not authorized",
			zap.String("leave_id", leaveID),
			zap.String("approver_id", approverID),
			zap.String("employee_id", rec.EmployeeID),
		)
		return Record{}, fmt.Errorf("%w: %s may not approve leave of %s", ErrNotAuthorized, approverID, rec.EmployeeID)
	}

	if rec.Status() != StatusRequested {
		return Record{}, fmt.Errorf("%w: leave %s is %s", ErrInvalidState, leaveID, rec.Status())
	}

	if approved && !rec.Kind.IsSpecial() {
		err := s.ledger.Debit(ctx, rec.EmployeeID, rec.TotalDays, rec.TotalHours, rec.ID)
		if errors.Is(err, balance.ErrDuplicateIdempotencyKey) {
			s.logger.Warn("ledger already debited for leave", zap.String("leave_id", rec.ID))
		} else if err != nil {
			s.logger.Error("debit ledger", zap.String("leave_id", rec.ID), zap.Error(err))
			return Record{}, fmt.Errorf("debit balance: %w", err)
		}
	}

	now := s.now()
	rec.Decision = &Decision{ApproverID: approverID, Approved: approved, DecidedAt: now}
	if err := s.repo.Update(ctx, rec); err != nil {
		s.logger.Error("store decision", zap.String("leave_id", rec.ID), zap.Error(err))
		return Record{}, fmt.Errorf("store decision: %w", err)
	}

	action := ActionRejected
	if approved {
		action = ActionApproved
	}
	s.logger.Info("leave decided",
		zap.String("leave_id", rec.ID),
		zap.String("approver_id", approverID),
		zap.String("status", string(rec.Status())),
	)
	s.notify(ctx, action, rec, approverID, now)
	return rec, nil
}

// Delete removes requesterID's own leave. An approved leave that has already
// started cannot be removed. Removing an approved standard leave credits its
// totals back.
func (s *Service) Delete(ctx context.Context, leaveID, requesterID string) error {
	if requesterID == "" {
		return ErrUnauthenticated
	}

	rec, unlock, err := s.getLocked(ctx, leaveID)
	if err != nil {
		return err
	}
	defer unlock()

	if rec.EmployeeID != requesterID {
		return fmt.Errorf("%w: leave %s belongs to another employee", ErrNotAuthorized, leaveID)
	}

	now := s.now()
	if rec.Status() == StatusApproved {
		if !rec.Start.After(now) {
			return fmt.Errorf("%w: approved leave %s has already started", ErrInvalidState, leaveID)
		}
		if !rec.Kind.IsSpecial() {
			err := s.ledger.Credit(ctx, rec.EmployeeID, rec.TotalDays, rec.TotalHours, rec.ID, "leave cancelled")
			if errors.Is(err, balance.ErrDuplicateIdempotencyKey) {
				s.logger.Warn("ledger already credited for leave", zap.String("leave_id", rec.ID))
			} else if err != nil {
				s.logger.Error("credit ledger", zap.String("leave_id", rec.ID), zap.Error(err))
				return fmt.Errorf("credit balance: %w", err)
			}
		}
	}

	if err := s.repo.Delete(ctx, leaveID); err != nil {
		return fmt.Errorf("delete leave: %w", err)
	}

	s.logger.Info("leave deleted",
		zap.String("leave_id", leaveID),
		zap.String("employee_id", requesterID),
		zap.String("status", string(rec.Status())),
	)
	s.notify(ctx, ActionCancelled, rec, requesterID, now)
	return nil
}

// resolveRequester accepts only identities the directory knows, so every
// stored record belongs to an employee with a balance to debit.
func (s *Service) resolveRequester(ctx context.Context, requesterID string) error {
	if requesterID == "" {
		return ErrUnauthenticated
	}
	if _, err := s.directory.Employee(ctx, requesterID); err != nil {
		if errors.Is(err, directory.ErrEmployeeNotFound) {
			s.logger.Warn("unknown requester", zap.String("employee_id", requesterID))
			return fmt.Errorf("%w: unknown employee %s", ErrUnauthenticated, requesterID)
		}
		return fmt.Errorf("look up requester %s: %w", requesterID, err)
	}
	return nil
}

// getLocked looks up a record, takes its employee's lock and reads it again
// so the caller sees the state no concurrent mutation can change.
func (s *Service) getLocked(ctx context.Context, leaveID string) (Record, func(), error) {
	rec, err := s.repo.Get(ctx, leaveID)
	if err != nil {
		return Record{}, nil, err
	}

	unlock, err := s.locker.Lock(ctx, rec.EmployeeID)
	if err != nil {
		return Record{}, nil, fmt.Errorf("lock %s: %w", rec.EmployeeID, err)
	}

	rec, err = s.repo.Get(ctx, leaveID)
	if err != nil {
		unlock()
		return Record{}, nil, err
	}
	return rec, unlock, nil
}

func (s *Service) notify(ctx context.Context, action Action, rec Record, actorID string, at time.Time) {
	s.notifier.Notify(ctx, Change{Action: action, Record: rec.Clone(), ActorID: actorID, At: at})
}
