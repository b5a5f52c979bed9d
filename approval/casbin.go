package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/warp/leave-engine/directory"
	"go.uber.org/zap"
)

// approverModel grants p.sub the right to approve p.obj's leave. A role link
// g(delegate, manager) lets the delegate act as the manager.
const approverModel = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

const actApprove = "approve"

// Casbin authorizes direct managers and their delegates.
type Casbin struct {
	mu          sync.RWMutex
	enforcer    *casbin.Enforcer
	dir         directory.Directory
	delegations map[string][]string // manager ID -> delegate IDs
	logger      *zap.Logger
}

// NewCasbin builds the policy from the current directory. Call Reload after
// the directory changes.
func NewCasbin(ctx context.Context, dir directory.Directory, delegations map[string][]string, logger *zap.Logger) (*Casbin, error) {
	m, err := model.NewModelFromString(approverModel)
	if err != nil {
		return nil, fmt.Errorf("approver model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("approver enforcer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Casbin{
		enforcer:    e,
		dir:         dir,
		delegations: delegations,
		logger:      logger.Named("approval.casbin"),
	}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds every policy line from the directory and the delegations.
func (c *Casbin) Reload(ctx context.Context) error {
	employees, err := c.dir.List(ctx)
	if err != nil {
		return fmt.Errorf("list employees: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.enforcer.ClearPolicy()

	policies := 0
	for _, emp := range employees {
		if emp.ManagerID == "" {
			continue
		}
		if _, err := c.enforcer.AddPolicy(emp.ManagerID, emp.ID, actApprove); err != nil {
			return fmt.Errorf("add policy for %s: %w", emp.ID, err)
		}
		policies++
	}

	links := 0
	for manager, delegates := range c.delegations {
		for _, delegate := range delegates {
			if _, err := c.enforcer.AddGroupingPolicy(delegate, manager); err != nil {
				return fmt.Errorf("add delegation %s -> %s: %w", delegate, manager, err)
			}
			links++
		}
	}

	c.logger.Info("approver policy loaded",
		zap.Int("policies", policies),
		zap.Int("delegations", links),
	)
	return nil
}

func (c *Casbin) IsAuthorizedApprover(_ context.Context, approverID, employeeID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ok, err := c.enforcer.Enforce(approverID, employeeID, actApprove)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return ok, nil
}
