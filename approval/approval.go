/*
Package approval decides who may approve whose leave.

POLICIES:
  AllowAll       Any authenticated caller may approve any leave
  DirectManager  Only the employee's manager, as recorded in the directory
  Casbin         The direct manager, plus anyone the manager delegated to.
                 Backed by a casbin RBAC model built from the directory

All implement leave.ApproverPolicy.
*/
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/leave-engine/directory"
)

// Policy names accepted by New.
const (
	PolicyAllowAll      = "allow_all"
	PolicyDirectManager = "direct_manager"
	PolicyCasbin        = "casbin"
)

// Reloader is implemented by policies that cache directory data.
type Reloader interface {
	Reload(ctx context.Context) error
}

// =============================================================================
// ALLOW ALL
// =============================================================================

type AllowAll struct{}

func (AllowAll) IsAuthorizedApprover(context.Context, string, string) (bool, error) {
	return true, nil
}

// =============================================================================
// DIRECT MANAGER
// =============================================================================

type DirectManager struct {
	dir directory.Directory
}

func NewDirectManager(dir directory.Directory) *DirectManager {
	return &DirectManager{dir: dir}
}

func (p *DirectManager) IsAuthorizedApprover(ctx context.Context, approverID, employeeID string) (bool, error) {
	emp, err := p.dir.Employee(ctx, employeeID)
	if errors.Is(err, directory.ErrEmployeeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", employeeID, err)
	}
	return emp.ManagerID != "" && emp.ManagerID == approverID, nil
}
