package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/store/memory"
)

func seededDirectory(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	for _, e := range []directory.Employee{
		{ID: "K789012", Name: "Alice Johnson", IsManager: true, ContractHours: 40},
		{ID: "K890123", Name: "David Brown", IsManager: true, ContractHours: 40},
		{ID: "K123456", Name: "John Doe", ManagerID: "K789012", ContractHours: 40},
		{ID: "K345678", Name: "Bob Wilson", ManagerID: "K890123", ContractHours: 40},
	} {
		require.NoError(t, s.SaveEmployee(ctx, e))
	}
	return s
}

func TestAllowAll(t *testing.T) {
	ok, err := AllowAll{}.IsAuthorizedApprover(context.Background(), "anyone", "K123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirectManager(t *testing.T) {
	p := NewDirectManager(seededDirectory(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		approver string
		employee string
		want     bool
	}{
		{"own manager", "K789012", "K123456", true},
		{"other manager", "K890123", "K123456", false},
		{"peer", "K345678", "K123456", false},
		{"self", "K123456", "K123456", false},
		{"top-level manager has no approver", "K789012", "K789012", false},
		{"unknown employee", "K789012", "K000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.IsAuthorizedApprover(ctx, tt.approver, tt.employee)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCasbin_ManagersAndDelegates(t *testing.T) {
	// GIVEN: Alice delegated her approvals to David
	dir := seededDirectory(t)
	ctx := context.Background()
	p, err := NewCasbin(ctx, dir, map[string][]string{"K789012": {"K890123"}}, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		approver string
		employee string
		want     bool
	}{
		{"manager approves report", "K789012", "K123456", true},
		{"delegate approves for manager", "K890123", "K123456", true},
		{"delegate still approves own report", "K890123", "K345678", true},
		{"delegation is one-way", "K789012", "K345678", false},
		{"peer denied", "K345678", "K123456", false},
		{"self denied", "K123456", "K123456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := p.IsAuthorizedApprover(ctx, tt.approver, tt.employee)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCasbin_ReloadPicksUpNewEmployees(t *testing.T) {
	dir := seededDirectory(t)
	ctx := context.Background()
	p, err := NewCasbin(ctx, dir, nil, nil)
	require.NoError(t, err)

	ok, err := p.IsAuthorizedApprover(ctx, "K789012", "K234567")
	require.NoError(t, err)
	assert.False(t, ok, "unknown before reload")

	require.NoError(t, dir.SaveEmployee(ctx, directory.Employee{ID: "K234567", ManagerID: "K789012", ContractHours: 32}))
	require.NoError(t, p.Reload(ctx))

	ok, err = p.IsAuthorizedApprover(ctx, "K789012", "K234567")
	require.NoError(t, err)
	assert.True(t, ok)
}
