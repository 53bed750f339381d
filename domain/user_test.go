package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionSetNormalize(t *testing.T) {
	got, err := PermissionSet{" sales.view", "inventory.view", "sales.view", ""}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PermissionSet{"inventory.view", "sales.view"}, got)

	_, err = PermissionSet{"sales.fly"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPermissionSetScan(t *testing.T) {
	var p PermissionSet
	require.NoError(t, p.Scan("a,b"))
	assert.Equal(t, PermissionSet{"a", "b"}, p)
	require.NoError(t, p.Scan([]byte("")))
	assert.Empty(t, p)
	require.NoError(t, p.Scan(nil))
	assert.Error(t, p.Scan(42))

	v, err := PermissionSet{"x", "y"}.Value()
	require.NoError(t, err)
	assert.Equal(t, "x,y", v)
}

func TestSystemRoles(t *testing.T) {
	roles := SystemRoles()
	require.Len(t, roles, 4)
	assert.Len(t, roles[RoleOwner], len(AllPermissions))
	assert.False(t, roles[RoleManager].Has(PermBillingManage))
	assert.True(t, roles[RoleManager].Has(PermPurchasesManage))
	assert.True(t, roles[RolePharmacist].HasAny(PermSalesRefund, PermBillingManage))
	assert.False(t, roles[RoleCashier].Has(PermInventoryManage))
	for name, perms := range roles {
		_, err := perms.Normalize()
		assert.NoError(t, err, name)
	}
}

func TestUserCanAccessBranch(t *testing.T) {
	u := User{}
	assert.True(t, u.CanAccessBranch(3))
	b := int64(2)
	u.BranchID = &b
	assert.True(t, u.CanAccessBranch(2))
	assert.False(t, u.CanAccessBranch(3))
}
