package domain

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"
)

type User struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	BranchID       *int64    `json:"branch_id,omitempty" db:"branch_id"`
	RoleID         int64     `json:"role_id" db:"role_id"`
	RoleName       string    `json:"role" db:"role_name"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email" db:"email"`
	Password       string    `json:"-" db:"password"`
	Active         bool      `json:"active" db:"active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CanAccessBranch reports whether the user may act on the given branch.
// Users without a branch binding work across the whole organization.
func (u *User) CanAccessBranch(branchID int64) bool {
	return u.BranchID == nil || *u.BranchID == branchID
}

type Role struct {
	ID             int64         `json:"id" db:"id"`
	OrganizationID int64         `json:"organization_id" db:"organization_id"`
	Name           string        `json:"name" db:"name"`
	Permissions    PermissionSet `json:"permissions" db:"permissions"`
	IsSystem       bool          `json:"is_system" db:"is_system"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// Permission codes.
const (
	PermOrganizationManage = "organization.manage"
	PermBranchesManage     = "branches.manage"
	PermUsersManage        = "users.manage"
	PermRolesManage        = "roles.manage"
	PermInventoryView      = "inventory.view"
	PermInventoryManage    = "inventory.manage"
	PermSuppliersView      = "suppliers.view"
	PermSuppliersManage    = "suppliers.manage"
	PermPurchasesView      = "purchases.view"
	PermPurchasesManage    = "purchases.manage"
	PermBulkOrdersView     = "bulk_orders.view"
	PermBulkOrdersManage   = "bulk_orders.manage"
	PermExpensesView       = "expenses.view"
	PermExpensesManage     = "expenses.manage"
	PermSalesView          = "sales.view"
	PermSalesCreate        = "sales.create"
	PermSalesRefund        = "sales.refund"
	PermPatientsView       = "patients.view"
	PermPatientsManage     = "patients.manage"
	PermReportsView        = "reports.view"
	PermBillingManage      = "billing.manage"
)

// AllPermissions lists every permission code in a stable order.
var AllPermissions = []string{
	PermOrganizationManage, PermBranchesManage, PermUsersManage, PermRolesManage,
	PermInventoryView, PermInventoryManage,
	PermSuppliersView, PermSuppliersManage, PermPurchasesView, PermPurchasesManage,
	PermBulkOrdersView, PermBulkOrdersManage,
	PermExpensesView, PermExpensesManage,
	PermSalesView, PermSalesCreate, PermSalesRefund,
	PermPatientsView, PermPatientsManage,
	PermReportsView, PermBillingManage,
}

// IsKnownPermission reports whether code is a valid permission.
func IsKnownPermission(code string) bool {
	for _, p := range AllPermissions {
		if p == code {
			return true
		}
	}
	return false
}

// System role names created for every new organization.
const (
	RoleOwner      = "owner"
	RoleManager    = "manager"
	RolePharmacist = "pharmacist"
	RoleCashier    = "cashier"
)

// SystemRoles returns the permission sets of the built-in roles.
func SystemRoles() map[string]PermissionSet {
	manager := make(PermissionSet, 0, len(AllPermissions))
	for _, p := range AllPermissions {
		switch p {
		case PermBillingManage, PermRolesManage, PermOrganizationManage:
			continue
		}
		manager = append(manager, p)
	}
	return map[string]PermissionSet{
		RoleOwner:   append(PermissionSet{}, AllPermissions...),
		RoleManager: manager,
		RolePharmacist: {
			PermInventoryView, PermInventoryManage,
			PermSalesView, PermSalesCreate, PermSalesRefund,
			PermPatientsView, PermPatientsManage,
			PermSuppliersView, PermPurchasesView,
		},
		RoleCashier: {PermSalesView, PermSalesCreate, PermPatientsView, PermInventoryView},
	}
}

// PermissionSet is stored as a comma separated column.
type PermissionSet []string

// Has reports whether the set contains code.
func (p PermissionSet) Has(code string) bool {
	for _, c := range p {
		if c == code {
			return true
		}
	}
	return false
}

// HasAny reports whether the set contains at least one of codes.
func (p PermissionSet) HasAny(codes ...string) bool {
	for _, c := range codes {
		if p.Has(c) {
			return true
		}
	}
	return false
}

// Normalize trims, deduplicates and sorts the set, rejecting unknown codes.
func (p PermissionSet) Normalize() (PermissionSet, error) {
	seen := make(map[string]bool, len(p))
	out := make(PermissionSet, 0, len(p))
	for _, c := range p {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if !IsKnownPermission(c) {
			return nil, Errorf(CodeInvalidInput, "unknown permission %q", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// Value implements driver.Valuer.
func (p PermissionSet) Value() (driver.Value, error) {
	return strings.Join(p, ","), nil
}

// Scan implements sql.Scanner.
func (p *PermissionSet) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*p = PermissionSet{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported permission set type %T", src)
	}
	if s == "" {
		*p = PermissionSet{}
		return nil
	}
	*p = strings.Split(s, ",")
	return nil
}
