package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmadesk/m/domain"
)

const userColumns = `u.id, u.organization_id, u.branch_id, u.role_id, r.name AS role_name, u.username, u.email, u.password, u.active, u.created_at`

// Registration creates a new tenant with its owner.
type Registration struct {
	Username     string
	Email        string
	PasswordHash string
	Organization domain.Organization
	TrialPlan    string
	TrialDays    int
}

// Register creates the organization, its main branch, the system roles, the
// owner account and a trial subscription.
func (s *Store) Register(ctx context.Context, reg Registration) (*domain.User, *domain.Organization, error) {
	now := s.Now()
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	org := reg.Organization
	if org.Kind == "" {
		org.Kind = domain.OrganizationPharmacy
	}
	org.CreatedAt = now

	var user domain.User
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := emailAvailable(ctx, tx, email); err != nil {
			return err
		}
		var plan domain.Plan
		if err := get(ctx, tx, &plan, `SELECT code, name, monthly_price, yearly_price, max_branches, max_users, max_items, sort_order FROM plans WHERE code = ?`, reg.TrialPlan); err != nil {
			return loadErr(err, "plan "+reg.TrialPlan)
		}

		var err error
		org.ID, err = insert(ctx, tx, `INSERT INTO organizations (name, kind, address, phone, email, accepts_bulk_orders, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			org.Name, org.Kind, org.Address, org.Phone, org.Email, org.AcceptsBulkOrders, now)
		if err != nil {
			return fmt.Errorf("unable to create organization: %w", err)
		}
		if _, err := insert(ctx, tx, `INSERT INTO branches (organization_id, name, address, phone, is_main, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			org.ID, "Main", org.Address, org.Phone, true, now); err != nil {
			return fmt.Errorf("unable to create main branch: %w", err)
		}

		roles := domain.SystemRoles()
		names := make([]string, 0, len(roles))
		for name := range roles {
			names = append(names, name)
		}
		sort.Strings(names)
		var ownerRole int64
		for _, name := range names {
			perms, _ := roles[name].Normalize()
			id, err := insert(ctx, tx, `INSERT INTO roles (organization_id, name, permissions, is_system, created_at) VALUES (?, ?, ?, ?, ?)`,
				org.ID, name, perms, true, now)
			if err != nil {
				return fmt.Errorf("unable to create role %s: %w", name, err)
			}
			if name == domain.RoleOwner {
				ownerRole = id
			}
		}

		user = domain.User{
			OrganizationID: org.ID,
			RoleID:         ownerRole,
			RoleName:       domain.RoleOwner,
			Username:       reg.Username,
			Email:          email,
			Active:         true,
			CreatedAt:      now,
		}
		user.ID, err = insert(ctx, tx, `INSERT INTO users (organization_id, branch_id, role_id, username, email, password, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			org.ID, nil, ownerRole, reg.Username, email, reg.PasswordHash, true, now)
		if err != nil {
			return fmt.Errorf("unable to create owner: %w", err)
		}

		if _, err := insert(ctx, tx, `INSERT INTO subscriptions (organization_id, plan_code, status, billing_cycle, current_period_start, current_period_end, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			org.ID, plan.Code, domain.SubscriptionTrialing, domain.CycleMonthly, now, now.AddDate(0, 0, reg.TrialDays), now); err != nil {
			return fmt.Errorf("unable to start trial: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &user, &org, nil
}

func emailAvailable(ctx context.Context, q sqlx.ExtContext, email string) error {
	n, err := count(ctx, q, `SELECT COUNT(*) FROM users WHERE LOWER(email) = ?`, strings.ToLower(email))
	if err != nil {
		return fmt.Errorf("unable to check email: %w", err)
	}
	if n > 0 {
		return domain.Errorf(domain.CodeConflict, "email already exists")
	}
	return nil
}

// UserByEmail loads a user, including the password hash, for login.
func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := get(ctx, s.db, &u, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE LOWER(u.email) = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, loadErr(err, "user")
	}
	return &u, nil
}

// Principal loads a user with the current permissions of its role.
func (s *Store) Principal(ctx context.Context, userID int64) (*domain.User, domain.PermissionSet, error) {
	var row struct {
		domain.User
		Permissions domain.PermissionSet `db:"permissions"`
	}
	err := get(ctx, s.db, &row, `SELECT `+userColumns+`, r.permissions FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = ?`, userID)
	if err != nil {
		return nil, nil, loadErr(err, "user")
	}
	return &row.User, row.Permissions, nil
}

// GetUser loads a user of the organization.
func (s *Store) GetUser(ctx context.Context, orgID, id int64) (*domain.User, error) {
	return getUser(ctx, s.db, orgID, id)
}

func getUser(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.User, error) {
	var u domain.User
	err := get(ctx, q, &u, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = ? AND u.organization_id = ?`, id, orgID)
	if err != nil {
		return nil, loadErr(err, "user")
	}
	return &u, nil
}

// ListUsers returns the organization's users.
func (s *Store) ListUsers(ctx context.Context, orgID int64) ([]domain.User, error) {
	users := []domain.User{}
	if err := selectAll(ctx, s.db, &users, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.organization_id = ? ORDER BY u.id`, orgID); err != nil {
		return nil, fmt.Errorf("unable to list users: %w", err)
	}
	return users, nil
}

// NewUser is a staff account to create.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	RoleID       int64
	BranchID     *int64
}

// CreateUser adds a staff account, counted against the plan's user limit.
func (s *Store) CreateUser(ctx context.Context, orgID int64, in NewUser) (*domain.User, error) {
	now := s.Now()
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.checkLimit(ctx, tx, orgID, domain.ResourceUsers); err != nil {
			return err
		}
		if err := emailAvailable(ctx, tx, email); err != nil {
			return err
		}
		if _, err := getRole(ctx, tx, orgID, in.RoleID); err != nil {
			return err
		}
		if in.BranchID != nil {
			if err := branchInOrg(ctx, tx, orgID, *in.BranchID); err != nil {
				return err
			}
		}
		var err error
		id, err = insert(ctx, tx, `INSERT INTO users (organization_id, branch_id, role_id, username, email, password, active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			orgID, in.BranchID, in.RoleID, in.Username, email, in.PasswordHash, true, now)
		if err != nil {
			return fmt.Errorf("unable to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, orgID, id)
}

// UserUpdate changes a staff account.
type UserUpdate struct {
	Username string
	RoleID   int64
	BranchID *int64
}

// UpdateUser changes name, role and branch binding. The last active owner
// keeps the owner role.
func (s *Store) UpdateUser(ctx context.Context, orgID, id int64, in UserUpdate) (*domain.User, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getUser(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		role, err := getRole(ctx, tx, orgID, in.RoleID)
		if err != nil {
			return err
		}
		if in.BranchID != nil {
			if err := branchInOrg(ctx, tx, orgID, *in.BranchID); err != nil {
				return err
			}
		}
		if current.RoleName == domain.RoleOwner && role.Name != domain.RoleOwner && current.Active {
			if err := ensureAnotherOwner(ctx, tx, orgID, id); err != nil {
				return err
			}
		}
		if _, err := exec(ctx, tx, `UPDATE users SET username = ?, role_id = ?, branch_id = ? WHERE id = ? AND organization_id = ?`,
			in.Username, in.RoleID, in.BranchID, id, orgID); err != nil {
			return fmt.Errorf("unable to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, orgID, id)
}

// DeactivateUser disables a login. Users cannot deactivate themselves and the
// last active owner stays active.
func (s *Store) DeactivateUser(ctx context.Context, orgID, actorID, id int64) error {
	if actorID == id {
		return domain.Errorf(domain.CodeInvalidState, "you cannot deactivate your own account")
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		u, err := getUser(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if !u.Active {
			return nil
		}
		if u.RoleName == domain.RoleOwner {
			if err := ensureAnotherOwner(ctx, tx, orgID, id); err != nil {
				return err
			}
		}
		if _, err := exec(ctx, tx, `UPDATE users SET active = ? WHERE id = ?`, false, id); err != nil {
			return fmt.Errorf("unable to deactivate user: %w", err)
		}
		return nil
	})
}

func ensureAnotherOwner(ctx context.Context, q sqlx.ExtContext, orgID, exceptID int64) error {
	n, err := count(ctx, q, `SELECT COUNT(*) FROM users u JOIN roles r ON r.id = u.role_id
		WHERE u.organization_id = ? AND u.active = ? AND r.name = ? AND r.is_system = ? AND u.id <> ?`,
		orgID, true, domain.RoleOwner, true, exceptID)
	if err != nil {
		return fmt.Errorf("unable to count owners: %w", err)
	}
	if n == 0 {
		return domain.Errorf(domain.CodeInvalidState, "the organization needs at least one active owner")
	}
	return nil
}

// ChangePassword stores a new password hash.
func (s *Store) ChangePassword(ctx context.Context, userID int64, hash string) error {
	if _, err := exec(ctx, s.db, `UPDATE users SET password = ? WHERE id = ?`, hash, userID); err != nil {
		return fmt.Errorf("unable to update password: %w", err)
	}
	return nil
}

const roleColumns = `id, organization_id, name, permissions, is_system, created_at`

func getRole(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.Role, error) {
	var r domain.Role
	if err := get(ctx, q, &r, `SELECT `+roleColumns+` FROM roles WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "role")
	}
	return &r, nil
}

// GetRole loads a role of the organization.
func (s *Store) GetRole(ctx context.Context, orgID, id int64) (*domain.Role, error) {
	return getRole(ctx, s.db, orgID, id)
}

// ListRoles returns the organization's roles, system roles first.
func (s *Store) ListRoles(ctx context.Context, orgID int64) ([]domain.Role, error) {
	roles := []domain.Role{}
	if err := selectAll(ctx, s.db, &roles, `SELECT `+roleColumns+` FROM roles WHERE organization_id = ? ORDER BY is_system DESC, name`, orgID); err != nil {
		return nil, fmt.Errorf("unable to list roles: %w", err)
	}
	return roles, nil
}

// CreateRole adds a custom role.
func (s *Store) CreateRole(ctx context.Context, orgID int64, name string, perms domain.PermissionSet) (*domain.Role, error) {
	perms, err := perms.Normalize()
	if err != nil {
		return nil, err
	}
	var id int64
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := roleNameAvailable(ctx, tx, orgID, name, 0); err != nil {
			return err
		}
		var err error
		id, err = insert(ctx, tx, `INSERT INTO roles (organization_id, name, permissions, is_system, created_at) VALUES (?, ?, ?, ?, ?)`,
			orgID, name, perms, false, s.Now())
		if err != nil {
			return fmt.Errorf("unable to create role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(ctx, orgID, id)
}

// UpdateRole renames a custom role and replaces its permissions.
func (s *Store) UpdateRole(ctx context.Context, orgID, id int64, name string, perms domain.PermissionSet) (*domain.Role, error) {
	perms, err := perms.Normalize()
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		role, err := getRole(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return domain.Errorf(domain.CodeInvalidState, "system role %s cannot be changed", role.Name)
		}
		if err := roleNameAvailable(ctx, tx, orgID, name, id); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `UPDATE roles SET name = ?, permissions = ? WHERE id = ?`, name, perms, id); err != nil {
			return fmt.Errorf("unable to update role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(ctx, orgID, id)
}

// DeleteRole removes an unused custom role.
func (s *Store) DeleteRole(ctx context.Context, orgID, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		role, err := getRole(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return domain.Errorf(domain.CodeInvalidState, "system role %s cannot be deleted", role.Name)
		}
		n, err := count(ctx, tx, `SELECT COUNT(*) FROM users WHERE role_id = ?`, id)
		if err != nil {
			return fmt.Errorf("unable to check role usage: %w", err)
		}
		if n > 0 {
			return domain.Errorf(domain.CodeInvalidState, "role %s is assigned to %d users", role.Name, n)
		}
		if _, err := exec(ctx, tx, `DELETE FROM roles WHERE id = ?`, id); err != nil {
			return fmt.Errorf("unable to delete role: %w", err)
		}
		return nil
	})
}

func roleNameAvailable(ctx context.Context, q sqlx.ExtContext, orgID int64, name string, exceptID int64) error {
	n, err := count(ctx, q, `SELECT COUNT(*) FROM roles WHERE organization_id = ? AND LOWER(name) = ? AND id <> ?`,
		orgID, strings.ToLower(name), exceptID)
	if err != nil {
		return fmt.Errorf("unable to check role name: %w", err)
	}
	if n > 0 {
		return domain.Errorf(domain.CodeConflict, "role %s already exists", name)
	}
	return nil
}
