package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmadesk/m/domain"
)

const orgColumns = `id, name, kind, address, phone, email, accepts_bulk_orders, created_at`

// GetOrganization loads an organization.
func (s *Store) GetOrganization(ctx context.Context, id int64) (*domain.Organization, error) {
	return getOrganization(ctx, s.db, id)
}

func getOrganization(ctx context.Context, q sqlx.ExtContext, id int64) (*domain.Organization, error) {
	var o domain.Organization
	if err := get(ctx, q, &o, `SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id); err != nil {
		return nil, loadErr(err, "organization")
	}
	return &o, nil
}

// UpdateOrganization saves the editable organization profile.
func (s *Store) UpdateOrganization(ctx context.Context, o *domain.Organization) (*domain.Organization, error) {
	res, err := exec(ctx, s.db, `UPDATE organizations SET name = ?, kind = ?, address = ?, phone = ?, email = ?, accepts_bulk_orders = ? WHERE id = ?`,
		o.Name, o.Kind, o.Address, o.Phone, o.Email, o.AcceptsBulkOrders, o.ID)
	if err != nil {
		return nil, fmt.Errorf("unable to update organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.Errorf(domain.CodeNotFound, "organization not found")
	}
	return s.GetOrganization(ctx, o.ID)
}

// SupplierDirectory lists other organizations that accept bulk orders.
func (s *Store) SupplierDirectory(ctx context.Context, orgID int64, query string) ([]domain.Organization, error) {
	sqlQuery := `SELECT ` + orgColumns + ` FROM organizations WHERE accepts_bulk_orders = ? AND id <> ?`
	args := []any{true, orgID}
	if query != "" {
		sqlQuery += ` AND LOWER(name) LIKE ?`
		args = append(args, likePattern(query))
	}
	orgs := []domain.Organization{}
	if err := selectAll(ctx, s.db, &orgs, sqlQuery+` ORDER BY name LIMIT 100`, args...); err != nil {
		return nil, fmt.Errorf("unable to list suppliers: %w", err)
	}
	return orgs, nil
}

const branchColumns = `id, organization_id, name, address, phone, is_main, created_at`

// ListBranches returns the organization's branches, main branch first.
func (s *Store) ListBranches(ctx context.Context, orgID int64) ([]domain.Branch, error) {
	branches := []domain.Branch{}
	if err := selectAll(ctx, s.db, &branches, `SELECT `+branchColumns+` FROM branches WHERE organization_id = ? ORDER BY is_main DESC, id`, orgID); err != nil {
		return nil, fmt.Errorf("unable to list branches: %w", err)
	}
	return branches, nil
}

// GetBranch loads a branch of the organization.
func (s *Store) GetBranch(ctx context.Context, orgID, id int64) (*domain.Branch, error) {
	return getBranch(ctx, s.db, orgID, id)
}

func getBranch(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.Branch, error) {
	var b domain.Branch
	if err := get(ctx, q, &b, `SELECT `+branchColumns+` FROM branches WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "branch")
	}
	return &b, nil
}

// MainBranch returns the organization's main branch.
func (s *Store) MainBranch(ctx context.Context, orgID int64) (*domain.Branch, error) {
	var b domain.Branch
	if err := get(ctx, s.db, &b, `SELECT `+branchColumns+` FROM branches WHERE organization_id = ? AND is_main = ?`, orgID, true); err != nil {
		return nil, loadErr(err, "main branch")
	}
	return &b, nil
}

// CreateBranch adds a branch, counted against the plan's branch limit.
func (s *Store) CreateBranch(ctx context.Context, b *domain.Branch) (*domain.Branch, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.checkLimit(ctx, tx, b.OrganizationID, domain.ResourceBranches); err != nil {
			return err
		}
		var err error
		id, err = insert(ctx, tx, `INSERT INTO branches (organization_id, name, address, phone, is_main, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			b.OrganizationID, b.Name, b.Address, b.Phone, false, s.Now())
		if err != nil {
			return fmt.Errorf("unable to create branch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBranch(ctx, b.OrganizationID, id)
}

// UpdateBranch saves name and contact details.
func (s *Store) UpdateBranch(ctx context.Context, b *domain.Branch) (*domain.Branch, error) {
	res, err := exec(ctx, s.db, `UPDATE branches SET name = ?, address = ?, phone = ? WHERE id = ? AND organization_id = ?`,
		b.Name, b.Address, b.Phone, b.ID, b.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("unable to update branch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.Errorf(domain.CodeNotFound, "branch not found")
	}
	return s.GetBranch(ctx, b.OrganizationID, b.ID)
}

// DeleteBranch removes a branch that holds no records.
func (s *Store) DeleteBranch(ctx context.Context, orgID, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		b, err := getBranch(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if b.IsMain {
			return domain.Errorf(domain.CodeInvalidState, "the main branch cannot be deleted")
		}
		for _, check := range []struct{ query, what string }{
			{`SELECT COUNT(*) FROM inventory_items WHERE branch_id = ?`, "inventory"},
			{`SELECT COUNT(*) FROM sales WHERE branch_id = ?`, "sales"},
			{`SELECT COUNT(*) FROM purchases WHERE branch_id = ?`, "purchases"},
			{`SELECT COUNT(*) FROM expenses WHERE branch_id = ?`, "expenses"},
			{`SELECT COUNT(*) FROM users WHERE branch_id = ?`, "users"},
			{`SELECT COUNT(*) FROM bulk_orders WHERE ? IN (buyer_branch_id, supplier_branch_id)`, "bulk orders"},
		} {
			n, err := count(ctx, tx, check.query, id)
			if err != nil {
				return fmt.Errorf("unable to check branch %s: %w", check.what, err)
			}
			if n > 0 {
				return domain.Errorf(domain.CodeInvalidState, "branch %s has %s and cannot be deleted", b.Name, check.what)
			}
		}
		if _, err := exec(ctx, tx, `DELETE FROM branches WHERE id = ?`, id); err != nil {
			return fmt.Errorf("unable to delete branch: %w", err)
		}
		return nil
	})
}
