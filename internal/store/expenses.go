package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmadesk/m/domain"
)

const expenseColumns = `e.id, e.organization_id, e.branch_id, e.category_id, c.name AS category_name, e.amount, e.expense_date, e.payee, e.note, e.created_by, e.created_at`

// ListExpenseCategories returns the organization's categories by name.
func (s *Store) ListExpenseCategories(ctx context.Context, orgID int64) ([]domain.ExpenseCategory, error) {
	categories := []domain.ExpenseCategory{}
	if err := selectAll(ctx, s.db, &categories, `SELECT id, organization_id, name, created_at FROM expense_categories WHERE organization_id = ? ORDER BY name`, orgID); err != nil {
		return nil, fmt.Errorf("unable to list expense categories: %w", err)
	}
	return categories, nil
}

// CreateExpenseCategory adds a category. Names are unique per organization.
func (s *Store) CreateExpenseCategory(ctx context.Context, orgID int64, name string) (*domain.ExpenseCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Errorf(domain.CodeInvalidInput, "name is required")
	}
	c := &domain.ExpenseCategory{OrganizationID: orgID, Name: name, CreatedAt: s.Now()}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err := count(ctx, tx, `SELECT COUNT(*) FROM expense_categories WHERE organization_id = ? AND LOWER(name) = ?`, orgID, strings.ToLower(name))
		if err != nil {
			return fmt.Errorf("unable to check category name: %w", err)
		}
		if n > 0 {
			return domain.Errorf(domain.CodeConflict, "category %q already exists", name)
		}
		c.ID, err = insert(ctx, tx, `INSERT INTO expense_categories (organization_id, name, created_at) VALUES (?, ?, ?)`, c.OrganizationID, c.Name, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to create expense category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteExpenseCategory removes a category no expense uses.
func (s *Store) DeleteExpenseCategory(ctx context.Context, orgID, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := categoryInOrg(ctx, tx, orgID, id); err != nil {
			return err
		}
		used, err := count(ctx, tx, `SELECT COUNT(*) FROM expenses WHERE category_id = ?`, id)
		if err != nil {
			return fmt.Errorf("unable to check category usage: %w", err)
		}
		if used > 0 {
			return domain.Errorf(domain.CodeInvalidState, "category is used by %d expenses", used)
		}
		if _, err := exec(ctx, tx, `DELETE FROM expense_categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("unable to delete expense category: %w", err)
		}
		return nil
	})
}

func categoryInOrg(ctx context.Context, q sqlx.ExtContext, orgID, id int64) error {
	n, err := count(ctx, q, `SELECT COUNT(*) FROM expense_categories WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("unable to load expense category: %w", err)
	}
	if n == 0 {
		return domain.Errorf(domain.CodeNotFound, "expense category %d not found", id)
	}
	return nil
}

// ExpenseFilter narrows an expense listing.
type ExpenseFilter struct {
	BranchID   *int64
	CategoryID *int64
	Dates      DateRange
	Page       Page
}

func (f ExpenseFilter) clauses(orgID int64) ([]string, []any) {
	clauses := []string{"e.organization_id = ?"}
	args := []any{orgID}
	if f.BranchID != nil {
		clauses = append(clauses, "e.branch_id = ?")
		args = append(args, *f.BranchID)
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "e.category_id = ?")
		args = append(args, *f.CategoryID)
	}
	return f.Dates.apply("e.expense_date", clauses, args)
}

// ListExpenses returns expenses, newest first.
func (s *Store) ListExpenses(ctx context.Context, orgID int64, f ExpenseFilter) ([]domain.Expense, error) {
	clauses, args := f.clauses(orgID)
	expenses := []domain.Expense{}
	if err := selectAll(ctx, s.db, &expenses, `SELECT `+expenseColumns+` FROM expenses e JOIN expense_categories c ON c.id = e.category_id`+
		where(clauses)+` ORDER BY e.expense_date DESC, e.id DESC`+f.Page.clause(), args...); err != nil {
		return nil, fmt.Errorf("unable to list expenses: %w", err)
	}
	return expenses, nil
}

// SummarizeExpenses totals the filtered expenses per category.
func (s *Store) SummarizeExpenses(ctx context.Context, orgID int64, f ExpenseFilter) (*domain.ExpenseSummary, error) {
	clauses, args := f.clauses(orgID)
	var expenses []domain.Expense
	if err := selectAll(ctx, s.db, &expenses, `SELECT `+expenseColumns+` FROM expenses e JOIN expense_categories c ON c.id = e.category_id`+
		where(clauses), args...); err != nil {
		return nil, fmt.Errorf("unable to summarize expenses: %w", err)
	}
	summary := domain.SummarizeExpenses(expenses)
	if !f.Dates.From.IsZero() {
		from := DateOf(f.Dates.From)
		summary.From = &from
	}
	if !f.Dates.To.IsZero() {
		to := DateOf(f.Dates.To)
		summary.To = &to
	}
	return &summary, nil
}

// GetExpense loads an expense with its category name.
func (s *Store) GetExpense(ctx context.Context, orgID, id int64) (*domain.Expense, error) {
	var e domain.Expense
	if err := get(ctx, s.db, &e, `SELECT `+expenseColumns+` FROM expenses e JOIN expense_categories c ON c.id = e.category_id
		WHERE e.id = ? AND e.organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "expense")
	}
	return &e, nil
}

func (s *Store) checkExpense(ctx context.Context, q sqlx.ExtContext, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	e.ExpenseDate = DateOf(e.ExpenseDate)
	if err := branchInOrg(ctx, q, e.OrganizationID, e.BranchID); err != nil {
		return err
	}
	return categoryInOrg(ctx, q, e.OrganizationID, e.CategoryID)
}

// CreateExpense records an expense.
func (s *Store) CreateExpense(ctx context.Context, actorID int64, e *domain.Expense) (*domain.Expense, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.checkExpense(ctx, tx, e); err != nil {
			return err
		}
		e.CreatedBy = &actorID
		e.CreatedAt = s.Now()
		var err error
		e.ID, err = insert(ctx, tx, `INSERT INTO expenses (organization_id, branch_id, category_id, amount, expense_date, payee, note, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.OrganizationID, e.BranchID, e.CategoryID, e.Amount, e.ExpenseDate, e.Payee, e.Note, e.CreatedBy, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to create expense: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetExpense(ctx, e.OrganizationID, e.ID)
}

// UpdateExpense saves an existing expense.
func (s *Store) UpdateExpense(ctx context.Context, e *domain.Expense) (*domain.Expense, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.checkExpense(ctx, tx, e); err != nil {
			return err
		}
		res, err := exec(ctx, tx, `UPDATE expenses SET branch_id = ?, category_id = ?, amount = ?, expense_date = ?, payee = ?, note = ?
			WHERE id = ? AND organization_id = ?`,
			e.BranchID, e.CategoryID, e.Amount, e.ExpenseDate, e.Payee, e.Note, e.ID, e.OrganizationID)
		if err != nil {
			return fmt.Errorf("unable to update expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Errorf(domain.CodeNotFound, "expense not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetExpense(ctx, e.OrganizationID, e.ID)
}

// DeleteExpense removes an expense.
func (s *Store) DeleteExpense(ctx context.Context, orgID, id int64) error {
	res, err := exec(ctx, s.db, `DELETE FROM expenses WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("unable to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errorf(domain.CodeNotFound, "expense not found")
	}
	return nil
}
