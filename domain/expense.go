package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type ExpenseCategory struct {
	ID             int64     `db:"id" json:"id"`
	OrganizationID int64     `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type Expense struct {
	ID             int64           `db:"id" json:"id"`
	OrganizationID int64           `db:"organization_id" json:"organization_id"`
	BranchID       int64           `db:"branch_id" json:"branch_id"`
	CategoryID     int64           `db:"category_id" json:"category_id"`
	CategoryName   string          `db:"category_name" json:"category_name"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	ExpenseDate    time.Time       `db:"expense_date" json:"expense_date"`
	Payee          string          `db:"payee" json:"payee"`
	Note           string          `db:"note" json:"note"`
	CreatedBy      *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Validate checks the fields a caller controls.
func (e *Expense) Validate() error {
	if !e.Amount.IsPositive() {
		return Errorf(CodeInvalidInput, "expense amount must be positive")
	}
	if e.CategoryID <= 0 {
		return Errorf(CodeInvalidInput, "category_id is required")
	}
	if e.ExpenseDate.IsZero() {
		return Errorf(CodeInvalidInput, "expense_date is required")
	}
	e.Amount = RoundMoney(e.Amount)
	return nil
}

// CategoryTotal is one row of an expense summary.
type CategoryTotal struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Count        int64           `json:"count"`
	Total        decimal.Decimal `json:"total"`
}

// ExpenseSummary groups expenses per category with a grand total.
type ExpenseSummary struct {
	From       *time.Time      `json:"from,omitempty"`
	To         *time.Time      `json:"to,omitempty"`
	Categories []CategoryTotal `json:"categories"`
	Total      decimal.Decimal `json:"total"`
}

// SummarizeExpenses totals expenses per category, ordered by category name.
func SummarizeExpenses(expenses []Expense) ExpenseSummary {
	byID := make(map[int64]*CategoryTotal)
	var order []int64
	total := decimal.Zero
	for _, e := range expenses {
		ct, ok := byID[e.CategoryID]
		if !ok {
			ct = &CategoryTotal{CategoryID: e.CategoryID, CategoryName: e.CategoryName, Total: decimal.Zero}
			byID[e.CategoryID] = ct
			order = append(order, e.CategoryID)
		}
		ct.Count++
		ct.Total = ct.Total.Add(e.Amount)
		total = total.Add(e.Amount)
	}
	out := make([]CategoryTotal, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return ExpenseSummary{Categories: out, Total: RoundMoney(total)}
}
