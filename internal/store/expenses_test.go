package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmadesk/m/domain"
)

func TestExpenses(t *testing.T) {
	f := newFixture(t)

	rent, err := f.s.CreateExpenseCategory(f.ctx, f.org.ID, "Rent")
	require.NoError(t, err)
	power, err := f.s.CreateExpenseCategory(f.ctx, f.org.ID, "Electricity")
	require.NoError(t, err)
	_, err = f.s.CreateExpenseCategory(f.ctx, f.org.ID, "rent")
	assertCode(t, domain.CodeConflict, err)

	for _, e := range []domain.Expense{
		{CategoryID: rent.ID, Amount: dec("500"), ExpenseDate: testNow.AddDate(0, 0, -10), Payee: "Landlord"},
		{CategoryID: power.ID, Amount: dec("80.50"), ExpenseDate: testNow.AddDate(0, 0, -3)},
		{CategoryID: power.ID, Amount: dec("19.50"), ExpenseDate: testNow},
	} {
		e.OrganizationID = f.org.ID
		e.BranchID = f.branch
		_, err := f.s.CreateExpense(f.ctx, f.owner.ID, &e)
		require.NoError(t, err)
	}

	_, err = f.s.CreateExpense(f.ctx, f.owner.ID, &domain.Expense{OrganizationID: f.org.ID, BranchID: f.branch, CategoryID: rent.ID, Amount: dec("0"), ExpenseDate: testNow})
	assertCode(t, domain.CodeInvalidInput, err)

	list, err := f.s.ListExpenses(f.ctx, f.org.ID, ExpenseFilter{CategoryID: &power.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Electricity", list[0].CategoryName)
	assertMoney(t, "19.50", list[0].Amount)

	summary, err := f.s.SummarizeExpenses(f.ctx, f.org.ID, ExpenseFilter{Dates: DateRange{From: testNow.AddDate(0, 0, -5), To: testNow}})
	require.NoError(t, err)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, int64(2), summary.Categories[0].Count)
	assertMoney(t, "100", summary.Total)
	require.NotNil(t, summary.From)

	summary, err = f.s.SummarizeExpenses(f.ctx, f.org.ID, ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, summary.Categories, 2)
	assert.Equal(t, "Electricity", summary.Categories[0].CategoryName)
	assertMoney(t, "600", summary.Total)

	assertCode(t, domain.CodeInvalidState, f.s.DeleteExpenseCategory(f.ctx, f.org.ID, rent.ID))

	t.Run("update and delete", func(t *testing.T) {
		e := list[1]
		e.Amount = dec("90")
		got, err := f.s.UpdateExpense(f.ctx, &e)
		require.NoError(t, err)
		assertMoney(t, "90", got.Amount)

		require.NoError(t, f.s.DeleteExpense(f.ctx, f.org.ID, e.ID))
		assertCode(t, domain.CodeNotFound, f.s.DeleteExpense(f.ctx, f.org.ID, e.ID))
	})

	t.Run("categories of another organization are not visible", func(t *testing.T) {
		_, other, branch := f.register("rival@example.com", domain.Organization{Name: "Rival"}, domain.PlanBasic)
		_, err := f.s.CreateExpense(f.ctx, f.owner.ID, &domain.Expense{OrganizationID: other.ID, BranchID: branch, CategoryID: rent.ID, Amount: dec("1"), ExpenseDate: testNow})
		assertCode(t, domain.CodeNotFound, err)
	})
}
