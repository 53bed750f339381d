package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpenseValidate(t *testing.T) {
	e := Expense{Amount: dec("12.345"), CategoryID: 1, ExpenseDate: time.Now()}
	require.NoError(t, e.Validate())
	assert.Equal(t, "12.35", e.Amount.StringFixed(2))

	e.Amount = dec("0")
	assert.ErrorIs(t, e.Validate(), ErrInvalidInput)
}

func TestSummarizeExpenses(t *testing.T) {
	sum := SummarizeExpenses([]Expense{
		{CategoryID: 2, CategoryName: "Utilities", Amount: dec("40")},
		{CategoryID: 1, CategoryName: "Rent", Amount: dec("500")},
		{CategoryID: 2, CategoryName: "Utilities", Amount: dec("15.50")},
	})
	require.Len(t, sum.Categories, 2)
	assert.Equal(t, "Rent", sum.Categories[0].CategoryName)
	assert.Equal(t, int64(2), sum.Categories[1].Count)
	assert.Equal(t, "55.50", sum.Categories[1].Total.StringFixed(2))
	assert.Equal(t, "555.50", sum.Total.StringFixed(2))
}
