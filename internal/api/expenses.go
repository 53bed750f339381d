package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/export"
	"pharmadesk/m/internal/store"
)

// Expense category handlers

func (h *Handler) listExpenseCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListExpenseCategories(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list expense categories")
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handler) createExpenseCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,max=100"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	category, err := h.store.CreateExpenseCategory(r.Context(), principalFrom(r).user.OrganizationID, req.Name)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create expense category")
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (h *Handler) deleteExpenseCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteExpenseCategory(r.Context(), principalFrom(r).user.OrganizationID, id); err != nil {
		h.respondStoreError(w, r, err, "unable to delete expense category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Expense handlers

type expenseRequest struct {
	BranchID    int64           `json:"branch_id" validate:"required,gt=0"`
	CategoryID  int64           `json:"category_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate *date           `json:"expense_date"`
	Payee       string          `json:"payee" validate:"max=200"`
	Note        string          `json:"note" validate:"max=1000"`
}

func (h *Handler) expense(p *principal, req expenseRequest) (*domain.Expense, error) {
	if err := checkBranch(p, req.BranchID); err != nil {
		return nil, err
	}
	day := req.ExpenseDate.value()
	if day.IsZero() {
		day = h.now()
	}
	return &domain.Expense{
		OrganizationID: p.user.OrganizationID,
		BranchID:       req.BranchID,
		CategoryID:     req.CategoryID,
		Amount:         req.Amount,
		ExpenseDate:    day,
		Payee:          strings.TrimSpace(req.Payee),
		Note:           req.Note,
	}, nil
}

func (h *Handler) expenseFilter(r *http.Request) (store.ExpenseFilter, error) {
	f := store.ExpenseFilter{Page: page(r)}
	var err error
	if f.BranchID, err = queryInt(r, "branch_id"); err != nil {
		return f, err
	}
	if f.BranchID, err = branchScope(principalFrom(r), f.BranchID); err != nil {
		return f, err
	}
	if f.CategoryID, err = queryInt(r, "category_id"); err != nil {
		return f, err
	}
	f.Dates, err = dateRange(r)
	return f, err
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := h.expenseFilter(r)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid filter")
		return
	}
	expenses, err := h.store.ListExpenses(r.Context(), principalFrom(r).user.OrganizationID, f)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list expenses")
		return
	}
	respondJSON(w, http.StatusOK, expenses)
}

func (h *Handler) expenseSummary(w http.ResponseWriter, r *http.Request) {
	f, err := h.expenseFilter(r)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid filter")
		return
	}
	summary, err := h.store.SummarizeExpenses(r.Context(), principalFrom(r).user.OrganizationID, f)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to summarize expenses")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) exportExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := h.expenseFilter(r)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid filter")
		return
	}
	orgID := principalFrom(r).user.OrganizationID
	var expenses []domain.Expense
	for offset := 0; ; offset += exportPageSize {
		f.Page = store.Page{Limit: exportPageSize, Offset: offset}
		batch, err := h.store.ListExpenses(r.Context(), orgID, f)
		if err != nil {
			h.respondStoreError(w, r, err, "unable to list expenses")
			return
		}
		expenses = append(expenses, batch...)
		if len(batch) < exportPageSize {
			break
		}
	}
	var buf bytes.Buffer
	if err := export.Expenses(&buf, expenses, domain.SummarizeExpenses(expenses)); err != nil {
		h.respondStoreError(w, r, err, "unable to export expenses")
		return
	}
	sendFile(w, export.ContentType, "expenses.xlsx", buf.Bytes())
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p := principalFrom(r)
	e, err := h.store.GetExpense(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBranch(p, e.BranchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load expense")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	in, err := h.expense(p, req)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid expense")
		return
	}
	e, err := h.store.CreateExpense(r.Context(), p.user.ID, in)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create expense")
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req expenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	existing, err := h.store.GetExpense(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBranch(p, existing.BranchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load expense")
		return
	}
	in, err := h.expense(p, req)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid expense")
		return
	}
	in.ID = id
	e, err := h.store.UpdateExpense(r.Context(), in)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update expense")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p := principalFrom(r)
	e, err := h.store.GetExpense(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBranch(p, e.BranchID)
	}
	if err == nil {
		err = h.store.DeleteExpense(r.Context(), p.user.OrganizationID, id)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to delete expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
