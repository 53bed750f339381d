package api

import (
	"net/http"

	"pharmadesk/m/internal/store"
)

// Report handlers. Branch-bound users only see their own branch.

func (h *Handler) reportBranch(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	branchID, err := queryInt(r, "branch_id")
	if err == nil {
		branchID, err = branchScope(principalFrom(r), branchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "invalid branch")
		return nil, false
	}
	return branchID, true
}

func (h *Handler) dailySales(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.reportBranch(w, r)
	if !ok {
		return
	}
	totals, err := h.store.DailySales(r.Context(), principalFrom(r).user.OrganizationID, branchID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to fetch daily sales")
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.reportBranch(w, r)
	if !ok {
		return
	}
	totals, err := h.store.MonthlySales(r.Context(), principalFrom(r).user.OrganizationID, branchID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to fetch monthly sales")
		return
	}
	respondJSON(w, http.StatusOK, totals)
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	f, err := h.saleFilter(r)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid filter")
		return
	}
	sales, err := h.store.SalesReport(r.Context(), principalFrom(r).user.OrganizationID, f)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to fetch sales report")
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handler) revenueByTier(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.reportBranch(w, r)
	if !ok {
		return
	}
	dates, err := dateRange(r)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid date range")
		return
	}
	tiers, err := h.store.RevenueByTier(r.Context(), principalFrom(r).user.OrganizationID, branchID, dates)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to fetch revenue by tier")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]store.TierRevenue{"tiers": tiers})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.reportBranch(w, r)
	if !ok {
		return
	}
	d, err := h.store.Dashboard(r.Context(), principalFrom(r).user.OrganizationID, branchID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to build dashboard")
		return
	}
	respondJSON(w, http.StatusOK, d)
}
