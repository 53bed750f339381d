package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/receipt"
	"pharmadesk/m/internal/store"
)

// Sale handlers

type saleRequest struct {
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	PatientID *int64 `json:"patient_id" validate:"omitempty,gt=0"`
	Items     []struct {
		InventoryItemID int64  `json:"inventory_item_id" validate:"required,gt=0"`
		Quantity        int64  `json:"quantity" validate:"required,gt=0"`
		Tier            string `json:"tier" validate:"omitempty,oneof=unit strip box"`
	} `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal `json:"discount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentMethod string          `json:"payment_method" validate:"max=20"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	if err := checkBranch(p, req.BranchID); err != nil {
		h.respondStoreError(w, r, err, "unable to check branch")
		return
	}
	items := make([]store.NewSaleItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = store.NewSaleItem{InventoryItemID: it.InventoryItemID, Quantity: it.Quantity, Tier: it.Tier}
	}
	sale, err := h.store.CreateSale(r.Context(), p.user.OrganizationID, p.user.ID, store.NewSale{
		BranchID:      req.BranchID,
		PatientID:     req.PatientID,
		Items:         items,
		Discount:      req.Discount,
		PaidAmount:    req.PaidAmount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record sale")
		return
	}
	h.metrics.SaleRecorded(sale.Total.InexactFloat64())
	respondJSON(w, http.StatusCreated, sale)
}

func (h *Handler) saleFilter(r *http.Request) (store.SaleFilter, error) {
	f := store.SaleFilter{Page: page(r)}
	var err error
	if f.BranchID, err = queryInt(r, "branch_id"); err != nil {
		return f, err
	}
	if f.BranchID, err = branchScope(principalFrom(r), f.BranchID); err != nil {
		return f, err
	}
	if f.PatientID, err = queryInt(r, "patient_id"); err != nil {
		return f, err
	}
	f.Dates, err = dateRange(r)
	return f, err
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	f, err := h.saleFilter(r)
	if err != nil {
		h.respondStoreError(w, r, err, "invalid filter")
		return
	}
	sales, err := h.store.ListSales(r.Context(), principalFrom(r).user.OrganizationID, f)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list sales")
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

// loadSale fetches the sale named in the path and checks branch access.
func (h *Handler) loadSale(w http.ResponseWriter, r *http.Request) (*domain.Sale, bool) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return nil, false
	}
	p := principalFrom(r)
	sale, err := h.store.GetSale(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBranch(p, sale.BranchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load sale")
		return nil, false
	}
	return sale, true
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *Handler) listSaleReturns(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	returns, err := h.store.ListSaleReturns(r.Context(), sale.OrganizationID, sale.ID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list returns")
		return
	}
	respondJSON(w, http.StatusOK, returns)
}

type returnRequest struct {
	Items []struct {
		SaleItemID int64 `json:"sale_item_id" validate:"required,gt=0"`
		Quantity   int64 `json:"quantity" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) returnSale(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]store.ReturnLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = store.ReturnLine{SaleItemID: it.SaleItemID, Quantity: it.Quantity}
	}
	result, err := h.store.ReturnSale(r.Context(), sale.OrganizationID, principalFrom(r).user.ID, sale.ID, lines, req.Reason)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record return")
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) paySale(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.normalize(); err != nil {
		h.respondStoreError(w, r, err, "invalid payment")
		return
	}
	updated, err := h.store.PaySale(r.Context(), sale.OrganizationID, principalFrom(r).user.ID, sale.ID, req.Amount, req.Method)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record payment")
		return
	}
	respondJSON(w, http.StatusCreated, updated)
}

func (h *Handler) saleReceipt(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	org, err := h.store.GetOrganization(ctx, sale.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load organization")
		return
	}
	branch, err := h.store.GetBranch(ctx, sale.OrganizationID, sale.BranchID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load branch")
		return
	}
	var patient *domain.Patient
	if sale.PatientID != nil {
		patient, err = h.store.GetPatient(ctx, sale.OrganizationID, *sale.PatientID)
		if err != nil && domain.CodeOf(err) != domain.CodeNotFound {
			h.respondStoreError(w, r, err, "unable to load patient")
			return
		}
	}
	pdf, err := receipt.Render(receipt.Data{
		Organization: org,
		Branch:       branch,
		Sale:         sale,
		Patient:      patient,
		Currency:     strings.ToUpper(h.billing.Currency),
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to render receipt")
		return
	}
	sendFile(w, receipt.ContentType, fmt.Sprintf("receipt-%s.pdf", sale.Number), pdf)
}
