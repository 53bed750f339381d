package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/store"
)

// Purchase handlers

type purchaseItemRequest struct {
	InventoryItemID int64           `json:"inventory_item_id" validate:"required,gt=0"`
	Quantity        int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

type purchaseRequest struct {
	SupplierID    int64                 `json:"supplier_id" validate:"required,gt=0"`
	BranchID      int64                 `json:"branch_id" validate:"required,gt=0"`
	Reference     string                `json:"reference" validate:"max=100"`
	PurchaseDate  *date                 `json:"purchase_date"`
	Discount      decimal.Decimal       `json:"discount"`
	Note          string                `json:"note" validate:"max=500"`
	Items         []purchaseItemRequest `json:"items" validate:"required,min=1,dive"`
	PaidAmount    decimal.Decimal       `json:"paid_amount"`
	PaymentMethod string                `json:"payment_method" validate:"max=20"`
	ApplyCredit   bool                  `json:"apply_credit"`
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	if err := checkBranch(p, req.BranchID); err != nil {
		h.respondStoreError(w, r, err, "unable to check branch")
		return
	}
	items := make([]store.NewPurchaseItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = store.NewPurchaseItem{InventoryItemID: it.InventoryItemID, Quantity: it.Quantity, UnitCost: it.UnitCost}
	}
	purchase, err := h.store.CreatePurchase(r.Context(), p.user.OrganizationID, p.user.ID, store.NewPurchase{
		SupplierID:    req.SupplierID,
		BranchID:      req.BranchID,
		Reference:     req.Reference,
		PurchaseDate:  req.PurchaseDate.value(),
		Discount:      req.Discount,
		Note:          req.Note,
		Items:         items,
		PaidAmount:    req.PaidAmount,
		PaymentMethod: req.PaymentMethod,
		ApplyCredit:   req.ApplyCredit,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record purchase")
		return
	}
	if req.PaidAmount.IsPositive() {
		method := req.PaymentMethod
		if method == "" {
			method = "cash"
		}
		h.metrics.SupplierPaymentRecorded(method)
	}
	respondJSON(w, http.StatusCreated, purchase)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	f := store.PurchaseFilter{Status: r.URL.Query().Get("status"), Page: page(r)}
	var err error
	if f.SupplierID, err = queryInt(r, "supplier_id"); err == nil {
		if f.BranchID, err = queryInt(r, "branch_id"); err == nil {
			if f.BranchID, err = branchScope(p, f.BranchID); err == nil {
				f.Dates, err = dateRange(r)
			}
		}
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list purchases")
		return
	}
	purchases, err := h.store.ListPurchases(r.Context(), p.user.OrganizationID, f)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list purchases")
		return
	}
	respondJSON(w, http.StatusOK, purchases)
}

// loadPurchase fetches the purchase named in the path and checks the caller
// may act on its branch.
func (h *Handler) loadPurchase(w http.ResponseWriter, r *http.Request) (*domain.Purchase, bool) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return nil, false
	}
	p := principalFrom(r)
	purchase, err := h.store.GetPurchase(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBranch(p, purchase.BranchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load purchase")
		return nil, false
	}
	return purchase, true
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	purchase, ok := h.loadPurchase(w, r)
	if !ok {
		return
	}
	allocations, err := h.store.PurchaseAllocations(r.Context(), purchase.OrganizationID, purchase.ID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load purchase payments")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"purchase": purchase, "allocations": allocations})
}

func (h *Handler) payPurchase(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadPurchase(w, r)
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
	p := principalFrom(r)
	purchase, err := h.store.PayPurchase(r.Context(), p.user.OrganizationID, p.user.ID, current.ID, req.Amount, req.Method, req.Note)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record payment")
		return
	}
	h.metrics.SupplierPaymentRecorded(req.Method)
	respondJSON(w, http.StatusCreated, purchase)
}

type lossRequest struct {
	Items []struct {
		PurchaseItemID int64  `json:"purchase_item_id" validate:"required,gt=0"`
		Quantity       int64  `json:"quantity" validate:"required,gt=0"`
		Reason         string `json:"reason" validate:"max=200"`
	} `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) recordLosses(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadPurchase(w, r)
	if !ok {
		return
	}
	var req lossRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]store.LossLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = store.LossLine{PurchaseItemID: it.PurchaseItemID, Quantity: it.Quantity, Reason: it.Reason}
	}
	p := principalFrom(r)
	purchase, err := h.store.RecordLosses(r.Context(), p.user.OrganizationID, p.user.ID, current.ID, lines)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record loss")
		return
	}
	respondJSON(w, http.StatusOK, purchase)
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) voidPurchase(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadPurchase(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	purchase, err := h.store.VoidPurchase(r.Context(), p.user.OrganizationID, p.user.ID, current.ID, req.Reason)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to void purchase")
		return
	}
	respondJSON(w, http.StatusOK, purchase)
}
