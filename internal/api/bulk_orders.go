package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/store"
)

// Bulk order handlers

type bulkItemRequest struct {
	Name           string          `json:"name" validate:"max=200"`
	SupplierItemID *int64          `json:"supplier_item_id" validate:"omitempty,gt=0"`
	BuyerItemID    *int64          `json:"buyer_item_id" validate:"omitempty,gt=0"`
	Quantity       int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type bulkOrderRequest struct {
	BuyerBranchID          int64             `json:"buyer_branch_id" validate:"required,gt=0"`
	SupplierOrganizationID int64             `json:"supplier_organization_id" validate:"required,gt=0"`
	Notes                  string            `json:"notes" validate:"max=1000"`
	Items                  []bulkItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) createBulkOrder(w http.ResponseWriter, r *http.Request) {
	var req bulkOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	if err := checkBranch(p, req.BuyerBranchID); err != nil {
		h.respondStoreError(w, r, err, "unable to check branch")
		return
	}
	items := make([]store.NewBulkOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = store.NewBulkOrderItem{
			Name:           it.Name,
			SupplierItemID: it.SupplierItemID,
			BuyerItemID:    it.BuyerItemID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
		}
	}
	order, err := h.store.CreateBulkOrder(r.Context(), p.user.OrganizationID, p.user.ID, store.NewBulkOrder{
		BuyerBranchID:          req.BuyerBranchID,
		SupplierOrganizationID: req.SupplierOrganizationID,
		Notes:                  req.Notes,
		Items:                  items,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create bulk order")
		return
	}
	h.metrics.BulkOrderTransitioned(order.Status)
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) listBulkOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.store.ListBulkOrders(r.Context(), principalFrom(r).user.OrganizationID, store.BulkOrderFilter{
		Role:   q.Get("role"),
		Status: q.Get("status"),
		Page:   page(r),
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list bulk orders")
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// loadBulkOrder fetches the order named in the path and checks the caller may
// act on the branch its organization has on the order.
func (h *Handler) loadBulkOrder(w http.ResponseWriter, r *http.Request) (*domain.BulkOrder, bool) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return nil, false
	}
	p := principalFrom(r)
	order, err := h.store.GetBulkOrder(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBulkBranch(p, order)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load bulk order")
		return nil, false
	}
	return order, true
}

func checkBulkBranch(p *principal, o *domain.BulkOrder) error {
	switch o.SideOf(p.user.OrganizationID) {
	case domain.SideBuyer:
		return checkBranch(p, o.BuyerBranchID)
	case domain.SideSupplier:
		if o.SupplierBranchID != nil {
			return checkBranch(p, *o.SupplierBranchID)
		}
	}
	return nil
}

func (h *Handler) getBulkOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadBulkOrder(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, order)
}

type confirmRequest struct {
	SupplierBranchID *int64                    `json:"supplier_branch_id" validate:"omitempty,gt=0"`
	UnitPrices       map[int64]decimal.Decimal `json:"unit_prices"`
	InstallmentCount int                       `json:"installment_count" validate:"omitempty,min=1,max=12"`
}

func (h *Handler) confirmBulkOrder(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadBulkOrder(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	if req.SupplierBranchID != nil {
		if err := checkBranch(p, *req.SupplierBranchID); err != nil {
			h.respondStoreError(w, r, err, "unable to check branch")
			return
		}
	}
	order, err := h.store.ConfirmBulkOrder(r.Context(), p.user.OrganizationID, current.ID, store.BulkConfirmation{
		SupplierBranchID: req.SupplierBranchID,
		UnitPrices:       req.UnitPrices,
		InstallmentCount: req.InstallmentCount,
	})
	h.respondTransition(w, r, order, err, "unable to confirm bulk order")
}

func (h *Handler) rejectBulkOrder(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadBulkOrder(w, r)
	if !ok {
		return
	}
	order, err := h.store.RejectBulkOrder(r.Context(), principalFrom(r).user.OrganizationID, current.ID)
	h.respondTransition(w, r, order, err, "unable to reject bulk order")
}

func (h *Handler) cancelBulkOrder(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadBulkOrder(w, r)
	if !ok {
		return
	}
	order, err := h.store.CancelBulkOrder(r.Context(), principalFrom(r).user.OrganizationID, current.ID)
	h.respondTransition(w, r, order, err, "unable to cancel bulk order")
}

// quantitiesRequest maps bulk item ids to quantities. Lines left out ship or
// arrive in full.
type quantitiesRequest struct {
	Quantities map[int64]int64 `json:"quantities"`
}

func (req quantitiesRequest) validate() error {
	for id, q := range req.Quantities {
		if q < 0 {
			return domain.Errorf(domain.CodeInvalidInput, "quantity for item %d must not be negative", id)
		}
	}
	return nil
}

func (h *Handler) dispatchBulkOrder(w http.ResponseWriter, r *http.Request) {
	h.moveBulkOrder(w, r, domain.BulkDispatched)
}

func (h *Handler) deliverBulkOrder(w http.ResponseWriter, r *http.Request) {
	h.moveBulkOrder(w, r, domain.BulkDelivered)
}

func (h *Handler) moveBulkOrder(w http.ResponseWriter, r *http.Request, target string) {
	current, ok := h.loadBulkOrder(w, r)
	if !ok {
		return
	}
	var req quantitiesRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.respondStoreError(w, r, err, "invalid quantities")
		return
	}
	p := principalFrom(r)
	var (
		order *domain.BulkOrder
		err   error
	)
	if target == domain.BulkDispatched {
		order, err = h.store.DispatchBulkOrder(r.Context(), p.user.OrganizationID, p.user.ID, current.ID, req.Quantities)
		h.respondTransition(w, r, order, err, "unable to dispatch bulk order")
		return
	}
	order, err = h.store.DeliverBulkOrder(r.Context(), p.user.OrganizationID, p.user.ID, current.ID, req.Quantities)
	h.respondTransition(w, r, order, err, "unable to deliver bulk order")
}

func (h *Handler) payBulkOrder(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadBulkOrder(w, r)
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
	order, err := h.store.PayBulkOrder(r.Context(), p.user.OrganizationID, p.user.ID, current.ID, req.Amount, req.Method, req.Note)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record payment")
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

func (h *Handler) respondTransition(w http.ResponseWriter, r *http.Request, order *domain.BulkOrder, err error, msg string) {
	if err != nil {
		h.respondStoreError(w, r, err, msg)
		return
	}
	h.metrics.BulkOrderTransitioned(order.Status)
	respondJSON(w, http.StatusOK, order)
}
