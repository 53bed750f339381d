package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/export"
	"pharmadesk/m/internal/store"
)

// Inventory handlers

func (h *Handler) searchMedicines(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	medicines, err := h.store.SearchMedicines(r.Context(), r.URL.Query().Get("query"), limit)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to search medicines")
		return
	}
	respondJSON(w, http.StatusOK, medicines)
}

type itemRequest struct {
	BranchID      int64            `json:"branch_id"`
	MedicineID    *int64           `json:"medicine_id" validate:"omitempty,gt=0"`
	Name          string           `json:"name" validate:"required,max=200"`
	GenericName   string           `json:"generic_name" validate:"max=200"`
	SKU           string           `json:"sku" validate:"max=100"`
	BatchNo       string           `json:"batch_no" validate:"max=100"`
	ExpiryDate    *date            `json:"expiry_date"`
	Quantity      int64            `json:"quantity" validate:"gte=0"`
	CostPrice     decimal.Decimal  `json:"cost_price"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	UnitsPerStrip int64            `json:"units_per_strip" validate:"gte=0"`
	StripPrice    *decimal.Decimal `json:"strip_price"`
	UnitsPerBox   int64            `json:"units_per_box" validate:"gte=0"`
	BoxPrice      *decimal.Decimal `json:"box_price"`
	ReorderLevel  int64            `json:"reorder_level" validate:"gte=0"`
}

func (req itemRequest) item(orgID int64) *domain.InventoryItem {
	return &domain.InventoryItem{
		OrganizationID: orgID,
		BranchID:       req.BranchID,
		MedicineID:     req.MedicineID,
		Name:           req.Name,
		GenericName:    req.GenericName,
		SKU:            req.SKU,
		BatchNo:        req.BatchNo,
		ExpiryDate:     req.ExpiryDate.ptr(),
		Quantity:       req.Quantity,
		CostPrice:      req.CostPrice,
		UnitPrice:      req.UnitPrice,
		UnitsPerStrip:  req.UnitsPerStrip,
		StripPrice:     req.StripPrice,
		UnitsPerBox:    req.UnitsPerBox,
		BoxPrice:       req.BoxPrice,
		ReorderLevel:   req.ReorderLevel,
	}
}

// defaultBranch is the caller's own branch, else the main branch.
func (h *Handler) defaultBranch(r *http.Request, p *principal) (int64, error) {
	if p.user.BranchID != nil {
		return *p.user.BranchID, nil
	}
	b, err := h.store.MainBranch(r.Context(), p.user.OrganizationID)
	if err != nil {
		return 0, err
	}
	return b.ID, nil
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	branchID, err := queryInt(r, "branch_id")
	if err == nil {
		branchID, err = branchScope(p, branchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list inventory")
		return
	}
	items, err := h.store.ListItems(r.Context(), p.user.OrganizationID, store.ItemFilter{
		BranchID:        branchID,
		Query:           r.URL.Query().Get("query"),
		IncludeInactive: r.URL.Query().Get("include_inactive") == "true",
		Page:            page(r),
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list inventory")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// loadItem fetches the item named in the URL and checks branch access.
func (h *Handler) loadItem(w http.ResponseWriter, r *http.Request) (*domain.InventoryItem, bool) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return nil, false
	}
	p := principalFrom(r)
	item, err := h.store.GetItem(r.Context(), p.user.OrganizationID, id)
	if err == nil {
		err = checkBranch(p, item.BranchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load inventory item")
		return nil, false
	}
	return item, true
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	if req.BranchID == 0 {
		id, err := h.defaultBranch(r, p)
		if err != nil {
			h.respondStoreError(w, r, err, "unable to load branch")
			return
		}
		req.BranchID = id
	}
	if err := checkBranch(p, req.BranchID); err != nil {
		h.respondStoreError(w, r, err, "unable to check branch")
		return
	}
	item, err := h.store.CreateItem(r.Context(), p.user.ID, req.item(p.user.OrganizationID))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to add inventory")
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	it := req.item(current.OrganizationID)
	it.ID = current.ID
	it.BranchID = current.BranchID
	item, err := h.store.UpdateItem(r.Context(), it)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update inventory")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteItem(r.Context(), item.OrganizationID, item.ID); err != nil {
		h.respondStoreError(w, r, err, "unable to delete inventory item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustRequest struct {
	Change int64  `json:"change" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,oneof=adjustment loss damage expired"`
	Note   string `json:"note" validate:"max=500"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.store.AdjustStock(r.Context(), item.OrganizationID, principalFrom(r).user.ID, item.ID, req.Change, req.Reason, req.Note)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update stock")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type setStockRequest struct {
	Quantity *int64 `json:"quantity" validate:"required,gte=0"`
	Note     string `json:"note" validate:"max=500"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	var req setStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.store.SetStock(r.Context(), item.OrganizationID, principalFrom(r).user.ID, item.ID, *req.Quantity, req.Note)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update stock")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) itemMovements(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	movements, err := h.store.Movements(r.Context(), item.OrganizationID, item.ID, page(r))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list stock movements")
		return
	}
	respondJSON(w, http.StatusOK, movements)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	branchID, err := queryInt(r, "branch_id")
	if err == nil {
		branchID, err = branchScope(p, branchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list low stock")
		return
	}
	items, err := h.store.LowStock(r.Context(), p.user.OrganizationID, branchID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list low stock")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) expiryAlerts(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 3650 {
			respondError(w, http.StatusBadRequest, "days must be between 0 and 3650")
			return
		}
		days = n
	}
	p := principalFrom(r)
	branchID, err := queryInt(r, "branch_id")
	if err == nil {
		branchID, err = branchScope(p, branchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to fetch expiry alerts")
		return
	}
	items, err := h.store.ExpiringWithin(r.Context(), p.user.OrganizationID, days, branchID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to fetch expiry alerts")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

const exportPageSize = 500

func (h *Handler) exportInventory(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	branchID, err := queryInt(r, "branch_id")
	if err == nil {
		branchID, err = branchScope(p, branchID)
	}
	if err != nil {
		h.respondStoreError(w, r, err, "unable to export inventory")
		return
	}
	var items []domain.InventoryItem
	for offset := 0; ; offset += exportPageSize {
		batch, err := h.store.ListItems(r.Context(), p.user.OrganizationID, store.ItemFilter{
			BranchID: branchID,
			Page:     store.Page{Limit: exportPageSize, Offset: offset},
		})
		if err != nil {
			h.respondStoreError(w, r, err, "unable to export inventory")
			return
		}
		items = append(items, batch...)
		if len(batch) < exportPageSize {
			break
		}
	}
	var buf bytes.Buffer
	if err := export.Inventory(&buf, items); err != nil {
		h.respondStoreError(w, r, err, "unable to export inventory")
		return
	}
	sendFile(w, export.ContentType, fmt.Sprintf("inventory-%s.xlsx", h.now().Format(dateLayout)), buf.Bytes())
}

const maxImportSize = 5 << 20

func (h *Handler) importInventory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		respondError(w, http.StatusBadRequest, "upload a spreadsheet in the file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "upload a spreadsheet in the file field")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		respondError(w, http.StatusBadRequest, "only .xlsx files can be imported")
		return
	}

	p := principalFrom(r)
	var branchID int64
	if raw := r.FormValue("branch_id"); raw != "" {
		branchID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || branchID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid branch_id")
			return
		}
	} else if branchID, err = h.defaultBranch(r, p); err != nil {
		h.respondStoreError(w, r, err, "unable to load branch")
		return
	}
	if err := checkBranch(p, branchID); err != nil {
		h.respondStoreError(w, r, err, "unable to check branch")
		return
	}

	rows, err := export.ParseInventory(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.store.ImportItems(r.Context(), p.user.OrganizationID, p.user.ID, branchID, rows)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to import inventory")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func sendFile(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
