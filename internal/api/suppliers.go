package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/export"
)

// Supplier handlers

type supplierRequest struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	Phone                string          `json:"phone" validate:"max=50"`
	Email                string          `json:"email" validate:"omitempty,email"`
	Address              string          `json:"address" validate:"max=500"`
	LinkedOrganizationID *int64          `json:"linked_organization_id" validate:"omitempty,gt=0"`
	OpeningBalance       decimal.Decimal `json:"opening_balance"`
}

func (req supplierRequest) supplier(orgID int64) *domain.Supplier {
	return &domain.Supplier{
		OrganizationID:       orgID,
		Name:                 req.Name,
		Phone:                req.Phone,
		Email:                req.Email,
		Address:              req.Address,
		LinkedOrganizationID: req.LinkedOrganizationID,
		OpeningBalance:       req.OpeningBalance,
	}
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.store.ListSuppliers(r.Context(), principalFrom(r).user.OrganizationID,
		strings.TrimSpace(r.URL.Query().Get("query")))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list suppliers")
		return
	}
	respondJSON(w, http.StatusOK, suppliers)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	sup, err := h.store.GetSupplier(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load supplier")
		return
	}
	respondJSON(w, http.StatusOK, sup)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	sup, err := h.store.CreateSupplier(r.Context(), req.supplier(principalFrom(r).user.OrganizationID))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create supplier")
		return
	}
	respondJSON(w, http.StatusCreated, sup)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := req.supplier(principalFrom(r).user.OrganizationID)
	in.ID = id
	sup, err := h.store.UpdateSupplier(r.Context(), in)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update supplier")
		return
	}
	respondJSON(w, http.StatusOK, sup)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteSupplier(r.Context(), principalFrom(r).user.OrganizationID, id); err != nil {
		h.respondStoreError(w, r, err, "unable to delete supplier")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) supplierBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	balance, err := h.store.SupplierBalance(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to compute supplier balance")
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

type ledgerResponse struct {
	Supplier *domain.Supplier     `json:"supplier"`
	Entries  []domain.LedgerEntry `json:"entries"`
	Balance  decimal.Decimal      `json:"balance"`
}

func (h *Handler) supplierLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	sup, entries, err := h.store.SupplierLedger(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load supplier ledger")
		return
	}
	balance := sup.OpeningBalance
	if len(entries) > 0 {
		balance = entries[len(entries)-1].Balance
	}
	respondJSON(w, http.StatusOK, ledgerResponse{Supplier: sup, Entries: entries, Balance: balance})
}

func (h *Handler) supplierStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	sup, entries, err := h.store.SupplierLedger(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load supplier ledger")
		return
	}
	var buf bytes.Buffer
	if err := export.SupplierStatement(&buf, sup, entries); err != nil {
		h.respondStoreError(w, r, err, "unable to export statement")
		return
	}
	sendFile(w, export.ContentType, fmt.Sprintf("supplier-%d-statement.xlsx", sup.ID), buf.Bytes())
}

func (h *Handler) listSupplierPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.store.ListSupplierPayments(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list supplier payments")
		return
	}
	respondJSON(w, http.StatusOK, payments)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"omitempty,max=20"`
	Note   string          `json:"note" validate:"max=500"`
}

func (req *paymentRequest) normalize() error {
	if !req.Amount.IsPositive() {
		return domain.Errorf(domain.CodeInvalidInput, "amount must be positive")
	}
	if req.Method == "" {
		req.Method = "cash"
	}
	return nil
}

// paySupplier records a payment spread over the oldest open purchases. What is
// left over is kept as credit.
func (h *Handler) paySupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
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
	result, err := h.store.PaySupplier(r.Context(), p.user.OrganizationID, p.user.ID, id, req.Amount, req.Method, req.Note)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record payment")
		return
	}
	h.metrics.SupplierPaymentRecorded(req.Method)
	respondJSON(w, http.StatusCreated, result)
}
