package api

import (
	"net/http"
	"strings"

	"pharmadesk/m/domain"
)

// Organization handlers

func (h *Handler) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.store.GetOrganization(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load organization")
		return
	}
	respondJSON(w, http.StatusOK, org)
}

func (h *Handler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !h.decode(w, r, &req) {
		return
	}
	org := req.organization()
	org.ID = principalFrom(r).user.OrganizationID
	if org.Kind == "" {
		org.Kind = domain.OrganizationPharmacy
	}
	updated, err := h.store.UpdateOrganization(r.Context(), &org)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update organization")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) supplierDirectory(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.store.SupplierDirectory(r.Context(), principalFrom(r).user.OrganizationID,
		strings.TrimSpace(r.URL.Query().Get("query")))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list suppliers")
		return
	}
	respondJSON(w, http.StatusOK, orgs)
}

// Branch handlers

type branchRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=50"`
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.store.ListBranches(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list branches")
		return
	}
	respondJSON(w, http.StatusOK, branches)
}

func (h *Handler) getBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	branch, err := h.store.GetBranch(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load branch")
		return
	}
	respondJSON(w, http.StatusOK, branch)
}

func (h *Handler) createBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if !h.decode(w, r, &req) {
		return
	}
	branch, err := h.store.CreateBranch(r.Context(), &domain.Branch{
		OrganizationID: principalFrom(r).user.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		Address:        req.Address,
		Phone:          req.Phone,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create branch")
		return
	}
	respondJSON(w, http.StatusCreated, branch)
}

func (h *Handler) updateBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req branchRequest
	if !h.decode(w, r, &req) {
		return
	}
	branch, err := h.store.UpdateBranch(r.Context(), &domain.Branch{
		ID:             id,
		OrganizationID: principalFrom(r).user.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		Address:        req.Address,
		Phone:          req.Phone,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update branch")
		return
	}
	respondJSON(w, http.StatusOK, branch)
}

func (h *Handler) deleteBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteBranch(r.Context(), principalFrom(r).user.OrganizationID, id); err != nil {
		h.respondStoreError(w, r, err, "unable to delete branch")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
