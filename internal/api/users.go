package api

import (
	"net/http"
	"strings"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/auth"
	"pharmadesk/m/internal/store"
)

// User handlers

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
	BranchID *int64 `json:"branch_id" validate:"omitempty,gt=0"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.store.CreateUser(r.Context(), principalFrom(r).user.OrganizationID, store.NewUser{
		Username:     strings.TrimSpace(req.Username),
		Email:        req.Email,
		PasswordHash: hashed,
		RoleID:       req.RoleID,
		BranchID:     req.BranchID,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create user")
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
	BranchID *int64 `json:"branch_id" validate:"omitempty,gt=0"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.store.UpdateUser(r.Context(), principalFrom(r).user.OrganizationID, id, store.UserUpdate{
		Username: strings.TrimSpace(req.Username),
		RoleID:   req.RoleID,
		BranchID: req.BranchID,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p := principalFrom(r)
	if err := h.store.DeactivateUser(r.Context(), p.user.OrganizationID, p.user.ID, id); err != nil {
		h.respondStoreError(w, r, err, "unable to deactivate user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// Role handlers

type roleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list roles")
		return
	}
	respondJSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.store.CreateRole(r.Context(), principalFrom(r).user.OrganizationID,
		strings.TrimSpace(req.Name), domain.PermissionSet(req.Permissions))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create role")
		return
	}
	respondJSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.store.UpdateRole(r.Context(), principalFrom(r).user.OrganizationID, id,
		strings.TrimSpace(req.Name), domain.PermissionSet(req.Permissions))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update role")
		return
	}
	respondJSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteRole(r.Context(), principalFrom(r).user.OrganizationID, id); err != nil {
		h.respondStoreError(w, r, err, "unable to delete role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
