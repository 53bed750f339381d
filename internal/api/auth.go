package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/auth"
	"pharmadesk/m/internal/store"
)

// Auth handlers

type organizationRequest struct {
	Name              string `json:"name" validate:"required,max=200"`
	Kind              string `json:"kind" validate:"omitempty,oneof=pharmacy distributor"`
	Address           string `json:"address" validate:"max=500"`
	Phone             string `json:"phone" validate:"max=50"`
	Email             string `json:"email" validate:"omitempty,email"`
	AcceptsBulkOrders bool   `json:"accepts_bulk_orders"`
}

func (o organizationRequest) organization() domain.Organization {
	return domain.Organization{
		Name:              strings.TrimSpace(o.Name),
		Kind:              o.Kind,
		Address:           o.Address,
		Phone:             o.Phone,
		Email:             o.Email,
		AcceptsBulkOrders: o.AcceptsBulkOrders,
	}
}

type registerRequest struct {
	Username     string              `json:"username" validate:"required,max=100"`
	Email        string              `json:"email" validate:"required,email"`
	Password     string              `json:"password" validate:"required,min=8"`
	Organization organizationRequest `json:"organization"`
}

type authResponse struct {
	Token        string               `json:"token"`
	ExpiresAt    int64                `json:"expires_at"`
	User         *domain.User         `json:"user"`
	Organization *domain.Organization `json:"organization,omitempty"`
	Permissions  domain.PermissionSet `json:"permissions"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, org, err := h.store.Register(r.Context(), store.Registration{
		Username:     strings.TrimSpace(req.Username),
		Email:        req.Email,
		PasswordHash: hashed,
		Organization: req.Organization.organization(),
		TrialPlan:    domain.PlanBasic,
		TrialDays:    h.billing.TrialDays,
	})
	if err != nil {
		h.respondStoreError(w, r, err, "unable to complete registration")
		return
	}
	h.requestLog(r).Info("organization registered", zap.Int64("organization_id", org.ID), zap.Int64("user_id", user.ID))
	h.issueToken(w, r, http.StatusCreated, user, org, domain.SystemRoles()[domain.RoleOwner])
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.respondStoreError(w, r, err, "unable to load user")
		return
	}
	if !auth.CheckPassword(user.Password, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Active {
		respondError(w, http.StatusUnauthorized, "account is inactive")
		return
	}
	_, perms, err := h.store.Principal(r.Context(), user.ID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load permissions")
		return
	}
	h.issueToken(w, r, http.StatusOK, user, nil, perms)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, status int, user *domain.User, org *domain.Organization, perms domain.PermissionSet) {
	token, claims, err := h.tokens.Issue(user.ID, user.OrganizationID)
	if err != nil {
		h.requestLog(r).Error("unable to issue token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	user.Password = ""
	respondJSON(w, status, authResponse{
		Token:        token,
		ExpiresAt:    claims.ExpiresAt.Unix(),
		User:         user,
		Organization: org,
		Permissions:  perms,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if err := h.blacklist.Revoke(r.Context(), p.claims.ID, p.claims.ExpiresAt.Time); err != nil {
		h.requestLog(r).Error("unable to revoke token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to log out")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type resetPasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := principalFrom(r)
	if !auth.CheckPassword(p.user.Password, req.CurrentPassword) {
		respondError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.ChangePassword(r.Context(), p.user.ID, hashed); err != nil {
		h.respondStoreError(w, r, err, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

type meResponse struct {
	User         *domain.User         `json:"user"`
	Organization *domain.Organization `json:"organization"`
	Permissions  domain.PermissionSet `json:"permissions"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	org, err := h.store.GetOrganization(r.Context(), p.user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load organization")
		return
	}
	user := *p.user
	user.Password = ""
	respondJSON(w, http.StatusOK, meResponse{User: &user, Organization: org, Permissions: p.perms})
}
