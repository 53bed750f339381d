package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/payments"
)

// Billing handlers

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.Plans(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list plans")
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.Subscription(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load subscription")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"subscription": sub,
		"writable":     sub.IsWritable(h.now()),
	})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.Usage(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load usage")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type changePlanRequest struct {
	PlanCode     string `json:"plan_code" validate:"required"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

func (h *Handler) changePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	change, err := h.store.ChangePlan(r.Context(), principalFrom(r).user.OrganizationID, req.PlanCode, req.BillingCycle)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to change plan")
		return
	}
	status := http.StatusOK
	if change.Invoice != nil {
		status = http.StatusCreated
	}
	respondJSON(w, status, change)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.store.CancelSubscription(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to cancel subscription")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.store.ListInvoices(r.Context(), principalFrom(r).user.OrganizationID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list invoices")
		return
	}
	respondJSON(w, http.StatusOK, invoices)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if !h.payments.Enabled() {
		respondError(w, http.StatusServiceUnavailable, "online payments are not configured")
		return
	}
	orgID := principalFrom(r).user.OrganizationID
	inv, err := h.store.Invoice(r.Context(), orgID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load invoice")
		return
	}
	org, err := h.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load organization")
		return
	}
	session, err := h.payments.CreateCheckout(r.Context(), org, inv)
	if err != nil {
		if errors.Is(err, payments.ErrDisabled) {
			respondError(w, http.StatusServiceUnavailable, "online payments are not configured")
			return
		}
		if domain.CodeOf(err) != "" {
			h.respondStoreError(w, r, err, "unable to start checkout")
			return
		}
		h.requestLog(r).Error("unable to start checkout", zap.Int64("invoice_id", id), zap.Error(err))
		respondError(w, http.StatusBadGateway, "unable to start checkout")
		return
	}
	if err := h.store.AttachCheckout(r.Context(), orgID, inv.ID, session.SessionID); err != nil {
		h.respondStoreError(w, r, err, "unable to save checkout session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

const maxWebhookBody = 1 << 16

func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing.StripeWebhookSecret == "" {
		respondError(w, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	completed, err := h.payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.requestLog(r).Warn("webhook rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if completed == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	sub, err := h.store.MarkInvoicePaid(r.Context(), completed.InvoiceID, completed.SessionID)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to record payment")
		return
	}
	h.requestLog(r).Info("invoice paid",
		zap.String("event_id", completed.EventID),
		zap.Int64("invoice_id", completed.InvoiceID),
		zap.Int64("organization_id", sub.OrganizationID),
		zap.String("plan", sub.PlanCode))
	respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
