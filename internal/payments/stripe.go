// Package payments creates hosted checkout sessions for subscription invoices
// and verifies the payment provider's webhooks.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/config"
)

// ErrDisabled is returned when no provider key is configured.
var ErrDisabled = errors.New("payments are not configured")

// ErrSignature is returned for webhooks that fail verification.
var ErrSignature = errors.New("webhook signature is invalid")

// EventCheckoutCompleted is the only webhook event acted upon.
const EventCheckoutCompleted = "checkout.session.completed"

// Checkout is a hosted payment page for one invoice.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Completed reports a finished checkout for an invoice.
type Completed struct {
	EventID   string
	InvoiceID int64
	SessionID string
}

// Gateway is implemented by Stripe and by test doubles.
type Gateway interface {
	Enabled() bool
	CreateCheckout(ctx context.Context, org *domain.Organization, inv *domain.SubscriptionInvoice) (*Checkout, error)
	ParseWebhook(payload []byte, signature string) (*Completed, error)
}

type Stripe struct {
	cfg      config.BillingConfig
	sessions *session.Client
	log      *zap.Logger
}

// Option customises the Stripe client.
type Option func(*stripe.BackendConfig)

// WithBaseURL points the client at another API host.
func WithBaseURL(url string) Option {
	return func(bc *stripe.BackendConfig) {
		bc.URL = stripe.String(url)
	}
}

func NewStripe(cfg config.BillingConfig, log *zap.Logger, opts ...Option) *Stripe {
	bc := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(2),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	for _, opt := range opts {
		opt(bc)
	}
	return &Stripe{
		cfg: cfg,
		sessions: &session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, bc),
			Key: cfg.StripeSecretKey,
		},
		log: log,
	}
}

func (s *Stripe) Enabled() bool {
	return s.cfg.StripeEnabled()
}

// CreateCheckout opens a one-off payment session for an open invoice. The
// invoice id travels in the session metadata and comes back in the webhook.
func (s *Stripe) CreateCheckout(ctx context.Context, org *domain.Organization, inv *domain.SubscriptionInvoice) (*Checkout, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if inv.Status != domain.InvoiceOpen {
		return nil, domain.Errorf(domain.CodeInvalidState, "invoice is %s", inv.Status)
	}
	cents := inv.Amount.Shift(2).Round(0).IntPart()
	if cents <= 0 {
		return nil, domain.Errorf(domain.CodeInvalidState, "invoice has nothing to pay")
	}
	invoiceID := strconv.FormatInt(inv.ID, 10)
	metadata := map[string]string{
		"invoice_id":      invoiceID,
		"organization_id": strconv.FormatInt(inv.OrganizationID, 10),
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(s.cfg.Currency)),
					UnitAmount: stripe.Int64(cents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("%s plan (%s)", inv.PlanCode, inv.BillingCycle)),
						Description: stripe.String("Subscription for " + org.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(invoiceID),
		Metadata:          metadata,
	}
	if org.Email != "" {
		params.CustomerEmail = stripe.String(org.Email)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("invoice-" + invoiceID)

	sess, err := s.sessions.New(params)
	if err != nil {
		s.log.Error("checkout session failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return nil, fmt.Errorf("unable to create checkout session: %w", err)
	}
	s.log.Info("checkout session created", zap.Int64("invoice_id", inv.ID), zap.String("session_id", sess.ID))
	return &Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the signature header and extracts a completed
// checkout. Other event types return nil without error.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Completed, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if string(event.Type) != EventCheckoutCompleted {
		return nil, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("unable to decode checkout session: %w", err)
	}
	raw := sess.Metadata["invoice_id"]
	if raw == "" {
		raw = sess.ClientReferenceID
	}
	invoiceID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkout session %s has no invoice id", sess.ID)
	}
	return &Completed{EventID: event.ID, InvoiceID: invoiceID, SessionID: sess.ID}, nil
}
