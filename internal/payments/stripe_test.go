package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/config"
)

const testWebhookSecret = "whsec_test"

func billingConfig() config.BillingConfig {
	return config.BillingConfig{
		Currency:            "usd",
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: testWebhookSecret,
		SuccessURL:          "https://app.example.com/billing/success",
		CancelURL:           "https://app.example.com/billing",
	}
}

func signed(t *testing.T, payload string) string {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestParseWebhook(t *testing.T) {
	s := NewStripe(billingConfig(), zap.NewNop())

	t.Run("completed checkout", func(t *testing.T) {
		payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed",
			"data":{"object":{"id":"cs_1","object":"checkout.session","metadata":{"invoice_id":"7"}}}}`
		got, err := s.ParseWebhook([]byte(payload), signed(t, payload))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, &Completed{EventID: "evt_1", InvoiceID: 7, SessionID: "cs_1"}, got)
	})

	t.Run("client reference fallback", func(t *testing.T) {
		payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
			"data":{"object":{"id":"cs_2","object":"checkout.session","client_reference_id":"9"}}}`
		got, err := s.ParseWebhook([]byte(payload), signed(t, payload))
		require.NoError(t, err)
		assert.Equal(t, int64(9), got.InvoiceID)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		payload := `{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`
		got, err := s.ParseWebhook([]byte(payload), signed(t, payload))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := `{"id":"evt_4","object":"event","type":"checkout.session.completed","data":{"object":{}}}`
		_, err := s.ParseWebhook([]byte(payload), "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, ErrSignature)
	})

	t.Run("missing invoice id", func(t *testing.T) {
		payload := `{"id":"evt_5","object":"event","type":"checkout.session.completed",
			"data":{"object":{"id":"cs_5","object":"checkout.session"}}}`
		_, err := s.ParseWebhook([]byte(payload), signed(t, payload))
		assert.Error(t, err)
	})
}

func TestCreateCheckout(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cs_test_1",
			"object": "checkout.session",
			"url":    "https://checkout.stripe.com/c/pay/cs_test_1",
		})
	}))
	defer srv.Close()

	s := NewStripe(billingConfig(), zap.NewNop(), WithBaseURL(srv.URL))
	org := &domain.Organization{ID: 3, Name: "Green Cross", Email: "billing@greencross.test"}
	inv := &domain.SubscriptionInvoice{ID: 7, OrganizationID: 3, PlanCode: domain.PlanPro,
		BillingCycle: domain.CycleYearly, Amount: decimal.NewFromInt(490), Status: domain.InvoiceOpen}

	got, err := s.CreateCheckout(context.Background(), org, inv)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", got.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", got.URL)

	assert.Equal(t, []string{"7"}, form["metadata[invoice_id]"])
	assert.Equal(t, []string{"49000"}, form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"usd"}, form["line_items[0][price_data][currency]"])
	assert.Equal(t, []string{"payment"}, form["mode"])

	t.Run("paid invoice is refused", func(t *testing.T) {
		paid := *inv
		paid.Status = domain.InvoicePaid
		_, err := s.CreateCheckout(context.Background(), org, &paid)
		assert.Equal(t, domain.CodeInvalidState, domain.CodeOf(err))
	})
}

func TestDisabled(t *testing.T) {
	cfg := billingConfig()
	cfg.StripeSecretKey = ""
	s := NewStripe(cfg, zap.NewNop())
	assert.False(t, s.Enabled())
	_, err := s.CreateCheckout(context.Background(), &domain.Organization{}, &domain.SubscriptionInvoice{Status: domain.InvoiceOpen})
	assert.ErrorIs(t, err, ErrDisabled)
}
