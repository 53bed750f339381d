package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/auth"
	"pharmadesk/m/internal/config"
	"pharmadesk/m/internal/dbtest"
	"pharmadesk/m/internal/export"
	"pharmadesk/m/internal/lock"
	"pharmadesk/m/internal/payments"
	"pharmadesk/m/internal/store"
)

type fakeGateway struct {
	checkouts []int64
}

func (g *fakeGateway) Enabled() bool { return true }

func (g *fakeGateway) CreateCheckout(_ context.Context, _ *domain.Organization, inv *domain.SubscriptionInvoice) (*payments.Checkout, error) {
	g.checkouts = append(g.checkouts, inv.ID)
	return &payments.Checkout{SessionID: fmt.Sprintf("cs_test_%d", inv.ID), URL: "https://checkout.test/pay"}, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payments.Completed, error) {
	if signature != "valid" {
		return nil, payments.ErrSignature
	}
	var body struct {
		Type      string `json:"type"`
		InvoiceID int64  `json:"invoice_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	if body.Type != payments.EventCheckoutCompleted {
		return nil, nil
	}
	return &payments.Completed{EventID: "evt_1", InvoiceID: body.InvoiceID, SessionID: fmt.Sprintf("cs_test_%d", body.InvoiceID)}, nil
}

type testAPI struct {
	t       *testing.T
	now     time.Time
	router  http.Handler
	gateway *fakeGateway
}

func newTestAPI(t *testing.T, httpCfg config.HTTPConfig) *testAPI {
	t.Helper()
	a := &testAPI{t: t, now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), gateway: &fakeGateway{}}
	st := store.New(dbtest.New(t), lock.NewLocal(), zap.NewNop(), store.WithClock(func() time.Time { return a.now }))
	h := New(Deps{
		Store:    st,
		Tokens:   auth.NewTokens("test-secret", time.Hour, "pharmadesk-test"),
		Payments: a.gateway,
		HTTP:     httpCfg,
		Billing:  config.BillingConfig{TrialDays: 14, Currency: "usd", StripeWebhookSecret: "whsec_test"},
	})
	a.router = h.Router()
	return a
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func (a *testAPI) register(email string) authResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username":     "owner",
		"email":        email,
		"password":     "s3cret-pass",
		"organization": map[string]any{"name": "Green Cross", "kind": "pharmacy"},
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	decodeBody(a.t, rec, &resp)
	return resp
}

func (a *testAPI) createItem(token string, body map[string]any) domain.InventoryItem {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/v1/inventory", token, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var it domain.InventoryItem
	decodeBody(a.t, rec, &it)
	return it
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["code"]
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	rec := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterLoginAndMe(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	reg := a.register("owner@example.com")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "Green Cross", reg.Organization.Name)
	assert.True(t, reg.Permissions.Has(domain.PermBillingManage))

	rec := a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "owner@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "owner@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login authResponse
	decodeBody(t, rec, &login)

	rec = a.do(http.MethodGet, "/api/v1/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me meResponse
	decodeBody(t, rec, &me)
	assert.Equal(t, reg.User.ID, me.User.ID)
	assert.Equal(t, reg.Organization.ID, me.Organization.ID)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterValidation(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	rec := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username":     "owner",
		"email":        "not-an-email",
		"password":     "short",
		"organization": map[string]any{"name": "Green Cross"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	reg := a.register("owner@example.com")

	rec := a.do(http.MethodPost, "/api/v1/auth/logout", reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMissingToken(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/me", "garbage", nil).Code)
}

func TestAuthRateLimit(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{AuthRateLimitRequests: 2, AuthRateLimitWindow: time.Minute})
	body := map[string]string{"email": "nobody@example.com", "password": "whatever1"}
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/v1/auth/login", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/v1/auth/login", "", body).Code)
	rec := a.do(http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCashierPermissions(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")

	rec := a.do(http.MethodGet, "/api/v1/roles", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []domain.Role
	decodeBody(t, rec, &roles)
	var cashierRole int64
	for _, r := range roles {
		if r.Name == domain.RoleCashier {
			cashierRole = r.ID
		}
	}
	require.NotZero(t, cashierRole)

	rec = a.do(http.MethodPost, "/api/v1/users", owner.Token, map[string]any{
		"username": "till",
		"email":    "till@example.com",
		"password": "cashier-pass",
		"role_id":  cashierRole,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "till@example.com", "password": "cashier-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var cashier authResponse
	decodeBody(t, rec, &cashier)

	rec = a.do(http.MethodPost, "/api/v1/inventory", cashier.Token, map[string]any{"name": "Paracetamol", "unit_price": "1.50"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, errorCode(t, rec))

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/inventory", cashier.Token, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/billing/subscription", cashier.Token, nil).Code)
}

func TestLapsedTrialBlocksWrites(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")
	a.createItem(owner.Token, map[string]any{"name": "Paracetamol", "quantity": 10, "unit_price": "1.50"})

	a.now = a.now.AddDate(0, 0, 15)

	rec := a.do(http.MethodPost, "/api/v1/inventory", owner.Token, map[string]any{"name": "Ibuprofen", "unit_price": "2.00"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, domain.CodeSubscriptionInactive, errorCode(t, rec))

	rec = a.do(http.MethodGet, "/api/v1/inventory", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []domain.InventoryItem
	decodeBody(t, rec, &items)
	assert.Len(t, items, 1)

	rec = a.do(http.MethodGet, "/api/v1/billing/subscription", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"writable":false`)
}

func TestCheckoutAndWebhook(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")

	rec := a.do(http.MethodPost, "/api/v1/billing/subscription/change", owner.Token, map[string]string{
		"plan_code":     domain.PlanPro,
		"billing_cycle": domain.CycleMonthly,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var change store.PlanChange
	decodeBody(t, rec, &change)
	require.NotNil(t, change.Invoice)
	assert.True(t, decimal.NewFromInt(49).Equal(change.Invoice.Amount))

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/v1/billing/invoices/%d/checkout", change.Invoice.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{change.Invoice.ID}, a.gateway.checkouts)

	webhook := func(sig string, payload map[string]any) *httptest.ResponseRecorder {
		b, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/stripe", bytes.NewReader(b))
		req.Header.Set("Stripe-Signature", sig)
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, req)
		return rec
	}

	rec = webhook("forged", map[string]any{"type": payments.EventCheckoutCompleted, "invoice_id": change.Invoice.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = webhook("valid", map[string]any{"type": "customer.created"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())

	rec = webhook("valid", map[string]any{"type": payments.EventCheckoutCompleted, "invoice_id": change.Invoice.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"processed"}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/v1/billing/subscription", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sub struct {
		Subscription domain.Subscription `json:"subscription"`
		Writable     bool                `json:"writable"`
	}
	decodeBody(t, rec, &sub)
	assert.Equal(t, domain.PlanPro, sub.Subscription.PlanCode)
	assert.True(t, sub.Writable)
}

func TestSaleFlowAndReceipt(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")
	item := a.createItem(owner.Token, map[string]any{
		"name":       "Paracetamol 500mg",
		"quantity":   100,
		"cost_price": "1.00",
		"unit_price": "1.50",
	})

	rec := a.do(http.MethodPost, "/api/v1/sales", owner.Token, map[string]any{
		"branch_id":   item.BranchID,
		"items":       []map[string]any{{"inventory_item_id": item.ID, "quantity": 3}},
		"paid_amount": "10.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale domain.Sale
	decodeBody(t, rec, &sale)
	assert.True(t, decimal.RequireFromString("4.50").Equal(sale.Total), sale.Total.String())
	assert.True(t, decimal.RequireFromString("5.50").Equal(sale.ChangeReturned), sale.ChangeReturned.String())

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/v1/sales/%d/receipt", sale.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = a.do(http.MethodGet, "/api/v1/reports/sales/daily", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var totals store.SalesTotals
	decodeBody(t, rec, &totals)
	assert.EqualValues(t, 1, totals.SalesCount)
	assert.True(t, decimal.RequireFromString("4.50").Equal(totals.Revenue))
}

func TestErrorCodes(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")
	item := a.createItem(owner.Token, map[string]any{"name": "Amoxicillin", "quantity": 2, "unit_price": "3.00"})

	rec := a.do(http.MethodPost, "/api/v1/sales", owner.Token, map[string]any{
		"branch_id": item.BranchID,
		"items":     []map[string]any{{"inventory_item_id": item.ID, "quantity": 5}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.CodeInsufficientStock, errorCode(t, rec))

	rec = a.do(http.MethodGet, "/api/v1/sales/999", owner.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.CodeNotFound, errorCode(t, rec))

	rec = a.do(http.MethodGet, "/api/v1/sales/abc", owner.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/expenses?from=2026-03-10&to=2026-03-01", owner.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeInvalidInput, errorCode(t, rec))

	rec = a.do(http.MethodPost, "/api/v1/expense-categories", owner.Token, map[string]string{"name": "Rent"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(http.MethodPost, "/api/v1/expense-categories", owner.Token, map[string]string{"name": "rent"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeConflict, errorCode(t, rec))
}

func TestInventoryExportImport(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")
	item := a.createItem(owner.Token, map[string]any{
		"name":       "Cetirizine",
		"sku":        "CTZ-10",
		"quantity":   10,
		"unit_price": "0.80",
	})

	rec := a.do(http.MethodGet, "/api/v1/inventory/export", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	exported := rec.Body.Bytes()

	rows, err := export.ParseInventory(bytes.NewReader(exported))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CTZ-10", rows[0].SKU)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "inventory.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(exported)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+owner.Token)
	imp := httptest.NewRecorder()
	a.router.ServeHTTP(imp, req)
	require.Equal(t, http.StatusOK, imp.Code, imp.Body.String())
	var result store.ImportResult
	decodeBody(t, imp, &result)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.Errors)

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d", item.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reloaded domain.InventoryItem
	decodeBody(t, rec, &reloaded)
	assert.EqualValues(t, 20, reloaded.Quantity)
}

func TestImportRejectsOtherFiles(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "inventory.csv")
	require.NoError(t, err)
	_, _ = io.Copy(fw, strings.NewReader("name,quantity\nParacetamol,10\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+owner.Token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupplierPaymentFlow(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")
	item := a.createItem(owner.Token, map[string]any{"name": "Omeprazole", "quantity": 0, "unit_price": "2.00"})

	rec := a.do(http.MethodPost, "/api/v1/suppliers", owner.Token, map[string]any{"name": "MediSupply"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sup domain.Supplier
	decodeBody(t, rec, &sup)

	rec = a.do(http.MethodPost, "/api/v1/purchases", owner.Token, map[string]any{
		"supplier_id":   sup.ID,
		"branch_id":     item.BranchID,
		"purchase_date": "2026-03-14",
		"items":         []map[string]any{{"inventory_item_id": item.ID, "quantity": 50, "unit_cost": "1.20"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/v1/suppliers/%d/balance", sup.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance domain.SupplierBalance
	decodeBody(t, rec, &balance)
	assert.True(t, decimal.NewFromInt(60).Equal(balance.Balance), balance.Balance.String())

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/v1/suppliers/%d/payments", sup.ID), owner.Token, map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/v1/suppliers/%d/payments", sup.ID), owner.Token, map[string]any{"amount": "25", "method": "bank"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/v1/suppliers/%d/ledger", sup.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger ledgerResponse
	decodeBody(t, rec, &ledger)
	assert.True(t, decimal.NewFromInt(35).Equal(ledger.Balance), ledger.Balance.String())

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/v1/suppliers/%d/statement.xlsx", sup.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
}

// branchManager creates a second branch and a manager bound to it.
func (a *testAPI) branchManager(owner authResponse) (authResponse, int64) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/v1/branches", owner.Token, map[string]any{"name": "Uptown"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var branch domain.Branch
	decodeBody(a.t, rec, &branch)

	rec = a.do(http.MethodGet, "/api/v1/roles", owner.Token, nil)
	require.Equal(a.t, http.StatusOK, rec.Code)
	var roles []domain.Role
	decodeBody(a.t, rec, &roles)
	var managerRole int64
	for _, r := range roles {
		if r.Name == domain.RoleManager {
			managerRole = r.ID
		}
	}
	require.NotZero(a.t, managerRole)

	rec = a.do(http.MethodPost, "/api/v1/users", owner.Token, map[string]any{
		"username":  "uptown",
		"email":     "uptown@example.com",
		"password":  "manager-pass",
		"role_id":   managerRole,
		"branch_id": branch.ID,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "uptown@example.com", "password": "manager-pass"})
	require.Equal(a.t, http.StatusOK, rec.Code)
	var manager authResponse
	decodeBody(a.t, rec, &manager)
	return manager, branch.ID
}

func TestPurchaseRoutesAreBranchScoped(t *testing.T) {
	a := newTestAPI(t, config.HTTPConfig{})
	owner := a.register("owner@example.com")
	item := a.createItem(owner.Token, map[string]any{"name": "Cefixime", "quantity": 0, "unit_price": "3.00"})
	manager, branchID := a.branchManager(owner)
	require.NotEqual(t, item.BranchID, branchID)

	rec := a.do(http.MethodPost, "/api/v1/suppliers", owner.Token, map[string]any{"name": "MediSupply"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sup domain.Supplier
	decodeBody(t, rec, &sup)

	rec = a.do(http.MethodPost, "/api/v1/purchases", owner.Token, map[string]any{
		"supplier_id": sup.ID,
		"branch_id":   item.BranchID,
		"items":       []map[string]any{{"inventory_item_id": item.ID, "quantity": 10, "unit_cost": "0.60"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var purchase domain.Purchase
	decodeBody(t, rec, &purchase)
	require.Len(t, purchase.Items, 1)

	base := fmt.Sprintf("/api/v1/purchases/%d", purchase.ID)
	calls := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"get", http.MethodGet, base, nil},
		{"pay", http.MethodPost, base + "/payments", map[string]any{"amount": "1"}},
		{"losses", http.MethodPost, base + "/losses", map[string]any{"items": []map[string]any{{"purchase_item_id": purchase.Items[0].ID, "quantity": 1}}}},
		{"void", http.MethodPost, base + "/void", map[string]any{"reason": "wrong branch"}},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			rec := a.do(c.method, c.path, manager.Token, c.body)
			assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
			assert.Equal(t, domain.CodeForbidden, errorCode(t, rec))
		})
	}

	rec = a.do(http.MethodGet, base, owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Purchase domain.Purchase `json:"purchase"`
	}
	decodeBody(t, rec, &got)
	assert.Equal(t, domain.PurchaseUnpaid, got.Purchase.Status)
	require.Len(t, got.Purchase.Items, 1)
	assert.Zero(t, got.Purchase.Items[0].LostQuantity)

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/v1/inventory/%d", item.ID), owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stocked domain.InventoryItem
	decodeBody(t, rec, &stocked)
	assert.Equal(t, int64(10), stocked.Quantity)
}

func TestCheckBulkBranch(t *testing.T) {
	one, two := int64(1), int64(2)
	order := &domain.BulkOrder{BuyerOrganizationID: 10, BuyerBranchID: one, SupplierOrganizationID: 20}
	buyer := &principal{user: &domain.User{OrganizationID: 10, BranchID: &two}}
	supplier := &principal{user: &domain.User{OrganizationID: 20, BranchID: &one}}

	assert.ErrorIs(t, checkBulkBranch(buyer, order), domain.ErrForbidden)
	assert.NoError(t, checkBulkBranch(supplier, order), "supplier branch not chosen yet")

	order.SupplierBranchID = &two
	assert.ErrorIs(t, checkBulkBranch(supplier, order), domain.ErrForbidden)

	buyer.user.BranchID = nil
	assert.NoError(t, checkBulkBranch(buyer, order))
}
