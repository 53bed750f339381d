package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveRequest(http.MethodGet, "/api/v1/sales", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/v1/sales", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	m.SaleRecorded(12.5)
	m.SaleRecorded(7.5)
	m.SupplierPaymentRecorded("cash")
	m.BulkOrderTransitioned("confirmed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/sales", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sales))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.salesRevenue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.supplierPayments.WithLabelValues("cash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bulkTransitions.WithLabelValues("confirmed")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SaleRecorded(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pharmadesk_sales_total 1")
}
