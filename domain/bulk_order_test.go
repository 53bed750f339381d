package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkOrderTransition(t *testing.T) {
	tests := []struct {
		name   string
		status string
		paid   string
		action string
		side   string
		want   string
		code   string
	}{
		{"supplier confirms", BulkPending, "0", "confirm", SideSupplier, BulkConfirmed, ""},
		{"supplier rejects", BulkPending, "0", "reject", SideSupplier, BulkRejected, ""},
		{"buyer cancels pending", BulkPending, "0", "cancel", SideBuyer, BulkCancelled, ""},
		{"buyer cancels confirmed", BulkConfirmed, "0", "cancel", SideBuyer, BulkCancelled, ""},
		{"cancel with payments", BulkConfirmed, "10", "cancel", SideBuyer, "", CodeInvalidState},
		{"buyer cannot confirm", BulkPending, "0", "confirm", SideBuyer, "", CodeForbidden},
		{"dispatch confirmed", BulkConfirmed, "0", "dispatch", SideSupplier, BulkDispatched, ""},
		{"dispatch pending", BulkPending, "0", "dispatch", SideSupplier, "", CodeInvalidState},
		{"deliver dispatched", BulkDispatched, "0", "deliver", SideBuyer, BulkDelivered, ""},
		{"cancel dispatched", BulkDispatched, "0", "cancel", SideBuyer, "", CodeInvalidState},
		{"unknown", BulkPending, "0", "ship", SideSupplier, "", CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := BulkOrder{Number: "BO-1", Status: tt.status, PaidAmount: dec(tt.paid)}
			got, err := o.Transition(tt.action, tt.side)
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildInstallments(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	parts := BuildInstallments(dec("100"), 3, start)
	require.Len(t, parts, 3)
	assert.Equal(t, "33.33", parts[0].Amount.StringFixed(2))
	assert.Equal(t, "33.33", parts[1].Amount.StringFixed(2))
	assert.Equal(t, "33.34", parts[2].Amount.StringFixed(2))
	for i, p := range parts {
		assert.Equal(t, i+1, p.Sequence)
		assert.True(t, p.PaidAmount.IsZero())
	}
	assert.True(t, start.AddDate(0, 1, 0).Equal(parts[0].DueDate))
	assert.True(t, start.AddDate(0, 3, 0).Equal(parts[2].DueDate))

	sum := decimal.Zero
	for _, p := range BuildInstallments(dec("1000.01"), 12, start) {
		sum = sum.Add(p.Amount)
	}
	assert.Equal(t, "1000.01", sum.StringFixed(2))

	single := BuildInstallments(dec("50"), 0, start)
	require.Len(t, single, 1)
	assert.Equal(t, "50.00", single[0].Amount.StringFixed(2))
}

func TestDistributePaid(t *testing.T) {
	parts := BuildInstallments(dec("90"), 3, time.Now())
	DistributePaid(parts, dec("45"))
	assert.Equal(t, "30.00", parts[0].PaidAmount.StringFixed(2))
	assert.Equal(t, "15.00", parts[1].PaidAmount.StringFixed(2))
	assert.True(t, parts[2].PaidAmount.IsZero())
	assert.Equal(t, "15.00", parts[1].Outstanding().StringFixed(2))

	DistributePaid(parts, dec("120"))
	for _, p := range parts {
		assert.True(t, p.Outstanding().IsZero())
	}
}

func TestBulkOrderRecompute(t *testing.T) {
	t.Run("before delivery uses ordered quantities", func(t *testing.T) {
		o := BulkOrder{Status: BulkConfirmed, PaidAmount: dec("20"), Items: []BulkOrderItem{
			{Quantity: 10, UnitPrice: dec("3")},
			{Quantity: 5, UnitPrice: dec("2")},
		}}
		o.Recompute()
		assert.Equal(t, "40.00", o.TotalAmount.StringFixed(2))
		assert.Equal(t, "20.00", o.DueAmount.StringFixed(2))
		assert.Equal(t, PaymentPartial, o.PaymentStatus)
		assert.True(t, o.LossAmount.IsZero())
	})

	t.Run("delivery shortfall lowers total and reports refund", func(t *testing.T) {
		o := BulkOrder{Status: BulkDelivered, PaidAmount: dec("40"), Items: []BulkOrderItem{
			{Quantity: 10, ReceivedQuantity: 8, UnitPrice: dec("3")},
			{Quantity: 5, ReceivedQuantity: 5, UnitPrice: dec("2")},
		}}
		o.Recompute()
		assert.Equal(t, "34.00", o.TotalAmount.StringFixed(2))
		assert.Equal(t, "6.00", o.LossAmount.StringFixed(2))
		assert.Equal(t, "6.00", o.RefundDue.StringFixed(2))
		assert.True(t, o.DueAmount.IsZero())
		assert.Equal(t, PaymentPaid, o.PaymentStatus)
		assert.Equal(t, BulkCompleted, o.Status)
	})

	t.Run("delivered but unpaid stays delivered", func(t *testing.T) {
		o := BulkOrder{Status: BulkDelivered, Items: []BulkOrderItem{{Quantity: 1, ReceivedQuantity: 1, UnitPrice: dec("5")}}}
		o.Recompute()
		assert.Equal(t, BulkDelivered, o.Status)
		assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	})

	t.Run("nothing received completes the order", func(t *testing.T) {
		o := BulkOrder{Status: BulkDelivered, Items: []BulkOrderItem{{Quantity: 4, ReceivedQuantity: 0, UnitPrice: dec("5")}}}
		o.Recompute()
		assert.True(t, o.TotalAmount.IsZero())
		assert.Equal(t, "20.00", o.LossAmount.StringFixed(2))
		assert.Equal(t, PaymentPaid, o.PaymentStatus)
		assert.Equal(t, BulkCompleted, o.Status)
	})

	t.Run("free order is unpaid until delivered", func(t *testing.T) {
		o := BulkOrder{Status: BulkConfirmed, Items: []BulkOrderItem{{Quantity: 4, UnitPrice: decimal.Zero}}}
		o.Recompute()
		assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
		assert.Equal(t, BulkConfirmed, o.Status)
	})
}

func TestBulkOrderCanAcceptPayment(t *testing.T) {
	o := BulkOrder{Number: "BO-2", Status: BulkPending, DueAmount: dec("10")}
	assert.Equal(t, CodeInvalidState, CodeOf(o.CanAcceptPayment(dec("5"))))

	o.Status = BulkDispatched
	require.NoError(t, o.CanAcceptPayment(dec("10")))
	assert.Equal(t, CodeExceedsOutstanding, CodeOf(o.CanAcceptPayment(dec("10.5"))))
	assert.Equal(t, CodeInvalidInput, CodeOf(o.CanAcceptPayment(dec("-1"))))
}

func TestBulkOrderSideOf(t *testing.T) {
	o := BulkOrder{BuyerOrganizationID: 1, SupplierOrganizationID: 2}
	assert.Equal(t, SideBuyer, o.SideOf(1))
	assert.Equal(t, SideSupplier, o.SideOf(2))
	assert.Equal(t, "", o.SideOf(3))
}
