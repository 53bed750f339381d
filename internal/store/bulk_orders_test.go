package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmadesk/m/domain"
)

type bulkFixture struct {
	*fixture
	supplierOrg    *domain.Organization
	supplierOwner  *domain.User
	supplierBranch int64
	supplierItem   *domain.InventoryItem
	buyerItem      *domain.InventoryItem
}

func newBulkFixture(t *testing.T) *bulkFixture {
	f := newFixture(t)
	b := &bulkFixture{fixture: f}
	b.supplierOwner, b.supplierOrg, b.supplierBranch = f.register("sales@wholesale.example.com", domain.Organization{
		Name:              "Metro Wholesale",
		Kind:              domain.OrganizationDistributor,
		AcceptsBulkOrders: true,
	}, domain.PlanBasic)

	var err error
	b.supplierItem, err = f.s.CreateItem(f.ctx, b.supplierOwner.ID, &domain.InventoryItem{
		OrganizationID: b.supplierOrg.ID, BranchID: b.supplierBranch, Name: "Napa 500mg", Quantity: 100, CostPrice: dec("3"), UnitPrice: dec("5"),
	})
	require.NoError(t, err)
	b.buyerItem = f.item("Napa 500mg", 0, "4", "6")
	return b
}

func (b *bulkFixture) order() *domain.BulkOrder {
	b.t.Helper()
	o, err := b.s.CreateBulkOrder(b.ctx, b.org.ID, b.owner.ID, NewBulkOrder{
		BuyerBranchID:          b.branch,
		SupplierOrganizationID: b.supplierOrg.ID,
		Items: []NewBulkOrderItem{
			{SupplierItemID: &b.supplierItem.ID, BuyerItemID: &b.buyerItem.ID, Quantity: 10},
			{Name: "Surgical gloves", Quantity: 4, UnitPrice: dec("2.50")},
		},
	})
	require.NoError(b.t, err)
	return o
}

func TestBulkOrderLifecycle(t *testing.T) {
	b := newBulkFixture(t)
	o := b.order()
	assert.Equal(t, domain.BulkPending, o.Status)
	assert.Regexp(t, `^BO-`, o.Number)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Napa 500mg", o.Items[0].Name)
	assertMoney(t, "5", o.Items[0].UnitPrice, "price defaults to the supplier item")
	assertMoney(t, "60", o.TotalAmount)
	gloves := o.Items[1].ID

	_, err := b.s.ConfirmBulkOrder(b.ctx, b.org.ID, o.ID, BulkConfirmation{})
	assertCode(t, domain.CodeForbidden, err)

	o, err = b.s.ConfirmBulkOrder(b.ctx, b.supplierOrg.ID, o.ID, BulkConfirmation{
		SupplierBranchID: &b.supplierBranch,
		UnitPrices:       map[int64]decimal.Decimal{gloves: dec("5")},
		InstallmentCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BulkConfirmed, o.Status)
	assertMoney(t, "70", o.TotalAmount)
	require.Len(t, o.Installments, 2)
	assertMoney(t, "35", o.Installments[0].Amount)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), o.Installments[0].DueDate.UTC())

	_, err = b.s.PayBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, o.ID, dec("10"), "bank", "")
	assertCode(t, domain.CodeForbidden, err)
	_, err = b.s.PayBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, dec("71"), "bank", "")
	assertCode(t, domain.CodeExceedsOutstanding, err)

	o, err = b.s.PayBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, dec("40"), "bank", "first part")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPartial, o.PaymentStatus)
	assertMoney(t, "35", o.Installments[0].PaidAmount)
	assertMoney(t, "5", o.Installments[1].PaidAmount)
	require.Len(t, o.Payments, 1)

	_, err = b.s.CancelBulkOrder(b.ctx, b.org.ID, o.ID)
	assertCode(t, domain.CodeInvalidState, err)

	_, err = b.s.DeliverBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, nil)
	assertCode(t, domain.CodeInvalidState, err)

	o, err = b.s.DispatchBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, o.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BulkDispatched, o.Status)
	supplierStock, err := b.s.GetItem(b.ctx, b.supplierOrg.ID, b.supplierItem.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), supplierStock.Quantity)

	o, err = b.s.DeliverBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, map[int64]int64{o.Items[0].ID: 8})
	require.NoError(t, err)
	assert.Equal(t, domain.BulkDelivered, o.Status)
	assertMoney(t, "60", o.TotalAmount)
	assertMoney(t, "10", o.LossAmount)
	assertMoney(t, "20", o.DueAmount)
	assert.Equal(t, int64(8), b.quantity(b.buyerItem.ID))
	require.NotNil(t, o.Items[1].BuyerItemID)
	assert.Equal(t, int64(4), b.quantity(*o.Items[1].BuyerItemID), "unlinked lines become new items")
	require.Len(t, o.Installments, 2)
	assertMoney(t, "30", o.Installments[0].PaidAmount)
	assertMoney(t, "10", o.Installments[1].PaidAmount)

	o, err = b.s.PayBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, dec("20"), "cash", "")
	require.NoError(t, err)
	assert.Equal(t, domain.BulkCompleted, o.Status)
	assert.Equal(t, domain.PaymentPaid, o.PaymentStatus)

	_, err = b.s.PayBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, dec("1"), "cash", "")
	assertCode(t, domain.CodeInvalidState, err)

	t.Run("orders are invisible to other organizations", func(t *testing.T) {
		_, stranger, _ := b.register("nosy@example.com", domain.Organization{Name: "Nosy"}, domain.PlanBasic)
		_, err := b.s.GetBulkOrder(b.ctx, stranger.ID, o.ID)
		assertCode(t, domain.CodeNotFound, err)
		_, err = b.s.RejectBulkOrder(b.ctx, stranger.ID, o.ID)
		assertCode(t, domain.CodeNotFound, err)
	})

	t.Run("both sides list the order", func(t *testing.T) {
		bought, err := b.s.ListBulkOrders(b.ctx, b.org.ID, BulkOrderFilter{Role: domain.SideBuyer})
		require.NoError(t, err)
		assert.Len(t, bought, 1)
		sold, err := b.s.ListBulkOrders(b.ctx, b.supplierOrg.ID, BulkOrderFilter{})
		require.NoError(t, err)
		assert.Len(t, sold, 1)
		none, err := b.s.ListBulkOrders(b.ctx, b.supplierOrg.ID, BulkOrderFilter{Role: domain.SideBuyer})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestBulkOrderShortDeliveryAfterFullPayment(t *testing.T) {
	b := newBulkFixture(t)
	o := b.order()
	o, err := b.s.ConfirmBulkOrder(b.ctx, b.supplierOrg.ID, o.ID, BulkConfirmation{})
	require.NoError(t, err)
	o, err = b.s.PayBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, dec("60"), "bank", "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, o.PaymentStatus)

	o, err = b.s.DispatchBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, o.ID, map[int64]int64{o.Items[1].ID: 0})
	require.NoError(t, err)
	o, err = b.s.DeliverBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, nil)
	require.NoError(t, err)
	assertMoney(t, "50", o.TotalAmount)
	assertMoney(t, "10", o.RefundDue)
	assertMoney(t, "0", o.DueAmount)
	assert.Equal(t, domain.BulkCompleted, o.Status)
}

func TestCreateBulkOrderValidation(t *testing.T) {
	b := newBulkFixture(t)

	_, err := b.s.CreateBulkOrder(b.ctx, b.org.ID, b.owner.ID, NewBulkOrder{
		BuyerBranchID: b.branch, SupplierOrganizationID: b.org.ID,
		Items:         []NewBulkOrderItem{{Name: "x", Quantity: 1}},
	})
	assertCode(t, domain.CodeInvalidInput, err)

	_, err = b.s.CreateBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, NewBulkOrder{
		BuyerBranchID: b.supplierBranch, SupplierOrganizationID: b.org.ID,
		Items:         []NewBulkOrderItem{{Name: "x", Quantity: 1}},
	})
	assertCode(t, domain.CodeInvalidInput, err)

	o := b.order()
	o, err = b.s.CancelBulkOrder(b.ctx, b.org.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BulkCancelled, o.Status)
	_, err = b.s.ConfirmBulkOrder(b.ctx, b.supplierOrg.ID, o.ID, BulkConfirmation{})
	assertCode(t, domain.CodeInvalidState, err)
}

func TestDispatchTakesStockFromConfirmedBranch(t *testing.T) {
	b := newBulkFixture(t)
	depot, err := b.s.CreateBranch(b.ctx, &domain.Branch{OrganizationID: b.supplierOrg.ID, Name: "Depot"})
	require.NoError(t, err)

	o := b.order()
	o, err = b.s.ConfirmBulkOrder(b.ctx, b.supplierOrg.ID, o.ID, BulkConfirmation{SupplierBranchID: &depot.ID})
	require.NoError(t, err)

	_, err = b.s.DispatchBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, o.ID, nil)
	assertCode(t, domain.CodeInvalidInput, err)
	supplierStock, err := b.s.GetItem(b.ctx, b.supplierOrg.ID, b.supplierItem.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), supplierStock.Quantity)

	got, err := b.s.GetBulkOrder(b.ctx, b.org.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BulkConfirmed, got.Status)

	o, err = b.s.DispatchBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, o.ID, map[int64]int64{o.Items[0].ID: 0})
	require.NoError(t, err, "lines shipping nothing touch no stock")
	assert.Equal(t, domain.BulkDispatched, o.Status)
}

func TestDeliveryOfNothingCompletesOrder(t *testing.T) {
	b := newBulkFixture(t)
	o := b.order()
	o, err := b.s.ConfirmBulkOrder(b.ctx, b.supplierOrg.ID, o.ID, BulkConfirmation{})
	require.NoError(t, err)
	o, err = b.s.DispatchBulkOrder(b.ctx, b.supplierOrg.ID, b.supplierOwner.ID, o.ID, nil)
	require.NoError(t, err)

	o, err = b.s.DeliverBulkOrder(b.ctx, b.org.ID, b.owner.ID, o.ID, map[int64]int64{o.Items[0].ID: 0, o.Items[1].ID: 0})
	require.NoError(t, err)
	assertMoney(t, "0", o.TotalAmount)
	assertMoney(t, "60", o.LossAmount)
	assert.Equal(t, domain.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, domain.BulkCompleted, o.Status)
	assert.Equal(t, int64(0), b.quantity(b.buyerItem.ID))
}
