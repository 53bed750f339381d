package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pharmadesk/m/domain"
)

func TestPurchaseLifecycle(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zap.InfoLevel)
	f.s.log = zap.New(core)
	sup := f.supplier("Square Pharma")
	it := f.item("Napa 500mg", 0, "4", "6")

	p, err := f.s.CreatePurchase(f.ctx, f.org.ID, f.owner.ID, NewPurchase{
		SupplierID: sup.ID,
		BranchID:   f.branch,
		Reference:  "INV-7",
		Items:      []NewPurchaseItem{{InventoryItemID: it.ID, Quantity: 10, UnitCost: dec("5")}},
		PaidAmount: dec("20"),
	})
	require.NoError(t, err)
	assertMoney(t, "50", p.TotalAmount)
	assertMoney(t, "20", p.PaidAmount)
	assertMoney(t, "30", p.DueAmount)
	assert.Equal(t, domain.PurchasePartial, p.Status)
	require.Len(t, p.Items, 1)
	assert.Equal(t, int64(10), f.quantity(it.ID))

	item, err := f.s.GetItem(f.ctx, f.org.ID, it.ID)
	require.NoError(t, err)
	assertMoney(t, "5", item.CostPrice, "cost price follows the latest purchase")

	t.Run("payment over the due amount is refused", func(t *testing.T) {
		_, err := f.s.PayPurchase(f.ctx, f.org.ID, f.owner.ID, p.ID, dec("31"), "cash", "")
		assertCode(t, domain.CodeExceedsOutstanding, err)
	})

	res, err := f.s.PaySupplier(f.ctx, f.org.ID, f.owner.ID, sup.ID, dec("50"), "bank", "march")
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assertMoney(t, "30", res.Allocations[0].Amount)
	assertMoney(t, "20", res.Credit)

	bal, err := f.s.SupplierBalance(f.ctx, f.org.ID, sup.ID)
	require.NoError(t, err)
	assertMoney(t, "0", bal.Due)
	assertMoney(t, "20", bal.Credit)
	assertMoney(t, "-20", bal.Balance)

	p, err = f.s.RecordLosses(f.ctx, f.org.ID, f.owner.ID, p.ID, []LossLine{{PurchaseItemID: p.Items[0].ID, Quantity: 2, Reason: "broken strips"}})
	require.NoError(t, err)
	assertMoney(t, "10", p.LossAmount)
	assertMoney(t, "40", p.TotalAmount)
	assertMoney(t, "40", p.PaidAmount)
	assert.Equal(t, domain.PurchasePaid, p.Status)
	assert.Equal(t, int64(8), f.quantity(it.ID))
	released := logs.FilterMessage("released purchase overpayment as supplier credit").All()
	require.Len(t, released, 1)
	assert.Equal(t, "10.00", released[0].ContextMap()["amount"])

	allocations, err := f.s.PurchaseAllocations(f.ctx, f.org.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assertMoney(t, "20", allocations[0].Amount)
	assertMoney(t, "20", allocations[1].Amount, "the newest allocation gives back the excess")

	bal, err = f.s.SupplierBalance(f.ctx, f.org.ID, sup.ID)
	require.NoError(t, err)
	assertMoney(t, "30", bal.Credit)
	assertMoney(t, "10", bal.Losses)
	assertMoney(t, "-30", bal.Balance)

	t.Run("loss beyond what remains is refused", func(t *testing.T) {
		_, err := f.s.RecordLosses(f.ctx, f.org.ID, f.owner.ID, p.ID, []LossLine{{PurchaseItemID: p.Items[0].ID, Quantity: 9}})
		assertCode(t, domain.CodeInvalidInput, err)
	})

	next, err := f.s.CreatePurchase(f.ctx, f.org.ID, f.owner.ID, NewPurchase{
		SupplierID:  sup.ID,
		BranchID:    f.branch,
		Items:       []NewPurchaseItem{{InventoryItemID: it.ID, Quantity: 20, UnitCost: dec("5")}},
		ApplyCredit: true,
	})
	require.NoError(t, err)
	assertMoney(t, "30", next.PaidAmount)
	assertMoney(t, "70", next.DueAmount)

	bal, err = f.s.SupplierBalance(f.ctx, f.org.ID, sup.ID)
	require.NoError(t, err)
	assertMoney(t, "0", bal.Credit)
	assertMoney(t, "70", bal.Due)
	assertMoney(t, "70", bal.Balance)

	_, entries, err := f.s.SupplierLedger(f.ctx, f.org.ID, sup.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assertMoney(t, "70", entries[len(entries)-1].Balance)

	t.Run("paid purchases cannot be voided", func(t *testing.T) {
		_, err := f.s.VoidPurchase(f.ctx, f.org.ID, f.owner.ID, next.ID, "wrong supplier")
		assertCode(t, domain.CodeInvalidState, err)
	})
}

func TestVoidPurchase(t *testing.T) {
	f := newFixture(t)
	sup := f.supplier("Beximco")
	it := f.item("Monas 10", 3, "8", "12")

	p, err := f.s.CreatePurchase(f.ctx, f.org.ID, f.owner.ID, NewPurchase{
		SupplierID: sup.ID,
		BranchID:   f.branch,
		Items:      []NewPurchaseItem{{InventoryItemID: it.ID, Quantity: 10, UnitCost: dec("8")}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseUnpaid, p.Status)
	assert.Equal(t, int64(13), f.quantity(it.ID))

	p, err = f.s.VoidPurchase(f.ctx, f.org.ID, f.owner.ID, p.ID, "duplicate entry")
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseVoid, p.Status)
	assert.Equal(t, int64(3), f.quantity(it.ID))

	_, err = f.s.VoidPurchase(f.ctx, f.org.ID, f.owner.ID, p.ID, "")
	assertCode(t, domain.CodeInvalidState, err)
	_, err = f.s.PayPurchase(f.ctx, f.org.ID, f.owner.ID, p.ID, dec("1"), "cash", "")
	assertCode(t, domain.CodeInvalidState, err)

	bal, err := f.s.SupplierBalance(f.ctx, f.org.ID, sup.ID)
	require.NoError(t, err)
	assertMoney(t, "0", bal.Balance)
}

func TestCreatePurchaseValidation(t *testing.T) {
	f := newFixture(t)
	sup := f.supplier("ACI")
	it := f.item("Alatrol", 0, "1", "2")

	_, err := f.s.CreatePurchase(f.ctx, f.org.ID, f.owner.ID, NewPurchase{SupplierID: sup.ID, BranchID: f.branch})
	assertCode(t, domain.CodeInvalidInput, err)

	_, err = f.s.CreatePurchase(f.ctx, f.org.ID, f.owner.ID, NewPurchase{
		SupplierID: sup.ID, BranchID: f.branch, Discount: dec("11"),
		Items:      []NewPurchaseItem{{InventoryItemID: it.ID, Quantity: 10, UnitCost: dec("1")}},
	})
	assertCode(t, domain.CodeInvalidInput, err)

	_, err = f.s.CreatePurchase(f.ctx, f.org.ID, f.owner.ID, NewPurchase{
		SupplierID: sup.ID, BranchID: f.branch, PaidAmount: dec("11"),
		Items:      []NewPurchaseItem{{InventoryItemID: it.ID, Quantity: 10, UnitCost: dec("1")}},
	})
	assertCode(t, domain.CodeExceedsOutstanding, err)
	assert.Equal(t, int64(0), f.quantity(it.ID), "rejected purchase leaves stock untouched")
}
