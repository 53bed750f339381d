package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmadesk/m/domain"
)

func TestStockOperations(t *testing.T) {
	f := newFixture(t)
	it := f.item("Napa 500mg", 20, "1.20", "2")

	got, err := f.s.AdjustStock(f.ctx, f.org.ID, f.owner.ID, it.ID, -5, domain.MovementDamage, "crushed box")
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Quantity)

	_, err = f.s.AdjustStock(f.ctx, f.org.ID, f.owner.ID, it.ID, -16, domain.MovementLoss, "")
	assertCode(t, domain.CodeInsufficientStock, err)
	assert.Equal(t, int64(15), f.quantity(it.ID), "failed adjustment must not change stock")

	_, err = f.s.AdjustStock(f.ctx, f.org.ID, f.owner.ID, it.ID, 3, domain.MovementSale, "")
	assertCode(t, domain.CodeInvalidInput, err)

	got, err = f.s.SetStock(f.ctx, f.org.ID, f.owner.ID, it.ID, 40, "stock take")
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.Quantity)

	moves, err := f.s.Movements(f.ctx, f.org.ID, it.ID, Page{})
	require.NoError(t, err)
	require.Len(t, moves, 3)
	assert.Equal(t, int64(25), moves[0].Change)
	assert.Equal(t, int64(40), moves[0].QuantityAfter)
	assert.Equal(t, domain.MovementDamage, moves[1].Reason)
	assert.Equal(t, "opening stock", moves[2].Note)
	assert.Equal(t, int64(20), moves[2].QuantityAfter)
}

func TestItemsAreScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	it := f.item("Seclo 20mg", 10, "3", "5")
	_, other, _ := f.register("rival@example.com", domain.Organization{Name: "Rival"}, domain.PlanBasic)

	_, err := f.s.GetItem(f.ctx, other.ID, it.ID)
	assertCode(t, domain.CodeNotFound, err)
	_, err = f.s.AdjustStock(f.ctx, other.ID, f.owner.ID, it.ID, 1, "", "")
	assertCode(t, domain.CodeNotFound, err)
}

func TestAlerts(t *testing.T) {
	f := newFixture(t)
	soon := testNow.AddDate(0, 0, 10)
	later := testNow.AddDate(0, 3, 0)

	low, err := f.s.CreateItem(f.ctx, f.owner.ID, &domain.InventoryItem{OrganizationID: f.org.ID, BranchID: f.branch, Name: "Low", Quantity: 2, ReorderLevel: 5, CostPrice: dec("1"), UnitPrice: dec("2"), ExpiryDate: &later})
	require.NoError(t, err)
	expiring, err := f.s.CreateItem(f.ctx, f.owner.ID, &domain.InventoryItem{OrganizationID: f.org.ID, BranchID: f.branch, Name: "Expiring", Quantity: 30, ReorderLevel: 5, CostPrice: dec("1"), UnitPrice: dec("2"), ExpiryDate: &soon})
	require.NoError(t, err)

	items, err := f.s.LowStock(f.ctx, f.org.ID, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, low.ID, items[0].ID)

	items, err = f.s.ExpiringWithin(f.ctx, f.org.ID, 30, &f.branch)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, expiring.ID, items[0].ID)
	assert.Equal(t, DateOf(soon), items[0].ExpiryDate.UTC())
}

func TestImportItems(t *testing.T) {
	f := newFixture(t)
	existing, err := f.s.CreateItem(f.ctx, f.owner.ID, &domain.InventoryItem{OrganizationID: f.org.ID, BranchID: f.branch, Name: "Ace", SKU: "ACE-1", Quantity: 5, CostPrice: dec("1"), UnitPrice: dec("1.5")})
	require.NoError(t, err)

	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := f.s.ImportItems(f.ctx, f.org.ID, f.owner.ID, f.branch, []ImportRow{
		{Line: 2, Name: "Ace", SKU: "ACE-1", Quantity: 10, CostPrice: dec("1.10"), UnitPrice: dec("1.60")},
		{Line: 3, Name: "Fexo 120", SKU: "FX-120", Quantity: 12, CostPrice: dec("4"), UnitPrice: dec("6"), ExpiryDate: &expiry},
		{Line: 4, Err: "quantity is not a number"},
		{Line: 5, Name: "Broken", Quantity: -1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Equal(t, 5, res.Errors[1].Line)

	got, err := f.s.GetItem(f.ctx, f.org.ID, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Quantity)
	assertMoney(t, "1.60", got.UnitPrice)

	moves, err := f.s.Movements(f.ctx, f.org.ID, existing.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementImport, moves[0].Reason)
	assert.Equal(t, "import line 2", moves[0].Note)
}
