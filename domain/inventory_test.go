package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryTiers(t *testing.T) {
	box := dec("45")
	item := InventoryItem{UnitPrice: dec("1.25"), UnitsPerStrip: 10, UnitsPerBox: 0, BoxPrice: &box}

	assert.Equal(t, int64(1), item.UnitsPer(TierUnit))
	assert.Equal(t, int64(10), item.UnitsPer(TierStrip))
	assert.Equal(t, int64(1), item.UnitsPer(TierBox))
	assert.Equal(t, "12.50", item.PriceFor(TierStrip).StringFixed(2))
	assert.Equal(t, "45.00", item.PriceFor(TierBox).StringFixed(2))
	assert.Equal(t, "1.25", item.PriceFor(TierUnit).StringFixed(2))
	assert.False(t, ValidTier("pallet"))
}

func TestInventoryAlerts(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 0, 20)
	item := InventoryItem{Quantity: 5, ReorderLevel: 5, ExpiryDate: &soon}

	assert.True(t, item.IsLowStock())
	assert.True(t, item.ExpiresWithin(now, 30))
	assert.False(t, item.ExpiresWithin(now, 10))

	item.ExpiryDate = nil
	assert.False(t, item.ExpiresWithin(now, 365))
}

func TestApplyStockChange(t *testing.T) {
	next, err := ApplyStockChange(10, -4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), next)

	next, err = ApplyStockChange(3, -4)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(3), next)
}
