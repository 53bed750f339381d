package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricing tiers a sale line can be rung up in.
const (
	TierUnit  = "unit"
	TierStrip = "strip"
	TierBox   = "box"
)

// InventoryItem is a stocked product in a branch. Quantity and CostPrice are
// expressed in base units; strips and boxes are multiples of the base unit.
type InventoryItem struct {
	ID             int64            `db:"id" json:"id"`
	OrganizationID int64            `db:"organization_id" json:"organization_id"`
	BranchID       int64            `db:"branch_id" json:"branch_id"`
	MedicineID     *int64           `db:"medicine_id" json:"medicine_id,omitempty"`
	Name           string           `db:"name" json:"name"`
	GenericName    string           `db:"generic_name" json:"generic_name"`
	SKU            string           `db:"sku" json:"sku"`
	BatchNo        string           `db:"batch_no" json:"batch_no"`
	ExpiryDate     *time.Time       `db:"expiry_date" json:"expiry_date,omitempty"`
	Quantity       int64            `db:"quantity" json:"quantity"`
	CostPrice      decimal.Decimal  `db:"cost_price" json:"cost_price"`
	UnitPrice      decimal.Decimal  `db:"unit_price" json:"unit_price"`
	UnitsPerStrip  int64            `db:"units_per_strip" json:"units_per_strip"`
	StripPrice     *decimal.Decimal `db:"strip_price" json:"strip_price,omitempty"`
	UnitsPerBox    int64            `db:"units_per_box" json:"units_per_box"`
	BoxPrice       *decimal.Decimal `db:"box_price" json:"box_price,omitempty"`
	ReorderLevel   int64            `db:"reorder_level" json:"reorder_level"`
	Active         bool             `db:"active" json:"active"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// ValidTier reports whether tier is a known pricing tier.
func ValidTier(tier string) bool {
	return tier == TierUnit || tier == TierStrip || tier == TierBox
}

// UnitsPer returns how many base units one tier package holds.
func (i *InventoryItem) UnitsPer(tier string) int64 {
	switch tier {
	case TierStrip:
		return maxInt64(i.UnitsPerStrip, 1)
	case TierBox:
		return maxInt64(i.UnitsPerBox, 1)
	default:
		return 1
	}
}

// PriceFor returns the selling price of one package in the tier. An explicit
// tier price wins, otherwise the unit price is multiplied out.
func (i *InventoryItem) PriceFor(tier string) decimal.Decimal {
	switch tier {
	case TierStrip:
		if i.StripPrice != nil {
			return *i.StripPrice
		}
	case TierBox:
		if i.BoxPrice != nil {
			return *i.BoxPrice
		}
	}
	return RoundMoney(i.UnitPrice.Mul(decimal.NewFromInt(i.UnitsPer(tier))))
}

// IsLowStock reports whether stock is at or below the reorder level.
func (i *InventoryItem) IsLowStock() bool {
	return i.Quantity <= i.ReorderLevel
}

// ExpiresWithin reports whether the item expires on or before now+days.
func (i *InventoryItem) ExpiresWithin(now time.Time, days int) bool {
	if i.ExpiryDate == nil {
		return false
	}
	return !i.ExpiryDate.After(now.AddDate(0, 0, days))
}

// Stock movement reasons.
const (
	MovementPurchase     = "purchase"
	MovementPurchaseLoss = "purchase_loss"
	MovementPurchaseVoid = "purchase_void"
	MovementSale         = "sale"
	MovementSaleReturn   = "sale_return"
	MovementAdjustment   = "adjustment"
	MovementLoss         = "loss"
	MovementDamage       = "damage"
	MovementExpired      = "expired"
	MovementBulkDispatch = "bulk_dispatch"
	MovementBulkDelivery = "bulk_delivery"
	MovementImport       = "import"
)

// ManualAdjustmentReasons are the reasons a user may pick for a manual adjustment.
var ManualAdjustmentReasons = []string{MovementAdjustment, MovementLoss, MovementDamage, MovementExpired}

// StockMovement is one entry of an item's stock history.
type StockMovement struct {
	ID              int64     `db:"id" json:"id"`
	OrganizationID  int64     `db:"organization_id" json:"organization_id"`
	BranchID        int64     `db:"branch_id" json:"branch_id"`
	InventoryItemID int64     `db:"inventory_item_id" json:"inventory_item_id"`
	Change          int64     `db:"quantity_change" json:"change"`
	QuantityAfter   int64     `db:"quantity_after" json:"quantity_after"`
	Reason          string    `db:"reason" json:"reason"`
	ReferenceType   string    `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID     *int64    `db:"reference_id" json:"reference_id,omitempty"`
	Note            string    `db:"note" json:"note,omitempty"`
	CreatedBy       *int64    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ApplyStockChange returns the quantity after change, refusing to go negative.
func ApplyStockChange(current, change int64) (int64, error) {
	next := current + change
	if next < 0 {
		return current, Errorf(CodeInsufficientStock, "insufficient stock: have %d, need %d", current, -change)
	}
	return next, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
