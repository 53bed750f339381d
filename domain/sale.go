package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID             int64           `db:"id" json:"id"`
	Number         string          `db:"number" json:"number"`
	OrganizationID int64           `db:"organization_id" json:"organization_id"`
	BranchID       int64           `db:"branch_id" json:"branch_id"`
	UserID         *int64          `db:"user_id" json:"user_id,omitempty"`
	PatientID      *int64          `db:"patient_id" json:"patient_id,omitempty"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	Total          decimal.Decimal `db:"total" json:"total"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueAmount      decimal.Decimal `db:"due_amount" json:"due_amount"`
	ChangeReturned decimal.Decimal `db:"change_returned" json:"change_returned"`
	RefundedAmount decimal.Decimal `db:"refunded_amount" json:"refunded_amount"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []SaleItem      `db:"-" json:"items,omitempty"`
}

type SaleItem struct {
	ID               int64           `db:"id" json:"id"`
	SaleID           int64           `db:"sale_id" json:"sale_id"`
	InventoryItemID  int64           `db:"inventory_item_id" json:"inventory_item_id"`
	ItemName         string          `db:"item_name" json:"item_name"`
	Tier             string          `db:"tier" json:"tier"`
	Quantity         int64           `db:"quantity" json:"quantity"`
	Units            int64           `db:"units" json:"units"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	CostPrice        decimal.Decimal `db:"cost_price" json:"cost_price"`
	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
	ReturnedQuantity int64           `db:"returned_quantity" json:"returned_quantity"`
}

// ReturnableQuantity is how many tier packages can still be returned.
func (si *SaleItem) ReturnableQuantity() int64 {
	return si.Quantity - si.ReturnedQuantity
}

// UnitsPerPackage is the number of base units in one sold package.
func (si *SaleItem) UnitsPerPackage() int64 {
	if si.Quantity == 0 {
		return 1
	}
	return si.Units / si.Quantity
}

type SaleReturn struct {
	ID        int64            `db:"id" json:"id"`
	SaleID    int64            `db:"sale_id" json:"sale_id"`
	Amount    decimal.Decimal  `db:"amount" json:"amount"`
	Reason    string           `db:"reason" json:"reason"`
	CreatedBy *int64           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	Items     []SaleReturnItem `db:"-" json:"items,omitempty"`
}

type SaleReturnItem struct {
	ID         int64           `db:"id" json:"id"`
	ReturnID   int64           `db:"return_id" json:"return_id"`
	SaleItemID int64           `db:"sale_item_id" json:"sale_item_id"`
	Quantity   int64           `db:"quantity" json:"quantity"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
}

// SalePayment settles part of a sale's due amount after the sale was made.
type SalePayment struct {
	ID         int64           `db:"id" json:"id"`
	SaleID     int64           `db:"sale_id" json:"sale_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     string          `db:"method" json:"method"`
	PaidAt     time.Time       `db:"paid_at" json:"paid_at"`
	RecordedBy *int64          `db:"recorded_by" json:"recorded_by,omitempty"`
}

// SaleLine is a priced line before it is persisted.
type SaleLine struct {
	Item     *InventoryItem
	Tier     string
	Quantity int64
}

// PriceLine resolves the tier, validates stock and returns the sale item.
func PriceLine(l SaleLine) (SaleItem, error) {
	if l.Quantity <= 0 {
		return SaleItem{}, Errorf(CodeInvalidInput, "quantity for %s must be positive", l.Item.Name)
	}
	tier := l.Tier
	if tier == "" {
		tier = TierUnit
	}
	if !ValidTier(tier) {
		return SaleItem{}, Errorf(CodeInvalidInput, "unknown pricing tier %q", l.Tier)
	}
	units := l.Quantity * l.Item.UnitsPer(tier)
	if units > l.Item.Quantity {
		return SaleItem{}, Errorf(CodeInsufficientStock, "insufficient stock for %s: have %d, need %d", l.Item.Name, l.Item.Quantity, units)
	}
	price := l.Item.PriceFor(tier)
	return SaleItem{
		InventoryItemID: l.Item.ID,
		ItemName:        l.Item.Name,
		Tier:            tier,
		Quantity:        l.Quantity,
		Units:           units,
		UnitPrice:       price,
		CostPrice:       l.Item.CostPrice,
		Subtotal:        RoundMoney(price.Mul(decimal.NewFromInt(l.Quantity))),
	}, nil
}

// Settle fills in subtotal, total, due and change from the items, discount and
// paid amount.
func (s *Sale) Settle() error {
	subtotal := decimal.Zero
	for i := range s.Items {
		subtotal = subtotal.Add(s.Items[i].Subtotal)
	}
	if s.Discount.IsNegative() {
		return Errorf(CodeInvalidInput, "discount cannot be negative")
	}
	if s.PaidAmount.IsNegative() {
		return Errorf(CodeInvalidInput, "paid amount cannot be negative")
	}
	s.Subtotal = RoundMoney(subtotal)
	s.Discount = RoundMoney(s.Discount)
	s.Total = NonNegative(s.Subtotal.Sub(s.Discount))
	s.PaidAmount = RoundMoney(s.PaidAmount)
	if s.PaidAmount.GreaterThanOrEqual(s.Total) {
		s.ChangeReturned = s.PaidAmount.Sub(s.Total)
		s.DueAmount = decimal.Zero
	} else {
		s.ChangeReturned = decimal.Zero
		s.DueAmount = s.Total.Sub(s.PaidAmount)
	}
	return nil
}

// RefundFor returns what returning qty more packages of the line is worth,
// scaled by the share of the subtotal the customer actually paid after
// discount. Successive returns of a line add up to its rounded share exactly.
func (s *Sale) RefundFor(line *SaleItem, qty int64) decimal.Decimal {
	if s.Subtotal.IsZero() || qty <= 0 {
		return decimal.Zero
	}
	ratio := s.Total.Div(s.Subtotal)
	share := func(n int64) decimal.Decimal {
		return RoundMoney(line.UnitPrice.Mul(decimal.NewFromInt(n)).Mul(ratio))
	}
	return share(line.ReturnedQuantity + qty).Sub(share(line.ReturnedQuantity))
}

// ApplyReturn books a refund against the sale, capped so the refunded amount
// never exceeds the sale total. The refund first cancels what is still due;
// only the rest is paid back to the customer. It returns the amount booked and
// the cash paid back.
func (s *Sale) ApplyReturn(refund decimal.Decimal) (booked, cash decimal.Decimal) {
	booked = MinMoney(refund, NonNegative(s.Total.Sub(s.RefundedAmount)))
	fromDue := MinMoney(booked, s.DueAmount)
	s.DueAmount = s.DueAmount.Sub(fromDue)
	s.RefundedAmount = s.RefundedAmount.Add(booked)
	return booked, booked.Sub(fromDue)
}

// CanAcceptPayment validates a due settlement against the sale.
func (s *Sale) CanAcceptPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Errorf(CodeInvalidInput, "payment amount must be positive")
	}
	if !s.DueAmount.IsPositive() {
		return Errorf(CodeInvalidState, "sale %s has nothing due", s.Number)
	}
	if amount.GreaterThan(s.DueAmount) {
		return Errorf(CodeExceedsOutstanding, "payment %s exceeds due amount %s", amount.StringFixed(2), s.DueAmount.StringFixed(2))
	}
	return nil
}
