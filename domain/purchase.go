package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase statuses.
const (
	PurchaseUnpaid  = "unpaid"
	PurchasePartial = "partial"
	PurchasePaid    = "paid"
	PurchaseVoid    = "void"
)

// Payment methods accepted for supplier and bulk order payments.
var PaymentMethods = []string{"cash", "bank", "mobile", "cheque", "card", "credit"}

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

// Purchase is goods received from a supplier on credit or cash.
type Purchase struct {
	ID             int64           `db:"id" json:"id"`
	OrganizationID int64           `db:"organization_id" json:"organization_id"`
	BranchID       int64           `db:"branch_id" json:"branch_id"`
	SupplierID     int64           `db:"supplier_id" json:"supplier_id"`
	Reference      string          `db:"reference" json:"reference"`
	PurchaseDate   time.Time       `db:"purchase_date" json:"purchase_date"`
	GrossAmount    decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	LossAmount     decimal.Decimal `db:"loss_amount" json:"loss_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueAmount      decimal.Decimal `db:"due_amount" json:"due_amount"`
	Status         string          `db:"status" json:"status"`
	Note           string          `db:"note" json:"note"`
	CreatedBy      *int64          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []PurchaseItem  `db:"-" json:"items,omitempty"`
}

type PurchaseItem struct {
	ID              int64           `db:"id" json:"id"`
	PurchaseID      int64           `db:"purchase_id" json:"purchase_id"`
	InventoryItemID int64           `db:"inventory_item_id" json:"inventory_item_id"`
	ItemName        string          `db:"item_name" json:"item_name"`
	Quantity        int64           `db:"quantity" json:"quantity"`
	LostQuantity    int64           `db:"lost_quantity" json:"lost_quantity"`
	UnitCost        decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	LineTotal       decimal.Decimal `db:"line_total" json:"line_total"`
}

// LineAmount returns quantity × unit cost for the received quantity.
func (pi *PurchaseItem) LineAmount() decimal.Decimal {
	return RoundMoney(pi.UnitCost.Mul(decimal.NewFromInt(pi.Quantity)))
}

// RemainingQuantity is the received quantity not yet written off as lost.
func (pi *PurchaseItem) RemainingQuantity() int64 {
	return pi.Quantity - pi.LostQuantity
}

// Recompute derives every amount and the status from the lines and the sum
// of payment allocations. A void purchase keeps its status.
func (p *Purchase) Recompute(items []PurchaseItem, allocated decimal.Decimal) {
	gross := decimal.Zero
	loss := decimal.Zero
	for i := range items {
		gross = gross.Add(items[i].LineAmount())
		loss = loss.Add(items[i].UnitCost.Mul(decimal.NewFromInt(items[i].LostQuantity)))
	}
	p.GrossAmount = RoundMoney(gross)
	p.LossAmount = RoundMoney(loss)
	p.TotalAmount = NonNegative(RoundMoney(gross.Sub(p.Discount).Sub(loss)))
	p.PaidAmount = RoundMoney(allocated)
	p.DueAmount = NonNegative(p.TotalAmount.Sub(p.PaidAmount))
	if p.Status == PurchaseVoid {
		return
	}
	switch {
	case p.PaidAmount.GreaterThanOrEqual(p.TotalAmount):
		p.Status = PurchasePaid
	case p.PaidAmount.IsPositive():
		p.Status = PurchasePartial
	default:
		p.Status = PurchaseUnpaid
	}
}

// Overpaid returns how much more has been allocated than the purchase is now worth.
func (p *Purchase) Overpaid() decimal.Decimal {
	return NonNegative(p.PaidAmount.Sub(p.TotalAmount))
}

// CanAcceptPayment reports whether a payment of amount may be applied.
func (p *Purchase) CanAcceptPayment(amount decimal.Decimal) error {
	if p.Status == PurchaseVoid {
		return Errorf(CodeInvalidState, "purchase %d is void", p.ID)
	}
	if !amount.IsPositive() {
		return Errorf(CodeInvalidInput, "payment amount must be positive")
	}
	if amount.GreaterThan(p.DueAmount) {
		return Errorf(CodeExceedsOutstanding, "payment %s exceeds due amount %s", amount.StringFixed(2), p.DueAmount.StringFixed(2))
	}
	return nil
}

// SupplierPayment is money paid to a supplier. It is spread over purchases
// through allocations; whatever is not allocated is credit held with the supplier.
type SupplierPayment struct {
	ID             int64           `db:"id" json:"id"`
	OrganizationID int64           `db:"organization_id" json:"organization_id"`
	SupplierID     int64           `db:"supplier_id" json:"supplier_id"`
	PurchaseID     *int64          `db:"purchase_id" json:"purchase_id,omitempty"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Allocated      decimal.Decimal `db:"allocated" json:"allocated"`
	Method         string          `db:"method" json:"method"`
	Note           string          `db:"note" json:"note"`
	PaidAt         time.Time       `db:"paid_at" json:"paid_at"`
	CreatedBy      *int64          `db:"created_by" json:"created_by,omitempty"`
}

// Unallocated is the part of the payment still available as credit.
func (sp *SupplierPayment) Unallocated() decimal.Decimal {
	return NonNegative(sp.Amount.Sub(sp.Allocated))
}

type PaymentAllocation struct {
	ID         int64           `db:"id" json:"id"`
	PaymentID  int64           `db:"payment_id" json:"payment_id"`
	PurchaseID int64           `db:"purchase_id" json:"purchase_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type PurchaseLoss struct {
	ID             int64           `db:"id" json:"id"`
	PurchaseID     int64           `db:"purchase_id" json:"purchase_id"`
	PurchaseItemID int64           `db:"purchase_item_id" json:"purchase_item_id"`
	Quantity       int64           `db:"quantity" json:"quantity"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Reason         string          `db:"reason" json:"reason"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Allocation is a planned split of money onto one purchase.
type Allocation struct {
	PurchaseID int64
	Amount     decimal.Decimal
}

// AllocateFIFO spreads amount over open purchases in the given order (oldest
// first), never exceeding a purchase's due amount. It returns the planned
// allocations and the amount left over.
func AllocateFIFO(amount decimal.Decimal, open []Purchase) ([]Allocation, decimal.Decimal) {
	remaining := amount
	var out []Allocation
	for i := range open {
		if !remaining.IsPositive() {
			break
		}
		p := &open[i]
		if p.Status == PurchaseVoid || !p.DueAmount.IsPositive() {
			continue
		}
		take := MinMoney(remaining, p.DueAmount)
		out = append(out, Allocation{PurchaseID: p.ID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return out, remaining
}

// Release is a planned reduction of an existing allocation.
type Release struct {
	AllocationID int64
	PaymentID    int64
	Amount       decimal.Decimal
}

// ReleaseExcess plans how to give back excess from allocations ordered newest
// first. Released money returns to the owning payment's credit.
func ReleaseExcess(excess decimal.Decimal, newestFirst []PaymentAllocation) []Release {
	remaining := excess
	var out []Release
	for _, a := range newestFirst {
		if !remaining.IsPositive() {
			break
		}
		take := MinMoney(remaining, a.Amount)
		if !take.IsPositive() {
			continue
		}
		out = append(out, Release{AllocationID: a.ID, PaymentID: a.PaymentID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return out
}
