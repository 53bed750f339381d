package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bulk order statuses.
const (
	BulkPending    = "pending"
	BulkConfirmed  = "confirmed"
	BulkRejected   = "rejected"
	BulkCancelled  = "cancelled"
	BulkDispatched = "dispatched"
	BulkDelivered  = "delivered"
	BulkCompleted  = "completed"
)

// Payment statuses shared by bulk orders.
const (
	PaymentUnpaid  = "unpaid"
	PaymentPartial = "partial"
	PaymentPaid    = "paid"
)

// Which side of a bulk order performs an action.
const (
	SideBuyer    = "buyer"
	SideSupplier = "supplier"
)

// MaxInstallments bounds the installment schedule length.
const MaxInstallments = 12

type BulkOrder struct {
	ID                     int64              `db:"id" json:"id"`
	Number                 string             `db:"number" json:"number"`
	BuyerOrganizationID    int64              `db:"buyer_organization_id" json:"buyer_organization_id"`
	BuyerBranchID          int64              `db:"buyer_branch_id" json:"buyer_branch_id"`
	SupplierOrganizationID int64              `db:"supplier_organization_id" json:"supplier_organization_id"`
	SupplierBranchID       *int64             `db:"supplier_branch_id" json:"supplier_branch_id,omitempty"`
	Status                 string             `db:"status" json:"status"`
	TotalAmount            decimal.Decimal    `db:"total_amount" json:"total_amount"`
	PaidAmount             decimal.Decimal    `db:"paid_amount" json:"paid_amount"`
	DueAmount              decimal.Decimal    `db:"due_amount" json:"due_amount"`
	RefundDue              decimal.Decimal    `db:"refund_due" json:"refund_due"`
	LossAmount             decimal.Decimal    `db:"loss_amount" json:"loss_amount"`
	PaymentStatus          string             `db:"payment_status" json:"payment_status"`
	InstallmentCount       int                `db:"installment_count" json:"installment_count"`
	Notes                  string             `db:"notes" json:"notes"`
	CreatedBy              *int64             `db:"created_by" json:"created_by,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	ConfirmedAt            *time.Time         `db:"confirmed_at" json:"confirmed_at,omitempty"`
	DispatchedAt           *time.Time         `db:"dispatched_at" json:"dispatched_at,omitempty"`
	DeliveredAt            *time.Time         `db:"delivered_at" json:"delivered_at,omitempty"`
	Items                  []BulkOrderItem    `db:"-" json:"items,omitempty"`
	Installments           []BulkInstallment  `db:"-" json:"installments,omitempty"`
	Payments               []BulkOrderPayment `db:"-" json:"payments,omitempty"`
}

type BulkOrderItem struct {
	ID                 int64           `db:"id" json:"id"`
	BulkOrderID        int64           `db:"bulk_order_id" json:"bulk_order_id"`
	Name               string          `db:"name" json:"name"`
	SupplierItemID     *int64          `db:"supplier_item_id" json:"supplier_item_id,omitempty"`
	BuyerItemID        *int64          `db:"buyer_item_id" json:"buyer_item_id,omitempty"`
	Quantity           int64           `db:"quantity" json:"quantity"`
	UnitPrice          decimal.Decimal `db:"unit_price" json:"unit_price"`
	DispatchedQuantity int64           `db:"dispatched_quantity" json:"dispatched_quantity"`
	ReceivedQuantity   int64           `db:"received_quantity" json:"received_quantity"`
	LineTotal          decimal.Decimal `db:"line_total" json:"line_total"`
}

type BulkInstallment struct {
	ID          int64           `db:"id" json:"id"`
	BulkOrderID int64           `db:"bulk_order_id" json:"bulk_order_id"`
	Sequence    int             `db:"sequence" json:"sequence"`
	DueDate     time.Time       `db:"due_date" json:"due_date"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PaidAmount  decimal.Decimal `db:"paid_amount" json:"paid_amount"`
}

// Outstanding is what is left to pay on the installment.
func (i *BulkInstallment) Outstanding() decimal.Decimal {
	return NonNegative(i.Amount.Sub(i.PaidAmount))
}

type BulkOrderPayment struct {
	ID          int64           `db:"id" json:"id"`
	BulkOrderID int64           `db:"bulk_order_id" json:"bulk_order_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Method      string          `db:"method" json:"method"`
	Note        string          `db:"note" json:"note"`
	PaidAt      time.Time       `db:"paid_at" json:"paid_at"`
	RecordedBy  *int64          `db:"recorded_by" json:"recorded_by,omitempty"`
}

// bulkTransitions maps action → (allowed from statuses, acting side, target status).
var bulkTransitions = map[string]struct {
	from []string
	side string
	to   string
}{
	"confirm":  {[]string{BulkPending}, SideSupplier, BulkConfirmed},
	"reject":   {[]string{BulkPending}, SideSupplier, BulkRejected},
	"cancel":   {[]string{BulkPending, BulkConfirmed}, SideBuyer, BulkCancelled},
	"dispatch": {[]string{BulkConfirmed}, SideSupplier, BulkDispatched},
	"deliver":  {[]string{BulkDispatched}, SideBuyer, BulkDelivered},
}

// Transition validates that side may perform action on the order and returns
// the next status.
func (o *BulkOrder) Transition(action, side string) (string, error) {
	t, ok := bulkTransitions[action]
	if !ok {
		return "", Errorf(CodeInvalidInput, "unknown action %q", action)
	}
	if t.side != side {
		return "", Errorf(CodeForbidden, "only the %s may %s an order", t.side, action)
	}
	for _, s := range t.from {
		if s == o.Status {
			if action == "cancel" && o.PaidAmount.IsPositive() {
				return "", Errorf(CodeInvalidState, "order %s has payments and cannot be cancelled", o.Number)
			}
			return t.to, nil
		}
	}
	return "", Errorf(CodeInvalidState, "cannot %s an order in %s status", action, o.Status)
}

// SideOf returns which side the organization is on, or "" if it is neither.
func (o *BulkOrder) SideOf(orgID int64) string {
	switch orgID {
	case o.BuyerOrganizationID:
		return SideBuyer
	case o.SupplierOrganizationID:
		return SideSupplier
	}
	return ""
}

// AcceptsPayments reports whether installments can be paid in the current status.
func (o *BulkOrder) AcceptsPayments() bool {
	switch o.Status {
	case BulkConfirmed, BulkDispatched, BulkDelivered:
		return true
	}
	return false
}

// Recompute derives totals and payment status from items, using received
// quantities once the order has been delivered. A delivered order with
// nothing to pay counts as paid.
func (o *BulkOrder) Recompute() {
	total := decimal.Zero
	ordered := decimal.Zero
	delivered := o.Status == BulkDelivered || o.Status == BulkCompleted
	for i := range o.Items {
		it := &o.Items[i]
		qty := it.Quantity
		if delivered {
			qty = it.ReceivedQuantity
		}
		it.LineTotal = RoundMoney(it.UnitPrice.Mul(decimal.NewFromInt(qty)))
		total = total.Add(it.LineTotal)
		ordered = ordered.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	o.TotalAmount = RoundMoney(total)
	if delivered {
		o.LossAmount = RoundMoney(ordered.Sub(total))
	}
	o.DueAmount = NonNegative(o.TotalAmount.Sub(o.PaidAmount))
	o.RefundDue = NonNegative(o.PaidAmount.Sub(o.TotalAmount))
	switch {
	case (o.TotalAmount.IsPositive() || delivered) && o.PaidAmount.GreaterThanOrEqual(o.TotalAmount):
		o.PaymentStatus = PaymentPaid
	case o.PaidAmount.IsPositive():
		o.PaymentStatus = PaymentPartial
	default:
		o.PaymentStatus = PaymentUnpaid
	}
	if o.Status == BulkDelivered && o.PaymentStatus == PaymentPaid {
		o.Status = BulkCompleted
	}
}

// BuildInstallments splits total into count parts rounded to cents with the
// rounding remainder on the last part. Due dates are monthly from start.
func BuildInstallments(total decimal.Decimal, count int, start time.Time) []BulkInstallment {
	if count < 1 {
		count = 1
	}
	share := total.Div(decimal.NewFromInt(int64(count))).RoundDown(2)
	out := make([]BulkInstallment, count)
	assigned := decimal.Zero
	for i := 0; i < count; i++ {
		amount := share
		if i == count-1 {
			amount = total.Sub(assigned)
		}
		assigned = assigned.Add(amount)
		out[i] = BulkInstallment{
			Sequence:   i + 1,
			DueDate:    start.AddDate(0, i+1, 0),
			Amount:     RoundMoney(amount),
			PaidAmount: decimal.Zero,
		}
	}
	return out
}

// DistributePaid fills installments in sequence with paid money. Money beyond
// the schedule is ignored; the order's refund due reports it.
func DistributePaid(installments []BulkInstallment, paid decimal.Decimal) {
	remaining := paid
	for i := range installments {
		take := MinMoney(remaining, installments[i].Amount)
		if take.IsNegative() {
			take = decimal.Zero
		}
		installments[i].PaidAmount = take
		remaining = remaining.Sub(take)
	}
}

// CanAcceptPayment validates a buyer payment against the order.
func (o *BulkOrder) CanAcceptPayment(amount decimal.Decimal) error {
	if !o.AcceptsPayments() {
		return Errorf(CodeInvalidState, "order %s does not accept payments in %s status", o.Number, o.Status)
	}
	if !amount.IsPositive() {
		return Errorf(CodeInvalidInput, "payment amount must be positive")
	}
	if amount.GreaterThan(o.DueAmount) {
		return Errorf(CodeExceedsOutstanding, "payment %s exceeds due amount %s", amount.StringFixed(2), o.DueAmount.StringFixed(2))
	}
	return nil
}
