package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
)

const (
	purchaseColumns = `id, organization_id, branch_id, supplier_id, reference, purchase_date, gross_amount, discount, loss_amount,
	total_amount, paid_amount, due_amount, status, note, created_by, created_at`
	purchaseItemColumns = `id, purchase_id, inventory_item_id, item_name, quantity, lost_quantity, unit_cost, line_total`
	paymentColumns      = `id, organization_id, supplier_id, purchase_id, amount, allocated, method, note, paid_at, created_by`
	allocationColumns   = `id, payment_id, purchase_id, amount, created_at`
)

// NewPurchaseItem is a received line.
type NewPurchaseItem struct {
	InventoryItemID int64
	Quantity        int64
	UnitCost        decimal.Decimal
}

// NewPurchase records goods received from a supplier.
type NewPurchase struct {
	SupplierID    int64
	BranchID      int64
	Reference     string
	PurchaseDate  time.Time
	Discount      decimal.Decimal
	Note          string
	Items         []NewPurchaseItem
	PaidAmount    decimal.Decimal
	PaymentMethod string
	ApplyCredit   bool
}

// CreatePurchase receives stock into the branch, records the amounts owed and
// applies the initial payment and, optionally, the supplier credit held.
func (s *Store) CreatePurchase(ctx context.Context, orgID, actorID int64, in NewPurchase) (*domain.Purchase, error) {
	if len(in.Items) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "at least one item is required")
	}
	if in.Discount.IsNegative() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "discount cannot be negative")
	}
	if in.PaidAmount.IsNegative() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "paid_amount cannot be negative")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = "cash"
	}
	if !domain.ValidPaymentMethod(in.PaymentMethod) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "unknown payment method %q", in.PaymentMethod)
	}
	if in.PurchaseDate.IsZero() {
		in.PurchaseDate = s.Now()
	}
	now := s.Now()

	var id int64
	err := s.inSupplierTx(ctx, in.SupplierID, func(tx *sqlx.Tx) error {
		if _, err := getSupplier(ctx, tx, orgID, in.SupplierID); err != nil {
			return err
		}
		if err := branchInOrg(ctx, tx, orgID, in.BranchID); err != nil {
			return err
		}

		p := &domain.Purchase{
			OrganizationID: orgID,
			BranchID:       in.BranchID,
			SupplierID:     in.SupplierID,
			Reference:      in.Reference,
			PurchaseDate:   DateOf(in.PurchaseDate),
			Discount:       domain.RoundMoney(in.Discount),
			Status:         domain.PurchaseUnpaid,
			Note:           in.Note,
			CreatedBy:      &actorID,
			CreatedAt:      now,
		}
		var err error
		p.ID, err = insert(ctx, tx, `INSERT INTO purchases (organization_id, branch_id, supplier_id, reference, purchase_date, gross_amount, discount, loss_amount,
			total_amount, paid_amount, due_amount, status, note, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.OrganizationID, p.BranchID, p.SupplierID, p.Reference, p.PurchaseDate, decimal.Zero, p.Discount, decimal.Zero,
			decimal.Zero, decimal.Zero, decimal.Zero, p.Status, p.Note, p.CreatedBy, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to create purchase: %w", err)
		}
		id = p.ID

		items := make([]domain.PurchaseItem, 0, len(in.Items))
		for _, line := range in.Items {
			if line.Quantity <= 0 {
				return domain.Errorf(domain.CodeInvalidInput, "quantity must be positive")
			}
			if line.UnitCost.IsNegative() {
				return domain.Errorf(domain.CodeInvalidInput, "unit_cost cannot be negative")
			}
			it, err := getItem(ctx, tx, orgID, line.InventoryItemID)
			if err != nil {
				return err
			}
			if it.BranchID != in.BranchID || !it.Active {
				return domain.Errorf(domain.CodeInvalidInput, "%s is not stocked in branch %d", it.Name, in.BranchID)
			}
			pi := domain.PurchaseItem{
				PurchaseID:      p.ID,
				InventoryItemID: it.ID,
				ItemName:        it.Name,
				Quantity:        line.Quantity,
				UnitCost:        domain.RoundMoney(line.UnitCost),
			}
			pi.LineTotal = pi.LineAmount()
			pi.ID, err = insert(ctx, tx, `INSERT INTO purchase_items (purchase_id, inventory_item_id, item_name, quantity, lost_quantity, unit_cost, line_total) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				pi.PurchaseID, pi.InventoryItemID, pi.ItemName, pi.Quantity, 0, pi.UnitCost, pi.LineTotal)
			if err != nil {
				return fmt.Errorf("unable to save purchase items: %w", err)
			}
			if _, err := s.moveStock(ctx, tx, orgID, it.ID, line.Quantity, movement{
				reason: domain.MovementPurchase, refType: "purchase", refID: &p.ID, by: &actorID,
			}); err != nil {
				return err
			}
			if _, err := exec(ctx, tx, `UPDATE inventory_items SET cost_price = ? WHERE id = ?`, pi.UnitCost, it.ID); err != nil {
				return fmt.Errorf("unable to update cost price: %w", err)
			}
			items = append(items, pi)
		}

		p.Recompute(items, decimal.Zero)
		if p.Discount.GreaterThan(p.GrossAmount) {
			return domain.Errorf(domain.CodeInvalidInput, "discount %s exceeds purchase amount %s", p.Discount.StringFixed(2), p.GrossAmount.StringFixed(2))
		}

		if in.PaidAmount.IsPositive() {
			paid := domain.RoundMoney(in.PaidAmount)
			if paid.GreaterThan(p.TotalAmount) {
				return domain.Errorf(domain.CodeExceedsOutstanding, "payment %s exceeds purchase total %s", paid.StringFixed(2), p.TotalAmount.StringFixed(2))
			}
			pay, err := s.recordSupplierPayment(ctx, tx, orgID, actorID, in.SupplierID, &p.ID, paid, in.PaymentMethod, "")
			if err != nil {
				return err
			}
			if err := s.allocate(ctx, tx, pay, p.ID, paid); err != nil {
				return err
			}
			p.Recompute(items, paid)
		}

		if in.ApplyCredit && p.DueAmount.IsPositive() {
			if err := s.applyCredit(ctx, tx, in.SupplierID, p); err != nil {
				return err
			}
		}
		return s.recomputePurchase(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, orgID, id)
}

// applyCredit spends unallocated supplier payments, oldest first, on the purchase.
func (s *Store) applyCredit(ctx context.Context, tx *sqlx.Tx, supplierID int64, p *domain.Purchase) error {
	var payments []domain.SupplierPayment
	if err := selectAll(ctx, tx, &payments, `SELECT `+paymentColumns+` FROM supplier_payments WHERE supplier_id = ? ORDER BY paid_at, id`, supplierID); err != nil {
		return fmt.Errorf("unable to load supplier credit: %w", err)
	}
	due := p.DueAmount
	for i := range payments {
		if !due.IsPositive() {
			break
		}
		credit := payments[i].Unallocated()
		if !credit.IsPositive() {
			continue
		}
		take := domain.MinMoney(credit, due)
		if err := s.allocate(ctx, tx, &payments[i], p.ID, take); err != nil {
			return err
		}
		due = due.Sub(take)
	}
	return nil
}

func (s *Store) recordSupplierPayment(ctx context.Context, tx *sqlx.Tx, orgID, actorID, supplierID int64, purchaseID *int64, amount decimal.Decimal, method, note string) (*domain.SupplierPayment, error) {
	pay := &domain.SupplierPayment{
		OrganizationID: orgID,
		SupplierID:     supplierID,
		PurchaseID:     purchaseID,
		Amount:         amount,
		Allocated:      decimal.Zero,
		Method:         method,
		Note:           note,
		PaidAt:         s.Now(),
		CreatedBy:      &actorID,
	}
	var err error
	pay.ID, err = insert(ctx, tx, `INSERT INTO supplier_payments (organization_id, supplier_id, purchase_id, amount, allocated, method, note, paid_at, created_by) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pay.OrganizationID, pay.SupplierID, pay.PurchaseID, pay.Amount, pay.Allocated, pay.Method, pay.Note, pay.PaidAt, pay.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("unable to record supplier payment: %w", err)
	}
	return pay, nil
}

// allocate moves amount of the payment onto the purchase.
func (s *Store) allocate(ctx context.Context, tx *sqlx.Tx, pay *domain.SupplierPayment, purchaseID int64, amount decimal.Decimal) error {
	if _, err := insert(ctx, tx, `INSERT INTO payment_allocations (payment_id, purchase_id, amount, created_at) VALUES (?, ?, ?, ?)`,
		pay.ID, purchaseID, amount, s.Now()); err != nil {
		return fmt.Errorf("unable to allocate payment: %w", err)
	}
	pay.Allocated = pay.Allocated.Add(amount)
	if _, err := exec(ctx, tx, `UPDATE supplier_payments SET allocated = ? WHERE id = ?`, pay.Allocated, pay.ID); err != nil {
		return fmt.Errorf("unable to update payment allocation: %w", err)
	}
	return nil
}

// recomputePurchase derives the purchase amounts from its lines and
// allocations and saves them.
func (s *Store) recomputePurchase(ctx context.Context, tx *sqlx.Tx, p *domain.Purchase) error {
	items, err := purchaseItems(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	allocated, err := allocatedTo(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	p.Recompute(items, allocated)
	p.Items = items
	if _, err := exec(ctx, tx, `UPDATE purchases SET gross_amount = ?, loss_amount = ?, total_amount = ?, paid_amount = ?, due_amount = ?, status = ? WHERE id = ?`,
		p.GrossAmount, p.LossAmount, p.TotalAmount, p.PaidAmount, p.DueAmount, p.Status, p.ID); err != nil {
		return fmt.Errorf("unable to update purchase totals: %w", err)
	}
	return nil
}

func purchaseItems(ctx context.Context, q sqlx.ExtContext, purchaseID int64) ([]domain.PurchaseItem, error) {
	items := []domain.PurchaseItem{}
	if err := selectAll(ctx, q, &items, `SELECT `+purchaseItemColumns+` FROM purchase_items WHERE purchase_id = ? ORDER BY id`, purchaseID); err != nil {
		return nil, fmt.Errorf("unable to load purchase items: %w", err)
	}
	return items, nil
}

func purchaseAllocations(ctx context.Context, q sqlx.ExtContext, purchaseID int64, newestFirst bool) ([]domain.PaymentAllocation, error) {
	order := "created_at, id"
	if newestFirst {
		order = "created_at DESC, id DESC"
	}
	var allocations []domain.PaymentAllocation
	if err := selectAll(ctx, q, &allocations, `SELECT `+allocationColumns+` FROM payment_allocations WHERE purchase_id = ? ORDER BY `+order, purchaseID); err != nil {
		return nil, fmt.Errorf("unable to load allocations: %w", err)
	}
	return allocations, nil
}

func allocatedTo(ctx context.Context, q sqlx.ExtContext, purchaseID int64) (decimal.Decimal, error) {
	allocations, err := purchaseAllocations(ctx, q, purchaseID, false)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	return total, nil
}

func getPurchase(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.Purchase, error) {
	var p domain.Purchase
	if err := get(ctx, q, &p, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "purchase")
	}
	return &p, nil
}

// GetPurchase loads a purchase with its lines.
func (s *Store) GetPurchase(ctx context.Context, orgID, id int64) (*domain.Purchase, error) {
	p, err := getPurchase(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if p.Items, err = purchaseItems(ctx, s.db, id); err != nil {
		return nil, err
	}
	return p, nil
}

// PurchaseAllocations lists the payments applied to a purchase.
func (s *Store) PurchaseAllocations(ctx context.Context, orgID, id int64) ([]domain.PaymentAllocation, error) {
	if _, err := getPurchase(ctx, s.db, orgID, id); err != nil {
		return nil, err
	}
	allocations, err := purchaseAllocations(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if allocations == nil {
		allocations = []domain.PaymentAllocation{}
	}
	return allocations, nil
}

// PurchaseFilter narrows a purchase listing.
type PurchaseFilter struct {
	SupplierID *int64
	BranchID   *int64
	Status     string
	Dates      DateRange
	Page       Page
}

// ListPurchases returns purchases, newest first.
func (s *Store) ListPurchases(ctx context.Context, orgID int64, f PurchaseFilter) ([]domain.Purchase, error) {
	clauses := []string{"organization_id = ?"}
	args := []any{orgID}
	if f.SupplierID != nil {
		clauses = append(clauses, "supplier_id = ?")
		args = append(args, *f.SupplierID)
	}
	if f.BranchID != nil {
		clauses = append(clauses, "branch_id = ?")
		args = append(args, *f.BranchID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	clauses, args = f.Dates.apply("purchase_date", clauses, args)
	purchases := []domain.Purchase{}
	if err := selectAll(ctx, s.db, &purchases, `SELECT `+purchaseColumns+` FROM purchases`+where(clauses)+` ORDER BY purchase_date DESC, id DESC`+f.Page.clause(), args...); err != nil {
		return nil, fmt.Errorf("unable to list purchases: %w", err)
	}
	return purchases, nil
}

// purchaseSupplier returns the supplier of a purchase so its ledger can be
// locked before the transaction starts.
func (s *Store) purchaseSupplier(ctx context.Context, orgID, purchaseID int64) (int64, error) {
	p, err := getPurchase(ctx, s.db, orgID, purchaseID)
	if err != nil {
		return 0, err
	}
	return p.SupplierID, nil
}

// PayPurchase records a payment against one purchase.
func (s *Store) PayPurchase(ctx context.Context, orgID, actorID, purchaseID int64, amount decimal.Decimal, method, note string) (*domain.Purchase, error) {
	if method == "" {
		method = "cash"
	}
	if !domain.ValidPaymentMethod(method) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "unknown payment method %q", method)
	}
	amount = domain.RoundMoney(amount)
	supplierID, err := s.purchaseSupplier(ctx, orgID, purchaseID)
	if err != nil {
		return nil, err
	}
	err = s.inSupplierTx(ctx, supplierID, func(tx *sqlx.Tx) error {
		p, err := getPurchase(ctx, tx, orgID, purchaseID)
		if err != nil {
			return err
		}
		if err := p.CanAcceptPayment(amount); err != nil {
			return err
		}
		pay, err := s.recordSupplierPayment(ctx, tx, orgID, actorID, supplierID, &p.ID, amount, method, note)
		if err != nil {
			return err
		}
		if err := s.allocate(ctx, tx, pay, p.ID, amount); err != nil {
			return err
		}
		return s.recomputePurchase(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, orgID, purchaseID)
}

// SupplierPaymentResult shows how a supplier payment was spread.
type SupplierPaymentResult struct {
	Payment     domain.SupplierPayment     `json:"payment"`
	Allocations []domain.PaymentAllocation `json:"allocations"`
	Credit      decimal.Decimal            `json:"credit"`
}

// PaySupplier records a payment to the supplier and allocates it to the
// oldest open purchases. Whatever is left stays with the supplier as credit.
func (s *Store) PaySupplier(ctx context.Context, orgID, actorID, supplierID int64, amount decimal.Decimal, method, note string) (*SupplierPaymentResult, error) {
	if !amount.IsPositive() {
		return nil, domain.Errorf(domain.CodeInvalidInput, "payment amount must be positive")
	}
	if method == "" {
		method = "cash"
	}
	if !domain.ValidPaymentMethod(method) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "unknown payment method %q", method)
	}
	amount = domain.RoundMoney(amount)
	var out SupplierPaymentResult
	err := s.inSupplierTx(ctx, supplierID, func(tx *sqlx.Tx) error {
		if _, err := getSupplier(ctx, tx, orgID, supplierID); err != nil {
			return err
		}
		var open []domain.Purchase
		if err := selectAll(ctx, tx, &open, `SELECT `+purchaseColumns+` FROM purchases WHERE supplier_id = ? AND status IN (?, ?) ORDER BY purchase_date, id`,
			supplierID, domain.PurchaseUnpaid, domain.PurchasePartial); err != nil {
			return fmt.Errorf("unable to load open purchases: %w", err)
		}
		plan, leftover := domain.AllocateFIFO(amount, open)

		pay, err := s.recordSupplierPayment(ctx, tx, orgID, actorID, supplierID, nil, amount, method, note)
		if err != nil {
			return err
		}
		byID := make(map[int64]*domain.Purchase, len(open))
		for i := range open {
			byID[open[i].ID] = &open[i]
		}
		out.Allocations = make([]domain.PaymentAllocation, 0, len(plan))
		for _, a := range plan {
			if err := s.allocate(ctx, tx, pay, a.PurchaseID, a.Amount); err != nil {
				return err
			}
			if err := s.recomputePurchase(ctx, tx, byID[a.PurchaseID]); err != nil {
				return err
			}
			out.Allocations = append(out.Allocations, domain.PaymentAllocation{PaymentID: pay.ID, PurchaseID: a.PurchaseID, Amount: a.Amount})
		}
		out.Payment = *pay
		out.Credit = leftover
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSupplierPayments returns the supplier's payments, newest first.
func (s *Store) ListSupplierPayments(ctx context.Context, orgID, supplierID int64) ([]domain.SupplierPayment, error) {
	if _, err := s.GetSupplier(ctx, orgID, supplierID); err != nil {
		return nil, err
	}
	payments := []domain.SupplierPayment{}
	if err := selectAll(ctx, s.db, &payments, `SELECT `+paymentColumns+` FROM supplier_payments WHERE supplier_id = ? ORDER BY paid_at DESC, id DESC`, supplierID); err != nil {
		return nil, fmt.Errorf("unable to list supplier payments: %w", err)
	}
	return payments, nil
}

// LossLine writes off part of a received line.
type LossLine struct {
	PurchaseItemID int64
	Quantity       int64
	Reason         string
}

// RecordLosses writes off damaged or missing goods from a purchase. Stock is
// reduced, the purchase total drops by the lost cost, and any allocation now
// exceeding the total is released back to supplier credit, newest first.
func (s *Store) RecordLosses(ctx context.Context, orgID, actorID, purchaseID int64, lines []LossLine) (*domain.Purchase, error) {
	if len(lines) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "at least one loss line is required")
	}
	supplierID, err := s.purchaseSupplier(ctx, orgID, purchaseID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	err = s.inSupplierTx(ctx, supplierID, func(tx *sqlx.Tx) error {
		p, err := getPurchase(ctx, tx, orgID, purchaseID)
		if err != nil {
			return err
		}
		if p.Status == domain.PurchaseVoid {
			return domain.Errorf(domain.CodeInvalidState, "purchase %d is void", p.ID)
		}
		items, err := purchaseItems(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*domain.PurchaseItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		for _, line := range lines {
			pi, ok := byID[line.PurchaseItemID]
			if !ok {
				return domain.Errorf(domain.CodeNotFound, "purchase item %d not found on purchase %d", line.PurchaseItemID, p.ID)
			}
			if line.Quantity <= 0 {
				return domain.Errorf(domain.CodeInvalidInput, "loss quantity must be positive")
			}
			if line.Quantity > pi.RemainingQuantity() {
				return domain.Errorf(domain.CodeInvalidInput, "cannot write off %d of %s, only %d remain", line.Quantity, pi.ItemName, pi.RemainingQuantity())
			}
			if _, err := s.moveStock(ctx, tx, orgID, pi.InventoryItemID, -line.Quantity, movement{
				reason: domain.MovementPurchaseLoss, refType: "purchase", refID: &p.ID, note: line.Reason, by: &actorID,
			}); err != nil {
				return err
			}
			pi.LostQuantity += line.Quantity
			if _, err := exec(ctx, tx, `UPDATE purchase_items SET lost_quantity = ? WHERE id = ?`, pi.LostQuantity, pi.ID); err != nil {
				return fmt.Errorf("unable to update purchase item: %w", err)
			}
			amount := domain.RoundMoney(pi.UnitCost.Mul(decimal.NewFromInt(line.Quantity)))
			if _, err := insert(ctx, tx, `INSERT INTO purchase_losses (purchase_id, purchase_item_id, quantity, amount, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, pi.ID, line.Quantity, amount, line.Reason, now); err != nil {
				return fmt.Errorf("unable to record purchase loss: %w", err)
			}
		}

		if err := s.recomputePurchase(ctx, tx, p); err != nil {
			return err
		}
		excess := p.Overpaid()
		if !excess.IsPositive() {
			return nil
		}
		if err := s.releaseExcess(ctx, tx, p.ID, excess); err != nil {
			return err
		}
		return s.recomputePurchase(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, orgID, purchaseID)
}

// releaseExcess shrinks the newest allocations of the purchase by excess,
// returning the money to the paying payments as unallocated credit.
func (s *Store) releaseExcess(ctx context.Context, tx *sqlx.Tx, purchaseID int64, excess decimal.Decimal) error {
	allocations, err := purchaseAllocations(ctx, tx, purchaseID, true)
	if err != nil {
		return err
	}
	amounts := make(map[int64]decimal.Decimal, len(allocations))
	for _, a := range allocations {
		amounts[a.ID] = a.Amount
	}
	for _, r := range domain.ReleaseExcess(excess, allocations) {
		left := amounts[r.AllocationID].Sub(r.Amount)
		if left.IsZero() {
			_, err = exec(ctx, tx, `DELETE FROM payment_allocations WHERE id = ?`, r.AllocationID)
		} else {
			_, err = exec(ctx, tx, `UPDATE payment_allocations SET amount = ? WHERE id = ?`, left, r.AllocationID)
		}
		if err != nil {
			return fmt.Errorf("unable to release allocation: %w", err)
		}
		var pay domain.SupplierPayment
		if err := get(ctx, tx, &pay, `SELECT `+paymentColumns+` FROM supplier_payments WHERE id = ?`, r.PaymentID); err != nil {
			return loadErr(err, "supplier payment")
		}
		if _, err := exec(ctx, tx, `UPDATE supplier_payments SET allocated = ? WHERE id = ?`, domain.NonNegative(pay.Allocated.Sub(r.Amount)), pay.ID); err != nil {
			return fmt.Errorf("unable to release payment credit: %w", err)
		}
	}
	s.log.Info("released purchase overpayment as supplier credit",
		zap.Int64("purchase_id", purchaseID),
		zap.String("amount", excess.StringFixed(2)))
	return nil
}

// VoidPurchase cancels an unpaid purchase and takes its stock back out.
func (s *Store) VoidPurchase(ctx context.Context, orgID, actorID, purchaseID int64, reason string) (*domain.Purchase, error) {
	supplierID, err := s.purchaseSupplier(ctx, orgID, purchaseID)
	if err != nil {
		return nil, err
	}
	err = s.inSupplierTx(ctx, supplierID, func(tx *sqlx.Tx) error {
		p, err := getPurchase(ctx, tx, orgID, purchaseID)
		if err != nil {
			return err
		}
		if p.Status == domain.PurchaseVoid {
			return domain.Errorf(domain.CodeInvalidState, "purchase %d is already void", p.ID)
		}
		allocated, err := allocatedTo(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if allocated.IsPositive() {
			return domain.Errorf(domain.CodeInvalidState, "purchase %d has payments and cannot be voided", p.ID)
		}
		items, err := purchaseItems(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		for _, pi := range items {
			if pi.RemainingQuantity() == 0 {
				continue
			}
			if _, err := s.moveStock(ctx, tx, orgID, pi.InventoryItemID, -pi.RemainingQuantity(), movement{
				reason: domain.MovementPurchaseVoid, refType: "purchase", refID: &p.ID, note: reason, by: &actorID,
			}); err != nil {
				return err
			}
		}
		p.Status = domain.PurchaseVoid
		return s.recomputePurchase(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, orgID, purchaseID)
}
