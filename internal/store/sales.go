package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/lock"
)

const (
	saleColumns = `id, number, organization_id, branch_id, user_id, patient_id, subtotal, discount, total, paid_amount, due_amount,
	change_returned, refunded_amount, payment_method, created_at`
	saleItemColumns = `id, sale_id, inventory_item_id, item_name, tier, quantity, units, unit_price, cost_price, subtotal, returned_quantity`
)

// NewSaleItem is a line rung up at the counter.
type NewSaleItem struct {
	InventoryItemID int64
	Quantity        int64
	Tier            string
}

// NewSale is a counter sale in one branch.
type NewSale struct {
	BranchID      int64
	PatientID     *int64
	Items         []NewSaleItem
	Discount      decimal.Decimal
	PaidAmount    decimal.Decimal
	PaymentMethod string
}

// CreateSale prices the lines, takes the units out of stock and records the
// sale in one transaction.
func (s *Store) CreateSale(ctx context.Context, orgID, actorID int64, in NewSale) (*domain.Sale, error) {
	if len(in.Items) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "at least one item is required")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = "cash"
	}
	if !domain.ValidPaymentMethod(in.PaymentMethod) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "unknown payment method %q", in.PaymentMethod)
	}
	sale := &domain.Sale{
		Number:         newNumber("S"),
		OrganizationID: orgID,
		BranchID:       in.BranchID,
		UserID:         &actorID,
		PatientID:      in.PatientID,
		Discount:       in.Discount,
		PaidAmount:     in.PaidAmount,
		RefundedAmount: decimal.Zero,
		PaymentMethod:  in.PaymentMethod,
		CreatedAt:      s.Now(),
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := branchInOrg(ctx, tx, orgID, in.BranchID); err != nil {
			return err
		}
		if in.PatientID != nil {
			if _, err := getPatient(ctx, tx, orgID, *in.PatientID); err != nil {
				return err
			}
		}

		// Stock left per item after the lines priced so far.
		remaining := make(map[int64]*domain.InventoryItem)
		for _, line := range in.Items {
			it, ok := remaining[line.InventoryItemID]
			if !ok {
				var err error
				if it, err = getItem(ctx, tx, orgID, line.InventoryItemID); err != nil {
					return err
				}
				if it.BranchID != in.BranchID || !it.Active {
					return domain.Errorf(domain.CodeInvalidInput, "%s is not stocked in branch %d", it.Name, in.BranchID)
				}
				remaining[it.ID] = it
			}
			item, err := domain.PriceLine(domain.SaleLine{Item: it, Tier: line.Tier, Quantity: line.Quantity})
			if err != nil {
				return err
			}
			it.Quantity -= item.Units
			sale.Items = append(sale.Items, item)
		}
		if err := sale.Settle(); err != nil {
			return err
		}

		var err error
		sale.ID, err = insert(ctx, tx, `INSERT INTO sales (number, organization_id, branch_id, user_id, patient_id, subtotal, discount, total, paid_amount,
			due_amount, change_returned, refunded_amount, payment_method, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sale.Number, sale.OrganizationID, sale.BranchID, sale.UserID, sale.PatientID, sale.Subtotal, sale.Discount, sale.Total, sale.PaidAmount,
			sale.DueAmount, sale.ChangeReturned, sale.RefundedAmount, sale.PaymentMethod, sale.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to create sale: %w", err)
		}
		for i := range sale.Items {
			item := &sale.Items[i]
			item.SaleID = sale.ID
			item.ID, err = insert(ctx, tx, `INSERT INTO sale_items (sale_id, inventory_item_id, item_name, tier, quantity, units, unit_price, cost_price, subtotal, returned_quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.SaleID, item.InventoryItemID, item.ItemName, item.Tier, item.Quantity, item.Units, item.UnitPrice, item.CostPrice, item.Subtotal, 0)
			if err != nil {
				return fmt.Errorf("unable to save sale items: %w", err)
			}
			if _, err := s.moveStock(ctx, tx, orgID, item.InventoryItemID, -item.Units, movement{
				reason: domain.MovementSale, refType: "sale", refID: &sale.ID, note: sale.Number, by: &actorID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// SaleFilter narrows a sale listing.
type SaleFilter struct {
	BranchID  *int64
	PatientID *int64
	Dates     DateRange
	Page      Page
}

// ListSales returns sales, newest first, without their lines.
func (s *Store) ListSales(ctx context.Context, orgID int64, f SaleFilter) ([]domain.Sale, error) {
	clauses := []string{"organization_id = ?"}
	args := []any{orgID}
	if f.BranchID != nil {
		clauses = append(clauses, "branch_id = ?")
		args = append(args, *f.BranchID)
	}
	if f.PatientID != nil {
		clauses = append(clauses, "patient_id = ?")
		args = append(args, *f.PatientID)
	}
	clauses, args = f.Dates.apply("created_at", clauses, args)
	sales := []domain.Sale{}
	if err := selectAll(ctx, s.db, &sales, `SELECT `+saleColumns+` FROM sales`+where(clauses)+` ORDER BY created_at DESC, id DESC`+f.Page.clause(), args...); err != nil {
		return nil, fmt.Errorf("unable to list sales: %w", err)
	}
	return sales, nil
}

func getSale(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	if err := get(ctx, q, &sale, `SELECT `+saleColumns+` FROM sales WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "sale")
	}
	items, err := saleItems(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	sale.Items = items[id]
	return &sale, nil
}

// GetSale loads a sale with its lines.
func (s *Store) GetSale(ctx context.Context, orgID, id int64) (*domain.Sale, error) {
	return getSale(ctx, s.db, orgID, id)
}

// saleItems loads the lines of the sales, grouped by sale id.
func saleItems(ctx context.Context, q sqlx.ExtContext, saleIDs []int64) (map[int64][]domain.SaleItem, error) {
	bySale := make(map[int64][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return bySale, nil
	}
	var rows []domain.SaleItem
	if err := selectIn(ctx, q, &rows, `SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id IN (?) ORDER BY id`, saleIDs); err != nil {
		return nil, fmt.Errorf("unable to load sale items: %w", err)
	}
	for _, row := range rows {
		bySale[row.SaleID] = append(bySale[row.SaleID], row)
	}
	return bySale, nil
}

// ReturnLine gives back part of a sale line.
type ReturnLine struct {
	SaleItemID int64
	Quantity   int64
}

// SaleReturnResult is a booked return and the cash paid back for it.
type SaleReturnResult struct {
	Return     domain.SaleReturn `json:"return"`
	CashRefund decimal.Decimal   `json:"cash_refund"`
	Sale       *domain.Sale      `json:"sale"`
}

// ReturnSale puts returned packages back in stock and refunds them at the
// price the customer paid after the sale discount.
func (s *Store) ReturnSale(ctx context.Context, orgID, actorID, saleID int64, lines []ReturnLine, reason string) (*SaleReturnResult, error) {
	if len(lines) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "at least one item is required")
	}
	var out SaleReturnResult
	err := s.inLedgerTx(ctx, lock.SaleKey(saleID), func(tx *sqlx.Tx) error {
		sale, err := getSale(ctx, tx, orgID, saleID)
		if err != nil {
			return err
		}
		ret := domain.SaleReturn{SaleID: sale.ID, Reason: reason, CreatedBy: &actorID, CreatedAt: s.Now(), Amount: decimal.Zero}
		for _, line := range lines {
			var item *domain.SaleItem
			for i := range sale.Items {
				if sale.Items[i].ID == line.SaleItemID {
					item = &sale.Items[i]
				}
			}
			if item == nil {
				return domain.Errorf(domain.CodeNotFound, "item %d is not on sale %s", line.SaleItemID, sale.Number)
			}
			if line.Quantity <= 0 || line.Quantity > item.ReturnableQuantity() {
				return domain.Errorf(domain.CodeInvalidInput, "return quantity of %s must be between 1 and %d", item.ItemName, item.ReturnableQuantity())
			}
			amount := sale.RefundFor(item, line.Quantity)
			item.ReturnedQuantity += line.Quantity
			ret.Amount = ret.Amount.Add(amount)
			ret.Items = append(ret.Items, domain.SaleReturnItem{SaleItemID: item.ID, Quantity: line.Quantity, Amount: amount})

			if _, err := exec(ctx, tx, `UPDATE sale_items SET returned_quantity = ? WHERE id = ?`, item.ReturnedQuantity, item.ID); err != nil {
				return fmt.Errorf("unable to update sale item: %w", err)
			}
			if _, err := s.moveStock(ctx, tx, orgID, item.InventoryItemID, line.Quantity*item.UnitsPerPackage(), movement{
				reason: domain.MovementSaleReturn, refType: "sale", refID: &sale.ID, note: reason, by: &actorID,
			}); err != nil {
				return err
			}
		}

		booked, cash := sale.ApplyReturn(ret.Amount)
		if excess := ret.Amount.Sub(booked); excess.IsPositive() {
			last := &ret.Items[len(ret.Items)-1]
			last.Amount = domain.NonNegative(last.Amount.Sub(excess))
			ret.Amount = booked
		}
		out.CashRefund = cash
		if _, err := exec(ctx, tx, `UPDATE sales SET due_amount = ?, refunded_amount = ? WHERE id = ?`, sale.DueAmount, sale.RefundedAmount, sale.ID); err != nil {
			return fmt.Errorf("unable to update sale: %w", err)
		}
		ret.ID, err = insert(ctx, tx, `INSERT INTO sale_returns (sale_id, amount, reason, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
			ret.SaleID, ret.Amount, ret.Reason, ret.CreatedBy, ret.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to record sale return: %w", err)
		}
		for i := range ret.Items {
			ri := &ret.Items[i]
			ri.ReturnID = ret.ID
			ri.ID, err = insert(ctx, tx, `INSERT INTO sale_return_items (return_id, sale_item_id, quantity, amount) VALUES (?, ?, ?, ?)`,
				ri.ReturnID, ri.SaleItemID, ri.Quantity, ri.Amount)
			if err != nil {
				return fmt.Errorf("unable to record sale return items: %w", err)
			}
		}
		out.Return = ret
		out.Sale = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSaleReturns returns the returns booked against a sale.
func (s *Store) ListSaleReturns(ctx context.Context, orgID, saleID int64) ([]domain.SaleReturn, error) {
	if _, err := getSale(ctx, s.db, orgID, saleID); err != nil {
		return nil, err
	}
	returns := []domain.SaleReturn{}
	if err := selectAll(ctx, s.db, &returns, `SELECT id, sale_id, amount, reason, created_by, created_at FROM sale_returns WHERE sale_id = ? ORDER BY id`, saleID); err != nil {
		return nil, fmt.Errorf("unable to list sale returns: %w", err)
	}
	for i := range returns {
		if err := selectAll(ctx, s.db, &returns[i].Items, `SELECT id, return_id, sale_item_id, quantity, amount FROM sale_return_items WHERE return_id = ? ORDER BY id`, returns[i].ID); err != nil {
			return nil, fmt.Errorf("unable to load sale return items: %w", err)
		}
	}
	return returns, nil
}

// PaySale settles part of what a customer still owes on a sale.
func (s *Store) PaySale(ctx context.Context, orgID, actorID, saleID int64, amount decimal.Decimal, method string) (*domain.Sale, error) {
	if method == "" {
		method = "cash"
	}
	if !domain.ValidPaymentMethod(method) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "unknown payment method %q", method)
	}
	amount = domain.RoundMoney(amount)
	var sale *domain.Sale
	err := s.inLedgerTx(ctx, lock.SaleKey(saleID), func(tx *sqlx.Tx) error {
		var err error
		if sale, err = getSale(ctx, tx, orgID, saleID); err != nil {
			return err
		}
		if err := sale.CanAcceptPayment(amount); err != nil {
			return err
		}
		if _, err := insert(ctx, tx, `INSERT INTO sale_payments (sale_id, amount, method, paid_at, recorded_by) VALUES (?, ?, ?, ?, ?)`,
			sale.ID, amount, method, s.Now(), actorID); err != nil {
			return fmt.Errorf("unable to record sale payment: %w", err)
		}
		sale.PaidAmount = sale.PaidAmount.Add(amount)
		sale.DueAmount = sale.DueAmount.Sub(amount)
		if _, err := exec(ctx, tx, `UPDATE sales SET paid_amount = ?, due_amount = ? WHERE id = ?`, sale.PaidAmount, sale.DueAmount, sale.ID); err != nil {
			return fmt.Errorf("unable to update sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}
