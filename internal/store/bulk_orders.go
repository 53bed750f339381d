package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/lock"
)

const (
	bulkOrderColumns = `id, number, buyer_organization_id, buyer_branch_id, supplier_organization_id, supplier_branch_id, status, total_amount,
	paid_amount, due_amount, refund_due, loss_amount, payment_status, installment_count, notes, created_by, created_at, confirmed_at, dispatched_at, delivered_at`
	bulkItemColumns    = `id, bulk_order_id, name, supplier_item_id, buyer_item_id, quantity, unit_price, dispatched_quantity, received_quantity, line_total`
	installmentColumns = `id, bulk_order_id, sequence, due_date, amount, paid_amount`
	bulkPaymentColumns = `id, bulk_order_id, amount, method, note, paid_at, recorded_by`
)

// NewBulkOrderItem is a requested line. Lines naming a supplier item default
// to its name and unit price.
type NewBulkOrderItem struct {
	Name           string
	SupplierItemID *int64
	BuyerItemID    *int64
	Quantity       int64
	UnitPrice      decimal.Decimal
}

// NewBulkOrder is an order placed by a buyer branch with a supplier organization.
type NewBulkOrder struct {
	BuyerBranchID          int64
	SupplierOrganizationID int64
	Notes                  string
	Items                  []NewBulkOrderItem
}

// CreateBulkOrder places a pending order with a supplier organization.
func (s *Store) CreateBulkOrder(ctx context.Context, orgID, actorID int64, in NewBulkOrder) (*domain.BulkOrder, error) {
	if len(in.Items) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "at least one item is required")
	}
	if in.SupplierOrganizationID == orgID {
		return nil, domain.Errorf(domain.CodeInvalidInput, "an organization cannot order from itself")
	}
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		supplier, err := getOrganization(ctx, tx, in.SupplierOrganizationID)
		if err != nil {
			return err
		}
		if !supplier.AcceptsBulkOrders {
			return domain.Errorf(domain.CodeInvalidInput, "%s does not accept bulk orders", supplier.Name)
		}
		if err := branchInOrg(ctx, tx, orgID, in.BuyerBranchID); err != nil {
			return err
		}

		o := &domain.BulkOrder{
			Number:                 newNumber("BO"),
			BuyerOrganizationID:    orgID,
			BuyerBranchID:          in.BuyerBranchID,
			SupplierOrganizationID: in.SupplierOrganizationID,
			Status:                 domain.BulkPending,
			InstallmentCount:       1,
			Notes:                  in.Notes,
			CreatedBy:              &actorID,
			CreatedAt:              s.Now(),
		}
		for _, line := range in.Items {
			it := domain.BulkOrderItem{
				Name:           strings.TrimSpace(line.Name),
				SupplierItemID: line.SupplierItemID,
				BuyerItemID:    line.BuyerItemID,
				Quantity:       line.Quantity,
				UnitPrice:      domain.RoundMoney(line.UnitPrice),
			}
			if it.Quantity <= 0 {
				return domain.Errorf(domain.CodeInvalidInput, "quantity must be positive")
			}
			if it.UnitPrice.IsNegative() {
				return domain.Errorf(domain.CodeInvalidInput, "unit_price cannot be negative")
			}
			if it.SupplierItemID != nil {
				src, err := getItem(ctx, tx, in.SupplierOrganizationID, *it.SupplierItemID)
				if err != nil {
					return err
				}
				if it.Name == "" {
					it.Name = src.Name
				}
				if it.UnitPrice.IsZero() {
					it.UnitPrice = src.UnitPrice
				}
			}
			if it.BuyerItemID != nil {
				dst, err := getItem(ctx, tx, orgID, *it.BuyerItemID)
				if err != nil {
					return err
				}
				if dst.BranchID != in.BuyerBranchID {
					return domain.Errorf(domain.CodeInvalidInput, "%s is not stocked in branch %d", dst.Name, in.BuyerBranchID)
				}
				if it.Name == "" {
					it.Name = dst.Name
				}
			}
			if it.Name == "" {
				return domain.Errorf(domain.CodeInvalidInput, "item name is required")
			}
			o.Items = append(o.Items, it)
		}
		o.Recompute()

		o.ID, err = insert(ctx, tx, `INSERT INTO bulk_orders (number, buyer_organization_id, buyer_branch_id, supplier_organization_id, supplier_branch_id, status,
			total_amount, paid_amount, due_amount, refund_due, loss_amount, payment_status, installment_count, notes, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.Number, o.BuyerOrganizationID, o.BuyerBranchID, o.SupplierOrganizationID, o.SupplierBranchID, o.Status,
			o.TotalAmount, o.PaidAmount, o.DueAmount, o.RefundDue, o.LossAmount, o.PaymentStatus, o.InstallmentCount, o.Notes, o.CreatedBy, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to create bulk order: %w", err)
		}
		for i := range o.Items {
			it := &o.Items[i]
			it.ID, err = insert(ctx, tx, `INSERT INTO bulk_order_items (bulk_order_id, name, supplier_item_id, buyer_item_id, quantity, unit_price,
				dispatched_quantity, received_quantity, line_total) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.ID, it.Name, it.SupplierItemID, it.BuyerItemID, it.Quantity, it.UnitPrice, 0, 0, it.LineTotal)
			if err != nil {
				return fmt.Errorf("unable to save bulk order items: %w", err)
			}
		}
		id = o.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBulkOrder(ctx, orgID, id)
}

// BulkOrderFilter narrows a bulk order listing. Role is buyer, supplier or
// empty for both sides.
type BulkOrderFilter struct {
	Role   string
	Status string
	Page   Page
}

// ListBulkOrders returns the orders the organization takes part in.
func (s *Store) ListBulkOrders(ctx context.Context, orgID int64, f BulkOrderFilter) ([]domain.BulkOrder, error) {
	var clauses []string
	var args []any
	switch f.Role {
	case domain.SideBuyer:
		clauses = append(clauses, "buyer_organization_id = ?")
	case domain.SideSupplier:
		clauses = append(clauses, "supplier_organization_id = ?")
	case "":
		clauses = append(clauses, "? IN (buyer_organization_id, supplier_organization_id)")
	default:
		return nil, domain.Errorf(domain.CodeInvalidInput, "role must be buyer or supplier")
	}
	args = append(args, orgID)
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	orders := []domain.BulkOrder{}
	if err := selectAll(ctx, s.db, &orders, `SELECT `+bulkOrderColumns+` FROM bulk_orders`+where(clauses)+` ORDER BY created_at DESC, id DESC`+f.Page.clause(), args...); err != nil {
		return nil, fmt.Errorf("unable to list bulk orders: %w", err)
	}
	return orders, nil
}

// GetBulkOrder loads an order with its lines, installments and payments.
// Organizations on neither side get NOT_FOUND.
func (s *Store) GetBulkOrder(ctx context.Context, orgID, id int64) (*domain.BulkOrder, error) {
	o, err := loadBulkOrder(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if o.Installments, err = bulkInstallments(ctx, s.db, id); err != nil {
		return nil, err
	}
	o.Payments = []domain.BulkOrderPayment{}
	if err := selectAll(ctx, s.db, &o.Payments, `SELECT `+bulkPaymentColumns+` FROM bulk_order_payments WHERE bulk_order_id = ? ORDER BY paid_at, id`, id); err != nil {
		return nil, fmt.Errorf("unable to load bulk order payments: %w", err)
	}
	return o, nil
}

// loadBulkOrder loads the order and its lines if orgID is the buyer or the supplier.
func loadBulkOrder(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.BulkOrder, error) {
	var o domain.BulkOrder
	if err := get(ctx, q, &o, `SELECT `+bulkOrderColumns+` FROM bulk_orders WHERE id = ?`, id); err != nil {
		return nil, loadErr(err, fmt.Sprintf("bulk order %d", id))
	}
	if o.SideOf(orgID) == "" {
		return nil, domain.Errorf(domain.CodeNotFound, "bulk order %d not found", id)
	}
	o.Items = []domain.BulkOrderItem{}
	if err := selectAll(ctx, q, &o.Items, `SELECT `+bulkItemColumns+` FROM bulk_order_items WHERE bulk_order_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("unable to load bulk order items: %w", err)
	}
	return &o, nil
}

func bulkInstallments(ctx context.Context, q sqlx.ExtContext, orderID int64) ([]domain.BulkInstallment, error) {
	installments := []domain.BulkInstallment{}
	if err := selectAll(ctx, q, &installments, `SELECT `+installmentColumns+` FROM bulk_installments WHERE bulk_order_id = ? ORDER BY sequence`, orderID); err != nil {
		return nil, fmt.Errorf("unable to load installments: %w", err)
	}
	return installments, nil
}

// saveBulkOrder writes the order's derived fields and line quantities.
func saveBulkOrder(ctx context.Context, tx *sqlx.Tx, o *domain.BulkOrder) error {
	if _, err := exec(ctx, tx, `UPDATE bulk_orders SET supplier_branch_id = ?, status = ?, total_amount = ?, paid_amount = ?, due_amount = ?, refund_due = ?,
		loss_amount = ?, payment_status = ?, installment_count = ?, confirmed_at = ?, dispatched_at = ?, delivered_at = ? WHERE id = ?`,
		o.SupplierBranchID, o.Status, o.TotalAmount, o.PaidAmount, o.DueAmount, o.RefundDue,
		o.LossAmount, o.PaymentStatus, o.InstallmentCount, o.ConfirmedAt, o.DispatchedAt, o.DeliveredAt, o.ID); err != nil {
		return fmt.Errorf("unable to update bulk order: %w", err)
	}
	for _, it := range o.Items {
		if _, err := exec(ctx, tx, `UPDATE bulk_order_items SET buyer_item_id = ?, unit_price = ?, dispatched_quantity = ?, received_quantity = ?, line_total = ? WHERE id = ?`,
			it.BuyerItemID, it.UnitPrice, it.DispatchedQuantity, it.ReceivedQuantity, it.LineTotal, it.ID); err != nil {
			return fmt.Errorf("unable to update bulk order items: %w", err)
		}
	}
	return nil
}

// scheduleInstallments replaces the schedule with count parts of the current
// total, starting from the confirmation date, and fills it with what is paid.
func scheduleInstallments(ctx context.Context, tx *sqlx.Tx, o *domain.BulkOrder) error {
	if _, err := exec(ctx, tx, `DELETE FROM bulk_installments WHERE bulk_order_id = ?`, o.ID); err != nil {
		return fmt.Errorf("unable to reset installments: %w", err)
	}
	start := o.CreatedAt
	if o.ConfirmedAt != nil {
		start = *o.ConfirmedAt
	}
	installments := domain.BuildInstallments(o.TotalAmount, o.InstallmentCount, DateOf(start))
	domain.DistributePaid(installments, o.PaidAmount)
	for _, in := range installments {
		if _, err := insert(ctx, tx, `INSERT INTO bulk_installments (bulk_order_id, sequence, due_date, amount, paid_amount) VALUES (?, ?, ?, ?, ?)`,
			o.ID, in.Sequence, in.DueDate, in.Amount, in.PaidAmount); err != nil {
			return fmt.Errorf("unable to save installments: %w", err)
		}
	}
	return nil
}

// transitionBulkOrder moves the order through action under its ledger lock.
// apply runs after the status changes and before totals are recomputed.
func (s *Store) transitionBulkOrder(ctx context.Context, orgID, id int64, action string, apply func(tx *sqlx.Tx, o *domain.BulkOrder) error) (*domain.BulkOrder, error) {
	err := s.inLedgerTx(ctx, lock.BulkOrderKey(id), func(tx *sqlx.Tx) error {
		o, err := loadBulkOrder(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		next, err := o.Transition(action, o.SideOf(orgID))
		if err != nil {
			return err
		}
		o.Status = next
		if apply != nil {
			if err := apply(tx, o); err != nil {
				return err
			}
		}
		o.Recompute()
		return saveBulkOrder(ctx, tx, o)
	})
	if err != nil {
		return nil, err
	}
	return s.GetBulkOrder(ctx, orgID, id)
}

// BulkConfirmation is the supplier's acceptance of an order.
type BulkConfirmation struct {
	SupplierBranchID *int64
	// UnitPrices overrides line prices by bulk order item id.
	UnitPrices       map[int64]decimal.Decimal
	InstallmentCount int
}

// ConfirmBulkOrder accepts a pending order, fixing prices and the installment schedule.
func (s *Store) ConfirmBulkOrder(ctx context.Context, orgID, id int64, c BulkConfirmation) (*domain.BulkOrder, error) {
	if c.InstallmentCount == 0 {
		c.InstallmentCount = 1
	}
	if c.InstallmentCount < 1 || c.InstallmentCount > domain.MaxInstallments {
		return nil, domain.Errorf(domain.CodeInvalidInput, "installment_count must be between 1 and %d", domain.MaxInstallments)
	}
	return s.transitionBulkOrder(ctx, orgID, id, "confirm", func(tx *sqlx.Tx, o *domain.BulkOrder) error {
		if c.SupplierBranchID != nil {
			if err := branchInOrg(ctx, tx, orgID, *c.SupplierBranchID); err != nil {
				return err
			}
			o.SupplierBranchID = c.SupplierBranchID
		}
		for itemID, price := range c.UnitPrices {
			if price.IsNegative() {
				return domain.Errorf(domain.CodeInvalidInput, "unit_price cannot be negative")
			}
			line := bulkLine(o, itemID)
			if line == nil {
				return domain.Errorf(domain.CodeNotFound, "item %d is not on order %s", itemID, o.Number)
			}
			line.UnitPrice = domain.RoundMoney(price)
		}
		now := s.Now()
		o.ConfirmedAt = &now
		o.InstallmentCount = c.InstallmentCount
		o.Recompute()
		return scheduleInstallments(ctx, tx, o)
	})
}

// RejectBulkOrder declines a pending order.
func (s *Store) RejectBulkOrder(ctx context.Context, orgID, id int64) (*domain.BulkOrder, error) {
	return s.transitionBulkOrder(ctx, orgID, id, "reject", nil)
}

// CancelBulkOrder withdraws an order the buyer has not paid for.
func (s *Store) CancelBulkOrder(ctx context.Context, orgID, id int64) (*domain.BulkOrder, error) {
	return s.transitionBulkOrder(ctx, orgID, id, "cancel", nil)
}

// DispatchBulkOrder ships a confirmed order. Quantities maps bulk order item
// ids to the quantity shipped and defaults to the ordered quantity. Lines
// linked to a supplier item take the stock out of the supplier's inventory,
// which must sit in the confirmed supplier branch when one was chosen.
func (s *Store) DispatchBulkOrder(ctx context.Context, orgID, actorID, id int64, quantities map[int64]int64) (*domain.BulkOrder, error) {
	return s.transitionBulkOrder(ctx, orgID, id, "dispatch", func(tx *sqlx.Tx, o *domain.BulkOrder) error {
		if err := unknownLines(o, quantities); err != nil {
			return err
		}
		for i := range o.Items {
			it := &o.Items[i]
			qty, ok := quantities[it.ID]
			if !ok {
				qty = it.Quantity
			}
			if qty < 0 || qty > it.Quantity {
				return domain.Errorf(domain.CodeInvalidInput, "dispatched quantity of %s must be between 0 and %d", it.Name, it.Quantity)
			}
			it.DispatchedQuantity = qty
			if it.SupplierItemID == nil || qty == 0 {
				continue
			}
			if o.SupplierBranchID != nil {
				stock, err := getItem(ctx, tx, o.SupplierOrganizationID, *it.SupplierItemID)
				if err != nil {
					return err
				}
				if stock.BranchID != *o.SupplierBranchID {
					return domain.Errorf(domain.CodeInvalidInput, "%s is not stocked in the dispatching branch", it.Name)
				}
			}
			if _, err := s.moveStock(ctx, tx, o.SupplierOrganizationID, *it.SupplierItemID, -qty, movement{
				reason: domain.MovementBulkDispatch, refType: "bulk_order", refID: &o.ID, note: o.Number, by: &actorID,
			}); err != nil {
				return err
			}
		}
		now := s.Now()
		o.DispatchedAt = &now
		return nil
	})
}

// DeliverBulkOrder records what the buyer received. Quantities maps bulk
// order item ids to the quantity received and defaults to the dispatched
// quantity. Received goods go into the linked buyer item, or a new item in
// the buyer branch. The shortfall becomes the order's loss, the total is
// recomputed from received quantities and the installments are rebuilt.
func (s *Store) DeliverBulkOrder(ctx context.Context, orgID, actorID, id int64, quantities map[int64]int64) (*domain.BulkOrder, error) {
	return s.transitionBulkOrder(ctx, orgID, id, "deliver", func(tx *sqlx.Tx, o *domain.BulkOrder) error {
		if err := unknownLines(o, quantities); err != nil {
			return err
		}
		for i := range o.Items {
			it := &o.Items[i]
			qty, ok := quantities[it.ID]
			if !ok {
				qty = it.DispatchedQuantity
			}
			if qty < 0 || qty > it.DispatchedQuantity {
				return domain.Errorf(domain.CodeInvalidInput, "received quantity of %s must be between 0 and %d", it.Name, it.DispatchedQuantity)
			}
			it.ReceivedQuantity = qty
			if qty == 0 {
				continue
			}
			m := movement{reason: domain.MovementBulkDelivery, refType: "bulk_order", refID: &o.ID, note: o.Number, by: &actorID}
			if it.BuyerItemID != nil {
				if _, err := s.moveStock(ctx, tx, o.BuyerOrganizationID, *it.BuyerItemID, qty, m); err != nil {
					return err
				}
				continue
			}
			created, err := s.insertItem(ctx, tx, &domain.InventoryItem{
				OrganizationID: o.BuyerOrganizationID,
				BranchID:       o.BuyerBranchID,
				Name:           it.Name,
				Quantity:       qty,
				CostPrice:      it.UnitPrice,
				UnitPrice:      it.UnitPrice,
				UnitsPerStrip:  1,
				UnitsPerBox:    1,
			}, m)
			if err != nil {
				return err
			}
			it.BuyerItemID = &created
		}
		now := s.Now()
		o.DeliveredAt = &now
		o.Recompute()
		return scheduleInstallments(ctx, tx, o)
	})
}

// PayBulkOrder records a buyer payment and spreads the paid total over the
// installments in sequence. A delivered order that becomes fully paid completes.
func (s *Store) PayBulkOrder(ctx context.Context, orgID, actorID, id int64, amount decimal.Decimal, method, note string) (*domain.BulkOrder, error) {
	if method == "" {
		method = "cash"
	}
	if !domain.ValidPaymentMethod(method) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "unknown payment method %q", method)
	}
	amount = domain.RoundMoney(amount)
	err := s.inLedgerTx(ctx, lock.BulkOrderKey(id), func(tx *sqlx.Tx) error {
		o, err := loadBulkOrder(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if o.SideOf(orgID) != domain.SideBuyer {
			return domain.Errorf(domain.CodeForbidden, "only the buyer may pay an order")
		}
		if err := o.CanAcceptPayment(amount); err != nil {
			return err
		}
		if _, err := insert(ctx, tx, `INSERT INTO bulk_order_payments (bulk_order_id, amount, method, note, paid_at, recorded_by) VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, amount, method, note, s.Now(), actorID); err != nil {
			return fmt.Errorf("unable to record bulk order payment: %w", err)
		}
		o.PaidAmount = o.PaidAmount.Add(amount)
		o.Recompute()

		installments, err := bulkInstallments(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		domain.DistributePaid(installments, o.PaidAmount)
		for _, in := range installments {
			if _, err := exec(ctx, tx, `UPDATE bulk_installments SET paid_amount = ? WHERE id = ?`, in.PaidAmount, in.ID); err != nil {
				return fmt.Errorf("unable to update installments: %w", err)
			}
		}
		return saveBulkOrder(ctx, tx, o)
	})
	if err != nil {
		return nil, err
	}
	return s.GetBulkOrder(ctx, orgID, id)
}

func bulkLine(o *domain.BulkOrder, itemID int64) *domain.BulkOrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

func unknownLines(o *domain.BulkOrder, quantities map[int64]int64) error {
	for itemID := range quantities {
		if bulkLine(o, itemID) == nil {
			return domain.Errorf(domain.CodeNotFound, "item %d is not on order %s", itemID, o.Number)
		}
	}
	return nil
}
