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

const supplierColumns = `id, organization_id, name, phone, email, address, linked_organization_id, opening_balance, created_at`

// ListSuppliers returns the organization's suppliers.
func (s *Store) ListSuppliers(ctx context.Context, orgID int64, query string) ([]domain.Supplier, error) {
	sqlQuery := `SELECT ` + supplierColumns + ` FROM suppliers WHERE organization_id = ?`
	args := []any{orgID}
	if strings.TrimSpace(query) != "" {
		like := likePattern(query)
		sqlQuery += ` AND (LOWER(name) LIKE ? OR LOWER(phone) LIKE ?)`
		args = append(args, like, like)
	}
	suppliers := []domain.Supplier{}
	if err := selectAll(ctx, s.db, &suppliers, sqlQuery+` ORDER BY name`, args...); err != nil {
		return nil, fmt.Errorf("unable to list suppliers: %w", err)
	}
	return suppliers, nil
}

// GetSupplier loads a supplier of the organization.
func (s *Store) GetSupplier(ctx context.Context, orgID, id int64) (*domain.Supplier, error) {
	return getSupplier(ctx, s.db, orgID, id)
}

func getSupplier(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.Supplier, error) {
	var sup domain.Supplier
	if err := get(ctx, q, &sup, `SELECT `+supplierColumns+` FROM suppliers WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "supplier")
	}
	return &sup, nil
}

func validateSupplier(ctx context.Context, q sqlx.ExtContext, sup *domain.Supplier) error {
	if strings.TrimSpace(sup.Name) == "" {
		return domain.Errorf(domain.CodeInvalidInput, "name is required")
	}
	sup.OpeningBalance = domain.RoundMoney(sup.OpeningBalance)
	if sup.LinkedOrganizationID != nil {
		if *sup.LinkedOrganizationID == sup.OrganizationID {
			return domain.Errorf(domain.CodeInvalidInput, "a supplier cannot link to your own organization")
		}
		if _, err := getOrganization(ctx, q, *sup.LinkedOrganizationID); err != nil {
			return err
		}
	}
	return nil
}

// CreateSupplier adds a supplier.
func (s *Store) CreateSupplier(ctx context.Context, sup *domain.Supplier) (*domain.Supplier, error) {
	if err := validateSupplier(ctx, s.db, sup); err != nil {
		return nil, err
	}
	id, err := insert(ctx, s.db, `INSERT INTO suppliers (organization_id, name, phone, email, address, linked_organization_id, opening_balance, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sup.OrganizationID, strings.TrimSpace(sup.Name), sup.Phone, sup.Email, sup.Address, sup.LinkedOrganizationID, sup.OpeningBalance, s.Now())
	if err != nil {
		return nil, fmt.Errorf("unable to create supplier: %w", err)
	}
	return s.GetSupplier(ctx, sup.OrganizationID, id)
}

// UpdateSupplier saves contact details and the opening balance.
func (s *Store) UpdateSupplier(ctx context.Context, sup *domain.Supplier) (*domain.Supplier, error) {
	if err := validateSupplier(ctx, s.db, sup); err != nil {
		return nil, err
	}
	err := s.inSupplierTx(ctx, sup.ID, func(tx *sqlx.Tx) error {
		res, err := exec(ctx, tx, `UPDATE suppliers SET name = ?, phone = ?, email = ?, address = ?, linked_organization_id = ?, opening_balance = ? WHERE id = ? AND organization_id = ?`,
			strings.TrimSpace(sup.Name), sup.Phone, sup.Email, sup.Address, sup.LinkedOrganizationID, sup.OpeningBalance, sup.ID, sup.OrganizationID)
		if err != nil {
			return fmt.Errorf("unable to update supplier: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Errorf(domain.CodeNotFound, "supplier not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetSupplier(ctx, sup.OrganizationID, sup.ID)
}

// DeleteSupplier removes a supplier without purchases or payments.
func (s *Store) DeleteSupplier(ctx context.Context, orgID, id int64) error {
	return s.inSupplierTx(ctx, id, func(tx *sqlx.Tx) error {
		sup, err := getSupplier(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		purchases, err := count(ctx, tx, `SELECT COUNT(*) FROM purchases WHERE supplier_id = ?`, id)
		if err != nil {
			return fmt.Errorf("unable to check supplier purchases: %w", err)
		}
		payments, err := count(ctx, tx, `SELECT COUNT(*) FROM supplier_payments WHERE supplier_id = ?`, id)
		if err != nil {
			return fmt.Errorf("unable to check supplier payments: %w", err)
		}
		if purchases > 0 || payments > 0 {
			return domain.Errorf(domain.CodeInvalidState, "supplier %s has purchases or payments and cannot be deleted", sup.Name)
		}
		if _, err := exec(ctx, tx, `DELETE FROM suppliers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("unable to delete supplier: %w", err)
		}
		return nil
	})
}

// SupplierBalance computes what is owed to the supplier and the credit held.
func (s *Store) SupplierBalance(ctx context.Context, orgID, id int64) (*domain.SupplierBalance, error) {
	sup, err := s.GetSupplier(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	bal, err := supplierBalance(ctx, s.db, sup)
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func supplierBalance(ctx context.Context, q sqlx.ExtContext, sup *domain.Supplier) (domain.SupplierBalance, error) {
	var purchases []domain.Purchase
	if err := selectAll(ctx, q, &purchases, `SELECT `+purchaseColumns+` FROM purchases WHERE supplier_id = ? AND status <> ?`, sup.ID, domain.PurchaseVoid); err != nil {
		return domain.SupplierBalance{}, fmt.Errorf("unable to load supplier purchases: %w", err)
	}
	var payments []domain.SupplierPayment
	if err := selectAll(ctx, q, &payments, `SELECT `+paymentColumns+` FROM supplier_payments WHERE supplier_id = ?`, sup.ID); err != nil {
		return domain.SupplierBalance{}, fmt.Errorf("unable to load supplier payments: %w", err)
	}

	purchased, losses, due := decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range purchases {
		purchased = purchased.Add(p.GrossAmount.Sub(p.Discount))
		losses = losses.Add(p.LossAmount)
		due = due.Add(p.DueAmount)
	}
	paid, credit := decimal.Zero, decimal.Zero
	for i := range payments {
		paid = paid.Add(payments[i].Amount)
		credit = credit.Add(payments[i].Unallocated())
	}
	return domain.ComputeSupplierBalance(sup, purchased, losses, paid, due, credit), nil
}

// SupplierLedger lists purchases, losses and payments with a running balance.
func (s *Store) SupplierLedger(ctx context.Context, orgID, id int64) (*domain.Supplier, []domain.LedgerEntry, error) {
	sup, err := s.GetSupplier(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}

	var purchases []domain.Purchase
	if err := selectAll(ctx, s.db, &purchases, `SELECT `+purchaseColumns+` FROM purchases WHERE supplier_id = ? AND status <> ?`, id, domain.PurchaseVoid); err != nil {
		return nil, nil, fmt.Errorf("unable to load supplier purchases: %w", err)
	}
	var losses []domain.PurchaseLoss
	if err := selectAll(ctx, s.db, &losses, `SELECT l.id, l.purchase_id, l.purchase_item_id, l.quantity, l.amount, l.reason, l.created_at
		FROM purchase_losses l JOIN purchases p ON p.id = l.purchase_id WHERE p.supplier_id = ? AND p.status <> ?`, id, domain.PurchaseVoid); err != nil {
		return nil, nil, fmt.Errorf("unable to load purchase losses: %w", err)
	}
	var payments []domain.SupplierPayment
	if err := selectAll(ctx, s.db, &payments, `SELECT `+paymentColumns+` FROM supplier_payments WHERE supplier_id = ?`, id); err != nil {
		return nil, nil, fmt.Errorf("unable to load supplier payments: %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(purchases)+len(losses)+len(payments))
	for _, p := range purchases {
		desc := fmt.Sprintf("Purchase #%d", p.ID)
		if p.Reference != "" {
			desc += " (" + p.Reference + ")"
		}
		entries = append(entries, domain.LedgerEntry{
			Date:        p.PurchaseDate,
			Kind:        domain.LedgerPurchase,
			ReferenceID: p.ID,
			Description: desc,
			Debit:       p.GrossAmount.Sub(p.Discount),
			Credit:      decimal.Zero,
		})
	}
	for _, l := range losses {
		entries = append(entries, domain.LedgerEntry{
			Date:        l.CreatedAt,
			Kind:        domain.LedgerLoss,
			ReferenceID: l.PurchaseID,
			Description: fmt.Sprintf("Loss on purchase #%d: %s", l.PurchaseID, l.Reason),
			Debit:       decimal.Zero,
			Credit:      l.Amount,
		})
	}
	for _, p := range payments {
		entries = append(entries, domain.LedgerEntry{
			Date:        p.PaidAt,
			Kind:        domain.LedgerPayment,
			ReferenceID: p.ID,
			Description: fmt.Sprintf("Payment (%s)", p.Method),
			Debit:       decimal.Zero,
			Credit:      p.Amount,
		})
	}
	return sup, domain.BuildLedger(sup, entries), nil
}

func (s *Store) inSupplierTx(ctx context.Context, supplierID int64, fn func(tx *sqlx.Tx) error) error {
	return s.inLedgerTx(ctx, lock.SupplierKey(supplierID), fn)
}
