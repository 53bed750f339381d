package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
)

const itemColumns = `id, organization_id, branch_id, medicine_id, name, generic_name, sku, batch_no, expiry_date, quantity,
	cost_price, unit_price, units_per_strip, strip_price, units_per_box, box_price, reorder_level, active, created_at, updated_at`

const movementColumns = `id, organization_id, branch_id, inventory_item_id, quantity_change, quantity_after, reason, reference_type, reference_id, note, created_by, created_at`

// SearchMedicines looks up the shared catalog by brand or generic name.
func (s *Store) SearchMedicines(ctx context.Context, query string, limit int) ([]domain.Medicine, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	medicines := []domain.Medicine{}
	var err error
	if strings.TrimSpace(query) == "" {
		err = selectAll(ctx, s.db, &medicines, `SELECT id, brand_id, brand_name, type, generic_name, manufacturer FROM medicines ORDER BY brand_name LIMIT ?`, limit)
	} else {
		like := likePattern(query)
		err = selectAll(ctx, s.db, &medicines, `SELECT id, brand_id, brand_name, type, generic_name, manufacturer FROM medicines
			WHERE LOWER(brand_name) LIKE ? OR LOWER(generic_name) LIKE ? ORDER BY brand_name LIMIT ?`, like, like, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to search medicines: %w", err)
	}
	return medicines, nil
}

func getMedicine(ctx context.Context, q sqlx.ExtContext, id int64) (*domain.Medicine, error) {
	var m domain.Medicine
	if err := get(ctx, q, &m, `SELECT id, brand_id, brand_name, type, generic_name, manufacturer FROM medicines WHERE id = ?`, id); err != nil {
		return nil, loadErr(err, "medicine")
	}
	return &m, nil
}

// ItemFilter narrows an inventory listing.
type ItemFilter struct {
	BranchID        *int64
	Query           string
	IncludeInactive bool
	Page            Page
}

// ListItems returns inventory items of the organization.
func (s *Store) ListItems(ctx context.Context, orgID int64, f ItemFilter) ([]domain.InventoryItem, error) {
	clauses := []string{"organization_id = ?"}
	args := []any{orgID}
	if f.BranchID != nil {
		clauses = append(clauses, "branch_id = ?")
		args = append(args, *f.BranchID)
	}
	if !f.IncludeInactive {
		clauses = append(clauses, "active = ?")
		args = append(args, true)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := likePattern(q)
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(generic_name) LIKE ? OR LOWER(sku) LIKE ?)")
		args = append(args, like, like, like)
	}
	items := []domain.InventoryItem{}
	if err := selectAll(ctx, s.db, &items, `SELECT `+itemColumns+` FROM inventory_items`+where(clauses)+` ORDER BY name, id`+f.Page.clause(), args...); err != nil {
		return nil, fmt.Errorf("unable to list inventory: %w", err)
	}
	return items, nil
}

// GetItem loads an inventory item of the organization.
func (s *Store) GetItem(ctx context.Context, orgID, id int64) (*domain.InventoryItem, error) {
	return getItem(ctx, s.db, orgID, id)
}

func getItem(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.InventoryItem, error) {
	var it domain.InventoryItem
	if err := get(ctx, q, &it, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, fmt.Sprintf("inventory item %d", id))
	}
	return &it, nil
}

func validateItem(it *domain.InventoryItem) error {
	if strings.TrimSpace(it.Name) == "" {
		return domain.Errorf(domain.CodeInvalidInput, "name is required")
	}
	if it.Quantity < 0 {
		return domain.Errorf(domain.CodeInvalidInput, "quantity cannot be negative")
	}
	if it.CostPrice.IsNegative() || it.UnitPrice.IsNegative() {
		return domain.Errorf(domain.CodeInvalidInput, "prices cannot be negative")
	}
	if (it.StripPrice != nil && it.StripPrice.IsNegative()) || (it.BoxPrice != nil && it.BoxPrice.IsNegative()) {
		return domain.Errorf(domain.CodeInvalidInput, "prices cannot be negative")
	}
	if it.UnitsPerStrip <= 0 {
		it.UnitsPerStrip = 1
	}
	if it.UnitsPerBox <= 0 {
		it.UnitsPerBox = 1
	}
	if it.ReorderLevel < 0 {
		return domain.Errorf(domain.CodeInvalidInput, "reorder_level cannot be negative")
	}
	if it.ExpiryDate != nil {
		d := DateOf(*it.ExpiryDate)
		it.ExpiryDate = &d
	}
	it.CostPrice = domain.RoundMoney(it.CostPrice)
	it.UnitPrice = domain.RoundMoney(it.UnitPrice)
	return nil
}

// CreateItem stocks a new item in a branch. Opening stock is recorded as a
// movement. Items count against the plan's item limit.
func (s *Store) CreateItem(ctx context.Context, actorID int64, it *domain.InventoryItem) (*domain.InventoryItem, error) {
	if err := validateItem(it); err != nil {
		return nil, err
	}
	var id int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = s.createItem(ctx, tx, it, movement{reason: domain.MovementAdjustment, note: "opening stock", by: &actorID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, it.OrganizationID, id)
}

func (s *Store) createItem(ctx context.Context, tx *sqlx.Tx, it *domain.InventoryItem, opening movement) (int64, error) {
	if err := s.checkLimit(ctx, tx, it.OrganizationID, domain.ResourceItems); err != nil {
		return 0, err
	}
	return s.insertItem(ctx, tx, it, opening)
}

// insertItem stores the item and records its opening quantity as the given
// movement. It does not check the plan limit.
func (s *Store) insertItem(ctx context.Context, tx *sqlx.Tx, it *domain.InventoryItem, opening movement) (int64, error) {
	if err := branchInOrg(ctx, tx, it.OrganizationID, it.BranchID); err != nil {
		return 0, err
	}
	if it.MedicineID != nil {
		m, err := getMedicine(ctx, tx, *it.MedicineID)
		if err != nil {
			return 0, err
		}
		if it.GenericName == "" {
			it.GenericName = m.GenericName
		}
	}
	now := s.Now()
	id, err := insert(ctx, tx, `INSERT INTO inventory_items (organization_id, branch_id, medicine_id, name, generic_name, sku, batch_no, expiry_date, quantity,
		cost_price, unit_price, units_per_strip, strip_price, units_per_box, box_price, reorder_level, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.OrganizationID, it.BranchID, it.MedicineID, strings.TrimSpace(it.Name), it.GenericName, it.SKU, it.BatchNo, it.ExpiryDate, 0,
		it.CostPrice, it.UnitPrice, it.UnitsPerStrip, it.StripPrice, it.UnitsPerBox, it.BoxPrice, it.ReorderLevel, true, now, now)
	if err != nil {
		return 0, fmt.Errorf("unable to create inventory item: %w", err)
	}
	if it.Quantity > 0 {
		if _, err := s.moveStock(ctx, tx, it.OrganizationID, id, it.Quantity, opening); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UpdateItem saves descriptive and pricing fields. Quantity only changes
// through stock operations.
func (s *Store) UpdateItem(ctx context.Context, it *domain.InventoryItem) (*domain.InventoryItem, error) {
	if err := validateItem(it); err != nil {
		return nil, err
	}
	res, err := exec(ctx, s.db, `UPDATE inventory_items SET name = ?, generic_name = ?, sku = ?, batch_no = ?, expiry_date = ?, cost_price = ?, unit_price = ?,
		units_per_strip = ?, strip_price = ?, units_per_box = ?, box_price = ?, reorder_level = ?, updated_at = ?
		WHERE id = ? AND organization_id = ? AND active = ?`,
		strings.TrimSpace(it.Name), it.GenericName, it.SKU, it.BatchNo, it.ExpiryDate, it.CostPrice, it.UnitPrice,
		it.UnitsPerStrip, it.StripPrice, it.UnitsPerBox, it.BoxPrice, it.ReorderLevel, s.Now(), it.ID, it.OrganizationID, true)
	if err != nil {
		return nil, fmt.Errorf("unable to update inventory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.Errorf(domain.CodeNotFound, "inventory item %d not found", it.ID)
	}
	return s.GetItem(ctx, it.OrganizationID, it.ID)
}

// DeleteItem removes an item without stock. Items with stock history are
// deactivated instead so the history stays intact.
func (s *Store) DeleteItem(ctx context.Context, orgID, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		it, err := getItem(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if it.Quantity != 0 {
			return domain.Errorf(domain.CodeInvalidState, "%s still has %d units in stock", it.Name, it.Quantity)
		}
		history, err := count(ctx, tx, `SELECT COUNT(*) FROM stock_movements WHERE inventory_item_id = ?`, id)
		if err != nil {
			return fmt.Errorf("unable to check stock history: %w", err)
		}
		refs, err := count(ctx, tx, `SELECT COUNT(*) FROM bulk_order_items WHERE ? IN (supplier_item_id, buyer_item_id)`, id)
		if err != nil {
			return fmt.Errorf("unable to check bulk orders: %w", err)
		}
		if history > 0 || refs > 0 {
			_, err = exec(ctx, tx, `UPDATE inventory_items SET active = ?, updated_at = ? WHERE id = ?`, false, s.Now(), id)
		} else {
			_, err = exec(ctx, tx, `DELETE FROM inventory_items WHERE id = ?`, id)
		}
		if err != nil {
			return fmt.Errorf("unable to delete inventory item: %w", err)
		}
		return nil
	})
}

type movement struct {
	reason  string
	refType string
	refID   *int64
	note    string
	by      *int64
}

// moveStock applies change to the item's quantity and records the movement.
// It fails with INSUFFICIENT_STOCK rather than going below zero.
func (s *Store) moveStock(ctx context.Context, tx *sqlx.Tx, orgID, itemID, change int64, m movement) (int64, error) {
	var row struct {
		Quantity int64 `db:"quantity"`
		BranchID int64 `db:"branch_id"`
	}
	err := tx.QueryRowxContext(ctx, tx.Rebind(`UPDATE inventory_items SET quantity = quantity + ?, updated_at = ?
		WHERE id = ? AND organization_id = ? AND quantity + ? >= 0 RETURNING quantity, branch_id`),
		change, s.Now(), itemID, orgID, change).StructScan(&row)
	if err != nil {
		it, loadErr := getItem(ctx, tx, orgID, itemID)
		if loadErr != nil {
			return 0, loadErr
		}
		if _, stockErr := domain.ApplyStockChange(it.Quantity, change); stockErr != nil {
			return 0, domain.Errorf(domain.CodeInsufficientStock, "insufficient stock for %s: have %d, need %d", it.Name, it.Quantity, -change)
		}
		return 0, fmt.Errorf("unable to update stock: %w", err)
	}
	if _, err := insert(ctx, tx, `INSERT INTO stock_movements (organization_id, branch_id, inventory_item_id, quantity_change, quantity_after, reason, reference_type, reference_id, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orgID, row.BranchID, itemID, change, row.Quantity, m.reason, m.refType, m.refID, m.note, m.by, s.Now()); err != nil {
		return 0, fmt.Errorf("unable to record stock movement: %w", err)
	}
	return row.Quantity, nil
}

func validAdjustmentReason(reason string) bool {
	for _, r := range domain.ManualAdjustmentReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// AdjustStock changes stock by a signed amount for a manual reason.
func (s *Store) AdjustStock(ctx context.Context, orgID, actorID, id, change int64, reason, note string) (*domain.InventoryItem, error) {
	if change == 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "change must not be zero")
	}
	if reason == "" {
		reason = domain.MovementAdjustment
	}
	if !validAdjustmentReason(reason) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "reason must be one of %s", strings.Join(domain.ManualAdjustmentReasons, ", "))
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		it, err := getItem(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if !it.Active {
			return domain.Errorf(domain.CodeInvalidState, "%s is inactive", it.Name)
		}
		_, err = s.moveStock(ctx, tx, orgID, id, change, movement{reason: reason, note: note, by: &actorID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, orgID, id)
}

// SetStock sets an absolute quantity, recording the difference as an adjustment.
func (s *Store) SetStock(ctx context.Context, orgID, actorID, id, quantity int64, note string) (*domain.InventoryItem, error) {
	if quantity < 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "quantity cannot be negative")
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		it, err := getItem(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		delta := quantity - it.Quantity
		if delta == 0 {
			return nil
		}
		_, err = s.moveStock(ctx, tx, orgID, id, delta, movement{reason: domain.MovementAdjustment, note: note, by: &actorID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, orgID, id)
}

// Movements returns the stock history of an item, newest first.
func (s *Store) Movements(ctx context.Context, orgID, itemID int64, page Page) ([]domain.StockMovement, error) {
	if _, err := s.GetItem(ctx, orgID, itemID); err != nil {
		return nil, err
	}
	movements := []domain.StockMovement{}
	if err := selectAll(ctx, s.db, &movements, `SELECT `+movementColumns+` FROM stock_movements WHERE inventory_item_id = ? AND organization_id = ? ORDER BY id DESC`+page.clause(),
		itemID, orgID); err != nil {
		return nil, fmt.Errorf("unable to list stock movements: %w", err)
	}
	return movements, nil
}

// LowStock lists active items at or below their reorder level.
func (s *Store) LowStock(ctx context.Context, orgID int64, branchID *int64) ([]domain.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE organization_id = ? AND active = ? AND quantity <= reorder_level`
	args := []any{orgID, true}
	if branchID != nil {
		query += ` AND branch_id = ?`
		args = append(args, *branchID)
	}
	items := []domain.InventoryItem{}
	if err := selectAll(ctx, s.db, &items, query+` ORDER BY quantity, name`, args...); err != nil {
		return nil, fmt.Errorf("unable to list low stock: %w", err)
	}
	return items, nil
}

// ExpiringWithin lists stocked items expiring within days of now, soonest first.
func (s *Store) ExpiringWithin(ctx context.Context, orgID int64, days int, branchID *int64) ([]domain.InventoryItem, error) {
	limit := DateOf(s.Now()).AddDate(0, 0, days+1)
	query := `SELECT ` + itemColumns + ` FROM inventory_items
		WHERE organization_id = ? AND active = ? AND quantity > 0 AND expiry_date IS NOT NULL AND expiry_date < ?`
	args := []any{orgID, true, limit}
	if branchID != nil {
		query += ` AND branch_id = ?`
		args = append(args, *branchID)
	}
	items := []domain.InventoryItem{}
	if err := selectAll(ctx, s.db, &items, query+` ORDER BY expiry_date, name`, args...); err != nil {
		return nil, fmt.Errorf("unable to fetch expiry alerts: %w", err)
	}
	return items, nil
}

// ImportRow is one parsed spreadsheet row.
type ImportRow struct {
	Line          int
	Name          string
	GenericName   string
	SKU           string
	BatchNo       string
	ExpiryDate    *time.Time
	Quantity      int64
	CostPrice     decimal.Decimal
	UnitPrice     decimal.Decimal
	UnitsPerStrip int64
	UnitsPerBox   int64
	ReorderLevel  int64
	Err           string
}

// ImportResult reports what an import did per row.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// RowError describes a rejected row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportItems creates or restocks items of a branch from parsed rows. Rows
// matching an existing SKU in the branch add to its stock and refresh its
// prices; other rows create items. Invalid rows are reported and skipped.
func (s *Store) ImportItems(ctx context.Context, orgID, actorID, branchID int64, rows []ImportRow) (*ImportResult, error) {
	result := &ImportResult{Errors: []RowError{}}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := branchInOrg(ctx, tx, orgID, branchID); err != nil {
			return err
		}
		for _, row := range rows {
			if row.Err != "" {
				result.Errors = append(result.Errors, RowError{Line: row.Line, Message: row.Err})
				continue
			}
			it := &domain.InventoryItem{
				OrganizationID: orgID,
				BranchID:       branchID,
				Name:           row.Name,
				GenericName:    row.GenericName,
				SKU:            row.SKU,
				BatchNo:        row.BatchNo,
				ExpiryDate:     row.ExpiryDate,
				Quantity:       row.Quantity,
				CostPrice:      row.CostPrice,
				UnitPrice:      row.UnitPrice,
				UnitsPerStrip:  row.UnitsPerStrip,
				UnitsPerBox:    row.UnitsPerBox,
				ReorderLevel:   row.ReorderLevel,
			}
			if err := validateItem(it); err != nil {
				result.Errors = append(result.Errors, RowError{Line: row.Line, Message: err.Error()})
				continue
			}

			var existingID int64
			if it.SKU != "" {
				err := get(ctx, tx, &existingID, `SELECT id FROM inventory_items WHERE organization_id = ? AND branch_id = ? AND sku = ? AND active = ?`,
					orgID, branchID, it.SKU, true)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("unable to match sku %s: %w", it.SKU, err)
				}
			}
			if existingID == 0 {
				if _, err := s.createItem(ctx, tx, it, movement{reason: domain.MovementImport, note: fmt.Sprintf("import line %d", row.Line), by: &actorID}); err != nil {
					if domain.CodeOf(err) == "" {
						return err
					}
					result.Errors = append(result.Errors, RowError{Line: row.Line, Message: err.Error()})
					continue
				}
				result.Created++
				continue
			}

			if _, err := exec(ctx, tx, `UPDATE inventory_items SET cost_price = ?, unit_price = ?, expiry_date = COALESCE(?, expiry_date), batch_no = ?, updated_at = ? WHERE id = ?`,
				it.CostPrice, it.UnitPrice, it.ExpiryDate, it.BatchNo, s.Now(), existingID); err != nil {
				return fmt.Errorf("unable to update item from import: %w", err)
			}
			if it.Quantity > 0 {
				if _, err := s.moveStock(ctx, tx, orgID, existingID, it.Quantity, movement{
					reason: domain.MovementImport, note: fmt.Sprintf("import line %d", row.Line), by: &actorID,
				}); err != nil {
					return err
				}
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
