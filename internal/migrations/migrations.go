package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// Column placeholders replaced per dialect.
var dialects = map[string]*strings.Replacer{
	"sqlite": strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{money}}", "TEXT",
		"{{timestamp}}", "TIMESTAMP",
	),
	"postgres": strings.NewReplacer(
		"{{id}}", "BIGSERIAL PRIMARY KEY",
		"{{money}}", "NUMERIC(14,2)",
		"{{timestamp}}", "TIMESTAMPTZ",
	),
}

var schema = []migration{
	{1, "tenants and accounts", []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id {{id}},
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'pharmacy',
			address TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			accepts_bulk_orders BOOLEAN NOT NULL DEFAULT FALSE,
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS branches (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			is_main BOOLEAN NOT NULL DEFAULT FALSE,
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_branches_org ON branches (organization_id)`,
		`CREATE TABLE IF NOT EXISTS roles (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			name TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '',
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			created_at {{timestamp}} NOT NULL,
			UNIQUE (organization_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			branch_id BIGINT REFERENCES branches(id),
			role_id BIGINT NOT NULL REFERENCES roles(id),
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_org ON users (organization_id)`,
	}},
	{2, "billing", []string{
		`CREATE TABLE IF NOT EXISTS plans (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			monthly_price {{money}} NOT NULL,
			yearly_price {{money}} NOT NULL,
			max_branches BIGINT NOT NULL,
			max_users BIGINT NOT NULL,
			max_items BIGINT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id {{id}},
			organization_id BIGINT NOT NULL UNIQUE REFERENCES organizations(id),
			plan_code TEXT NOT NULL REFERENCES plans(code),
			status TEXT NOT NULL,
			billing_cycle TEXT NOT NULL DEFAULT 'monthly',
			current_period_start {{timestamp}} NOT NULL,
			current_period_end {{timestamp}} NOT NULL,
			cancelled_at {{timestamp}},
			updated_at {{timestamp}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscription_invoices (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			plan_code TEXT NOT NULL REFERENCES plans(code),
			billing_cycle TEXT NOT NULL,
			amount {{money}} NOT NULL,
			status TEXT NOT NULL,
			checkout_session_id TEXT NOT NULL DEFAULT '',
			paid_at {{timestamp}},
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_org ON subscription_invoices (organization_id, status)`,
	}},
	{3, "catalog and inventory", []string{
		`CREATE TABLE IF NOT EXISTS medicines (
			id {{id}},
			brand_id BIGINT,
			brand_name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			generic_name TEXT NOT NULL DEFAULT '',
			manufacturer TEXT NOT NULL DEFAULT '',
			UNIQUE (brand_id)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_items (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			medicine_id BIGINT REFERENCES medicines(id),
			name TEXT NOT NULL,
			generic_name TEXT NOT NULL DEFAULT '',
			sku TEXT NOT NULL DEFAULT '',
			batch_no TEXT NOT NULL DEFAULT '',
			expiry_date DATE,
			quantity BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			cost_price {{money}} NOT NULL,
			unit_price {{money}} NOT NULL,
			units_per_strip BIGINT NOT NULL DEFAULT 1,
			strip_price {{money}},
			units_per_box BIGINT NOT NULL DEFAULT 1,
			box_price {{money}},
			reorder_level BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at {{timestamp}} NOT NULL,
			updated_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_branch ON inventory_items (organization_id, branch_id)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			inventory_item_id BIGINT NOT NULL REFERENCES inventory_items(id),
			quantity_change BIGINT NOT NULL,
			quantity_after BIGINT NOT NULL,
			reason TEXT NOT NULL,
			reference_type TEXT NOT NULL DEFAULT '',
			reference_id BIGINT,
			note TEXT NOT NULL DEFAULT '',
			created_by BIGINT REFERENCES users(id),
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_item ON stock_movements (inventory_item_id)`,
	}},
	{4, "supplier ledger", []string{
		`CREATE TABLE IF NOT EXISTS suppliers (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			linked_organization_id BIGINT REFERENCES organizations(id),
			opening_balance {{money}} NOT NULL,
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			supplier_id BIGINT NOT NULL REFERENCES suppliers(id),
			reference TEXT NOT NULL DEFAULT '',
			purchase_date DATE NOT NULL,
			gross_amount {{money}} NOT NULL,
			discount {{money}} NOT NULL,
			loss_amount {{money}} NOT NULL,
			total_amount {{money}} NOT NULL,
			paid_amount {{money}} NOT NULL,
			due_amount {{money}} NOT NULL,
			status TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_by BIGINT REFERENCES users(id),
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_supplier ON purchases (supplier_id, purchase_date)`,
		`CREATE TABLE IF NOT EXISTS purchase_items (
			id {{id}},
			purchase_id BIGINT NOT NULL REFERENCES purchases(id),
			inventory_item_id BIGINT NOT NULL REFERENCES inventory_items(id),
			item_name TEXT NOT NULL DEFAULT '',
			quantity BIGINT NOT NULL,
			lost_quantity BIGINT NOT NULL DEFAULT 0,
			unit_cost {{money}} NOT NULL,
			line_total {{money}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS supplier_payments (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			supplier_id BIGINT NOT NULL REFERENCES suppliers(id),
			purchase_id BIGINT REFERENCES purchases(id),
			amount {{money}} NOT NULL,
			allocated {{money}} NOT NULL,
			method TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			paid_at {{timestamp}} NOT NULL,
			created_by BIGINT REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_supplier_payments_supplier ON supplier_payments (supplier_id)`,
		`CREATE TABLE IF NOT EXISTS payment_allocations (
			id {{id}},
			payment_id BIGINT NOT NULL REFERENCES supplier_payments(id),
			purchase_id BIGINT NOT NULL REFERENCES purchases(id),
			amount {{money}} NOT NULL,
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_allocations_purchase ON payment_allocations (purchase_id)`,
		`CREATE TABLE IF NOT EXISTS purchase_losses (
			id {{id}},
			purchase_id BIGINT NOT NULL REFERENCES purchases(id),
			purchase_item_id BIGINT NOT NULL REFERENCES purchase_items(id),
			quantity BIGINT NOT NULL,
			amount {{money}} NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at {{timestamp}} NOT NULL
		)`,
	}},
	{5, "bulk orders", []string{
		`CREATE TABLE IF NOT EXISTS bulk_orders (
			id {{id}},
			number TEXT NOT NULL UNIQUE,
			buyer_organization_id BIGINT NOT NULL REFERENCES organizations(id),
			buyer_branch_id BIGINT NOT NULL REFERENCES branches(id),
			supplier_organization_id BIGINT NOT NULL REFERENCES organizations(id),
			supplier_branch_id BIGINT REFERENCES branches(id),
			status TEXT NOT NULL,
			total_amount {{money}} NOT NULL,
			paid_amount {{money}} NOT NULL,
			due_amount {{money}} NOT NULL,
			refund_due {{money}} NOT NULL,
			loss_amount {{money}} NOT NULL,
			payment_status TEXT NOT NULL,
			installment_count INTEGER NOT NULL DEFAULT 1,
			notes TEXT NOT NULL DEFAULT '',
			created_by BIGINT REFERENCES users(id),
			created_at {{timestamp}} NOT NULL,
			confirmed_at {{timestamp}},
			dispatched_at {{timestamp}},
			delivered_at {{timestamp}}
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_orders_buyer ON bulk_orders (buyer_organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_orders_supplier ON bulk_orders (supplier_organization_id)`,
		`CREATE TABLE IF NOT EXISTS bulk_order_items (
			id {{id}},
			bulk_order_id BIGINT NOT NULL REFERENCES bulk_orders(id),
			name TEXT NOT NULL,
			supplier_item_id BIGINT REFERENCES inventory_items(id),
			buyer_item_id BIGINT REFERENCES inventory_items(id),
			quantity BIGINT NOT NULL,
			unit_price {{money}} NOT NULL,
			dispatched_quantity BIGINT NOT NULL DEFAULT 0,
			received_quantity BIGINT NOT NULL DEFAULT 0,
			line_total {{money}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bulk_installments (
			id {{id}},
			bulk_order_id BIGINT NOT NULL REFERENCES bulk_orders(id),
			sequence INTEGER NOT NULL,
			due_date DATE NOT NULL,
			amount {{money}} NOT NULL,
			paid_amount {{money}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bulk_order_payments (
			id {{id}},
			bulk_order_id BIGINT NOT NULL REFERENCES bulk_orders(id),
			amount {{money}} NOT NULL,
			method TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			paid_at {{timestamp}} NOT NULL,
			recorded_by BIGINT REFERENCES users(id)
		)`,
	}},
	{6, "expenses and patients", []string{
		`CREATE TABLE IF NOT EXISTS expense_categories (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			name TEXT NOT NULL,
			created_at {{timestamp}} NOT NULL,
			UNIQUE (organization_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			category_id BIGINT NOT NULL REFERENCES expense_categories(id),
			amount {{money}} NOT NULL,
			expense_date DATE NOT NULL,
			payee TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			created_by BIGINT REFERENCES users(id),
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_org_date ON expenses (organization_id, expense_date)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id {{id}},
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			date_of_birth DATE,
			address TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at {{timestamp}} NOT NULL
		)`,
	}},
	{7, "point of sale", []string{
		`CREATE TABLE IF NOT EXISTS sales (
			id {{id}},
			number TEXT NOT NULL UNIQUE,
			organization_id BIGINT NOT NULL REFERENCES organizations(id),
			branch_id BIGINT NOT NULL REFERENCES branches(id),
			user_id BIGINT REFERENCES users(id),
			patient_id BIGINT REFERENCES patients(id),
			subtotal {{money}} NOT NULL,
			discount {{money}} NOT NULL,
			total {{money}} NOT NULL,
			paid_amount {{money}} NOT NULL,
			due_amount {{money}} NOT NULL,
			change_returned {{money}} NOT NULL,
			refunded_amount {{money}} NOT NULL,
			payment_method TEXT NOT NULL DEFAULT 'cash',
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_org_created ON sales (organization_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id {{id}},
			sale_id BIGINT NOT NULL REFERENCES sales(id),
			inventory_item_id BIGINT NOT NULL REFERENCES inventory_items(id),
			item_name TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL DEFAULT 'unit',
			quantity BIGINT NOT NULL,
			units BIGINT NOT NULL,
			unit_price {{money}} NOT NULL,
			cost_price {{money}} NOT NULL,
			subtotal {{money}} NOT NULL,
			returned_quantity BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sale_returns (
			id {{id}},
			sale_id BIGINT NOT NULL REFERENCES sales(id),
			amount {{money}} NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_by BIGINT REFERENCES users(id),
			created_at {{timestamp}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_return_items (
			id {{id}},
			return_id BIGINT NOT NULL REFERENCES sale_returns(id),
			sale_item_id BIGINT NOT NULL REFERENCES sale_items(id),
			quantity BIGINT NOT NULL,
			amount {{money}} NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_payments (
			id {{id}},
			sale_id BIGINT NOT NULL REFERENCES sales(id),
			amount {{money}} NOT NULL,
			method TEXT NOT NULL,
			paid_at {{timestamp}} NOT NULL,
			recorded_by BIGINT REFERENCES users(id)
		)`,
	}},
}

// Run creates the database schema, applying each migration not yet recorded
// in schema_migrations inside its own transaction.
func Run(ctx context.Context, db *sqlx.DB, log *zap.Logger) error {
	dialect, ok := dialects[dialectOf(db)]
	if !ok {
		return fmt.Errorf("no migrations for driver %s", db.DriverName())
	}
	if _, err := db.ExecContext(ctx, dialect.Replace(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at {{timestamp}} NOT NULL
	)`)); err != nil {
		return fmt.Errorf("unable to create schema_migrations: %w", err)
	}

	var applied []int
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("unable to read applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range schema {
		if done[m.version] {
			continue
		}
		if err := apply(ctx, db, dialect, m); err != nil {
			return err
		}
		log.Info("migration applied", zap.Int("version", m.version), zap.String("name", m.name))
	}
	return nil
}

func apply(ctx context.Context, db *sqlx.DB, dialect *strings.Replacer, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, dialect.Replace(stmt)); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		m.version, m.name, time.Now().UTC().Truncate(time.Second)); err != nil {
		return fmt.Errorf("unable to record migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

// Latest returns the newest schema version.
func Latest() int {
	return schema[len(schema)-1].version
}

func dialectOf(db *sqlx.DB) string {
	switch db.DriverName() {
	case "postgres", "pgx":
		return "postgres"
	}
	return db.DriverName()
}
