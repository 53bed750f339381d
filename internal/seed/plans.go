package seed

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmadesk/m/domain"
)

// Plans upserts the subscription plan catalog.
func Plans(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start plan seed: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`INSERT INTO plans (code, name, monthly_price, yearly_price, max_branches, max_users, max_items, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name, monthly_price = excluded.monthly_price,
			yearly_price = excluded.yearly_price, max_branches = excluded.max_branches,
			max_users = excluded.max_users, max_items = excluded.max_items, sort_order = excluded.sort_order`)
	for _, p := range domain.DefaultPlans() {
		if _, err := tx.ExecContext(ctx, query, p.Code, p.Name, p.MonthlyPrice, p.YearlyPrice,
			p.MaxBranches, p.MaxUsers, p.MaxItems, p.SortOrder); err != nil {
			return fmt.Errorf("unable to seed plan %s: %w", p.Code, err)
		}
	}
	return tx.Commit()
}
