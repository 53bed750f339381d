package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
)

// SalesTotals is revenue and sale count over a period. Revenue is net of
// discounts and refunds.
type SalesTotals struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Revenue    decimal.Decimal `json:"revenue"`
	SalesCount int64           `json:"sales_count"`
}

// DailySales totals today's sales.
func (s *Store) DailySales(ctx context.Context, orgID int64, branchID *int64) (*SalesTotals, error) {
	today := DateOf(s.Now())
	return s.salesTotals(ctx, orgID, branchID, today, today.AddDate(0, 0, 1))
}

// MonthlySales totals the current calendar month's sales.
func (s *Store) MonthlySales(ctx context.Context, orgID int64, branchID *int64) (*SalesTotals, error) {
	from := monthStart(s.Now())
	return s.salesTotals(ctx, orgID, branchID, from, from.AddDate(0, 1, 0))
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func (s *Store) salesTotals(ctx context.Context, orgID int64, branchID *int64, from, to time.Time) (*SalesTotals, error) {
	clauses := []string{"organization_id = ?", "created_at >= ?", "created_at < ?"}
	args := []any{orgID, from, to}
	if branchID != nil {
		clauses = append(clauses, "branch_id = ?")
		args = append(args, *branchID)
	}
	var rows []struct {
		Total    decimal.Decimal `db:"total"`
		Refunded decimal.Decimal `db:"refunded_amount"`
	}
	if err := selectAll(ctx, s.db, &rows, `SELECT total, refunded_amount FROM sales`+where(clauses), args...); err != nil {
		return nil, fmt.Errorf("unable to fetch sales totals: %w", err)
	}
	out := &SalesTotals{From: from, To: to, Revenue: decimal.Zero, SalesCount: int64(len(rows))}
	for _, r := range rows {
		out.Revenue = out.Revenue.Add(r.Total).Sub(r.Refunded)
	}
	out.Revenue = domain.RoundMoney(out.Revenue)
	return out, nil
}

// SalesReport returns the filtered sales with their lines.
func (s *Store) SalesReport(ctx context.Context, orgID int64, f SaleFilter) ([]domain.Sale, error) {
	sales, err := s.ListSales(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}
	items, err := saleItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
	}
	return sales, nil
}

// TierRevenue aggregates the kept (not returned) part of sale lines per pricing tier.
type TierRevenue struct {
	Tier     string          `json:"tier"`
	Quantity int64           `json:"quantity"`
	Units    int64           `json:"units"`
	Revenue  decimal.Decimal `json:"revenue"`
	Cost     decimal.Decimal `json:"cost"`
	Profit   decimal.Decimal `json:"profit"`
}

// RevenueByTier breaks sales down by unit, strip and box.
func (s *Store) RevenueByTier(ctx context.Context, orgID int64, branchID *int64, dates DateRange) ([]TierRevenue, error) {
	clauses := []string{"s.organization_id = ?"}
	args := []any{orgID}
	if branchID != nil {
		clauses = append(clauses, "s.branch_id = ?")
		args = append(args, *branchID)
	}
	clauses, args = dates.apply("s.created_at", clauses, args)
	var rows []domain.SaleItem
	if err := selectAll(ctx, s.db, &rows, `SELECT si.id, si.sale_id, si.inventory_item_id, si.item_name, si.tier, si.quantity, si.units, si.unit_price,
		si.cost_price, si.subtotal, si.returned_quantity FROM sale_items si JOIN sales s ON s.id = si.sale_id`+where(clauses), args...); err != nil {
		return nil, fmt.Errorf("unable to fetch revenue by tier: %w", err)
	}

	byTier := map[string]*TierRevenue{}
	for _, tier := range []string{domain.TierUnit, domain.TierStrip, domain.TierBox} {
		byTier[tier] = &TierRevenue{Tier: tier, Revenue: decimal.Zero, Cost: decimal.Zero, Profit: decimal.Zero}
	}
	for i := range rows {
		row := &rows[i]
		t, ok := byTier[row.Tier]
		if !ok {
			continue
		}
		kept := row.ReturnableQuantity()
		units := kept * row.UnitsPerPackage()
		t.Quantity += kept
		t.Units += units
		t.Revenue = t.Revenue.Add(row.UnitPrice.Mul(decimal.NewFromInt(kept)))
		t.Cost = t.Cost.Add(row.CostPrice.Mul(decimal.NewFromInt(units)))
	}
	out := make([]TierRevenue, 0, len(byTier))
	for _, t := range byTier {
		t.Revenue = domain.RoundMoney(t.Revenue)
		t.Cost = domain.RoundMoney(t.Cost)
		t.Profit = t.Revenue.Sub(t.Cost)
		out = append(out, *t)
	}
	tierOrder := map[string]int{domain.TierUnit: 0, domain.TierStrip: 1, domain.TierBox: 2}
	sort.Slice(out, func(i, j int) bool { return tierOrder[out[i].Tier] < tierOrder[out[j].Tier] })
	return out, nil
}

// Dashboard is the landing page summary.
type Dashboard struct {
	TodayRevenue     decimal.Decimal `json:"today_revenue"`
	TodaySales       int64           `json:"today_sales"`
	MonthRevenue     decimal.Decimal `json:"month_revenue"`
	MonthExpenses    decimal.Decimal `json:"month_expenses"`
	MonthGrossProfit decimal.Decimal `json:"month_gross_profit"`
	LowStockCount    int             `json:"low_stock_count"`
	ExpiringCount    int             `json:"expiring_count"`
	SupplierDue      decimal.Decimal `json:"supplier_due"`
	OpenBulkOrders   int64           `json:"open_bulk_orders"`
	ReceivablesDue   decimal.Decimal `json:"receivables_due"`
}

// DashboardExpiryDays is the expiry window counted on the dashboard.
const DashboardExpiryDays = 30

// Dashboard gathers today's and this month's figures for the organization.
func (s *Store) Dashboard(ctx context.Context, orgID int64, branchID *int64) (*Dashboard, error) {
	d := &Dashboard{}
	today, err := s.DailySales(ctx, orgID, branchID)
	if err != nil {
		return nil, err
	}
	d.TodayRevenue, d.TodaySales = today.Revenue, today.SalesCount

	month, err := s.MonthlySales(ctx, orgID, branchID)
	if err != nil {
		return nil, err
	}
	d.MonthRevenue = month.Revenue

	dates := DateRange{From: month.From, To: month.To.AddDate(0, 0, -1)}
	expenses, err := s.SummarizeExpenses(ctx, orgID, ExpenseFilter{BranchID: branchID, Dates: dates})
	if err != nil {
		return nil, err
	}
	d.MonthExpenses = expenses.Total

	tiers, err := s.RevenueByTier(ctx, orgID, branchID, dates)
	if err != nil {
		return nil, err
	}
	profit := decimal.Zero
	for _, t := range tiers {
		profit = profit.Add(t.Profit)
	}
	d.MonthGrossProfit = profit

	low, err := s.LowStock(ctx, orgID, branchID)
	if err != nil {
		return nil, err
	}
	d.LowStockCount = len(low)
	expiring, err := s.ExpiringWithin(ctx, orgID, DashboardExpiryDays, branchID)
	if err != nil {
		return nil, err
	}
	d.ExpiringCount = len(expiring)

	var dues []decimal.Decimal
	if err := selectAll(ctx, s.db, &dues, `SELECT due_amount FROM purchases WHERE organization_id = ? AND status IN (?, ?)`,
		orgID, domain.PurchaseUnpaid, domain.PurchasePartial); err != nil {
		return nil, fmt.Errorf("unable to fetch supplier dues: %w", err)
	}
	d.SupplierDue = domain.SumMoney(dues...)

	receivables := []decimal.Decimal{}
	clauses := []string{"organization_id = ?"}
	args := []any{orgID}
	if branchID != nil {
		clauses = append(clauses, "branch_id = ?")
		args = append(args, *branchID)
	}
	if err := selectAll(ctx, s.db, &receivables, `SELECT due_amount FROM sales`+where(clauses), args...); err != nil {
		return nil, fmt.Errorf("unable to fetch customer dues: %w", err)
	}
	d.ReceivablesDue = domain.SumMoney(receivables...)

	d.OpenBulkOrders, err = count(ctx, s.db, `SELECT COUNT(*) FROM bulk_orders WHERE ? IN (buyer_organization_id, supplier_organization_id) AND status IN (?, ?, ?)`,
		orgID, domain.BulkPending, domain.BulkConfirmed, domain.BulkDispatched)
	if err != nil {
		return nil, fmt.Errorf("unable to count open bulk orders: %w", err)
	}
	return d, nil
}
