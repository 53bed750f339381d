package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmadesk/m/domain"
)

const (
	planColumns         = `code, name, monthly_price, yearly_price, max_branches, max_users, max_items, sort_order`
	subscriptionColumns = `id, organization_id, plan_code, status, billing_cycle, current_period_start, current_period_end, cancelled_at, updated_at`
	invoiceColumns      = `id, organization_id, plan_code, billing_cycle, amount, status, checkout_session_id, paid_at, created_at`
)

// Plans returns the plan catalog.
func (s *Store) Plans(ctx context.Context) ([]domain.Plan, error) {
	plans := []domain.Plan{}
	if err := selectAll(ctx, s.db, &plans, `SELECT `+planColumns+` FROM plans ORDER BY sort_order`); err != nil {
		return nil, fmt.Errorf("unable to list plans: %w", err)
	}
	return plans, nil
}

func getPlan(ctx context.Context, q sqlx.ExtContext, code string) (*domain.Plan, error) {
	var p domain.Plan
	if err := get(ctx, q, &p, `SELECT `+planColumns+` FROM plans WHERE code = ?`, code); err != nil {
		return nil, loadErr(err, "plan "+code)
	}
	return &p, nil
}

// Subscription loads the organization's subscription.
func (s *Store) Subscription(ctx context.Context, orgID int64) (*domain.Subscription, error) {
	return getSubscription(ctx, s.db, orgID)
}

func getSubscription(ctx context.Context, q sqlx.ExtContext, orgID int64) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := get(ctx, q, &sub, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE organization_id = ?`, orgID); err != nil {
		return nil, loadErr(err, "subscription")
	}
	return &sub, nil
}

func saveSubscription(ctx context.Context, q sqlx.ExtContext, sub *domain.Subscription) error {
	_, err := exec(ctx, q, `UPDATE subscriptions SET plan_code = ?, status = ?, billing_cycle = ?, current_period_start = ?, current_period_end = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
		sub.PlanCode, sub.Status, sub.BillingCycle, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelledAt, sub.UpdatedAt, sub.ID)
	if err != nil {
		return fmt.Errorf("unable to save subscription: %w", err)
	}
	return nil
}

// UsageReport compares resource usage with the plan limits.
type UsageReport struct {
	Plan  domain.Plan  `json:"plan"`
	Usage domain.Usage `json:"usage"`
}

// Usage counts the organization's limited resources.
func (s *Store) Usage(ctx context.Context, orgID int64) (*UsageReport, error) {
	sub, err := s.Subscription(ctx, orgID)
	if err != nil {
		return nil, err
	}
	plan, err := getPlan(ctx, s.db, sub.PlanCode)
	if err != nil {
		return nil, err
	}
	usage, err := countUsage(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	return &UsageReport{Plan: *plan, Usage: usage}, nil
}

func countUsage(ctx context.Context, q sqlx.ExtContext, orgID int64) (domain.Usage, error) {
	var u domain.Usage
	var err error
	if u.Branches, err = countResource(ctx, q, orgID, domain.ResourceBranches); err != nil {
		return u, err
	}
	if u.Users, err = countResource(ctx, q, orgID, domain.ResourceUsers); err != nil {
		return u, err
	}
	if u.Items, err = countResource(ctx, q, orgID, domain.ResourceItems); err != nil {
		return u, err
	}
	return u, nil
}

func countResource(ctx context.Context, q sqlx.ExtContext, orgID int64, resource string) (int64, error) {
	var query string
	args := []any{orgID}
	switch resource {
	case domain.ResourceBranches:
		query = `SELECT COUNT(*) FROM branches WHERE organization_id = ?`
	case domain.ResourceUsers:
		query = `SELECT COUNT(*) FROM users WHERE organization_id = ? AND active = ?`
		args = append(args, true)
	case domain.ResourceItems:
		query = `SELECT COUNT(*) FROM inventory_items WHERE organization_id = ? AND active = ?`
		args = append(args, true)
	default:
		return 0, fmt.Errorf("unknown resource %s", resource)
	}
	n, err := count(ctx, q, query, args...)
	if err != nil {
		return 0, fmt.Errorf("unable to count %s: %w", resource, err)
	}
	return n, nil
}

// checkLimit fails with LIMIT_REACHED when one more resource would exceed the
// organization's plan. It runs inside the creating transaction.
func (s *Store) checkLimit(ctx context.Context, tx *sqlx.Tx, orgID int64, resource string) error {
	sub, err := getSubscription(ctx, tx, orgID)
	if err != nil {
		return err
	}
	plan, err := getPlan(ctx, tx, sub.PlanCode)
	if err != nil {
		return err
	}
	current, err := countResource(ctx, tx, orgID, resource)
	if err != nil {
		return err
	}
	return plan.CheckLimit(resource, current)
}

// PlanChange is the outcome of a plan change request.
type PlanChange struct {
	Subscription *domain.Subscription        `json:"subscription"`
	Invoice      *domain.SubscriptionInvoice `json:"invoice,omitempty"`
}

// ChangePlan switches to a free plan immediately, or opens an invoice for a
// paid one, voiding any earlier open invoice. The target plan must fit the
// current usage.
func (s *Store) ChangePlan(ctx context.Context, orgID int64, planCode, cycle string) (*PlanChange, error) {
	if !domain.ValidCycle(cycle) {
		return nil, domain.Errorf(domain.CodeInvalidInput, "billing_cycle must be monthly or yearly")
	}
	now := s.Now()
	var out PlanChange
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		plan, err := getPlan(ctx, tx, planCode)
		if err != nil {
			return err
		}
		sub, err := getSubscription(ctx, tx, orgID)
		if err != nil {
			return err
		}
		usage, err := countUsage(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if err := plan.Fits(usage); err != nil {
			return err
		}
		if _, err := exec(ctx, tx, `UPDATE subscription_invoices SET status = ? WHERE organization_id = ? AND status = ?`,
			domain.InvoiceVoid, orgID, domain.InvoiceOpen); err != nil {
			return fmt.Errorf("unable to void open invoices: %w", err)
		}

		if plan.IsFree(cycle) {
			sub.Activate(plan.Code, cycle, now)
			sub.UpdatedAt = now
			if err := saveSubscription(ctx, tx, sub); err != nil {
				return err
			}
			out.Subscription = sub
			return nil
		}

		inv := &domain.SubscriptionInvoice{
			OrganizationID: orgID,
			PlanCode:       plan.Code,
			BillingCycle:   cycle,
			Amount:         plan.PriceFor(cycle),
			Status:         domain.InvoiceOpen,
			CreatedAt:      now,
		}
		inv.ID, err = insert(ctx, tx, `INSERT INTO subscription_invoices (organization_id, plan_code, billing_cycle, amount, status, checkout_session_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.OrganizationID, inv.PlanCode, inv.BillingCycle, inv.Amount, inv.Status, "", inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("unable to create invoice: %w", err)
		}
		out.Subscription = sub
		out.Invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoice loads an invoice of the organization.
func (s *Store) Invoice(ctx context.Context, orgID, id int64) (*domain.SubscriptionInvoice, error) {
	var inv domain.SubscriptionInvoice
	if err := get(ctx, s.db, &inv, `SELECT `+invoiceColumns+` FROM subscription_invoices WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "invoice")
	}
	return &inv, nil
}

// ListInvoices returns the organization's invoices, newest first.
func (s *Store) ListInvoices(ctx context.Context, orgID int64) ([]domain.SubscriptionInvoice, error) {
	invoices := []domain.SubscriptionInvoice{}
	if err := selectAll(ctx, s.db, &invoices, `SELECT `+invoiceColumns+` FROM subscription_invoices WHERE organization_id = ? ORDER BY id DESC`, orgID); err != nil {
		return nil, fmt.Errorf("unable to list invoices: %w", err)
	}
	return invoices, nil
}

// AttachCheckout records the checkout session created for an open invoice.
func (s *Store) AttachCheckout(ctx context.Context, orgID, invoiceID int64, sessionID string) error {
	res, err := exec(ctx, s.db, `UPDATE subscription_invoices SET checkout_session_id = ? WHERE id = ? AND organization_id = ? AND status = ?`,
		sessionID, invoiceID, orgID, domain.InvoiceOpen)
	if err != nil {
		return fmt.Errorf("unable to attach checkout session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Errorf(domain.CodeInvalidState, "invoice %d is not open", invoiceID)
	}
	return nil
}

// MarkInvoicePaid settles an invoice and starts a new period on its plan.
// Settling a paid invoice again is a no-op.
func (s *Store) MarkInvoicePaid(ctx context.Context, invoiceID int64, sessionID string) (*domain.Subscription, error) {
	now := s.Now()
	var sub *domain.Subscription
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var inv domain.SubscriptionInvoice
		if err := get(ctx, tx, &inv, `SELECT `+invoiceColumns+` FROM subscription_invoices WHERE id = ?`, invoiceID); err != nil {
			return loadErr(err, "invoice")
		}
		var err error
		sub, err = getSubscription(ctx, tx, inv.OrganizationID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case domain.InvoicePaid:
			return nil
		case domain.InvoiceVoid:
			return domain.Errorf(domain.CodeInvalidState, "invoice %d is void", inv.ID)
		}
		if sessionID != "" && inv.CheckoutSessionID != "" && inv.CheckoutSessionID != sessionID {
			return domain.Errorf(domain.CodeInvalidInput, "checkout session does not match invoice %d", inv.ID)
		}
		if _, err := exec(ctx, tx, `UPDATE subscription_invoices SET status = ?, paid_at = ?, checkout_session_id = ? WHERE id = ?`,
			domain.InvoicePaid, now, sessionID, inv.ID); err != nil {
			return fmt.Errorf("unable to mark invoice paid: %w", err)
		}
		sub.Activate(inv.PlanCode, inv.BillingCycle, now)
		sub.UpdatedAt = now
		return saveSubscription(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelSubscription stops renewal; the current period stays usable.
func (s *Store) CancelSubscription(ctx context.Context, orgID int64) (*domain.Subscription, error) {
	now := s.Now()
	var sub *domain.Subscription
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		sub, err = getSubscription(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if err := sub.Cancel(now); err != nil {
			return err
		}
		sub.UpdatedAt = now
		if _, err := exec(ctx, tx, `UPDATE subscription_invoices SET status = ? WHERE organization_id = ? AND status = ?`,
			domain.InvoiceVoid, orgID, domain.InvoiceOpen); err != nil {
			return fmt.Errorf("unable to void open invoices: %w", err)
		}
		return saveSubscription(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SubscriptionWritable reports whether the organization may change data now.
func (s *Store) SubscriptionWritable(ctx context.Context, orgID int64) (bool, error) {
	sub, err := s.Subscription(ctx, orgID)
	if err != nil {
		return false, err
	}
	return sub.IsWritable(s.Now()), nil
}
