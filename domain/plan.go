package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unlimited marks a plan limit that is never enforced.
const Unlimited = -1

// Plan codes seeded at startup.
const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Billing cycles.
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Subscription statuses.
const (
	SubscriptionTrialing  = "trialing"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// Invoice statuses.
const (
	InvoiceOpen = "open"
	InvoicePaid = "paid"
	InvoiceVoid = "void"
)

// Resources a plan limits.
const (
	ResourceBranches = "branches"
	ResourceUsers    = "users"
	ResourceItems    = "items"
)

type Plan struct {
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	MonthlyPrice decimal.Decimal `db:"monthly_price" json:"monthly_price"`
	YearlyPrice  decimal.Decimal `db:"yearly_price" json:"yearly_price"`
	MaxBranches  int64           `db:"max_branches" json:"max_branches"`
	MaxUsers     int64           `db:"max_users" json:"max_users"`
	MaxItems     int64           `db:"max_items" json:"max_items"`
	SortOrder    int             `db:"sort_order" json:"-"`
}

// DefaultPlans returns the plan catalog.
func DefaultPlans() []Plan {
	return []Plan{
		{Code: PlanFree, Name: "Free", MonthlyPrice: decimal.Zero, YearlyPrice: decimal.Zero, MaxBranches: 1, MaxUsers: 2, MaxItems: 100, SortOrder: 1},
		{Code: PlanBasic, Name: "Basic", MonthlyPrice: decimal.NewFromInt(19), YearlyPrice: decimal.NewFromInt(190), MaxBranches: 2, MaxUsers: 5, MaxItems: 1000, SortOrder: 2},
		{Code: PlanPro, Name: "Pro", MonthlyPrice: decimal.NewFromInt(49), YearlyPrice: decimal.NewFromInt(490), MaxBranches: 5, MaxUsers: 20, MaxItems: Unlimited, SortOrder: 3},
		{Code: PlanEnterprise, Name: "Enterprise", MonthlyPrice: decimal.NewFromInt(149), YearlyPrice: decimal.NewFromInt(1490), MaxBranches: Unlimited, MaxUsers: Unlimited, MaxItems: Unlimited, SortOrder: 4},
	}
}

// ValidCycle reports whether c is a billing cycle.
func ValidCycle(c string) bool {
	return c == CycleMonthly || c == CycleYearly
}

// PriceFor returns the plan price for a billing cycle.
func (p *Plan) PriceFor(cycle string) decimal.Decimal {
	if cycle == CycleYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// IsFree reports whether the plan costs nothing on the cycle.
func (p *Plan) IsFree(cycle string) bool {
	return p.PriceFor(cycle).IsZero()
}

// Limit returns the limit for a resource.
func (p *Plan) Limit(resource string) int64 {
	switch resource {
	case ResourceBranches:
		return p.MaxBranches
	case ResourceUsers:
		return p.MaxUsers
	case ResourceItems:
		return p.MaxItems
	}
	return 0
}

// CheckLimit returns LIMIT_REACHED when adding one more resource would exceed
// the plan limit.
func (p *Plan) CheckLimit(resource string, current int64) error {
	limit := p.Limit(resource)
	if limit == Unlimited || current < limit {
		return nil
	}
	return Errorf(CodeLimitReached, "%s plan allows %d %s", p.Name, limit, resource)
}

// Fits returns LIMIT_REACHED if current usage does not fit the plan.
func (p *Plan) Fits(u Usage) error {
	for _, r := range []struct {
		name string
		used int64
	}{{ResourceBranches, u.Branches}, {ResourceUsers, u.Users}, {ResourceItems, u.Items}} {
		limit := p.Limit(r.name)
		if limit != Unlimited && r.used > limit {
			return Errorf(CodeLimitReached, "%s plan allows %d %s, %d in use", p.Name, limit, r.name, r.used)
		}
	}
	return nil
}

// Usage counts an organization's limited resources.
type Usage struct {
	Branches int64 `json:"branches"`
	Users    int64 `json:"users"`
	Items    int64 `json:"items"`
}

type Subscription struct {
	ID                 int64      `db:"id" json:"id"`
	OrganizationID     int64      `db:"organization_id" json:"organization_id"`
	PlanCode           string     `db:"plan_code" json:"plan_code"`
	Status             string     `db:"status" json:"status"`
	BillingCycle       string     `db:"billing_cycle" json:"billing_cycle"`
	CurrentPeriodStart time.Time  `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `db:"current_period_end" json:"current_period_end"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// IsWritable reports whether the organization may change tenant data at now.
// Trials and paid periods end at CurrentPeriodEnd; a cancelled subscription
// runs until the end of the period it was cancelled in. An active free plan
// never lapses.
func (s *Subscription) IsWritable(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive:
		return s.PlanCode == PlanFree || now.Before(s.CurrentPeriodEnd)
	case SubscriptionTrialing, SubscriptionCancelled:
		return now.Before(s.CurrentPeriodEnd)
	}
	return false
}

// Activate starts a paid period on the plan and cycle from now.
func (s *Subscription) Activate(planCode, cycle string, now time.Time) {
	s.PlanCode = planCode
	s.BillingCycle = cycle
	s.Status = SubscriptionActive
	s.CurrentPeriodStart = now
	s.CurrentPeriodEnd = PeriodEnd(cycle, now)
	s.CancelledAt = nil
}

// Cancel marks the subscription cancelled; it stays usable until the period ends.
func (s *Subscription) Cancel(now time.Time) error {
	if s.Status == SubscriptionCancelled {
		return Errorf(CodeInvalidState, "subscription is already cancelled")
	}
	s.Status = SubscriptionCancelled
	s.CancelledAt = &now
	return nil
}

// PeriodEnd returns the end of a billing period that starts at start.
func PeriodEnd(cycle string, start time.Time) time.Time {
	if cycle == CycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

type SubscriptionInvoice struct {
	ID                int64           `db:"id" json:"id"`
	OrganizationID    int64           `db:"organization_id" json:"organization_id"`
	PlanCode          string          `db:"plan_code" json:"plan_code"`
	BillingCycle      string          `db:"billing_cycle" json:"billing_cycle"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Status            string          `db:"status" json:"status"`
	CheckoutSessionID string          `db:"checkout_session_id" json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
