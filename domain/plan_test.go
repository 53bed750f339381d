package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planByCode(t *testing.T, code string) Plan {
	t.Helper()
	for _, p := range DefaultPlans() {
		if p.Code == code {
			return p
		}
	}
	t.Fatalf("plan %s not found", code)
	return Plan{}
}

func TestDefaultPlans(t *testing.T) {
	basic := planByCode(t, PlanBasic)
	assert.Equal(t, "19.00", basic.PriceFor(CycleMonthly).StringFixed(2))
	assert.Equal(t, "190.00", basic.PriceFor(CycleYearly).StringFixed(2))
	free := planByCode(t, PlanFree)
	assert.True(t, free.IsFree(CycleYearly))
	assert.Equal(t, int64(Unlimited), planByCode(t, PlanEnterprise).MaxUsers)
}

func TestPlanCheckLimit(t *testing.T) {
	free := planByCode(t, PlanFree)
	require.NoError(t, free.CheckLimit(ResourceUsers, 1))
	assert.ErrorIs(t, free.CheckLimit(ResourceUsers, 2), ErrLimitReached)
	assert.ErrorIs(t, free.CheckLimit(ResourceBranches, 1), ErrLimitReached)

	pro := planByCode(t, PlanPro)
	assert.NoError(t, pro.CheckLimit(ResourceItems, 1_000_000))
}

func TestPlanFits(t *testing.T) {
	free := planByCode(t, PlanFree)
	assert.NoError(t, free.Fits(Usage{Branches: 1, Users: 2, Items: 100}))
	err := free.Fits(Usage{Branches: 1, Users: 3})
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Contains(t, err.Error(), "users")
}

func TestSubscriptionIsWritable(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status string
		plan   string
		end    time.Time
		want   bool
	}{
		{"trial running", SubscriptionTrialing, PlanBasic, now.Add(time.Hour), true},
		{"trial ended", SubscriptionTrialing, PlanBasic, now.Add(-time.Hour), false},
		{"active", SubscriptionActive, PlanPro, now.AddDate(0, 1, 0), true},
		{"active period over", SubscriptionActive, PlanPro, now.Add(-time.Hour), false},
		{"free never lapses", SubscriptionActive, PlanFree, now.AddDate(-1, 0, 0), true},
		{"past due", SubscriptionPastDue, PlanPro, now.AddDate(0, 1, 0), false},
		{"cancelled within period", SubscriptionCancelled, PlanPro, now.Add(time.Minute), true},
		{"cancelled after period", SubscriptionCancelled, PlanPro, now.Add(-time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Subscription{Status: tt.status, PlanCode: tt.plan, CurrentPeriodEnd: tt.end}
			assert.Equal(t, tt.want, s.IsWritable(now))
		})
	}
}

func TestSubscriptionActivateAndCancel(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	s := Subscription{Status: SubscriptionTrialing}
	s.Activate(PlanPro, CycleYearly, now)
	assert.Equal(t, SubscriptionActive, s.Status)
	assert.Equal(t, PlanPro, s.PlanCode)
	assert.True(t, s.CurrentPeriodEnd.Equal(now.AddDate(1, 0, 0)))

	require.NoError(t, s.Cancel(now))
	assert.Equal(t, SubscriptionCancelled, s.Status)
	assert.ErrorIs(t, s.Cancel(now), ErrInvalidState)
	assert.True(t, s.IsWritable(now.AddDate(0, 6, 0)))
}
