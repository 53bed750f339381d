package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/dbtest"
	"pharmadesk/m/internal/lock"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	s      *Store
	now    time.Time
	org    *domain.Organization
	owner  *domain.User
	branch int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), now: testNow}
	f.s = New(dbtest.New(t), lock.NewLocal(), zap.NewNop(), WithClock(func() time.Time { return f.now }))
	f.owner, f.org, f.branch = f.register("owner@example.com", domain.Organization{Name: "Green Cross"}, domain.PlanBasic)
	return f
}

func (f *fixture) register(email string, org domain.Organization, plan string) (*domain.User, *domain.Organization, int64) {
	f.t.Helper()
	u, o, err := f.s.Register(f.ctx, Registration{
		Username:     "owner",
		Email:        email,
		PasswordHash: "hash",
		Organization: org,
		TrialPlan:    plan,
		TrialDays:    14,
	})
	require.NoError(f.t, err)
	main, err := f.s.MainBranch(f.ctx, o.ID)
	require.NoError(f.t, err)
	return u, o, main.ID
}

func (f *fixture) item(name string, qty int64, cost, price string) *domain.InventoryItem {
	f.t.Helper()
	it, err := f.s.CreateItem(f.ctx, f.owner.ID, &domain.InventoryItem{
		OrganizationID: f.org.ID,
		BranchID:       f.branch,
		Name:           name,
		Quantity:       qty,
		CostPrice:      dec(cost),
		UnitPrice:      dec(price),
	})
	require.NoError(f.t, err)
	return it
}

func (f *fixture) supplier(name string) *domain.Supplier {
	f.t.Helper()
	sup, err := f.s.CreateSupplier(f.ctx, &domain.Supplier{OrganizationID: f.org.ID, Name: name, OpeningBalance: decimal.Zero})
	require.NoError(f.t, err)
	return sup
}

func (f *fixture) quantity(itemID int64) int64 {
	f.t.Helper()
	it, err := f.s.GetItem(f.ctx, f.org.ID, itemID)
	require.NoError(f.t, err)
	return it.Quantity
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, domain.CodeOf(err), err.Error())
}

func TestPage(t *testing.T) {
	assert.Equal(t, " LIMIT 50 OFFSET 0", Page{}.clause())
	assert.Equal(t, " LIMIT 500 OFFSET 10", Page{Limit: 9000, Offset: 10}.clause())
	assert.Equal(t, " LIMIT 5 OFFSET 0", Page{Limit: 5, Offset: -3}.clause())
}

func TestDateRange(t *testing.T) {
	r := DateRange{From: time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC), To: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	clauses, args := r.apply("created_at", nil, nil)
	assert.Equal(t, []string{"created_at >= ?", "created_at < ?"}, clauses)
	assert.Equal(t, []any{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)}, args)

	clauses, args = DateRange{}.apply("created_at", []string{"x = ?"}, []any{1})
	assert.Equal(t, []string{"x = ?"}, clauses)
	assert.Equal(t, []any{1}, args)
}

func TestNewNumber(t *testing.T) {
	a, b := newNumber("S"), newNumber("S")
	assert.Len(t, a, 12)
	assert.Regexp(t, `^S-[0-9A-F]{10}$`, a)
	assert.NotEqual(t, a, b)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock"), lock.NewLocal(), zap.NewNop()), mock
}

func TestStoreErrorPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("list wraps driver errors", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .* FROM suppliers WHERE organization_id = \?`).WillReturnError(errors.New("connection reset"))
		_, err := s.ListSuppliers(ctx, 1, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to list suppliers")
		assert.Empty(t, domain.CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT .* FROM purchases WHERE id = \? AND organization_id = \?`).
			WithArgs(int64(7), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, err := s.GetPurchase(ctx, 1, 7)
		assertCode(t, domain.CodeNotFound, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is reported", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM expense_categories`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		mock.ExpectQuery(`INSERT INTO expense_categories .* RETURNING id`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectCommit().WillReturnError(errors.New("disk full"))
		_, err := s.CreateExpenseCategory(ctx, 1, "Rent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to commit transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed statement rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM expense_categories`).WillReturnError(errors.New("locked"))
		mock.ExpectRollback()
		_, err := s.CreateExpenseCategory(ctx, 1, "Rent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to check category name")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
