// Package store persists the pharmacy back-office records. Every method is
// scoped to an organization and runs its writes in one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/lock"
)

// Store bundles the database with the ledger locks.
type Store struct {
	db    *sqlx.DB
	locks lock.Locker
	log   *zap.Logger
	now   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store.
func New(db *sqlx.DB, locks lock.Locker, log *zap.Logger, opts ...Option) *Store {
	s := &Store{db: db, locks: locks, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Now returns the store clock in UTC, truncated to seconds.
func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// DateOf truncates t to the start of its UTC day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit transaction: %w", err)
	}
	return nil
}

// inLedgerTx runs fn in a transaction while holding the named ledger lock.
func (s *Store) inLedgerTx(ctx context.Context, key string, fn func(tx *sqlx.Tx) error) error {
	return lock.With(ctx, s.locks, key, func() error {
		return s.inTx(ctx, fn)
	})
}

func get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

func selectAll(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id.
func insert(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowxContext(ctx, q.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// selectIn expands slice arguments of an IN (?) query.
func selectIn(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return fmt.Errorf("unable to prepare query: %w", err)
	}
	return selectAll(ctx, q, dest, expanded, expandedArgs...)
}

func count(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	var n int64
	err := get(ctx, q, &n, query, args...)
	return n, err
}

// loadErr turns sql.ErrNoRows into a NOT_FOUND domain error.
func loadErr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Errorf(domain.CodeNotFound, "%s not found", what)
	}
	return fmt.Errorf("unable to load %s: %w", what, err)
}

// newNumber creates a human readable document number such as S-3F9A1C2B.
func newNumber(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// likePattern builds a case-insensitive LIKE pattern for LOWER(column) LIKE ?.
func likePattern(query string) string {
	return "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
}

// Page limits list results.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (p Page) clause() string {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

// DateRange filters on a half-open day range. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// apply appends the range conditions on column. To is inclusive by day.
func (r DateRange) apply(column string, clauses []string, args []any) ([]string, []any) {
	if !r.From.IsZero() {
		clauses = append(clauses, column+" >= ?")
		args = append(args, DateOf(r.From))
	}
	if !r.To.IsZero() {
		clauses = append(clauses, column+" < ?")
		args = append(args, DateOf(r.To).AddDate(0, 0, 1))
	}
	return clauses, args
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// branchInOrg verifies the branch belongs to the organization.
func branchInOrg(ctx context.Context, q sqlx.ExtContext, orgID, branchID int64) error {
	n, err := count(ctx, q, `SELECT COUNT(*) FROM branches WHERE id = ? AND organization_id = ?`, branchID, orgID)
	if err != nil {
		return fmt.Errorf("unable to load branch: %w", err)
	}
	if n == 0 {
		return domain.Errorf(domain.CodeNotFound, "branch %d not found", branchID)
	}
	return nil
}
