// Package lock serializes writes to a supplier or bulk order ledger across
// requests and, with Redis, across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the lock is still held after retrying.
var ErrNotObtained = errors.New("lock not obtained")

// Locker obtains named locks.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// SupplierKey names the ledger lock of a supplier.
func SupplierKey(supplierID int64) string {
	return fmt.Sprintf("ledger:supplier:%d", supplierID)
}

// BulkOrderKey names the ledger lock of a bulk order.
func BulkOrderKey(orderID int64) string {
	return fmt.Sprintf("ledger:bulk:%d", orderID)
}

// SaleKey names the lock guarding returns and payments of a sale.
func SaleKey(saleID int64) string {
	return fmt.Sprintf("ledger:sale:%d", saleID)
}

// Redis locks through a Redis server.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis creates a Locker holding locks for ttl and retrying for up to wait.
func NewRedis(rdb redis.UniversalClient, ttl, wait time.Duration) *Redis {
	return &Redis{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

func (r *Redis) Obtain(ctx context.Context, key string) (Lock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()
	l, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to obtain lock %s: %w", key, err)
	}
	return redisLock{l}, nil
}

type redisLock struct {
	l *redislock.Lock
}

func (r redisLock) Release(ctx context.Context) error {
	err := r.l.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// Local locks within the process.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Obtain(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &localLock{owner: l, key: key, e: e}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

type localLock struct {
	owner *Local
	key   string
	e     *entry
	once  sync.Once
}

func (ll *localLock) Release(context.Context) error {
	ll.once.Do(func() {
		<-ll.e.ch
		ll.owner.unref(ll.key, ll.e)
	})
	return nil
}

// With runs fn while holding the lock named key.
func With(ctx context.Context, l Locker, key string, fn func() error) error {
	held, err := l.Obtain(ctx, key)
	if err != nil {
		return err
	}
	defer held.Release(context.WithoutCancel(ctx))
	return fn()
}
