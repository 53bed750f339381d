package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(ctx, l, SupplierKey(1), func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks)
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	a, err := l.Obtain(ctx, SupplierKey(1))
	require.NoError(t, err)
	b, err := l.Obtain(ctx, BulkOrderKey(1))
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal()
	held, err := l.Obtain(context.Background(), SaleKey(7))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Obtain(ctx, SaleKey(7))
	assert.ErrorIs(t, err, ErrNotObtained)

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, held.Release(context.Background()))
	assert.Empty(t, l.locks)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ledger:supplier:3", SupplierKey(3))
	assert.Equal(t, "ledger:bulk:4", BulkOrderKey(4))
	assert.Equal(t, "ledger:sale:5", SaleKey(5))
}
