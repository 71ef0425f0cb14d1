package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocks_NoLeak(t *testing.T) {
	locks := newKeyedLocks(nil, time.Second, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("uow-%d", i)
		require.NoError(t, locks.withLock(ctx, key, func(context.Context) error { return nil }))
	}
	assert.Equal(t, 0, locks.size())
}

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	locks := newKeyedLocks(nil, time.Second, logging.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locks.withLock(ctx, "shared", func(context.Context) error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}

type countingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
}

func (c *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	c.mu.Lock()
	c.locked = append(c.locked, key)
	c.mu.Unlock()
	return func(context.Context) error {
		c.mu.Lock()
		c.unlocked++
		c.mu.Unlock()
		return nil
	}, nil
}

func TestKeyedLocks_UsesDistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	locks := newKeyedLocks(locker, time.Second, logging.NewNop())

	err := locks.withLock(context.Background(), "uow-1", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"uow-1"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
}
