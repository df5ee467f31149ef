package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesValue(t *testing.T) {
	c := NewResultCache(4, 0)
	calls := 0
	fn := func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	}

	v, cached, err := c.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 42, v)

	v, cached, err = c.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := NewResultCache(16, 0)

	var computes int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&computes, 1)
		<-release
		return "done", nil
	}

	const callers = 32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute(context.Background(), "shared", fn)
			require.NoError(t, err)
			require.Equal(t, "done", v)
		}()
	}
	// let the goroutines pile up on the key, then release the one compute
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&computes))
}

func TestErrorsAreNotCached(t *testing.T) {
	c := NewResultCache(4, 0)
	calls := 0
	fn := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("transient")
		}
		return "ok", nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "k", fn)
	require.Error(t, err)

	v, cached, err := c.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, "ok", v)
}

func TestLRUEviction(t *testing.T) {
	c := NewResultCache(2, 0)
	put := func(k string) {
		_, _, err := c.GetOrCompute(context.Background(), k, func(ctx context.Context) (interface{}, error) {
			return k, nil
		})
		require.NoError(t, err)
	}

	put("a")
	put("b")
	// touch "a" so it is most recently used
	_, cached, _ := c.GetOrCompute(context.Background(), "a", nil)
	require.True(t, cached)
	put("c") // evicts "b"

	require.Equal(t, 2, c.Len())
	recomputed := false
	_, _, err := c.GetOrCompute(context.Background(), "b", func(ctx context.Context) (interface{}, error) {
		recomputed = true
		return "b", nil
	})
	require.NoError(t, err)
	require.True(t, recomputed)
}

func TestTTLExpiryTriggersRecompute(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewResultCache(4, time.Minute, WithClock(func() time.Time { return now }))

	calls := 0
	fn := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, cached, _ := c.GetOrCompute(context.Background(), "k", fn)
	require.True(t, cached)

	now = now.Add(31 * time.Second)
	v, cached, err := c.GetOrCompute(context.Background(), "k", fn)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 2, v)
}

func TestKeyJoinsParts(t *testing.T) {
	require.Equal(t, "a|b|c", Key("a", "b", "c"))
}
