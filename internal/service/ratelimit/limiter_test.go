package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func policy(id string, windows ...Window) Policy {
	return Policy{ID: id, Windows: windows}
}

func TestAdmitUnknownPolicy(t *testing.T) {
	l := New(nil)
	_, err := l.Admit("nope")
	require.Error(t, err)
}

func TestConcurrentBurstExactBudget(t *testing.T) {
	l := New([]Policy{policy("order_book", Window{Max: 50, Duration: 10 * time.Second})})

	const callers = 60
	var allowed, denied int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := l.Admit("order_book")
			require.NoError(t, err)
			if d.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&denied, 1)
				require.Greater(t, d.RetryAfter, time.Duration(0))
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 50, allowed)
	require.EqualValues(t, 10, denied)
}

func TestWindowSlidesAndFreesCapacity(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	l := New([]Policy{policy("price", Window{Max: 2, Duration: 10 * time.Second})}, WithClock(clock))

	for i := 0; i < 2; i++ {
		d, err := l.Admit("price")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Admit("price")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 10*time.Second, d.RetryAfter)

	now = now.Add(10*time.Second + time.Millisecond)
	d, err = l.Admit("price")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestSustainedWindowBinds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	l := New([]Policy{policy("order_placement",
		Window{Max: 5, Duration: 10 * time.Second},
		Window{Max: 8, Duration: 60 * time.Second},
	)}, WithClock(clock))

	admitN := func(n int) int {
		ok := 0
		for i := 0; i < n; i++ {
			d, err := l.Admit("order_placement")
			require.NoError(t, err)
			if d.Allowed {
				ok++
			}
		}
		return ok
	}

	require.Equal(t, 5, admitN(5)) // burst exhausted
	d, err := l.Admit("order_placement")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// burst window slides; sustained still has 3 left
	now = now.Add(11 * time.Second)
	require.Equal(t, 3, admitN(5))

	// both full now; the sustained window imposes the longer wait
	d, err = l.Admit("order_placement")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Greater(t, d.RetryAfter, 10*time.Second)
}

func TestTrailingWindowInvariantUnderConcurrency(t *testing.T) {
	l := New([]Policy{policy("market_listing", Window{Max: 20, Duration: time.Second})})

	var wg sync.WaitGroup
	var allowed int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d, err := l.Admit("market_listing")
				if err != nil {
					return
				}
				if d.Allowed {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()

	// All 400 attempts land well inside one second; at most 20 may pass.
	require.LessOrEqual(t, allowed, int64(20))
	usage := l.Snapshot("market_listing")
	require.Len(t, usage, 1)
	require.LessOrEqual(t, usage[0], 20)
}

func TestWaitHonorsContextDeadline(t *testing.T) {
	l := New([]Policy{policy("slow", Window{Max: 1, Duration: time.Minute})})
	require.NoError(t, l.Wait(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPenalizeTightensBudget(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	l := New([]Policy{policy("price", Window{Max: 8, Duration: 10 * time.Second})}, WithClock(clock))

	l.Penalize("price")
	ok := 0
	for i := 0; i < 8; i++ {
		d, err := l.Admit("price")
		require.NoError(t, err)
		if d.Allowed {
			ok++
		}
	}
	require.Equal(t, 4, ok)

	// penalty expires with the window
	now = now.Add(11 * time.Second)
	d, err := l.Admit("price")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
