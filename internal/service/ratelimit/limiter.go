package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Window is one (max requests, duration) counting constraint.
type Window struct {
	Max      int
	Duration time.Duration
}

// Policy is one endpoint class with every window that must hold
// simultaneously for a call to be admitted (burst plus sustained).
type Policy struct {
	ID      string
	Windows []Window
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// window tracks admitted call timestamps for one counting constraint.
// penalty lowers the effective budget until penaltyUntil, after an
// upstream 429 told us the remote budget is tighter than ours.
type window struct {
	max          int
	duration     time.Duration
	admitted     []time.Time
	penalty      int
	penaltyUntil time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := sort.Search(len(w.admitted), func(i int) bool {
		return w.admitted[i].After(cutoff)
	})
	if i > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[i:]...)
	}
}

func (w *window) effectiveMax(now time.Time) int {
	if w.penalty > 0 && now.Before(w.penaltyUntil) {
		m := w.max - w.penalty
		if m < 1 {
			m = 1
		}
		return m
	}
	return w.max
}

// retryAfter returns how long until this window has capacity again.
// Callers must have pruned first; admitted is full when this is called.
func (w *window) retryAfter(now time.Time) time.Duration {
	max := w.effectiveMax(now)
	idx := len(w.admitted) - max
	if idx < 0 {
		idx = 0
	}
	wait := w.admitted[idx].Add(w.duration).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

type policyState struct {
	mu      sync.Mutex
	windows []*window
}

// Limiter enforces per-endpoint admission budgets with sliding
// counting windows. One instance is shared by every connector; the
// check-and-record step is atomic per policy.
type Limiter struct {
	mu       sync.RWMutex
	policies map[string]*policyState
	now      func() time.Time
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter with the given endpoint policies.
func New(policies []Policy, opts ...Option) *Limiter {
	l := &Limiter{
		policies: make(map[string]*policyState, len(policies)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, p := range policies {
		l.Register(p)
	}
	return l
}

// Register adds or replaces a policy.
func (l *Limiter) Register(p Policy) {
	ws := make([]*window, 0, len(p.Windows))
	for _, w := range p.Windows {
		ws = append(ws, &window{max: w.Max, duration: w.Duration})
	}
	l.mu.Lock()
	l.policies[p.ID] = &policyState{windows: ws}
	l.mu.Unlock()
}

// Admit attempts to reserve one call slot on every window of the policy.
// The slot is recorded in all windows atomically with the decision; on
// denial, RetryAfter is the wait imposed by the binding window (the one
// demanding the longest pause).
func (l *Limiter) Admit(policyID string) (Decision, error) {
	l.mu.RLock()
	st, ok := l.policies[policyID]
	l.mu.RUnlock()
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: unknown policy %q", policyID)
	}

	now := l.now()
	st.mu.Lock()
	defer st.mu.Unlock()

	var worst time.Duration
	for _, w := range st.windows {
		w.prune(now)
		if len(w.admitted) >= w.effectiveMax(now) {
			if ra := w.retryAfter(now); ra > worst {
				worst = ra
			}
		}
	}
	if worst > 0 {
		return Decision{Allowed: false, RetryAfter: worst}, nil
	}
	for _, w := range st.windows {
		w.admitted = append(w.admitted, now)
	}
	return Decision{Allowed: true}, nil
}

// Wait blocks until a slot is admitted or ctx is done. The wait is
// bounded by the longest window duration of the policy.
func (l *Limiter) Wait(ctx context.Context, policyID string) error {
	for {
		d, err := l.Admit(policyID)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}
		timer := time.NewTimer(d.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Penalize tightens the effective budget of every window of the policy
// for the remainder of its current duration. Called when the upstream
// rejects a call with 429 despite local admission.
func (l *Limiter) Penalize(policyID string) {
	l.mu.RLock()
	st, ok := l.policies[policyID]
	l.mu.RUnlock()
	if !ok {
		return
	}

	now := l.now()
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, w := range st.windows {
		// halve the remaining budget each time we get told off
		cut := w.effectiveMax(now) / 2
		if cut < 1 {
			cut = 1
		}
		w.penalty = w.max - cut
		w.penaltyUntil = now.Add(w.duration)
	}
}

// Snapshot reports current usage per window for a policy; diagnostic only.
func (l *Limiter) Snapshot(policyID string) []int {
	l.mu.RLock()
	st, ok := l.policies[policyID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	now := l.now()
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]int, len(st.windows))
	for i, w := range st.windows {
		w.prune(now)
		out[i] = len(w.admitted)
	}
	return out
}
