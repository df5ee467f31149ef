package sources

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	drepo "StormFlow/internal/domain/repository"
	"StormFlow/internal/service/ratelimit"
	pkghttp "StormFlow/pkg/http"
	"StormFlow/pkg/logger"
)

// AdmissionDeniedError is returned in fail-fast mode when the local
// budget has no slot for the call.
type AdmissionDeniedError struct {
	Policy     string
	RetryAfter time.Duration
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("admission denied for %s, retry after %s", e.Policy, e.RetryAfter)
}

// GateConfig tunes retry behaviour for one upstream.
type GateConfig struct {
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// FailFast returns AdmissionDeniedError instead of waiting for a slot.
	FailFast bool
}

// Gate wraps every upstream call with local admission, a circuit
// breaker and retries with exponential backoff. An upstream 429
// tightens the local budget before the retry.
type Gate struct {
	name    string
	policy  string
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	cfg     GateConfig
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewGate creates a call gate for one upstream endpoint class. Metrics
// may be nil.
func NewGate(name, policy string, limiter *ratelimit.Limiter, cfg GateConfig, m drepo.Metrics, log *logger.Logger) *Gate {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &Gate{name: name, policy: policy, limiter: limiter, breaker: cb, cfg: cfg, metrics: m, log: log}
}

// Do executes call under the gate. Transient failures (network errors,
// 5xx, 429) are retried up to MaxRetries; each retry re-enters
// admission so the retry itself counts against the budget.
func (g *Gate) Do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := g.admit(ctx); err != nil {
			return err
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, call(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s circuit open: %w", g.name, err)
		}

		lastErr = err
		var se *pkghttp.StatusError
		switch {
		case errors.As(err, &se) && se.RateLimited():
			// The remote budget is tighter than ours.
			g.limiter.Penalize(g.policy)
			g.log.Warn("upstream rate limited, budget tightened",
				logger.String("source", g.name),
				logger.String("policy", g.policy))
		case errors.As(err, &se) && !se.Transient():
			return lastErr
		}

		if attempt >= g.cfg.MaxRetries {
			return lastErr
		}
		if err := g.sleep(ctx, attempt); err != nil {
			return err
		}
	}
}

func (g *Gate) admit(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if g.cfg.FailFast {
		d, err := g.limiter.Admit(g.policy)
		if err != nil {
			return err
		}
		if !d.Allowed {
			if g.metrics != nil {
				g.metrics.RecordRateLimitDenied(g.policy)
			}
			return &AdmissionDeniedError{Policy: g.policy, RetryAfter: d.RetryAfter}
		}
		return nil
	}
	return g.limiter.Wait(ctx, g.policy)
}

func (g *Gate) sleep(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(g.cfg.BackoffMin) * math.Pow(2, float64(attempt)))
	if delay > g.cfg.BackoffMax {
		delay = g.cfg.BackoffMax
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
