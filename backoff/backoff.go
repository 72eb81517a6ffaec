// Package backoff provides the retry delay strategies used between failed
// attempts. All strategies are stateless and safe for concurrent use.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/xraph/mediaq"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed)
	// before the job is queued again.
	Delay(attempt int) time.Duration
}

// longest is the largest float64 that converts to a positive
// time.Duration. float64(math.MaxInt64) rounds up to 2^63 and wraps.
var longest = math.Nextafter(float64(math.MaxInt64), 0)

// exp returns initial * 2^(attempt-1) capped at maxDelay, computed in
// float64 so large attempt numbers cannot overflow.
func exp(initial, maxDelay time.Duration, attempt int) float64 {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return float64(maxDelay)
	}
	if d > longest {
		return longest
	}
	return d
}

// ──────────────────────────────────────────────────
// CappedJitter
// ──────────────────────────────────────────────────

// CappedJitter is exponential backoff with a hard cap plus additive
// jitter: Delay = min(Initial * 2^(n-1), Max) + U[0, Jitter).
// With the defaults, attempt 1 waits [1s, 1.5s) and attempt 7 onwards
// waits [30s, 30.5s).
type CappedJitter struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  time.Duration
}

// NewCappedJitter creates a capped exponential strategy with additive
// jitter.
func NewCappedJitter(initial, maxDelay, jitter time.Duration) *CappedJitter {
	return &CappedJitter{Initial: initial, Max: maxDelay, Jitter: jitter}
}

// Delay returns the capped exponential delay plus jitter.
func (c *CappedJitter) Delay(attempt int) time.Duration {
	d := time.Duration(exp(c.Initial, c.Max, attempt))
	if c.Jitter > 0 {
		j := rand.N(c.Jitter) //nolint:gosec // jitter intentionally uses non-crypto rand
		if d > math.MaxInt64-j {
			return math.MaxInt64
		}
		d += j
	}
	return d
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the attempt number.
// Delay = min(Initial * n, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * n, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt without jitter.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(n-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return time.Duration(exp(e.Initial, e.Max, attempt))
}

// ──────────────────────────────────────────────────
// FullJitter
// ──────────────────────────────────────────────────

// FullJitter draws the whole delay uniformly from
// [0, min(Initial * 2^(n-1), Max)].
type FullJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewFullJitter creates an exponential backoff with full jitter.
func NewFullJitter(initial, maxDelay time.Duration) *FullJitter {
	return &FullJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration up to the capped exponential delay.
func (f *FullJitter) Delay(attempt int) time.Duration {
	return time.Duration(rand.Float64() * exp(f.Initial, f.Max, attempt)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Selection
// ──────────────────────────────────────────────────

// DefaultStrategy returns CappedJitter with 1s initial, 30s cap and 500ms
// jitter.
func DefaultStrategy() Strategy {
	return NewCappedJitter(1*time.Second, 30*time.Second, 500*time.Millisecond)
}

// FromConfig builds the strategy named by cfg.BackoffStrategy. An empty
// name selects CappedJitter.
func FromConfig(cfg mediaq.Config) (Strategy, error) {
	switch cfg.BackoffStrategy {
	case "", mediaq.BackoffCappedJitter:
		return NewCappedJitter(cfg.BackoffInitial, cfg.BackoffMax, cfg.BackoffJitter), nil
	case mediaq.BackoffConstant:
		return NewConstant(cfg.BackoffInitial), nil
	case mediaq.BackoffLinear:
		return NewLinear(cfg.BackoffInitial, cfg.BackoffMax), nil
	case mediaq.BackoffExponential:
		return NewExponential(cfg.BackoffInitial, cfg.BackoffMax), nil
	case mediaq.BackoffFullJitter:
		return NewFullJitter(cfg.BackoffInitial, cfg.BackoffMax), nil
	default:
		return nil, fmt.Errorf("backoff: unknown strategy %q", cfg.BackoffStrategy)
	}
}
