package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff for Connect attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches spec.md §4.5's connectionRetries=3 knob.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping a full-jitter backoff
// between attempts. priorStrikes is the session's current circuit-breaker
// failure count going into this call (failed Connect calls since the
// breaker's last state change, which resets the count): a session whose
// recent Connect calls failed starts its backoff further up the exponential
// curve instead of at InitialDelay on every fresh Connect, so a
// chronically flaky session backs off harder sooner than one failing for
// the first time (spec.md §4.5's connectionRetries applies per attempt, not
// per session history, so this is additive on top of it).
func Retry(ctx context.Context, cfg RetryConfig, priorStrikes int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
		} else {
			return nil
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fullJitterDelay(cfg, attempt+priorStrikes)):
		}
	}
	return lastErr
}

// fullJitterDelay picks a uniformly random delay between zero and the
// capped exponential ceiling for exponent exp, the "full jitter" backoff
// AWS's retry guidance recommends over jittering around a fixed midpoint:
// it spreads many sessions reconnecting at once across the whole window
// instead of clustering them near one computed delay.
func fullJitterDelay(cfg RetryConfig, exp int) time.Duration {
	ceiling := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(exp))
	if max := float64(cfg.MaxDelay); ceiling > max {
		ceiling = max
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * ceiling)
}
