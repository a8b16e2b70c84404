package sessionclient

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/resilience"
)

// ResilientConfig configures Resilient's connection-attempt throttling and
// per-session circuit breaking.
type ResilientConfig struct {
	// ConnectsPerSecond/ConnectBurst throttle how fast Connect may be called
	// across all sessions, adapted from infrastructure/ratelimit's
	// RequestsPerSecond/Burst shape — connection floods are what gets whole
	// account ranges banned, unlike steady-state sends which are governed by
	// the anti-throttle state machine instead.
	ConnectsPerSecond float64
	ConnectBurst      int
	Breaker           resilience.BreakerConfig
	Retry             resilience.RetryConfig
}

// DefaultResilientConfig allows at most 1 connection attempt per second
// across the whole engine, bursting to 3, matching the teacher's
// ratelimit.DefaultConfig shape scaled down to connection-attempt cadence.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		ConnectsPerSecond: 1,
		ConnectBurst:      3,
		Breaker:           resilience.DefaultBreakerConfig(),
		Retry:             resilience.DefaultRetryConfig(),
	}
}

// Resilient wraps a SessionClient, rate-limiting Connect attempts globally
// via golang.org/x/time/rate and circuit-breaking them per session so a
// session whose credential is dead stops being retried every round.
type Resilient struct {
	inner    SessionClient
	limiter  *rate.Limiter
	cfg      ResilientConfig
	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewResilient wraps inner with connect throttling and per-session breaking.
func NewResilient(inner SessionClient, cfg ResilientConfig) *Resilient {
	def := DefaultResilientConfig()
	if cfg.ConnectsPerSecond <= 0 {
		cfg.ConnectsPerSecond = def.ConnectsPerSecond
	}
	if cfg.ConnectBurst <= 0 {
		cfg.ConnectBurst = def.ConnectBurst
	}
	return &Resilient{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ConnectsPerSecond), cfg.ConnectBurst),
		cfg:      cfg,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (r *Resilient) breakerFor(sessionID string) *resilience.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[sessionID]
	if !ok {
		cb = resilience.NewCircuitBreaker(r.cfg.Breaker)
		r.breakers[sessionID] = cb
	}
	return cb
}

// Connect throttles globally, then retries and circuit-breaks per session.
func (r *Resilient) Connect(ctx context.Context, s session.Session) (Handle, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cb := r.breakerFor(s.ID)
	priorStrikes := cb.Failures()
	var handle Handle
	err := cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, r.cfg.Retry, priorStrikes, func() error {
			h, err := r.inner.Connect(ctx, s)
			if err != nil {
				return err
			}
			handle = h
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (r *Resilient) Disconnect(ctx context.Context, h Handle) error {
	return r.inner.Disconnect(ctx, h)
}

func (r *Resilient) SyncGroups(ctx context.Context, h Handle) ([]group.Snapshot, error) {
	return r.inner.SyncGroups(ctx, h)
}

func (r *Resilient) Send(ctx context.Context, h Handle, platformGroupID, text string) (SendResult, error) {
	return r.inner.Send(ctx, h, platformGroupID, text)
}

func (r *Resilient) DeleteMessage(ctx context.Context, h Handle, platformGroupID, messageID string) error {
	return r.inner.DeleteMessage(ctx, h, platformGroupID, messageID)
}

func (r *Resilient) IsConnected(h Handle) bool {
	return r.inner.IsConnected(h)
}
