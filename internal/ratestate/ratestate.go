// Package ratestate implements the per-session anti-throttle state machine
// of spec.md §4.4: SessionRateState tracks a rolling send count, flood
// signal count, and consecutive-error count, arming a cooldown window when
// any of the engine's configured thresholds trip.
package ratestate

import (
	"sync"
	"time"
)

// Config names every anti-throttle knob spec.md §4.4/§6 lists.
type Config struct {
	SessionMessageLimit  int
	SessionCooldown      time.Duration
	MaxFloodPerSession   int
	FloodFreeze          time.Duration
	MaxConsecutiveErrors int
	TransientCooldown    time.Duration
}

// DefaultConfig matches the literal defaults spec.md §4.4 names.
func DefaultConfig() Config {
	return Config{
		SessionMessageLimit:  30,
		SessionCooldown:      5 * time.Minute,
		MaxFloodPerSession:   3,
		FloodFreeze:          30 * time.Minute,
		MaxConsecutiveErrors: 5,
		TransientCooldown:    5 * time.Minute,
	}
}

// State is one session's mutable anti-throttle counters. Only one driver
// touches a given session's State at a time (spec.md §5); the mutex guards
// the diagnostic readers the concurrency model allows for.
type State struct {
	mu sync.Mutex

	MessagesSent      int
	FloodCount        int
	ConsecutiveErrors int
	CooldownUntil     time.Time
}

// Registry is the engine-owned, per-session map of State, guarded by a
// single RWMutex per spec.md §5 ("one entry per session... per-session
// lock... the only cross-driver reader is diagnostic").
type Registry struct {
	mu    sync.RWMutex
	cfg   Config
	states map[string]*State
}

// NewRegistry builds an empty Registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, states: make(map[string]*State)}
}

// Get returns (creating if absent) the State for sessionID.
func (r *Registry) Get(sessionID string) *State {
	r.mu.RLock()
	st, ok := r.states[sessionID]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[sessionID]; ok {
		return st
	}
	st = &State{}
	r.states[sessionID] = st
	return st
}

// CooldownCheck inspects and, if expired, clears the cooldown — spec.md
// §4.3.3's "if cooldownUntil is in the past, clear it and zero
// messagesSent". Returns true if the session is still cooling down.
func (r *Registry) CooldownCheck(sessionID string, now time.Time) bool {
	st := r.Get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.CooldownUntil.IsZero() {
		return false
	}
	if st.CooldownUntil.After(now) {
		return true
	}
	st.CooldownUntil = time.Time{}
	st.MessagesSent = 0
	return false
}

// OnSuccess applies spec.md §4.4's success transition and reports whether a
// cooldown was just armed (messagesSent hit the session limit).
func (r *Registry) OnSuccess(sessionID string, now time.Time) (cooldownArmed bool) {
	st := r.Get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.MessagesSent++
	st.ConsecutiveErrors = 0
	if st.MessagesSent >= r.cfg.SessionMessageLimit {
		st.CooldownUntil = now.Add(r.cfg.SessionCooldown)
		st.MessagesSent = 0
		cooldownArmed = true
	}
	return cooldownArmed
}

// FloodOutcome tells the caller what to do after OnFlood: SleepSeconds > 0
// means the driver should sleep inline before continuing; CooldownArmed
// means the rest of this round is skipped for the session.
type FloodOutcome struct {
	SleepSeconds  int
	CooldownArmed bool
}

// OnFlood applies spec.md §4.4's flood-signal transition.
func (r *Registry) OnFlood(sessionID string, waitSeconds int, now time.Time) FloodOutcome {
	st := r.Get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.FloodCount++
	st.ConsecutiveErrors++

	out := FloodOutcome{}
	if waitSeconds <= 60 {
		out.SleepSeconds = waitSeconds
	} else {
		st.CooldownUntil = now.Add(time.Duration(waitSeconds) * time.Second)
		out.CooldownArmed = true
	}
	if st.FloodCount >= r.cfg.MaxFloodPerSession {
		st.CooldownUntil = now.Add(r.cfg.FloodFreeze)
		out.CooldownArmed = true
	}
	return out
}

// OnAuthRevoked arms an effectively permanent cooldown, per spec.md §4.4.
func (r *Registry) OnAuthRevoked(sessionID string, now time.Time) {
	st := r.Get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.CooldownUntil = now.Add(100 * 365 * 24 * time.Hour)
}

// OnTransientError applies spec.md §4.4's transient-error transition,
// reporting whether the consecutive-error cooldown was just armed.
func (r *Registry) OnTransientError(sessionID string, now time.Time) (cooldownArmed bool) {
	st := r.Get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.ConsecutiveErrors++
	if st.ConsecutiveErrors >= r.cfg.MaxConsecutiveErrors {
		st.CooldownUntil = now.Add(r.cfg.TransientCooldown)
		st.ConsecutiveErrors = 0
		cooldownArmed = true
	}
	return cooldownArmed
}

// Snapshot returns a value copy of sessionID's current counters, for
// diagnostics (the only cross-driver read spec.md §5 allows).
func (r *Registry) Snapshot(sessionID string) State {
	st := r.Get(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return State{
		MessagesSent:      st.MessagesSent,
		FloodCount:        st.FloodCount,
		ConsecutiveErrors: st.ConsecutiveErrors,
		CooldownUntil:     st.CooldownUntil,
	}
}
