// Package maintenance implements MaintenanceLoops (spec.md §4.7): four
// independent periodic fire-and-log loops driven off the shared Clock.
// Grounded on the teacher's automation.Scheduler, each loop here is scoped
// to one concern instead of one generic dispatcher, since spec.md's loops
// have unrelated schedules and unrelated failure domains.
package maintenance

import (
	"context"
	"time"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/core"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/stats"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/logging"
	"github.com/jaxongr/reklamabot/internal/storage"
)

// PaymentExpiry is how long a Pending payment may sit before it expires
// (spec.md §4.7: 48h).
const PaymentExpiry = 48 * time.Hour

// FrozenSessionGrace is how long a session stays frozen before the thaw
// loop clears it (spec.md §4.7: 7d).
const FrozenSessionGrace = 7 * 24 * time.Hour

// Loops registers and owns the four independent maintenance schedules.
// Each loop logs and continues on error; no loop can block another, since
// Clock.Cron gives each its own timer (spec.md §4.7's "independent timers").
type Loops struct {
	repo  storage.Repository
	clk   clock.Clock
	log   *logging.Logger
	hooks core.ObservationHooks

	stops []func()
}

// New builds a Loops bound to repo and clk.
func New(repo storage.Repository, clk clock.Clock, log *logging.Logger) *Loops {
	if log == nil {
		log = logging.NewDefault("maintenance-loops")
	}
	return &Loops{repo: repo, clk: clk, log: log, hooks: core.NoopObservationHooks}
}

// WithObservationHooks returns l with its per-tick OnStart/OnComplete hooks
// replaced; callers that want per-loop duration/error metrics without a full
// core.Tracer wire one in here instead of the default no-op.
func (l *Loops) WithObservationHooks(hooks core.ObservationHooks) *Loops {
	l.hooks = hooks
	return l
}

// Name identifies this component in process-level logs and descriptors.
func (l *Loops) Name() string { return "maintenance-loops" }

// Descriptor advertises this component's architectural placement.
func (l *Loops) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   l.Name(),
		Domain: "broadcast",
		Layer:  core.LayerEngine,
	}.WithCapabilities("expire-subscriptions", "expire-payments", "thaw-frozen-sessions", "roll-up-daily-statistics")
}

// Start registers all four loops against the Clock and returns a function
// that stops every registration.
func (l *Loops) Start() (func(), error) {
	registrations := []struct {
		spec clock.CronSpec
		fn   func(context.Context)
	}{
		{clock.EveryHour, l.expireSubscriptions},
		{clock.EveryNHours(6), l.expirePayments},
		{clock.DailyAt(3, 0), l.thawFrozenSessions},
		{clock.DailyAt(0, 0), l.rollUpDailyStatistics},
	}

	for _, r := range registrations {
		stop, err := l.clk.Cron(r.spec, r.fn)
		if err != nil {
			l.Stop()
			return nil, err
		}
		l.stops = append(l.stops, stop)
	}
	return l.Stop, nil
}

// Stop cancels every registration Start made.
func (l *Loops) Stop() {
	for _, stop := range l.stops {
		if stop != nil {
			stop()
		}
	}
	l.stops = nil
}

// expireSubscriptions transitions any Active subscription whose endDate has
// passed to Expired (spec.md §4.7, hourly).
func (l *Loops) expireSubscriptions(ctx context.Context) {
	var err error
	finish := core.StartObservation(ctx, l.hooks, map[string]string{"loop": "expire-subscriptions"})
	defer func() { finish(err) }()

	now := l.clk.Now()
	var subs []tenant.Subscription
	subs, err = l.repo.ListExpiringSubscriptions(ctx, now)
	if err != nil {
		l.log.WithError(err).Warn("maintenance: list expiring subscriptions failed")
		return
	}
	for _, sub := range subs {
		sub.Status = tenant.SubscriptionExpired
		if _, err := l.repo.UpdateSubscription(ctx, sub); err != nil {
			l.log.WithField("tenant_id", sub.TenantID).WithError(err).Warn("maintenance: expire subscription failed")
			continue
		}
		l.log.WithField("tenant_id", sub.TenantID).Info("subscription expired")
	}
}

// expirePayments transitions any Pending payment older than PaymentExpiry to
// Expired (spec.md §4.7, every 6h).
func (l *Loops) expirePayments(ctx context.Context) {
	var err error
	finish := core.StartObservation(ctx, l.hooks, map[string]string{"loop": "expire-payments"})
	defer func() { finish(err) }()

	cutoff := l.clk.Now().Add(-PaymentExpiry)
	var payments []tenant.Payment
	payments, err = l.repo.ListPendingPaymentsOlderThan(ctx, cutoff)
	if err != nil {
		l.log.WithError(err).Warn("maintenance: list pending payments failed")
		return
	}
	for _, p := range payments {
		p.Status = tenant.PaymentExpired
		if _, err := l.repo.UpdatePayment(ctx, p); err != nil {
			l.log.WithField("payment_id", p.ID).WithError(err).Warn("maintenance: expire payment failed")
			continue
		}
		l.log.WithField("payment_id", p.ID).Info("payment expired")
	}
}

// thawFrozenSessions clears isFrozen on sessions frozen for at least
// FrozenSessionGrace, leaving status untouched — Banned sessions stay
// Banned (spec.md §4.7/§9: the thaw loop must never resurrect a dead,
// AuthRevoked credential).
func (l *Loops) thawFrozenSessions(ctx context.Context) {
	var err error
	finish := core.StartObservation(ctx, l.hooks, map[string]string{"loop": "thaw-frozen-sessions"})
	defer func() { finish(err) }()

	cutoff := l.clk.Now().Add(-FrozenSessionGrace)
	var frozen []session.Session
	frozen, err = l.repo.ListFrozenSessionsOlderThan(ctx, cutoff)
	if err != nil {
		l.log.WithError(err).Warn("maintenance: list frozen sessions failed")
		return
	}
	for _, s := range frozen {
		if s.Status == session.StatusBanned {
			continue
		}
		s.IsFrozen = false
		s.UnfreezeAt = time.Time{}
		if _, err := l.repo.UpdateSession(ctx, s); err != nil {
			l.log.WithField("session_id", s.ID).WithError(err).Warn("maintenance: thaw session failed")
			continue
		}
		l.log.WithField("session_id", s.ID).Info("session thawed")
	}
}

// rollUpDailyStatistics upserts yesterday's SystemStatistics row (spec.md
// §4.7, daily at 00:00): counts and revenue are computed across every
// tenant's sessions/payments as of the tick.
func (l *Loops) rollUpDailyStatistics(ctx context.Context) {
	var err error
	finish := core.StartObservation(ctx, l.hooks, map[string]string{"loop": "roll-up-daily-statistics"})
	defer func() { finish(err) }()

	now := l.clk.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(-24 * time.Hour)

	var tenants []tenant.Tenant
	tenants, err = l.repo.ListTenants(ctx)
	if err != nil {
		l.log.WithError(err).Warn("maintenance: list tenants for rollup failed")
		return
	}

	var activeTenants, activeSessions int
	var messagesSent, groupsReached, revenueCents int64
	for _, t := range tenants {
		sessions, err := l.repo.ListSessionsByTenant(ctx, t.ID)
		if err != nil {
			l.log.WithField("tenant_id", t.ID).WithError(err).Warn("maintenance: list sessions for rollup failed")
			continue
		}
		tenantHasActivity := false
		for _, s := range sessions {
			if s.Usable() {
				activeSessions++
				tenantHasActivity = true
			}
			groupsReached += int64(s.ActiveGroups)
		}
		if tenantHasActivity {
			activeTenants++
		}

		posts, err := l.repo.ListPostsByTenant(ctx, t.ID)
		if err != nil {
			l.log.WithField("tenant_id", t.ID).WithError(err).Warn("maintenance: list posts for rollup failed")
			continue
		}
		for _, p := range posts {
			if !p.UpdatedAt.Before(day) && p.UpdatedAt.Before(day.Add(24*time.Hour)) {
				messagesSent += int64(p.CompletedGroups)
			}
		}
	}

	payments, err := l.repo.ListApprovedPaymentsInRange(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		l.log.WithError(err).Warn("maintenance: list approved payments for rollup failed")
	}
	for _, p := range payments {
		revenueCents += p.AmountDue
	}

	d := stats.Daily{
		Date:           day,
		MessagesSent:   messagesSent,
		GroupsReached:  groupsReached,
		ActiveSessions: activeSessions,
		ActiveTenants:  activeTenants,
		RevenueCents:   revenueCents,
	}
	if err := l.repo.UpsertDailyStatistics(ctx, d); err != nil {
		l.log.WithError(err).Warn("maintenance: upsert daily statistics failed")
		return
	}
	l.log.WithField("date", day.Format("2006-01-02")).Info("daily statistics rolled up")
}
