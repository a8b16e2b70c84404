// Package publisher implements the ScheduledPublisher (spec.md §4.6): a
// fire-every-minute loop that promotes due scheduled ads into running
// broadcast jobs via the orchestrator.
package publisher

import (
	"context"
	"time"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/core"
	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/logging"
	"github.com/jaxongr/reklamabot/internal/storage"
)

// ScheduledPublisher scans for due scheduled ads on every Clock tick and
// hands each to the orchestrator (spec.md §4.6).
type ScheduledPublisher struct {
	repo storage.Repository
	clk  clock.Clock
	log  *logging.Logger

	start func(ctx context.Context, tenantID, adID string) error
}

// New builds a ScheduledPublisher. start is called once per due ad; callers
// normally pass a closure around orchestrator.Broadcast.StartPosting that
// discards the returned Job (the publisher only cares whether it errored).
func New(repo storage.Repository, clk clock.Clock, log *logging.Logger, start func(ctx context.Context, tenantID, adID string) error) *ScheduledPublisher {
	if log == nil {
		log = logging.NewDefault("scheduled-publisher")
	}
	return &ScheduledPublisher{repo: repo, clk: clk, log: log, start: start}
}

// Name identifies this component in process-level logs and descriptors.
func (p *ScheduledPublisher) Name() string { return "scheduled-publisher" }

// Descriptor advertises this component's architectural placement.
func (p *ScheduledPublisher) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   p.Name(),
		Domain: "broadcast",
		Layer:  core.LayerEngine,
	}.WithCapabilities("promote-due-ads")
}

// Run registers the publisher's tick against clk's EVERY_MINUTE schedule,
// returning a stop function.
func (p *ScheduledPublisher) Run() (func(), error) {
	return p.clk.Cron(clock.EveryMinute, p.tick)
}

// tick scans for due ads and promotes each (spec.md §4.6). One ad's failure
// never stops the scan over the rest.
func (p *ScheduledPublisher) tick(ctx context.Context) {
	now := p.clk.Now()

	ads, err := p.repo.ListDueScheduledAds(ctx, now)
	if err != nil {
		p.log.WithError(err).Warn("scheduled publisher: list due ads failed")
		return
	}
	for _, a := range ads {
		p.promote(ctx, a.TenantID, a, now)
	}
}

func (p *ScheduledPublisher) promote(ctx context.Context, tenantID string, a ad.Ad, now time.Time) {
	if err := p.start(ctx, tenantID, a.ID); err != nil {
		a.Status = ad.StatusPaused
		a.LastError = err.Error()
		if _, uerr := p.repo.UpdateAd(ctx, a); uerr != nil {
			p.log.WithField("ad_id", a.ID).WithError(uerr).Warn("scheduled publisher: failed to record ad failure")
		}
		p.log.WithField("ad_id", a.ID).WithField("tenant_id", tenantID).WithError(err).Warn("scheduled publisher: StartPosting failed")
		return
	}

	a.Status = ad.StatusActive
	a.LastScheduledAt = now
	a.LastError = ""
	if _, uerr := p.repo.UpdateAd(ctx, a); uerr != nil {
		p.log.WithField("ad_id", a.ID).WithError(uerr).Warn("scheduled publisher: failed to record ad success")
	}
}
