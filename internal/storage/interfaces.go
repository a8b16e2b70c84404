// Package storage defines the Repository contract: typed, per-entity CRUD
// interfaces the engine reads and writes through. Implementations must be
// safe for concurrent readers; each entity family is written by at most one
// owner at a time (see spec.md §5).
package storage

import (
	"context"
	"time"

	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/stats"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
)

// TenantStore persists tenants and their subscriptions/payments.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)

	GetSubscription(ctx context.Context, tenantID string) (*tenant.Subscription, error)
	UpdateSubscription(ctx context.Context, sub tenant.Subscription) (tenant.Subscription, error)
	ListExpiringSubscriptions(ctx context.Context, asOf time.Time) ([]tenant.Subscription, error)

	CreatePayment(ctx context.Context, p tenant.Payment) (tenant.Payment, error)
	UpdatePayment(ctx context.Context, p tenant.Payment) (tenant.Payment, error)
	ListPendingPaymentsOlderThan(ctx context.Context, cutoff time.Time) ([]tenant.Payment, error)
	// ListApprovedPaymentsInRange feeds the daily statistics rollup's
	// revenueCents sum (SPEC_FULL.md §5).
	ListApprovedPaymentsInRange(ctx context.Context, start, end time.Time) ([]tenant.Payment, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (session.Session, error)
	ListSessionsByTenant(ctx context.Context, tenantID string) ([]session.Session, error)
	ListUsableSessions(ctx context.Context, tenantID string) ([]session.Session, error)
	ListFrozenSessionsOlderThan(ctx context.Context, cutoff time.Time) ([]session.Session, error)
	UpdateSession(ctx context.Context, s session.Session) (session.Session, error)
}

// GroupStore persists groups.
type GroupStore interface {
	GetGroup(ctx context.Context, id string) (group.Group, error)
	ListDeliverableGroups(ctx context.Context, sessionID string) ([]group.Group, error)
	ListGroupsBySession(ctx context.Context, sessionID string) ([]group.Group, error)
	UpdateGroup(ctx context.Context, g group.Group) (group.Group, error)
	// BatchAddGroups inserts new groups for a session, skipping duplicates on
	// the unique (sessionId, platformId) index (spec.md §6/§5).
	BatchAddGroups(ctx context.Context, sessionID string, snapshots []group.Snapshot) ([]group.Group, error)
	// SetPriority applies a priority ranking pass: the groups in order become
	// isPriority=true with priorityOrder 1..len(groupIDs); all others for the
	// session are demoted.
	SetPriority(ctx context.Context, sessionID string, orderedGroupIDs []string) error
}

// AdStore persists ads.
type AdStore interface {
	GetAd(ctx context.Context, id string) (ad.Ad, error)
	ListAdsByTenant(ctx context.Context, tenantID string) ([]ad.Ad, error)
	ListDueScheduledAds(ctx context.Context, asOf time.Time) ([]ad.Ad, error)
	UpdateAd(ctx context.Context, a ad.Ad) (ad.Ad, error)
}

// PostStore persists Post job records.
type PostStore interface {
	CreatePost(ctx context.Context, p post.Post) (post.Post, error)
	UpdatePost(ctx context.Context, p post.Post) (post.Post, error)
	GetPost(ctx context.Context, id string) (post.Post, error)
	ListPostsByTenant(ctx context.Context, tenantID string) ([]post.Post, error)
}

// PostHistoryStore persists per-group delivery attempts.
type PostHistoryStore interface {
	RecordHistory(ctx context.Context, h post.History) (post.History, error)
	ListHistoryByPost(ctx context.Context, postID string) ([]post.History, error)
	ListHistoryByPostAndStatus(ctx context.Context, postID string, status post.HistoryStatus) ([]post.History, error)
}

// StatsStore persists the daily statistics rollup.
type StatsStore interface {
	UpsertDailyStatistics(ctx context.Context, d stats.Daily) error
	GetDailyStatistics(ctx context.Context, date time.Time) (stats.Daily, error)
}

// Repository composes every entity store the engine needs. Components that
// only need a subset should depend on the narrower interface instead.
type Repository interface {
	TenantStore
	SessionStore
	GroupStore
	AdStore
	PostStore
	PostHistoryStore
	StatsStore
}
