// Package memory is an in-process Repository implementation backed by maps
// and a single mutex. It exists for tests and for local development without
// a database, mirroring the teacher's in-memory store counterparts used
// alongside its postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/stats"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

// Store is a Repository implementation guarded by a single RWMutex. Good
// enough for tests and single-process dev; not meant to survive a restart.
type Store struct {
	mu sync.RWMutex

	tenants       map[string]tenant.Tenant
	subscriptions map[string]tenant.Subscription // keyed by tenantID
	payments      map[string]tenant.Payment

	sessions map[string]session.Session
	groups   map[string]group.Group
	ads      map[string]ad.Ad
	posts    map[string]post.Post
	history  map[string]post.History

	dailyStats map[string]stats.Daily // keyed by date (YYYY-MM-DD)
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		tenants:       make(map[string]tenant.Tenant),
		subscriptions: make(map[string]tenant.Subscription),
		payments:      make(map[string]tenant.Payment),
		sessions:      make(map[string]session.Session),
		groups:        make(map[string]group.Group),
		ads:           make(map[string]ad.Ad),
		posts:         make(map[string]post.Post),
		history:       make(map[string]post.History),
		dailyStats:    make(map[string]stats.Daily),
	}
}

// Seed directly inserts rows, bypassing Create*/Update* semantics, so tests
// can set up fixtures without going through ID generation.
func (s *Store) Seed(tenants []tenant.Tenant, sessions []session.Session, groups []group.Group, ads []ad.Ad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tenants {
		s.tenants[t.ID] = t
		if t.Subscription != nil {
			s.subscriptions[t.ID] = *t.Subscription
		}
	}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	for _, g := range groups {
		s.groups[g.ID] = g
	}
	for _, a := range ads {
		s.ads[a.ID] = a
	}
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// --- TenantStore ---

func (s *Store) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return tenant.Tenant{}, svcerr.NotFound("tenant", id)
	}
	if sub, ok := s.subscriptions[id]; ok {
		subCopy := sub
		t.Subscription = &subCopy
	}
	return t, nil
}

func (s *Store) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if sub, ok := s.subscriptions[t.ID]; ok {
			subCopy := sub
			t.Subscription = &subCopy
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetSubscription(_ context.Context, tenantID string) (*tenant.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[tenantID]
	if !ok {
		return nil, svcerr.NotFound("subscription", tenantID)
	}
	return &sub, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub tenant.Subscription) (tenant.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.TenantID == "" {
		return tenant.Subscription{}, svcerr.InvalidInput("subscription.tenantId is required")
	}
	s.subscriptions[sub.TenantID] = sub
	return sub, nil
}

func (s *Store) ListExpiringSubscriptions(_ context.Context, asOf time.Time) ([]tenant.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenant.Subscription
	for _, sub := range s.subscriptions {
		if sub.Status == tenant.SubscriptionActive && !sub.EndDate.IsZero() && !sub.EndDate.After(asOf) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, p tenant.Payment) (tenant.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePayment(_ context.Context, p tenant.Payment) (tenant.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return tenant.Payment{}, svcerr.NotFound("payment", p.ID)
	}
	p.UpdatedAt = time.Now()
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) ListPendingPaymentsOlderThan(_ context.Context, cutoff time.Time) ([]tenant.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenant.Payment
	for _, p := range s.payments {
		if p.Status == tenant.PaymentPending && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListApprovedPaymentsInRange(_ context.Context, start, end time.Time) ([]tenant.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenant.Payment
	for _, p := range s.payments {
		if p.Status == tenant.PaymentApproved && !p.UpdatedAt.Before(start) && p.UpdatedAt.Before(end) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- SessionStore ---

func (s *Store) GetSession(_ context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, svcerr.NotFound("session", id)
	}
	return sess, nil
}

func (s *Store) ListSessionsByTenant(_ context.Context, tenantID string) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Session
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListUsableSessions(_ context.Context, tenantID string) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Session
	for _, sess := range s.sessions {
		if sess.TenantID == tenantID && sess.Usable() {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListFrozenSessionsOlderThan(_ context.Context, cutoff time.Time) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Session
	for _, sess := range s.sessions {
		if sess.IsFrozen && !sess.UnfreezeAt.IsZero() && !sess.UnfreezeAt.After(cutoff) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateSession(_ context.Context, sess session.Session) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return session.Session{}, svcerr.NotFound("session", sess.ID)
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// --- GroupStore ---

func (s *Store) GetGroup(_ context.Context, id string) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return group.Group{}, svcerr.NotFound("group", id)
	}
	return g, nil
}

func (s *Store) ListDeliverableGroups(_ context.Context, sessionID string) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, svcerr.NotFound("session", sessionID)
	}
	now := time.Now()
	var out []group.Group
	for _, g := range s.groups {
		if g.SessionID == sessionID && g.Deliverable(now, sess.Usable()) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPriority != out[j].IsPriority {
			return out[i].IsPriority
		}
		if out[i].IsPriority {
			return out[i].PriorityOrder < out[j].PriorityOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListGroupsBySession(_ context.Context, sessionID string) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []group.Group
	for _, g := range s.groups {
		if g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateGroup(_ context.Context, g group.Group) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return group.Group{}, svcerr.NotFound("group", g.ID)
	}
	g.UpdatedAt = time.Now()
	s.groups[g.ID] = g
	return g, nil
}

// BatchAddGroups mirrors the postgres implementation's ON CONFLICT DO NOTHING
// semantics: a (sessionID, platformID) pair already present is left
// untouched and simply omitted from the returned slice of newly-created rows.
func (s *Store) BatchAddGroups(_ context.Context, sessionID string, snapshots []group.Snapshot) ([]group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{})
	for _, g := range s.groups {
		if g.SessionID == sessionID {
			existing[g.PlatformID] = struct{}{}
		}
	}

	now := time.Now()
	var created []group.Group
	for _, snap := range snapshots {
		if _, dup := existing[snap.PlatformID]; dup {
			continue
		}
		g := group.Group{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			PlatformID:  snap.PlatformID,
			Title:       snap.Title,
			Kind:        snap.Kind,
			MemberCount: snap.MemberCount,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.groups[g.ID] = g
		existing[g.PlatformID] = struct{}{}
		created = append(created, g)
	}
	return created, nil
}

func (s *Store) SetPriority(_ context.Context, sessionID string, orderedGroupIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rank := make(map[string]int, len(orderedGroupIDs))
	for i, id := range orderedGroupIDs {
		rank[id] = i + 1
	}
	for id, g := range s.groups {
		if g.SessionID != sessionID {
			continue
		}
		if order, ok := rank[id]; ok {
			g.IsPriority = true
			g.PriorityOrder = order
		} else {
			g.IsPriority = false
			g.PriorityOrder = 0
		}
		s.groups[id] = g
	}
	return nil
}

// --- AdStore ---

func (s *Store) GetAd(_ context.Context, id string) (ad.Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.ads[id]
	if !ok {
		return ad.Ad{}, svcerr.NotFound("ad", id)
	}
	return a, nil
}

func (s *Store) ListAdsByTenant(_ context.Context, tenantID string) ([]ad.Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ad.Ad
	for _, a := range s.ads {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDueScheduledAds(_ context.Context, asOf time.Time) ([]ad.Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ad.Ad
	for _, a := range s.ads {
		// spec.md §4.6: due ads with status Active or Paused are eligible —
		// Paused covers an ad retried after a prior publish failure.
		if a.IsScheduled && (a.Status == ad.StatusActive || a.Status == ad.StatusPaused) && !a.ScheduledFor.After(asOf) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateAd(_ context.Context, a ad.Ad) (ad.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ads[a.ID]; !ok {
		return ad.Ad{}, svcerr.NotFound("ad", a.ID)
	}
	a.UpdatedAt = time.Now()
	s.ads[a.ID] = a
	return a, nil
}

// --- PostStore ---

func (s *Store) CreatePost(_ context.Context, p post.Post) (post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.posts[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePost(_ context.Context, p post.Post) (post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; !ok {
		return post.Post{}, svcerr.NotFound("post", p.ID)
	}
	p.UpdatedAt = time.Now()
	s.posts[p.ID] = p
	return p, nil
}

func (s *Store) GetPost(_ context.Context, id string) (post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return post.Post{}, svcerr.NotFound("post", id)
	}
	return p, nil
}

func (s *Store) ListPostsByTenant(_ context.Context, tenantID string) ([]post.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []post.Post
	for _, p := range s.posts {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- PostHistoryStore ---

func (s *Store) RecordHistory(_ context.Context, h post.History) (post.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	s.history[h.ID] = h
	return h, nil
}

func (s *Store) ListHistoryByPost(_ context.Context, postID string) ([]post.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []post.History
	for _, h := range s.history {
		if h.PostID == postID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListHistoryByPostAndStatus(_ context.Context, postID string, status post.HistoryStatus) ([]post.History, error) {
	all, err := s.ListHistoryByPost(context.Background(), postID)
	if err != nil {
		return nil, err
	}
	var out []post.History
	for _, h := range all {
		if h.Status == status {
			out = append(out, h)
		}
	}
	return out, nil
}

// --- StatsStore ---

func (s *Store) UpsertDailyStatistics(_ context.Context, d stats.Daily) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyStats[dateKey(d.Date)] = d
	return nil
}

func (s *Store) GetDailyStatistics(_ context.Context, date time.Time) (stats.Daily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dailyStats[dateKey(date)]
	if !ok {
		return stats.Daily{}, svcerr.NotFound("dailyStatistics", dateKey(date))
	}
	return d, nil
}
