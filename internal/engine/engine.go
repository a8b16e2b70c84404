// Package engine implements the PostingEngine: the round-loop scheduler
// that drives a Job's continuous broadcast across every participating
// session, per spec.md §4.2-§4.5. It is the "Scheduler" half of the
// orchestrator/engine pairing (SPEC_FULL.md §6.1), modeled on the teacher's
// internal/app/services/automation Service/Scheduler split — the
// orchestrator validates and persists, this package owns the runtime state
// and the background goroutines.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaxongr/reklamabot/internal/classifier"
	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/logging"
	"github.com/jaxongr/reklamabot/internal/metrics"
	"github.com/jaxongr/reklamabot/internal/ratestate"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
	"github.com/jaxongr/reklamabot/internal/storage"
)

// PostingEngine owns every Job's runtime state: the connected-SessionClient
// map, the RateState registry, and the set of running Jobs. Per spec.md §5,
// none of this is process-wide/package-level — it all lives on this value.
type PostingEngine struct {
	repo   storage.Repository
	client sessionclient.SessionClient
	clk    clock.Clock
	cfg    Config
	log    *logging.Logger
	met    *metrics.Metrics
	class  *classifier.Classifier
	rs     *ratestate.Registry

	connMu    sync.RWMutex
	connected map[string]sessionclient.Handle // sessionID -> live handle

	jobsMu sync.RWMutex
	jobs   map[string]*Job
}

// New builds a PostingEngine. log may be nil, in which case a default
// logger is used; met may be nil, in which case no metrics are recorded.
func New(repo storage.Repository, client sessionclient.SessionClient, clk clock.Clock, cfg Config, log *logging.Logger, met *metrics.Metrics) *PostingEngine {
	if log == nil {
		log = logging.NewDefault("posting-engine")
	}
	rs := ratestate.NewRegistry(ratestate.Config{
		SessionMessageLimit:  cfg.SessionMessageLimit,
		SessionCooldown:      cfg.SessionCooldown,
		MaxFloodPerSession:   cfg.MaxFloodPerSession,
		FloodFreeze:          cfg.FloodFreeze,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		TransientCooldown:    5 * time.Minute,
	})
	return &PostingEngine{
		repo:      repo,
		client:    client,
		clk:       clk,
		cfg:       cfg,
		log:       log,
		met:       met,
		class:     classifier.New(rs),
		rs:        rs,
		connected: make(map[string]sessionclient.Handle),
		jobs:      make(map[string]*Job),
	}
}

// EnsureConnected lazily connects sess if it has no live handle, per
// spec.md §4.1's "lazily connect via SessionClient if not connected". The
// orchestrator calls this once per session while resolving StartPosting;
// the round loop itself never attempts a fresh connect.
func (e *PostingEngine) EnsureConnected(ctx context.Context, sess session.Session) bool {
	e.connMu.RLock()
	h, ok := e.connected[sess.ID]
	e.connMu.RUnlock()
	if ok && e.client.IsConnected(h) {
		return true
	}

	h, err := e.client.Connect(ctx, sess)
	if err != nil {
		if e.met != nil {
			e.met.ConnectErrors.Inc()
		}
		e.log.WithField("session_id", sess.ID).WithError(err).Warn("session connect failed")
		return false
	}
	e.connMu.Lock()
	e.connected[sess.ID] = h
	e.connMu.Unlock()
	return true
}

func (e *PostingEngine) handleFor(sessionID string) (sessionclient.Handle, bool) {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	h, ok := e.connected[sessionID]
	return h, ok
}

// Handle exposes a session's live connected handle to callers outside the
// engine (the orchestrator's DeleteFromGroups needs one to issue deletes
// through the same connection the round loop uses).
func (e *PostingEngine) Handle(sessionID string) (sessionclient.Handle, bool) {
	return e.handleFor(sessionID)
}

func (e *PostingEngine) dropConnection(sessionID string) {
	e.connMu.Lock()
	delete(e.connected, sessionID)
	e.connMu.Unlock()
}

// StartJob registers a new Job and spawns its round-loop goroutine. groups
// is the deliverable-group set resolved once at StartPosting time (spec.md
// §4.1); sessions is the set of usable, connected sessions it spans.
func (e *PostingEngine) StartJob(ctx context.Context, t tenant.Tenant, a ad.Ad, p post.Post, sessions []session.Session, groups []group.Group) *Job {
	job := newJob(uuid.NewString(), t.ID, a.ID, p.ID, p.PrimarySession, e.clk.Now(), e.cfg)

	e.jobsMu.Lock()
	e.jobs[job.ID] = job
	e.jobsMu.Unlock()

	if e.met != nil {
		e.met.JobsStarted.Inc()
		e.met.JobsRunning.Inc()
	}

	sessionIDs := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		sessionIDs[s.ID] = struct{}{}
	}

	go e.runRoundLoop(ctx, job, t, a, sessionIDs, groups)
	return job
}

// runRoundLoop is the per-Job thread of execution (spec.md §4.2): round,
// inter-round pause, round, forever until stopRequested.
func (e *PostingEngine) runRoundLoop(ctx context.Context, job *Job, t tenant.Tenant, a ad.Ad, sessionIDs map[string]struct{}, groups []group.Group) {
	defer func() {
		if e.met != nil {
			e.met.JobsRunning.Dec()
		}
	}()

	for {
		if job.StopRequested() {
			job.setStatus(StatusStopped)
			if e.met != nil {
				e.met.JobsStopped.WithLabelValues("stopped").Inc()
			}
			return
		}
		if job.PauseRequested() {
			job.setStatus(StatusPaused)
			e.clk.Sleep(ctx, 5*time.Second)
			continue
		}
		job.setStatus(StatusRunning)

		shuffled := append([]group.Group(nil), groups...)
		shuffleGroups(shuffled)

		start := e.clk.Now()
		e.runRound(ctx, job, t, a, sessionIDs, shuffled)
		if e.met != nil {
			e.met.RoundDuration.Observe(e.clk.Now().Sub(start).Seconds())
		}
		job.incrementRound()

		if job.StopRequested() {
			job.setStatus(StatusStopped)
			if e.met != nil {
				e.met.JobsStopped.WithLabelValues("stopped").Inc()
			}
			return
		}

		e.interRoundPause(ctx, job)
	}
}

// interRoundPause sleeps uniformInt(roundPauseMs ± 3min), polling
// stopRequested every 2s so shutdown latency stays bounded (spec.md §4.2/§5).
func (e *PostingEngine) interRoundPause(ctx context.Context, job *Job) {
	jitter := 3 * time.Minute
	lo := e.cfg.RoundPauseMs - jitter
	if lo < 0 {
		lo = 0
	}
	hi := e.cfg.RoundPauseMs + jitter
	total := uniformDuration(lo, hi)

	const poll = 2 * time.Second
	elapsed := time.Duration(0)
	for elapsed < total {
		if job.StopRequested() {
			return
		}
		step := poll
		if remaining := total - elapsed; remaining < step {
			step = remaining
		}
		e.clk.Sleep(ctx, step)
		elapsed += step
	}
}

// runRound partitions groups by owning session and runs one driver per
// session concurrently, joining on a WaitGroup (spec.md §4.3).
func (e *PostingEngine) runRound(ctx context.Context, job *Job, t tenant.Tenant, a ad.Ad, sessionIDs map[string]struct{}, groups []group.Group) {
	bySession := make(map[string][]group.Group)
	for _, g := range groups {
		if _, ok := sessionIDs[g.SessionID]; !ok {
			continue
		}
		bySession[g.SessionID] = append(bySession[g.SessionID], g)
	}

	var wg sync.WaitGroup
	for sessionID, groupList := range bySession {
		wg.Add(1)
		go func(sessionID string, groupList []group.Group) {
			defer wg.Done()
			e.runDriver(ctx, job, t, a, sessionID, groupList)
		}(sessionID, groupList)
	}
	wg.Wait()
}

// runDriver is one session's serial walk through its shuffled group
// sublist (spec.md §4.3). Returns the count of successful sends.
func (e *PostingEngine) runDriver(ctx context.Context, job *Job, t tenant.Tenant, a ad.Ad, sessionID string, groupList []group.Group) int {
	sent := 0
	for i, g := range groupList {
		if job.StopRequested() {
			return sent
		}
		for job.PauseRequested() && !job.StopRequested() {
			e.clk.Sleep(ctx, 2*time.Second)
		}

		now := e.clk.Now()

		if !g.LastPostAt.IsZero() && now.Sub(g.LastPostAt) < e.cfg.GroupCooldown {
			e.record(job, sessionID, g.ID, post.HistorySkipped, "group cooldown")
			continue
		}
		if e.rs.CooldownCheck(sessionID, now) {
			e.record(job, sessionID, g.ID, post.HistorySkipped, "session cooldown")
			continue
		}

		handle, connected := e.handleFor(sessionID)
		if !connected {
			e.record(job, sessionID, g.ID, post.HistorySkipped, "session not connected")
			continue
		}

		content := a.Content
		if t.BrandAdEnabled && t.BrandAdText != "" {
			content = content + "\n\n" + t.BrandAdText
		}

		_, err := e.client.Send(ctx, handle, g.PlatformID, content)
		outcome := e.applyOutcome(ctx, job, t, sessionID, g, now, err)
		if outcome.HistoryStatus == post.HistorySent {
			sent++
		}
		if outcome.SleepSeconds > 0 {
			e.clk.Sleep(ctx, time.Duration(outcome.SleepSeconds)*time.Second)
		}

		if i == len(groupList)-1 {
			continue
		}
		e.interGroupDelay(ctx, sent)
	}
	return sent
}

// applyOutcome classifies err (nil on success), persists the Group/Session
// mutations it implies, writes a PostHistory row, and appends the Job log
// entry, per spec.md §4.3.5-6 and §4.4.
func (e *PostingEngine) applyOutcome(ctx context.Context, job *Job, t tenant.Tenant, sessionID string, g group.Group, now time.Time, err error) classifier.Outcome {
	var outcome classifier.Outcome
	if err == nil {
		outcome = e.class.ClassifySuccess(sessionID, now)
	} else {
		outcome = e.class.Classify(sessionID, err, now)
		if se := sessionclient.AsSendError(err); se.Kind == sessionclient.KindAuthRevoked {
			e.dropConnection(sessionID)
			if e.met != nil {
				e.met.SessionsFrozen.Inc()
			}
		}
	}

	if outcome.GroupUpdate != nil {
		updated := outcome.GroupUpdate(g)
		if _, uerr := e.repo.UpdateGroup(ctx, updated); uerr != nil {
			e.log.WithField("group_id", g.ID).WithError(uerr).Warn("update group after send outcome failed")
		}
	}
	if outcome.SessionUpdate != nil {
		if sess, gerr := e.repo.GetSession(ctx, sessionID); gerr == nil {
			updated := outcome.SessionUpdate(sess)
			if _, uerr := e.repo.UpdateSession(ctx, updated); uerr != nil {
				e.log.WithField("session_id", sessionID).WithError(uerr).Warn("update session after send outcome failed")
			}
		}
	}

	if _, herr := e.repo.RecordHistory(ctx, post.History{
		PostID:    job.PostID,
		GroupID:   g.ID,
		SessionID: sessionID,
		Status:    outcome.HistoryStatus,
		SentAt:    sentAt(outcome, now),
		FailedAt:  failedAt(outcome, now),
		ErrorReason: outcome.Reason,
	}); herr != nil {
		e.log.WithField("group_id", g.ID).WithError(herr).Warn("record post history failed")
	}

	e.record(job, sessionID, g.ID, outcome.HistoryStatus, outcome.Reason)
	e.observeMetrics(outcome, err)
	return outcome
}

func sentAt(outcome classifier.Outcome, now time.Time) time.Time {
	if outcome.HistoryStatus == post.HistorySent {
		return now
	}
	return time.Time{}
}

func failedAt(outcome classifier.Outcome, now time.Time) time.Time {
	if outcome.HistoryStatus == post.HistoryFailed {
		return now
	}
	return time.Time{}
}

func (e *PostingEngine) observeMetrics(outcome classifier.Outcome, err error) {
	if e.met == nil {
		return
	}
	switch outcome.HistoryStatus {
	case post.HistorySent:
		e.met.GroupsSent.Inc()
	case post.HistoryFailed:
		kind := "transient"
		if se := sessionclient.AsSendError(err); se != nil {
			kind = string(se.Kind)
		}
		e.met.GroupsFailed.WithLabelValues(kind).Inc()
	case post.HistorySkipped:
		e.met.GroupsSkipped.WithLabelValues(outcome.Reason).Inc()
	}
}

func (e *PostingEngine) record(job *Job, sessionID, groupID string, status post.HistoryStatus, reason string) {
	job.appendLog(LogEntry{
		At:        e.clk.Now(),
		SessionID: sessionID,
		GroupID:   groupID,
		Status:    status,
		Reason:    reason,
	})
}

// interGroupDelay sleeps the driver's inter-group pause: a long pause every
// longPauseInterval-th send, otherwise the normal [minGroupDelay,
// maxGroupDelay] window (spec.md §4.3.7).
func (e *PostingEngine) interGroupDelay(ctx context.Context, sentSoFar int) {
	if e.cfg.LongPauseInterval > 0 && sentSoFar > 0 && sentSoFar%e.cfg.LongPauseInterval == 0 {
		e.clk.Sleep(ctx, uniformDuration(e.cfg.LongPauseMin, e.cfg.LongPauseMax))
		return
	}
	e.clk.Sleep(ctx, uniformDuration(e.cfg.MinGroupDelay, e.cfg.MaxGroupDelay))
}

func uniformDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// shuffleGroups performs an in-place Fisher-Yates shuffle (spec.md §4.2.3).
func shuffleGroups(groups []group.Group) {
	for i := len(groups) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		groups[i], groups[j] = groups[j], groups[i]
	}
}

// --- Job registry accessors, used by the orchestrator ---

func (e *PostingEngine) Job(id string) (*Job, bool) {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	j, ok := e.jobs[id]
	return j, ok
}

func (e *PostingEngine) JobsByTenant(tenantID string) []*Job {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	var out []*Job
	for _, j := range e.jobs {
		if j.TenantID == tenantID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

func (e *PostingEngine) Cleanup(id string) error {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return fmt.Errorf("engine: job %q not found", id)
	}
	if st := j.Status(); st != StatusStopped && st != StatusCompleted {
		return fmt.Errorf("engine: job %q is %s, cannot clean up", id, st)
	}
	delete(e.jobs, id)
	return nil
}
