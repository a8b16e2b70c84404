// Package orchestrator is the Broadcast façade spec.md §4.1 names: the
// request-facing half of the orchestrator/engine split (SPEC_FULL.md §6.1).
// It validates and persists; internal/engine owns the runtime state and the
// background round loop. Modeled on the teacher's automation.Service, which
// plays the same role opposite automation.Scheduler.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaxongr/reklamabot/internal/core"
	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/engine"
	"github.com/jaxongr/reklamabot/internal/logging"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
	"github.com/jaxongr/reklamabot/internal/storage"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

// Broadcast is the public entry point tenants and controllers call; it never
// touches the engine's round-loop goroutines directly, only through
// engine.PostingEngine's exported surface.
type Broadcast struct {
	repo   storage.Repository
	client sessionclient.SessionClient
	eng    *engine.PostingEngine
	log    *logging.Logger
	tracer core.Tracer
}

// New builds a Broadcast orchestrator wrapping a freshly constructed engine.
func New(repo storage.Repository, client sessionclient.SessionClient, eng *engine.PostingEngine, log *logging.Logger) *Broadcast {
	if log == nil {
		log = logging.NewDefault("broadcast-orchestrator")
	}
	return &Broadcast{repo: repo, client: client, eng: eng, log: log, tracer: core.NoopTracer}
}

// WithTracer returns b with its span tracer replaced; callers that want
// StartPosting's resolution work traced (timing, tenant/ad attributes) wire
// a real core.Tracer in here instead of the default no-op.
func (b *Broadcast) WithTracer(t core.Tracer) *Broadcast {
	if t != nil {
		b.tracer = t
	}
	return b
}

// Name identifies this component in process-level logs and descriptors.
func (b *Broadcast) Name() string { return "broadcast-orchestrator" }

// Descriptor advertises this component's architectural placement, the way
// the teacher's automation.Service exposes a core.Descriptor for operator
// tooling to introspect without touching runtime behavior.
func (b *Broadcast) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   b.Name(),
		Domain: "broadcast",
		Layer:  core.LayerEngine,
	}.WithCapabilities("start-posting", "stop-job", "pause-job", "resume-job", "retry-failed-groups", "delete-from-groups")
}

// StartPosting resolves a tenant's usable, connectable sessions and their
// deliverable groups for adID, persists a Post row, and hands it to the
// engine's round loop (spec.md §4.1).
func (b *Broadcast) StartPosting(ctx context.Context, tenantID, adID string) (job *engine.Job, err error) {
	ctx, finish := b.tracer.StartSpan(ctx, "orchestrator.StartPosting", map[string]string{"tenant_id": tenantID, "ad_id": adID})
	defer func() { finish(err) }()

	tenantID = strings.TrimSpace(tenantID)
	adID = strings.TrimSpace(adID)
	if tenantID == "" {
		return nil, svcerr.InvalidInput("tenantId is required")
	}
	if adID == "" {
		return nil, svcerr.InvalidInput("adId is required")
	}

	t, err := b.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	a, err := b.repo.GetAd(ctx, adID)
	if err != nil {
		return nil, err
	}
	if a.TenantID != tenantID {
		return nil, svcerr.InvalidInput(fmt.Sprintf("ad %q does not belong to tenant %q", adID, tenantID))
	}
	if strings.TrimSpace(a.Content) == "" {
		return nil, svcerr.InvalidInput("ad content is empty")
	}

	if running := b.runningJobForAd(tenantID, adID); running != nil {
		return nil, svcerr.AlreadyRunning(fmt.Sprintf("ad %q already has a running job (%s)", adID, running.ID))
	}

	candidates, err := b.repo.ListUsableSessions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var connected []session.Session
	var groups []group.Group
	for _, s := range candidates {
		if !b.eng.EnsureConnected(ctx, s) {
			continue
		}
		connected = append(connected, s)
		sessionGroups, gerr := b.repo.ListDeliverableGroups(ctx, s.ID)
		if gerr != nil {
			b.log.WithField("session_id", s.ID).WithError(gerr).Warn("list deliverable groups failed")
			continue
		}
		groups = append(groups, sessionGroups...)
	}
	if len(connected) == 0 {
		return nil, svcerr.NoUsableSession(fmt.Sprintf("no usable session could connect for tenant %q", tenantID))
	}

	groups = filterSelectedGroups(groups, a.SelectedGroups)
	if a.UsePriorityGrps || t.UsePriorityGrps {
		groups = filterPriority(groups)
	}
	if len(groups) == 0 {
		return nil, svcerr.NoDeliverableGroup(fmt.Sprintf("no deliverable group found for ad %q", adID))
	}

	p := post.Post{
		AdID:           a.ID,
		TenantID:       t.ID,
		PrimarySession: connected[0].ID,
		Status:         post.StatusInProgress,
		TotalGroups:    len(groups),
	}
	p, err = b.repo.CreatePost(ctx, p)
	if err != nil {
		return nil, err
	}

	job = b.eng.StartJob(ctx, t, a, p, connected, groups)
	b.log.WithField("job_id", job.ID).WithField("tenant_id", tenantID).WithField("ad_id", adID).
		WithField("sessions", len(connected)).WithField("groups", len(groups)).Info("broadcast job started")
	return job, nil
}

func (b *Broadcast) runningJobForAd(tenantID, adID string) *engine.Job {
	for _, j := range b.eng.JobsByTenant(tenantID) {
		if j.AdID != adID {
			continue
		}
		switch j.Status() {
		case engine.StatusRunning, engine.StatusPaused:
			return j
		}
	}
	return nil
}

// filterSelectedGroups intersects groups with selected, unless selected is
// empty (meaning "all deliverable groups", per spec.md §4.5).
func filterSelectedGroups(groups []group.Group, selected []string) []group.Group {
	if len(selected) == 0 {
		return groups
	}
	want := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}
	out := groups[:0:0]
	for _, g := range groups {
		if _, ok := want[g.ID]; ok {
			out = append(out, g)
		}
	}
	return out
}

func filterPriority(groups []group.Group) []group.Group {
	out := groups[:0:0]
	for _, g := range groups {
		if g.IsPriority {
			out = append(out, g)
		}
	}
	return out
}

// StopJob, PauseJob, ResumeJob flip the corresponding sticky/idempotent
// request flag (spec.md §4.1).
func (b *Broadcast) StopJob(jobID string) error {
	j, ok := b.eng.Job(jobID)
	if !ok {
		return svcerr.NotFound("job", jobID)
	}
	j.RequestStop()
	return nil
}

func (b *Broadcast) PauseJob(jobID string) error {
	j, ok := b.eng.Job(jobID)
	if !ok {
		return svcerr.NotFound("job", jobID)
	}
	j.RequestPause()
	return nil
}

func (b *Broadcast) ResumeJob(jobID string) error {
	j, ok := b.eng.Job(jobID)
	if !ok {
		return svcerr.NotFound("job", jobID)
	}
	j.RequestResume()
	return nil
}

// GetJob, GetUserJobs, GetJobStats, GetJobLogs are read-only snapshot
// accessors (spec.md §4.1).
func (b *Broadcast) GetJob(jobID string) (*engine.Job, error) {
	j, ok := b.eng.Job(jobID)
	if !ok {
		return nil, svcerr.NotFound("job", jobID)
	}
	return j, nil
}

func (b *Broadcast) GetUserJobs(tenantID string) []*engine.Job {
	return b.eng.JobsByTenant(tenantID)
}

func (b *Broadcast) GetJobStats(jobID string) (engine.Stats, error) {
	j, ok := b.eng.Job(jobID)
	if !ok {
		return engine.Stats{}, svcerr.NotFound("job", jobID)
	}
	return j.Stats(), nil
}

// GetJobLogs returns a job's log tail, bounded against that job's own
// ring-buffer capacity rather than a fixed listing constant: limit <= 0
// defaults to a fifth of the job's configured cap, and a limit above the
// cap clamps to it, since nothing past the job's own retention has survived
// to return anyway (spec.md §6's per-job ring buffer, not a generic
// pagination limit shared across unrelated read APIs).
func (b *Broadcast) GetJobLogs(jobID string, limit int) ([]engine.LogEntry, error) {
	j, ok := b.eng.Job(jobID)
	if !ok {
		return nil, svcerr.NotFound("job", jobID)
	}
	logs := j.Logs()

	cap := j.LogCapacity()
	if cap <= 0 {
		cap = defaultJobLogCap
	}
	defaultPage := cap / 5
	if defaultPage <= 0 {
		defaultPage = cap
	}
	switch {
	case limit <= 0:
		limit = defaultPage
	case limit > cap:
		limit = cap
	}

	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

// defaultJobLogCap backstops GetJobLogs for the degenerate case of a job
// whose engine.Config left MaxJobLogEntries unset.
const defaultJobLogCap = 100

// CleanupJob removes a Stopped or Completed job's in-memory entry.
func (b *Broadcast) CleanupJob(jobID string) error {
	if err := b.eng.Cleanup(jobID); err != nil {
		return svcerr.AlreadyRunning(err.Error())
	}
	return nil
}
