package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/engine"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
	"github.com/jaxongr/reklamabot/internal/storage/memory"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

func newTestBroadcast(t *testing.T) (*Broadcast, *memory.Store, *sessionclient.Fake) {
	t.Helper()
	store := memory.New()
	fake := sessionclient.NewFake()
	clk := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	cfg := engine.DefaultConfig()
	cfg.MinGroupDelay = 0
	cfg.MaxGroupDelay = 0
	cfg.RoundPauseMs = 0
	cfg.LongPauseMin = 0
	cfg.LongPauseMax = 0
	eng := engine.New(store, fake, clk, cfg, nil, nil)
	return New(store, fake, eng, nil), store, fake
}

func seedBasics(store *memory.Store) (tenant.Tenant, session.Session, ad.Ad) {
	ten := tenant.Tenant{ID: "t1", Name: "acme"}
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	a := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
		{ID: "g2", SessionID: "s1", PlatformID: "p2", IsActive: true},
	}
	store.Seed([]tenant.Tenant{ten}, []session.Session{sess}, groups, []ad.Ad{a})
	return ten, sess, a
}

func TestStartPosting_Success(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	job, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "t1", job.TenantID)
	assert.Equal(t, "ad1", job.AdID)
	job.RequestStop()
}

func TestStartPosting_RejectsMissingTenantOrAd(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	_, err := b.StartPosting(context.Background(), "", "ad1")
	assert.Error(t, err)

	_, err = b.StartPosting(context.Background(), "t1", "")
	assert.Error(t, err)
}

func TestStartPosting_NoUsableSession(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	ten := tenant.Tenant{ID: "t1", Name: "acme"}
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusBanned, SessionString: "tok"}
	a := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive}
	store.Seed([]tenant.Tenant{ten}, []session.Session{sess}, nil, []ad.Ad{a})

	_, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.Error(t, err)
	svcErr, ok := err.(*svcerr.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerr.CodeNoUsableSession, svcErr.Code)
}

func TestStartPosting_NoDeliverableGroup(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	ten := tenant.Tenant{ID: "t1", Name: "acme"}
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	a := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive}
	store.Seed([]tenant.Tenant{ten}, []session.Session{sess}, nil, []ad.Ad{a})

	_, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.Error(t, err)
	svcErr, ok := err.(*svcerr.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerr.CodeNoDeliverableGrp, svcErr.Code)
}

func TestStartPosting_RejectsWhileAlreadyRunning(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	job, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.NoError(t, err)

	_, err = b.StartPosting(context.Background(), "t1", "ad1")
	require.Error(t, err)
	svcErr, ok := err.(*svcerr.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerr.CodeAlreadyRunning, svcErr.Code)

	job.RequestStop()
}

func TestStopPauseResumeJob(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	job, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.NoError(t, err)

	require.NoError(t, b.PauseJob(job.ID))
	assert.True(t, job.PauseRequested())

	require.NoError(t, b.ResumeJob(job.ID))
	assert.False(t, job.PauseRequested())

	require.NoError(t, b.StopJob(job.ID))
	assert.True(t, job.StopRequested())

	assert.Error(t, b.StopJob("no-such-job"))
}

func TestGetJobLogsClampsToLimit(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	job, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && job.RoundsCompleted() < 1 {
		time.Sleep(time.Millisecond)
	}
	job.RequestStop()

	logs, err := b.GetJobLogs(job.ID, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(logs), 1)

	_, err = b.GetJobLogs("no-such-job", 10)
	assert.Error(t, err)
}

func TestCleanupJobRefusesRunning(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	// The fake clock is never advanced here, so cancelling ctx is what wakes
	// the round loop's inter-round sleep once stop is requested.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job, err := b.StartPosting(ctx, "t1", "ad1")
	require.NoError(t, err)

	assert.Error(t, b.CleanupJob(job.ID))

	job.RequestStop()
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && job.Status() == engine.StatusRunning {
		time.Sleep(time.Millisecond)
	}
	assert.NoError(t, b.CleanupJob(job.ID))
}

func TestGetUserJobsFiltersByTenant(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)
	store.Seed([]tenant.Tenant{{ID: "t2", Name: "other"}}, nil, nil, nil)

	job, err := b.StartPosting(context.Background(), "t1", "ad1")
	require.NoError(t, err)

	jobs := b.GetUserJobs("t1")
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	assert.Empty(t, b.GetUserJobs("t2"))
	job.RequestStop()
}
