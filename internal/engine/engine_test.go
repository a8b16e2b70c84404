package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
	"github.com/jaxongr/reklamabot/internal/storage/memory"
)

// fixture bundles one tenant, one session, a handful of groups, an ad and a
// post, wired through a fresh memory.Store and sessionclient.Fake. Every
// scenario test starts from this and scripts Fake/Advances the fake clock
// from there.
type fixture struct {
	store  *memory.Store
	fake   *sessionclient.Fake
	clk    *clock.Fake
	eng    *PostingEngine
	tenant tenant.Tenant
	ad     ad.Ad
	post   post.Post
}

func newFixture(t *testing.T, cfg Config, sessions []session.Session, groups []group.Group) *fixture {
	t.Helper()
	store := memory.New()
	ten := tenant.Tenant{ID: "t1", Name: "acme"}
	a := ad.Ad{ID: "ad1", TenantID: ten.ID, Content: "buy now", Status: ad.StatusActive}
	store.Seed([]tenant.Tenant{ten}, sessions, groups, []ad.Ad{a})

	p := post.Post{ID: "post1", AdID: a.ID, TenantID: ten.ID, PrimarySession: sessions[0].ID, Status: post.StatusInProgress}
	_, err := store.CreatePost(context.Background(), p)
	require.NoError(t, err)
	p, err = store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)

	fake := sessionclient.NewFake()
	clk := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	eng := New(store, fake, clk, cfg, nil, nil)

	for _, s := range sessions {
		ok := eng.EnsureConnected(context.Background(), s)
		require.True(t, ok)
	}

	return &fixture{store: store, fake: fake, clk: clk, eng: eng, tenant: ten, ad: a, post: p}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinGroupDelay = 0
	cfg.MaxGroupDelay = 0
	cfg.RoundPauseMs = 0
	cfg.LongPauseMin = 0
	cfg.LongPauseMax = 0
	return cfg
}

func sessionIDSet(sessions []session.Session) map[string]struct{} {
	out := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		out[s.ID] = struct{}{}
	}
	return out
}

func waitForRounds(t *testing.T, job *Job, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if job.RoundsCompleted() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not complete %d rounds within %s (got %d)", job.ID, n, timeout, job.RoundsCompleted())
}

// S1: single-session happy round — every deliverable group gets a Sent
// history row and the job's stats reflect a full success.
func TestScenario_S1_SingleSessionHappyRound(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
		{ID: "g2", SessionID: "s1", PlatformID: "p2", IsActive: true},
		{ID: "g3", SessionID: "s1", PlatformID: "p3", IsActive: true},
	}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job, 1, time.Second)
	job.RequestStop()

	stats := job.Stats()
	assert.Equal(t, 3, stats.PostedGroups)
	assert.Equal(t, 0, stats.FailedGroups)
	assert.Equal(t, 0, stats.SkippedGroups)
	assert.Equal(t, 1.0, stats.SuccessRate())

	hist, err := f.store.ListHistoryByPost(context.Background(), f.post.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 3)
	for _, h := range hist {
		assert.Equal(t, post.HistorySent, h.Status)
	}
}

// S2: a small FloodWait(<=60) makes the driver sleep inline and keep going;
// it does not arm a session cooldown.
func TestScenario_S2_SmallFloodWaitSleepsInline(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
		{ID: "g2", SessionID: "s1", PlatformID: "p2", IsActive: true},
	}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)
	f.fake.ScriptSend("s1", "p1", sessionclient.Script{Err: sessionclient.FloodWait(5, nil)})

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)

	// Drain the fake clock until the round completes; the inline flood sleep
	// needs Advance to release.
	deadline := time.Now().Add(2 * time.Second)
	for job.RoundsCompleted() < 1 && time.Now().Before(deadline) {
		f.clk.Advance(5 * time.Second)
		time.Sleep(time.Millisecond)
	}
	job.RequestStop()

	stats := job.Stats()
	assert.Equal(t, 1, stats.PostedGroups)
	assert.Equal(t, 1, stats.FailedGroups)

	snap := f.eng.rs.Snapshot("s1")
	assert.True(t, snap.CooldownUntil.IsZero(), "small flood wait must not arm a cooldown")
}

// S3: a large FloodWait(>60) arms a session cooldown; the session's
// remaining groups this round are skipped via the cooldown check.
func TestScenario_S3_LargeFloodArmsCooldown(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
		{ID: "g2", SessionID: "s1", PlatformID: "p2", IsActive: true},
	}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)
	// The round shuffles its groups, so both are scripted to flood: whichever
	// is reached first arms the cooldown and the other is skipped.
	f.fake.ScriptSend("s1", "p1", sessionclient.Script{Err: sessionclient.FloodWait(300, nil)})
	f.fake.ScriptSend("s1", "p2", sessionclient.Script{Err: sessionclient.FloodWait(300, nil)})

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job, 1, time.Second)
	job.RequestStop()

	snap := f.eng.rs.Snapshot("s1")
	assert.False(t, snap.CooldownUntil.IsZero(), "large flood wait must arm a cooldown")

	stats := job.Stats()
	assert.Equal(t, 1, stats.FailedGroups)
	assert.Equal(t, 1, stats.SkippedGroups, "the rest of the round must be skipped once the cooldown is armed")
}

// S4: AuthRevoked on one session halts that session (drops its connection,
// future rounds skip it as not-connected) while a second session continues
// normally.
func TestScenario_S4_AuthRevokedHaltsOneSessionOthersContinue(t *testing.T) {
	sess1 := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok1"}
	sess2 := session.Session{ID: "s2", TenantID: "t1", Status: session.StatusActive, SessionString: "tok2"}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
		{ID: "g2", SessionID: "s2", PlatformID: "p2", IsActive: true},
	}
	f := newFixture(t, testConfig(), []session.Session{sess1, sess2}, groups)
	f.fake.ScriptSend("s1", "p1", sessionclient.Script{Err: sessionclient.AuthRevoked(nil)})

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess1, sess2}, groups)
	waitForRounds(t, job, 1, time.Second)
	job.RequestStop()

	_, connected := f.eng.handleFor("s1")
	assert.False(t, connected, "AuthRevoked must drop the session's connection")
	_, connected2 := f.eng.handleFor("s2")
	assert.True(t, connected2, "the unaffected session must remain connected")

	updated, err := f.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusBanned, updated.Status)
	assert.True(t, updated.IsFrozen)

	hist, err := f.store.ListHistoryByPost(context.Background(), f.post.ID)
	require.NoError(t, err)
	var sawSent, sawFailed bool
	for _, h := range hist {
		if h.GroupID == "g2" && h.Status == post.HistorySent {
			sawSent = true
		}
		if h.GroupID == "g1" && h.Status == post.HistoryFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawSent, "session s2 must still have delivered to g2")
	assert.True(t, sawFailed, "session s1's send to g1 must be recorded as failed")
}

// S5: a group still inside its post-cooldown window is skipped without a
// Send attempt.
func TestScenario_S5_GroupOnCooldownIsSkipped(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	cfg := testConfig()
	cfg.GroupCooldown = time.Hour
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true, LastPostAt: time.Date(2026, 1, 1, 8, 30, 0, 0, time.UTC)},
	}
	f := newFixture(t, cfg, []session.Session{sess}, groups)

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job, 1, time.Second)
	job.RequestStop()

	assert.Empty(t, f.fake.SendCalls(), "a group inside its cooldown window must never be sent to")
	stats := job.Stats()
	assert.Equal(t, 1, stats.SkippedGroups)
}

// S6: stop is sticky — once requested, the round loop halts even mid-round
// and never resumes, and the job settles into Stopped.
func TestScenario_S6_StopIsSticky(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
	}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job, 1, time.Second)
	job.RequestStop()

	// The loop is sleeping out its inter-round pause on the fake clock;
	// advancing it lets the loop reach its next stop check.
	deadline := time.Now().Add(time.Second)
	for job.Status() != StatusStopped && time.Now().Before(deadline) {
		f.clk.Advance(2 * time.Second)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StatusStopped, job.Status())

	roundsAtStop := job.RoundsCompleted()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, roundsAtStop, job.RoundsCompleted(), "a stopped job must never complete another round")
	assert.True(t, job.StopRequested())
}

// Invariant: pausing a job suspends delivery until resumed, without losing
// groups already in flight.
func TestPauseSuspendsDeliveryUntilResumed(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{
		{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true},
	}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job, 1, time.Second)
	job.RequestPause()

	deadline := time.Now().Add(3 * time.Second)
	for job.Status() != StatusPaused && time.Now().Before(deadline) {
		f.clk.Advance(5 * time.Second)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StatusPaused, job.Status())

	roundsAtPause := job.RoundsCompleted()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, roundsAtPause, job.RoundsCompleted())

	// The paused loop re-checks the flag after each 5s fake-clock sleep.
	job.RequestResume()
	deadline = time.Now().Add(2 * time.Second)
	for job.RoundsCompleted() < roundsAtPause+1 && time.Now().Before(deadline) {
		f.clk.Advance(5 * time.Second)
		time.Sleep(time.Millisecond)
	}
	require.GreaterOrEqual(t, job.RoundsCompleted(), roundsAtPause+1, "a resumed job must complete another round")
	job.RequestStop()
}

// Invariant: the Job log ring buffer trims to jobLogTrimTo once it exceeds
// MaxJobLogEntries, never observably growing past the hard cap.
func TestJobLogRingBufferTrims(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobLogEntries = 400 // spec.md §6: "≥ 300, default 500 trim-to 300"
	job := newJob("job1", "t1", "ad1", "post1", "s1", time.Now(), cfg)

	const appends = 401 // one past the cap, so the last append triggers the trim
	for i := 0; i < appends; i++ {
		job.appendLog(LogEntry{SessionID: "s1", GroupID: "g1", Status: post.HistorySent})
	}

	logs := job.Logs()
	assert.LessOrEqual(t, len(logs), cfg.MaxJobLogEntries)
	assert.Equal(t, jobLogTrimTo, len(logs), "trim must land exactly on jobLogTrimTo once triggered")
	assert.Equal(t, appends, job.Stats().PostedGroups, "trimming the log must not lose stat counts")
}

// Invariant: a MaxJobLogEntries cap smaller than jobLogTrimTo must never
// panic the trim — appendLog clamps trimTo down to the buffer's own length
// instead of slicing past the start.
func TestJobLogRingBufferTrimClampsBelowTrimTo(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobLogEntries = 10
	job := newJob("job1", "t1", "ad1", "post1", "s1", time.Now(), cfg)

	for i := 0; i < 25; i++ {
		job.appendLog(LogEntry{SessionID: "s1", GroupID: "g1", Status: post.HistorySent})
	}

	logs := job.Logs()
	assert.LessOrEqual(t, len(logs), jobLogTrimTo)
	assert.Equal(t, 25, job.Stats().PostedGroups, "trimming the log must not lose stat counts")
}

// Invariant: an engine-owned RateState cooldown, once armed by OnFlood,
// reports true from CooldownCheck until it elapses, then clears itself.
func TestRateStateCooldownLazilyClears(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true}}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)

	f.eng.rs.OnFlood("s1", 300, f.clk.Now())
	assert.True(t, f.eng.rs.CooldownCheck("s1", f.clk.Now()))

	later := f.clk.Now().Add(301 * time.Second)
	assert.False(t, f.eng.rs.CooldownCheck("s1", later))
}

// JobsByTenant must return only that tenant's jobs.
func TestJobsByTenantFiltersByTenant(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true}}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)

	job1 := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job1, 1, time.Second)
	job1.RequestStop()

	otherTenant := tenant.Tenant{ID: "t2"}
	job2 := f.eng.StartJob(context.Background(), otherTenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job2, 1, time.Second)
	job2.RequestStop()

	jobs := f.eng.JobsByTenant("t1")
	require.Len(t, jobs, 1)
	assert.Equal(t, job1.ID, jobs[0].ID)
}

// Cleanup refuses to remove a job that is still running, per spec.md's
// job lifecycle contract.
func TestCleanupRefusesRunningJob(t *testing.T) {
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	groups := []group.Group{{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: true}}
	f := newFixture(t, testConfig(), []session.Session{sess}, groups)

	job := f.eng.StartJob(context.Background(), f.tenant, f.ad, f.post, []session.Session{sess}, groups)
	waitForRounds(t, job, 1, time.Second)

	err := f.eng.Cleanup(job.ID)
	assert.Error(t, err)

	job.RequestStop()
	deadline := time.Now().Add(time.Second)
	for job.Status() != StatusStopped && time.Now().Before(deadline) {
		f.clk.Advance(2 * time.Second)
		time.Sleep(time.Millisecond)
	}
	assert.NoError(t, f.eng.Cleanup(job.ID))
	_, ok := f.eng.Job(job.ID)
	assert.False(t, ok)
}
