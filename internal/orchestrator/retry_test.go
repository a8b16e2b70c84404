package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/group"
	"github.com/jaxongr/reklamabot/internal/domain/post"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/svcerr"
)

func seedRetryScenario(store interface {
	CreatePost(ctx context.Context, p post.Post) (post.Post, error)
	RecordHistory(ctx context.Context, h post.History) (post.History, error)
}) post.Post {
	p, _ := store.CreatePost(context.Background(), post.Post{
		AdID: "ad1", TenantID: "t1", PrimarySession: "s1",
		Status: post.StatusCompleted, TotalGroups: 2, FailedGroups: 1,
	})
	_, _ = store.RecordHistory(context.Background(), post.History{
		PostID: p.ID, GroupID: "g1", SessionID: "s1", Status: post.HistoryFailed, ErrorReason: "flood wait",
	})
	_, _ = store.RecordHistory(context.Background(), post.History{
		PostID: p.ID, GroupID: "g2", SessionID: "s1", Status: post.HistorySent, MessageID: "msg-1",
	})
	return p
}

func TestRetryFailedGroups_Success(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)
	p := seedRetryScenario(store)

	job, err := b.RetryFailedGroups(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "t1", job.TenantID)
	assert.Equal(t, "ad1", job.AdID)
	job.RequestStop()
}

func TestRetryFailedGroups_NoFailedHistory(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)
	p, err := store.CreatePost(context.Background(), post.Post{AdID: "ad1", TenantID: "t1", PrimarySession: "s1", Status: post.StatusCompleted})
	require.NoError(t, err)

	_, err = b.RetryFailedGroups(context.Background(), p.ID)
	require.Error(t, err)
	svcErr, ok := err.(*svcerr.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerr.CodeNoDeliverableGrp, svcErr.Code)
}

func TestRetryFailedGroups_NoUsableSession(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	ten := tenant.Tenant{ID: "t1", Name: "acme"}
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusBanned, SessionString: "tok"}
	a := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive}
	store.Seed([]tenant.Tenant{ten}, []session.Session{sess}, nil, []ad.Ad{a})
	p := seedRetryScenario(store)

	_, err := b.RetryFailedGroups(context.Background(), p.ID)
	require.Error(t, err)
	svcErr, ok := err.(*svcerr.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerr.CodeNoUsableSession, svcErr.Code)
}

func TestRetryFailedGroups_NoneDeliverableNow(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	ten := tenant.Tenant{ID: "t1", Name: "acme"}
	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok"}
	a := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive}
	// g1 is no longer active, so it won't show up as deliverable anymore.
	groups := []group.Group{{ID: "g1", SessionID: "s1", PlatformID: "p1", IsActive: false}}
	store.Seed([]tenant.Tenant{ten}, []session.Session{sess}, groups, []ad.Ad{a})
	p := seedRetryScenario(store)

	_, err := b.RetryFailedGroups(context.Background(), p.ID)
	require.Error(t, err)
	svcErr, ok := err.(*svcerr.ServiceError)
	require.True(t, ok)
	assert.Equal(t, svcerr.CodeNoDeliverableGrp, svcErr.Code)
}

func TestRetryFailedGroups_PostNotFound(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	_, err := b.RetryFailedGroups(context.Background(), "no-such-post")
	assert.Error(t, err)
}

func TestDeleteFromGroups_BestEffort(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)
	p := seedRetryScenario(store)

	// A second sent row with no MessageID must be skipped, not counted.
	_, err := store.RecordHistory(context.Background(), post.History{
		PostID: p.ID, GroupID: "g1", SessionID: "s1", Status: post.HistorySent,
	})
	require.NoError(t, err)

	attempted, failed, err := b.DeleteFromGroups(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 0, failed)
}

func TestDeleteFromGroups_UnknownPost(t *testing.T) {
	b, store, _ := newTestBroadcast(t)
	seedBasics(store)

	_, _, err := b.DeleteFromGroups(context.Background(), "no-such-post")
	assert.Error(t, err)
}
