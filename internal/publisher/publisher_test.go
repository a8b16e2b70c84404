package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/domain/ad"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/storage/memory"
)

func TestTickPromotesDueScheduledAd(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	due := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusPaused, IsScheduled: true, ScheduledFor: now.Add(-time.Minute)}
	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, nil, nil, []ad.Ad{due})

	var started []string
	pub := New(store, clk, nil, func(_ context.Context, tenantID, adID string) error {
		started = append(started, tenantID+"/"+adID)
		return nil
	})

	stop, err := pub.Run()
	require.NoError(t, err)
	defer stop()

	clk.Fire(context.Background(), clock.EveryMinute)

	assert.Equal(t, []string{"t1/ad1"}, started)

	got, err := store.GetAd(context.Background(), "ad1")
	require.NoError(t, err)
	assert.Equal(t, ad.StatusActive, got.Status)
	assert.Empty(t, got.LastError)
	assert.Equal(t, now, got.LastScheduledAt)
}

func TestTickPausesAdOnStartFailure(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	due := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive, IsScheduled: true, ScheduledFor: now.Add(-time.Minute)}
	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, nil, nil, []ad.Ad{due})

	pub := New(store, clk, nil, func(context.Context, string, string) error {
		return errors.New("no usable session")
	})

	stop, err := pub.Run()
	require.NoError(t, err)
	defer stop()

	clk.Fire(context.Background(), clock.EveryMinute)

	got, err := store.GetAd(context.Background(), "ad1")
	require.NoError(t, err)
	assert.Equal(t, ad.StatusPaused, got.Status)
	assert.Equal(t, "no usable session", got.LastError)
}

func TestTickIgnoresNotYetDueAds(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	notDue := ad.Ad{ID: "ad1", TenantID: "t1", Content: "buy now", Status: ad.StatusActive, IsScheduled: true, ScheduledFor: now.Add(time.Hour)}
	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, nil, nil, []ad.Ad{notDue})

	called := false
	pub := New(store, clk, nil, func(context.Context, string, string) error {
		called = true
		return nil
	})

	stop, err := pub.Run()
	require.NoError(t, err)
	defer stop()

	clk.Fire(context.Background(), clock.EveryMinute)
	assert.False(t, called)
}
