package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaxongr/reklamabot/internal/clock"
	"github.com/jaxongr/reklamabot/internal/core"
	"github.com/jaxongr/reklamabot/internal/domain/session"
	"github.com/jaxongr/reklamabot/internal/domain/tenant"
	"github.com/jaxongr/reklamabot/internal/storage/memory"
)

// coreObservationHooks records the loop name on start and on completion,
// into started/completed respectively, for asserting the hooks actually fire.
func coreObservationHooks(started, completed *[]string) core.ObservationHooks {
	return core.ObservationHooks{
		OnStart: func(_ context.Context, meta map[string]string) {
			*started = append(*started, meta["loop"])
		},
		OnComplete: func(_ context.Context, meta map[string]string, _ error, _ time.Duration) {
			*completed = append(*completed, meta["loop"])
		},
	}
}

func TestExpireSubscriptionsHourly(t *testing.T) {
	store := memory.New()
	now := time.Now()
	clk := clock.NewFake(now)
	ctx := context.Background()

	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, nil, nil, nil)
	_, err := store.UpdateSubscription(ctx, tenant.Subscription{
		TenantID: "t1",
		Status:   tenant.SubscriptionActive,
		EndDate:  now.Add(-time.Hour),
	})
	require.NoError(t, err)

	loops := New(store, clk, nil)
	stop, err := loops.Start()
	require.NoError(t, err)
	defer stop()

	clk.Fire(ctx, clock.EveryHour)

	sub, err := store.GetSubscription(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, tenant.SubscriptionExpired, sub.Status)
}

func TestExpirePaymentsEverySixHours(t *testing.T) {
	store := memory.New()
	now := time.Now()
	clk := clock.NewFake(now)
	ctx := context.Background()

	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, nil, nil, nil)
	_, err := store.CreatePayment(ctx, tenant.Payment{
		ID:        "p1",
		TenantID:  "t1",
		Status:    tenant.PaymentPending,
		AmountDue: 1000,
		CreatedAt: now.Add(-(PaymentExpiry + time.Hour)),
	})
	require.NoError(t, err)

	loops := New(store, clk, nil)
	stop, err := loops.Start()
	require.NoError(t, err)
	defer stop()

	clk.Fire(ctx, clock.EveryNHours(6))

	pending, err := store.ListPendingPaymentsOlderThan(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestThawFrozenSessionsSkipsBanned(t *testing.T) {
	store := memory.New()
	now := time.Now()
	clk := clock.NewFake(now)
	ctx := context.Background()

	frozenActive := session.Session{
		ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok",
		IsFrozen: true, UnfreezeAt: now.Add(-(FrozenSessionGrace + time.Hour)),
	}
	frozenBanned := session.Session{
		ID: "s2", TenantID: "t1", Status: session.StatusBanned, SessionString: "tok",
		IsFrozen: true, UnfreezeAt: now.Add(-(FrozenSessionGrace + time.Hour)),
	}
	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, []session.Session{frozenActive, frozenBanned}, nil, nil)

	loops := New(store, clk, nil)
	stop, err := loops.Start()
	require.NoError(t, err)
	defer stop()

	clk.Fire(ctx, clock.DailyAt(3, 0))

	s1, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, s1.IsFrozen)
	assert.True(t, s1.UnfreezeAt.IsZero())

	s2, err := store.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, s2.IsFrozen)
	assert.Equal(t, session.StatusBanned, s2.Status)
}

func TestObservationHooksFireAroundEachTick(t *testing.T) {
	store := memory.New()
	now := time.Now()
	clk := clock.NewFake(now)
	ctx := context.Background()

	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, nil, nil, nil)

	var started, completed []string
	loops := New(store, clk, nil).WithObservationHooks(coreObservationHooks(&started, &completed))
	stop, err := loops.Start()
	require.NoError(t, err)
	defer stop()

	clk.Fire(ctx, clock.EveryHour)

	assert.Equal(t, []string{"expire-subscriptions"}, started)
	assert.Equal(t, []string{"expire-subscriptions"}, completed)
}

func TestRollUpDailyStatistics(t *testing.T) {
	store := memory.New()
	now := time.Now()
	clk := clock.NewFake(now)
	ctx := context.Background()

	sess := session.Session{ID: "s1", TenantID: "t1", Status: session.StatusActive, SessionString: "tok", ActiveGroups: 4}
	store.Seed([]tenant.Tenant{{ID: "t1", Name: "acme"}}, []session.Session{sess}, nil, nil)

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(-24 * time.Hour)
	_, err := store.CreatePayment(ctx, tenant.Payment{
		ID:        "p1",
		TenantID:  "t1",
		Status:    tenant.PaymentApproved,
		AmountDue: 2500,
		CreatedAt: day,
		UpdatedAt: day.Add(time.Hour),
	})
	require.NoError(t, err)

	loops := New(store, clk, nil)
	stop, err := loops.Start()
	require.NoError(t, err)
	defer stop()

	clk.Fire(ctx, clock.DailyAt(0, 0))

	got, err := store.GetDailyStatistics(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ActiveSessions)
	assert.Equal(t, 1, got.ActiveTenants)
	assert.EqualValues(t, 4, got.GroupsReached)
	assert.EqualValues(t, 2500, got.RevenueCents)
}
