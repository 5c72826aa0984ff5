package health

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/internal/cache"
	"github.com/customeros/mailgovernor/internal/enum"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/repository/repositorytest"
	"github.com/customeros/mailgovernor/internal/utils"
	"github.com/customeros/mailgovernor/services/alerts"
	"github.com/customeros/mailgovernor/services/events/eventstest"
)

type fixture struct {
	store   *repositorytest.Store
	cache   *cache.RedisHealthScoreCache
	metrics *metrics.Metrics
	svc     *healthService
}

func setup(t *testing.T, queueSize int) *fixture {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	log.InitLogger()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	scoreCache := cache.NewRedisHealthScoreCache(client, time.Hour)

	store, repos := repositorytest.New()
	m := metrics.New(prometheus.NewRegistry())
	alertService := alerts.NewAlertService(log, repos, eventstest.NewPublisher(), m, config.Defaults())
	svc := NewHealthService(log, repos, scoreCache, alertService, m, 2, queueSize).(*healthService)
	return &fixture{store: store, cache: scoreCache, metrics: m, svc: svc}
}

func TestRecompute_PersistsAndCaches(t *testing.T) {
	f := setup(t, 8)
	account := f.store.PutAccount(models.SendingAccount{
		Address:       "a@x.com",
		Status:        enum.AccountStatusActive,
		BounceRate:    utils.Ptr(0.02),
		ComplaintRate: utils.Ptr(0.0005),
		OpenRate:      utils.Ptr(0.40),
		SpfOk:         true,
		DkimOk:        true,
		DmarcOk:       true,
	})

	result, err := f.svc.Recompute(context.Background(), account.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Score, 90)
	assert.Equal(t, enum.HealthExcellent, result.Status)

	stored := f.store.Account(account.ID)
	assert.Equal(t, result.Score, stored.HealthScore)
	assert.Equal(t, enum.HealthExcellent, stored.HealthStatus)
	assert.NotNil(t, stored.HealthUpdatedAt)

	cached, ok, err := f.cache.Get(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, result.Score, cached)

	again, err := f.svc.Recompute(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Score, again.Score, "recompute is idempotent")
}

func TestRecompute_RaisesLowHealthAlert(t *testing.T) {
	f := setup(t, 8)
	account := f.store.PutAccount(models.SendingAccount{
		Address:       "a@x.com",
		BounceRate:    utils.Ptr(0.09),
		ComplaintRate: utils.Ptr(0.004),
		OpenRate:      utils.Ptr(0.02),
	})

	result, err := f.svc.Recompute(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Less(t, result.Score, 60)

	types := map[enum.AlertType]bool{}
	for _, a := range f.store.Alerts() {
		types[a.AlertType] = true
	}
	assert.True(t, types[enum.AlertLowHealthScore])
	assert.True(t, types[enum.AlertHighBounceRate])
	assert.True(t, types[enum.AlertHighComplaintRate])
}

func TestRecompute_Errors(t *testing.T) {
	f := setup(t, 8)

	_, err := f.svc.Recompute(context.Background(), "missing")
	assert.True(t, governor_errors.IsNotFound(err))

	account := f.store.PutAccount(models.SendingAccount{Address: "a@x.com"})
	f.store.FailWith(errors.New("db down"))
	_, err = f.svc.Recompute(context.Background(), account.ID)
	assert.True(t, governor_errors.IsPersistence(err))
}

func TestRecomputeAll(t *testing.T) {
	f := setup(t, 8)
	f.store.PutAccount(models.SendingAccount{Address: "a@x.com"})
	f.store.PutAccount(models.SendingAccount{Address: "b@x.com", OpenRate: utils.Ptr(0.5), BounceRate: utils.Ptr(0.0)})

	n, err := f.svc.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSchedule_DedupesAndDropsWhenFull(t *testing.T) {
	f := setup(t, 2)

	assert.True(t, f.svc.Schedule("a"))
	assert.True(t, f.svc.Schedule("a"), "already pending")
	assert.True(t, f.svc.Schedule("b"))
	assert.False(t, f.svc.Schedule("c"), "queue full")
	assert.False(t, f.svc.Schedule(""))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HealthQueueDropped))
	assert.Len(t, f.svc.queue, 2)
}

func TestRun_DrainsQueue(t *testing.T) {
	f := setup(t, 8)
	account := f.store.PutAccount(models.SendingAccount{Address: "a@x.com", OpenRate: utils.Ptr(0.4), BounceRate: utils.Ptr(0.0)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()

	require.True(t, f.svc.Schedule(account.ID))
	assert.Eventually(t, func() bool {
		return f.store.Account(account.ID).HealthUpdatedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
}
