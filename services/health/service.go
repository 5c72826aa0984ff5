package health

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/cache"
	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/internal/utils"
)

type healthService struct {
	log     logger.Logger
	repos   *repository.Repositories
	cache   cache.HealthScoreCache
	alerts  interfaces.AlertService
	metrics *metrics.Metrics
	workers int

	queue   chan string
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewHealthService returns the scorer. Scheduled recomputes are buffered in a
// queue of queueSize and drained by workers once Run is called.
func NewHealthService(log logger.Logger, repos *repository.Repositories, scoreCache cache.HealthScoreCache, alerts interfaces.AlertService, m *metrics.Metrics, workers, queueSize int) interfaces.HealthService {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &healthService{
		log:     log,
		repos:   repos,
		cache:   scoreCache,
		alerts:  alerts,
		metrics: m,
		workers: workers,
		queue:   make(chan string, queueSize),
		pending: make(map[string]struct{}),
	}
}

func (s *healthService) Recompute(ctx context.Context, accountID string) (*dto.HealthResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealthService.Recompute")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := s.repos.SendingAccountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("health recompute", "account", accountID, err)
	}

	result := Score(InputsFor(account))
	result.AccountID = account.ID
	span.LogFields(tracingLog.Int("result.score", result.Score), tracingLog.String("result.status", result.Status.String()))

	err = s.repos.SendingAccountRepository.UpdateHealth(ctx, account.ID, result.Score, result.Status, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, repository.ServiceError("health recompute", "account", accountID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, account.ID, result.Score); err != nil {
			// selection falls back to the persisted score
			s.log.Warnf("failed to cache health score for %s: %v", account.ID, err)
		}
	}

	if s.alerts != nil {
		account.HealthScore = result.Score
		account.HealthStatus = result.Status
		if _, err := s.alerts.Evaluate(ctx, account); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("alert evaluation failed for %s: %v", account.ID, err)
		}
	}

	return &result, nil
}

// RecomputeAll refreshes every account and reports how many succeeded.
func (s *healthService) RecomputeAll(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealthService.RecomputeAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.repos.SendingAccountRepository.List(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, governor_errors.NewPersistenceError("health recompute all", err)
	}

	done := 0
	for _, account := range accounts {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.Recompute(ctx, account.ID); err != nil {
			s.log.Errorf("health recompute failed for %s: %v", account.ID, err)
			continue
		}
		done++
	}
	span.LogFields(tracingLog.Int("result.recomputed", done))
	return done, nil
}

// Schedule never blocks. An account already waiting in the queue is not
// queued twice; a full queue drops the request and the periodic tick catches up.
func (s *healthService) Schedule(accountID string) bool {
	if accountID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[accountID]; ok {
		return true
	}

	select {
	case s.queue <- accountID:
		s.pending[accountID] = struct{}{}
		return true
	default:
		s.metrics.ObserveHealthQueueDrop()
		s.log.Warnf("health queue full, dropping recompute for %s", accountID)
		return false
	}
}

// Run drains the queue with the configured number of workers until ctx is done.
func (s *healthService) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx)
		}()
	}
	wg.Wait()
}

func (s *healthService) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case accountID := <-s.queue:
			s.mu.Lock()
			delete(s.pending, accountID)
			s.mu.Unlock()
			s.recomputeQueued(ctx, accountID)
		}
	}
}

func (s *healthService) recomputeQueued(ctx context.Context, accountID string) {
	defer tracing.RecoverAndLogToJaeger(s.log)

	span, ctx := tracing.StartTracerSpan(ctx, "HealthService.recomputeQueued")
	defer span.Finish()
	tracing.TagAccount(span, accountID)

	if _, err := s.Recompute(ctx, accountID); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("queued health recompute failed for %s: %v", accountID, err)
	}
}
