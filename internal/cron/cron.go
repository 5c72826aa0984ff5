package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailgovernor/interfaces"
	cron_config "github.com/customeros/mailgovernor/internal/cron/config"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
)

// CONSTANTS
const (
	// GroupAccounts serializes jobs that rewrite account counters and limits
	GroupAccounts = "accounts"
	// GroupDomains serializes DNS and reputation lookups
	GroupDomains = "domains"
	GroupABTests = "abtests"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	leaseName = "governor-cron-leader"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupAccounts: new(sync.Mutex),
		GroupDomains:  new(sync.Mutex),
		GroupABTests:  new(sync.Mutex),
	},
}

// Jobs are the services driven on a schedule.
type Jobs struct {
	Health  interfaces.HealthService
	Warmup  interfaces.WarmupService
	Domain  interfaces.DomainService
	ABTests interfaces.ABTestService
}

type CronManager struct {
	cfg      *cron_config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	jobs     Jobs
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, k8s kubernetes.Interface, jobs Jobs) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		jobs:   jobs,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      leaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Failed to start crons as leader: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}
		le.Run(context.Background())
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

type job struct {
	name     string
	schedule string
	group    string
	run      func(ctx context.Context) error
}

func (cm *CronManager) scheduledJobs() []job {
	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	return []job{
		{"heartbeat", cm.cfg.CronScheduleHeartbeat, "", func(context.Context) error {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
			return nil
		}},
		{"health_refresh", cm.cfg.CronScheduleHealthRefresh, GroupAccounts, cm.refreshHealth},
		{"warmup_advance", cm.cfg.CronScheduleWarmupAdvance, GroupAccounts, cm.advanceWarmup},
		{"domain_reverify", cm.cfg.CronScheduleDomainReverify, GroupDomains, cm.reverifyDomains},
		{"abtest_evaluate", cm.cfg.CronScheduleABTestEvaluate, GroupABTests, cm.evaluateABTests},
		{"reputation_scan", cm.cfg.CronScheduleReputationScan, GroupDomains, cm.scanReputation},
	}
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	for _, j := range cm.scheduledJobs() {
		if j.schedule == "" {
			continue
		}
		j := j
		id, err := c.AddFunc(j.schedule, func() { cm.runJob(j) })
		if err != nil {
			return errors.Wrapf(err, "could not add %s cron job", j.name)
		}
		cm.jobIDs[j.name] = id
		cm.log.Infof("Registered %s job with schedule: %s", j.name, j.schedule)
	}
	return nil
}

func (cm *CronManager) runJob(j job) {
	defer tracing.RecoverAndLogToJaeger(cm.log)
	if lock, ok := jobLocks.locks[j.group]; ok {
		lock.Lock()
		defer lock.Unlock()
	}

	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager."+j.name)
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := j.run(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Cron job %s failed: %v", j.name, err)
	}
}

func (cm *CronManager) refreshHealth(ctx context.Context) error {
	if cm.jobs.Health == nil {
		return nil
	}
	queued, err := cm.jobs.Health.RecomputeAll(ctx)
	if err != nil {
		return err
	}
	cm.log.Infof("Recomputed health for %d accounts", queued)
	return nil
}

func (cm *CronManager) advanceWarmup(ctx context.Context) error {
	if cm.jobs.Warmup == nil {
		return nil
	}
	advanced, err := cm.jobs.Warmup.Advance(ctx)
	if err != nil {
		return err
	}
	cm.log.Infof("Advanced warmup for %d accounts", advanced)
	return nil
}

func (cm *CronManager) reverifyDomains(ctx context.Context) error {
	if cm.jobs.Domain == nil {
		return nil
	}
	count, err := cm.jobs.Domain.ReverifyStale(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		cm.log.Infof("Re-verified %d stale domains", count)
	}
	return nil
}

func (cm *CronManager) evaluateABTests(ctx context.Context) error {
	if cm.jobs.ABTests == nil {
		return nil
	}
	decided, err := cm.jobs.ABTests.EvaluateRunning(ctx)
	if err != nil {
		return errors.Wrap(err, "evaluate running tests")
	}
	expired, err := cm.jobs.ABTests.ExpireOverdue(ctx)
	if err != nil {
		return errors.Wrap(err, "expire overdue tests")
	}
	if decided+expired > 0 {
		cm.log.Infof("A/B tests decided: %d, expired: %d", decided, expired)
	}
	return nil
}

func (cm *CronManager) scanReputation(ctx context.Context) error {
	if cm.jobs.Domain == nil {
		return nil
	}
	return cm.jobs.Domain.ScanAllReputations(ctx)
}
