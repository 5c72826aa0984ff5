package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailgovernor/api"
	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/internal/cache"
	"github.com/customeros/mailgovernor/internal/cron"
	"github.com/customeros/mailgovernor/internal/listeners"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/services"
	"github.com/customeros/mailgovernor/services/events"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	redis        *redis.Client
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, governorDB *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	repos := repository.InitRepositories(governorDB)

	var scoreCache cache.HealthScoreCache
	redisClient, err := cache.NewRedisClient(context.Background(), cfg.RedisConfig.URL)
	if err != nil {
		appLogger.Warnf("Redis unavailable, health scores will be read from the database: %v", err)
	} else {
		scoreCache = cache.NewRedisHealthScoreCache(redisClient, cfg.RedisConfig.HealthScoreTTL)
	}

	svcs, err := services.InitServices(cfg, appLogger, repos, scoreCache, m)
	if err != nil {
		return nil, err
	}

	cronManager := cron.NewCronManager(cfg.CronConfig, appLogger, kubernetesClient(appLogger), cron.Jobs{
		Health:  svcs.HealthService,
		Warmup:  svcs.WarmupService,
		Domain:  svcs.DomainService,
		ABTests: svcs.ABTestService,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		registry:     registry,
		metrics:      m,
		redis:        redisClient,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster; crons then run without leader election.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Initialize(ctx context.Context) error {
	if subscriber := s.services.EventsService.Subscriber; subscriber != nil {
		s.log.Info("Registering delivery event listener...")
		subscriber.RegisterListener(listeners.NewDeliveryEventListener(s.log, s.services.DeliveryService))
		if err := subscriber.ListenQueue(events.QueueDeliveryEvents); err != nil {
			return errors.Wrap(err, "failed to listen on delivery events queue")
		}
	}

	api.RegisterRoutes(s.router, s.services, s.log, api.RouteConfig{
		App:      s.config.AppConfig,
		Metrics:  s.metrics,
		Gatherer: s.registry,
	})

	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	go s.wrapGoroutine("health_workers", func() {
		s.services.HealthService.Run(ctx)
	})

	podName, namespace := os.Getenv("POD_NAME"), os.Getenv("POD_NAMESPACE")
	if err := s.cronManager.Start(podName, namespace); err != nil {
		return errors.Wrap(err, "failed to start cron manager")
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Mail governor is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown(cancel)
}

func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.log.Info("HTTP server shut down successfully")
	}

	s.cronManager.Stop()
	// stops the health workers
	cancel()

	if err := s.services.EventsService.Close(); err != nil {
		s.log.Errorf("Events shutdown error: %v", err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warnf("Redis close error: %v", err)
		}
	}
	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}

	return nil
}
