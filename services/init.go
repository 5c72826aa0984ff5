package services

import (
	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/interfaces"
	"github.com/customeros/mailgovernor/internal/cache"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/repository"
	"github.com/customeros/mailgovernor/services/abtest"
	"github.com/customeros/mailgovernor/services/account"
	"github.com/customeros/mailgovernor/services/ai"
	"github.com/customeros/mailgovernor/services/alerts"
	"github.com/customeros/mailgovernor/services/content"
	"github.com/customeros/mailgovernor/services/delivery"
	"github.com/customeros/mailgovernor/services/domain"
	"github.com/customeros/mailgovernor/services/events"
	"github.com/customeros/mailgovernor/services/health"
	"github.com/customeros/mailgovernor/services/rotation"
	"github.com/customeros/mailgovernor/services/sending"
	"github.com/customeros/mailgovernor/services/storage"
	"github.com/customeros/mailgovernor/services/transport"
	"github.com/customeros/mailgovernor/services/warmup"
)

type Services struct {
	EventsService    *events.EventsService
	AccountService   interfaces.AccountService
	HealthService    interfaces.HealthService
	WarmupService    interfaces.WarmupService
	RotationService  interfaces.RotationService
	DomainService    interfaces.DomainService
	ContentService   interfaces.ContentService
	DeliveryService  interfaces.DeliveryService
	ABTestService    interfaces.ABTestService
	AlertService     interfaces.AlertService
	SendingService   interfaces.SendingService
	TransportService interfaces.TransportService
	AIService        interfaces.AIService
	// StorageService is nil when no R2 bucket is configured.
	StorageService interfaces.StorageService
}

// InitServices builds the governor components. scoreCache may be nil.
func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, scoreCache cache.HealthScoreCache, m *metrics.Metrics) (*Services, error) {
	// events
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	subscriberConfig := &events.SubscriberConfig{
		MaxRetries:          events.DefaultMaxRetries,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig, subscriberConfig)
	if err != nil {
		return nil, err
	}
	publisher := eventsService.Publisher

	var storageService interfaces.StorageService
	if cfg.R2StorageConfig.Enabled() {
		storageService, err = storage.NewR2StorageService(cfg.R2StorageConfig)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("R2 storage not configured, webhook payloads will not be archived")
	}

	governor := cfg.GovernorConfig

	alertService := alerts.NewAlertService(log, repos, publisher, m, governor)
	healthService := health.NewHealthService(log, repos, scoreCache, alertService, m, cfg.AppConfig.WorkerCount, cfg.AppConfig.QueueSize)
	rotationService := rotation.NewRotationService(log, repos, scoreCache, m)
	abTestService := abtest.NewABTestService(log, repos, rotationService, publisher, governor)
	contentService := content.NewContentService(log, repos, m)
	transportService := transport.NewTransportService(log, cfg.TransportConfig)

	services := Services{
		EventsService:    eventsService,
		AccountService:   account.NewAccountService(log, repos, governor, healthService),
		HealthService:    healthService,
		WarmupService:    warmup.NewWarmupService(log, repos),
		RotationService:  rotationService,
		ContentService:   contentService,
		ABTestService:    abTestService,
		AlertService:     alertService,
		TransportService: transportService,
		AIService:        ai.NewAIService(log, cfg.AIConfig),
		StorageService:   storageService,
		DomainService: domain.NewDomainService(log, repos, cfg.DNSConfig, domain.Dependencies{
			Resolver:  domain.NewDNSResolver(cfg.DNSConfig.Resolver, cfg.DNSConfig.LookupTimeout),
			Scanner:   domain.NewReputationScanner(),
			Health:    healthService,
			Alerts:    alertService,
			Publisher: publisher,
			Metrics:   m,
		}),
		DeliveryService: delivery.NewDeliveryService(log, repos, governor, delivery.Dependencies{
			Health:    healthService,
			Alerts:    alertService,
			Variants:  abTestService,
			Publisher: publisher,
			Metrics:   m,
		}),
		SendingService: sending.NewDispatcher(log, repos, governor, sending.Dependencies{
			Rotation:  rotationService,
			ABTests:   abTestService,
			Content:   contentService,
			Transport: transportService,
			Metrics:   m,
		}),
	}

	return &services, nil
}
