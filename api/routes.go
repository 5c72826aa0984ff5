package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/mailgovernor/api/handlers"
	"github.com/customeros/mailgovernor/api/middleware"
	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/metrics"
	"github.com/customeros/mailgovernor/internal/tracing"
	"github.com/customeros/mailgovernor/services"
)

const appSource = "mailgovernor"

type RouteConfig struct {
	App      *config.AppConfig
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, log logger.Logger, cfg RouteConfig) {
	if s == nil {
		panic("Services cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))
	r.Use(middleware.MetricsMiddleware(cfg.Metrics))

	h := handlers.InitHandlers(s, log)

	r.GET("/health", handlers.HealthCheck)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := middleware.NewRateLimiter(cfg.App.RateLimitRPS, cfg.App.RateLimitBurst)

	// provider callbacks
	webhooks := r.Group("")
	webhooks.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:     middleware.WebhookSecretHeader,
		ValidAPIKey:    cfg.App.WebhookSecret,
		AllowWhenUnset: true,
	}))
	webhooks.Use(limiter.Middleware())
	webhooks.Use(middleware.CustomContextMiddleware(appSource))
	webhooks.Use(middleware.TracingMiddleware())
	{
		webhooks.POST("/webhook", h.Delivery.Webhook())
		webhooks.POST("/inbound/postmark/dmarc", h.Postmark.DMARCMonitor())
	}

	api := r.Group("")
	api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: cfg.App.APIKey,
	}))
	api.Use(middleware.CustomContextMiddleware(appSource))
	api.Use(middleware.TracingMiddleware())
	{
		api.GET("/delivery-settings", h.Accounts.DeliverySettings())
		api.GET("/sending-limits/:accountId", h.Accounts.SendingLimits())

		api.POST("/verify-domain", h.Domains.VerifyDomain())
		api.POST("/verify-email-domain", h.Domains.VerifyEmailDomain())

		api.POST("/check-content", h.Content.CheckContent())
		api.POST("/check-content/narrative", h.Content.PlacementNarrative())

		api.POST("/send", h.Sending.Send())
		api.POST("/test-send", limiter.Middleware(), h.Sending.TestSend())

		api.GET("/events/:emailId", h.Delivery.ListEvents())

		spamWords := api.Group("/spam-words")
		{
			spamWords.GET("", h.Content.ListSpamWords())
			spamWords.POST("", h.Content.CreateSpamWord())
			spamWords.PATCH("/:id", h.Content.UpdateSpamWord())
		}

		accounts := api.Group("/accounts")
		{
			accounts.GET("", h.Accounts.List())
			accounts.POST("", h.Accounts.Create())
			accounts.GET("/:id", h.Accounts.Get())
			accounts.PATCH("/:id/status", h.Accounts.SetStatus())
			accounts.POST("/:id/warmup", h.Accounts.StartWarmup())
			accounts.POST("/:id/warmup/reset", h.Accounts.ResetWarmup())
			accounts.POST("/:id/health", h.Accounts.RecomputeHealth())
			accounts.GET("/:id/narrative", h.Accounts.Narrative())
		}

		domains := api.Group("/domains")
		{
			domains.GET("", h.Domains.List())
			domains.GET("/:domain", h.Domains.Get())
			domains.POST("/:domain/reputation-scan", h.Domains.ScanReputation())
		}

		dmarc := api.Group("/dmarc-reports")
		{
			dmarc.GET("", h.Domains.ListDMARCReports())
			dmarc.POST("", h.Domains.IngestDMARCReport())
		}

		abTests := api.Group("/ab-tests")
		{
			abTests.GET("", h.ABTests.List())
			abTests.POST("", h.ABTests.Create())
			abTests.GET("/:id", h.ABTests.Get())
			abTests.POST("/:id/start", h.ABTests.Start())
			abTests.POST("/:id/evaluate", h.ABTests.Evaluate())
			abTests.POST("/:id/winner", h.ABTests.OverrideWinner())
			abTests.POST("/:id/send-plan", h.ABTests.SendPlan())
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("", h.Alerts.List())
			alerts.POST("/:id/resolve", h.Alerts.Resolve())
		}
	}
}
