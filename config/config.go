package config

import "time"

type AppConfig struct {
	APIPort       string `env:"PORT" envDefault:"12222" validate:"required"`
	APIKey        string `env:"API_KEY,required" validate:"required"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	// requests per second per client on /webhook and /test-send
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20" validate:"gt=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40" validate:"gt=0"`
	WorkerCount    int     `env:"HEALTH_WORKER_COUNT" envDefault:"4" validate:"gt=0"`
	QueueSize      int     `env:"HEALTH_QUEUE_SIZE" envDefault:"1024" validate:"gt=0"`
}

type RedisConfig struct {
	URL            string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	HealthScoreTTL time.Duration `env:"REDIS_HEALTH_SCORE_TTL" envDefault:"1h"`
}

type R2StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	WebhookBucket   string `env:"BUCKET_NAME_WEBHOOK_ARCHIVE" envDefault:"governor-webhooks"`
}

func (c *R2StorageConfig) Enabled() bool {
	return c != nil && c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != ""
}

// GovernorConfig holds the reputation protection thresholds. Rates are fractions.
type GovernorConfig struct {
	MinHoursPerDay      int           `env:"GOVERNOR_MIN_HOURS_PER_DAY" envDefault:"1" validate:"gte=1,lte=24"`
	PauseBounceRate     float64       `env:"GOVERNOR_PAUSE_BOUNCE_RATE" envDefault:"0.05" validate:"gt=0,lte=1"`
	PauseComplaintRate  float64       `env:"GOVERNOR_PAUSE_COMPLAINT_RATE" envDefault:"0.003" validate:"gt=0,lte=1"`
	PauseMinVolume      int           `env:"GOVERNOR_PAUSE_MIN_VOLUME" envDefault:"20" validate:"gte=0"`
	AlertBounceRate     float64       `env:"GOVERNOR_ALERT_BOUNCE_RATE" envDefault:"0.02" validate:"gt=0,lte=1"`
	AlertComplaintRate  float64       `env:"GOVERNOR_ALERT_COMPLAINT_RATE" envDefault:"0.001" validate:"gt=0,lte=1"`
	AlertHealthScore    int           `env:"GOVERNOR_ALERT_HEALTH_SCORE" envDefault:"60" validate:"gte=0,lte=100"`
	RejectContentRating string        `env:"GOVERNOR_REJECT_CONTENT_RATING" envDefault:"critical" validate:"oneof=excellent good fair poor critical"`
	ABTestDefaultWindow time.Duration `env:"GOVERNOR_ABTEST_DEFAULT_WINDOW" envDefault:"168h"`
}

type DNSConfig struct {
	Resolver      string        `env:"DNS_RESOLVER" envDefault:"1.1.1.1:53" validate:"required"`
	LookupTimeout time.Duration `env:"DNS_LOOKUP_TIMEOUT" envDefault:"5s"`
	MaxAttempts   int           `env:"DNS_RETRY_MAX_ATTEMPTS" envDefault:"3" validate:"gte=1"`
	BaseDelay     time.Duration `env:"DNS_RETRY_BASE_DELAY" envDefault:"200ms"`
	Multiplier    float64       `env:"DNS_RETRY_MULTIPLIER" envDefault:"2" validate:"gte=1"`
	MaxDelay      time.Duration `env:"DNS_RETRY_MAX_DELAY" envDefault:"2s"`
	SPFIncludes   []string      `env:"DNS_SPF_INCLUDES" envDefault:"_spf.google.com" envSeparator:","`
	DKIMSelectors []string      `env:"DNS_DKIM_SELECTORS" envDefault:"google,selector1,selector2,s1,default" envSeparator:","`
	DMARCPolicy   string        `env:"DNS_DMARC_POLICY" envDefault:"quarantine" validate:"oneof=none quarantine reject"`
	DMARCReportTo string        `env:"DNS_DMARC_REPORT_TO"`
	StaleAfter    time.Duration `env:"DNS_REVERIFY_STALE_AFTER" envDefault:"24h"`
}

type AIConfig struct {
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	Model        string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Timeout      time.Duration `env:"OPENAI_TIMEOUT" envDefault:"20s"`
	MaxTokens    int           `env:"OPENAI_MAX_TOKENS" envDefault:"400"`
}

type TransportConfig struct {
	SMTPServer   string        `env:"SMTP_SERVER"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	SMTPSecurity string        `env:"SMTP_SECURITY" envDefault:"startTLS" validate:"oneof=none ssl tls startTLS"`
	SendgridKey  string        `env:"SENDGRID_API_KEY"`
	Timeout      time.Duration `env:"TRANSPORT_TIMEOUT" envDefault:"30s"`
}
