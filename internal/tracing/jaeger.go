package tracing

import (
	"io"
	"net"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/log/zap"

	"github.com/customeros/mailgovernor/internal/logger"
)

const defaultServiceName = "mailgovernor"

type JaegerConfig struct {
	Enabled     bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	ServiceName string `env:"JAEGER_SERVICE_NAME" envDefault:"mailgovernor"`
	Environment string `env:"JAEGER_ENVIRONMENT"`
	// collector endpoint wins over the agent when set
	Endpoint     string  `env:"JAEGER_ENDPOINT"`
	AgentHost    string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort    string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	LogSpans     bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	SamplerType  string  `env:"JAEGER_SAMPLER_TYPE" envDefault:"const" validate:"omitempty,oneof=const probabilistic ratelimiting remote"`
	SamplerParam float64 `env:"JAEGER_SAMPLER_PARAM" envDefault:"1" validate:"gte=0"`
}

// NewJaegerTracer builds the process tracer. A disabled config yields a no-op
// tracer so spans started by services and repositories cost nothing.
func NewJaegerTracer(cfg *JaegerConfig, log logger.Logger) (opentracing.Tracer, io.Closer, error) {
	if cfg == nil || !cfg.Enabled {
		return opentracing.NoopTracer{}, noopCloser{}, nil
	}
	return cfg.configuration().NewTracer(config.Logger(zap.NewLogger(log.Logger())))
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

func (c *JaegerConfig) configuration() *config.Configuration {
	serviceName := c.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	samplerType := c.SamplerType
	if samplerType == "" {
		samplerType = jaeger.SamplerTypeConst
	}

	reporter := &config.ReporterConfig{LogSpans: c.LogSpans}
	if c.Endpoint != "" {
		reporter.CollectorEndpoint = c.Endpoint
	} else {
		reporter.LocalAgentHostPort = net.JoinHostPort(c.AgentHost, c.AgentPort)
	}

	cfg := &config.Configuration{
		ServiceName: serviceName,
		Sampler:     &config.SamplerConfig{Type: samplerType, Param: c.SamplerParam},
		Reporter:    reporter,
	}
	if c.Environment != "" {
		cfg.Tags = append(cfg.Tags, opentracing.Tag{Key: "deployment.environment", Value: c.Environment})
	}
	return cfg
}
