package tracing

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/jaeger-client-go"
)

func TestConfiguration_AgentByDefault(t *testing.T) {
	cfg := (&JaegerConfig{Enabled: true, AgentHost: "jaeger", AgentPort: "6831", SamplerParam: 1}).configuration()

	assert.Equal(t, defaultServiceName, cfg.ServiceName)
	assert.Equal(t, jaeger.SamplerTypeConst, cfg.Sampler.Type)
	assert.Equal(t, "jaeger:6831", cfg.Reporter.LocalAgentHostPort)
	assert.Empty(t, cfg.Reporter.CollectorEndpoint)
	assert.Empty(t, cfg.Tags)
}

func TestConfiguration_CollectorEndpointWins(t *testing.T) {
	cfg := (&JaegerConfig{
		Enabled:      true,
		ServiceName:  "governor-eu",
		Environment:  "staging",
		Endpoint:     "http://collector:14268/api/traces",
		AgentHost:    "jaeger",
		AgentPort:    "6831",
		SamplerType:  jaeger.SamplerTypeProbabilistic,
		SamplerParam: 0.25,
	}).configuration()

	assert.Equal(t, "governor-eu", cfg.ServiceName)
	assert.Equal(t, "http://collector:14268/api/traces", cfg.Reporter.CollectorEndpoint)
	assert.Empty(t, cfg.Reporter.LocalAgentHostPort)
	assert.Equal(t, 0.25, cfg.Sampler.Param)
	require.Len(t, cfg.Tags, 1)
	assert.Equal(t, "staging", cfg.Tags[0].Value)
}

func TestNewJaegerTracer_DisabledIsNoop(t *testing.T) {
	tracer, closer, err := NewJaegerTracer(&JaegerConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	assert.NoError(t, closer.Close())
}
