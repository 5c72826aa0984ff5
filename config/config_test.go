package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_Defaults(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("JAEGER_SERVICE_NAME", "mailgovernor")
	t.Setenv("GOVERNOR_POSTGRES_HOST", "localhost")
	t.Setenv("GOVERNOR_POSTGRES_PORT", "5432")
	t.Setenv("GOVERNOR_POSTGRES_USER", "governor")
	t.Setenv("GOVERNOR_POSTGRES_DB_NAME", "governor")
	t.Setenv("GOVERNOR_POSTGRES_PASSWORD", "pw")

	cfg, err := InitConfig()
	require.NoError(t, err)

	assert.Equal(t, "12222", cfg.AppConfig.APIPort)
	assert.Equal(t, 0.05, cfg.GovernorConfig.PauseBounceRate)
	assert.Equal(t, 0.003, cfg.GovernorConfig.PauseComplaintRate)
	assert.Equal(t, 20, cfg.GovernorConfig.PauseMinVolume)
	assert.Equal(t, 60, cfg.GovernorConfig.AlertHealthScore)
	assert.Equal(t, 5*time.Second, cfg.DNSConfig.LookupTimeout)
	assert.Equal(t, 3, cfg.DNSConfig.MaxAttempts)
	assert.Contains(t, cfg.DNSConfig.DKIMSelectors, "google")
	assert.Equal(t, "require", cfg.DatabaseConfig.SSLMode)
	assert.False(t, cfg.R2StorageConfig.Enabled())
}

func TestInitConfig_RejectsInvalidThreshold(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("JAEGER_SERVICE_NAME", "mailgovernor")
	t.Setenv("GOVERNOR_POSTGRES_HOST", "localhost")
	t.Setenv("GOVERNOR_POSTGRES_PORT", "5432")
	t.Setenv("GOVERNOR_POSTGRES_USER", "governor")
	t.Setenv("GOVERNOR_POSTGRES_DB_NAME", "governor")
	t.Setenv("GOVERNOR_POSTGRES_PASSWORD", "pw")
	t.Setenv("GOVERNOR_PAUSE_BOUNCE_RATE", "1.5")

	_, err := InitConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "governor")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 0.02, cfg.AlertBounceRate)
	assert.Equal(t, 0.001, cfg.AlertComplaintRate)
	assert.Equal(t, 1, cfg.MinHoursPerDay)
}
