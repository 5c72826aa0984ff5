package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron_config "github.com/customeros/mailgovernor/internal/cron/config"
	"github.com/customeros/mailgovernor/internal/database"
	"github.com/customeros/mailgovernor/internal/logger"
	"github.com/customeros/mailgovernor/internal/tracing"
)

type Config struct {
	AppConfig       *AppConfig
	Logger          *logger.Config
	Tracing         *tracing.JaegerConfig
	DatabaseConfig  *database.DatabaseConfig
	RedisConfig     *RedisConfig
	R2StorageConfig *R2StorageConfig
	GovernorConfig  *GovernorConfig
	DNSConfig       *DNSConfig
	AIConfig        *AIConfig
	TransportConfig *TransportConfig
	CronConfig      *cron_config.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:       &AppConfig{},
		Logger:          &logger.Config{},
		Tracing:         &tracing.JaegerConfig{},
		DatabaseConfig:  &database.DatabaseConfig{},
		RedisConfig:     &RedisConfig{},
		R2StorageConfig: &R2StorageConfig{},
		GovernorConfig:  &GovernorConfig{},
		DNSConfig:       &DNSConfig{},
		AIConfig:        &AIConfig{},
		TransportConfig: &TransportConfig{},
		CronConfig:      &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading governor config")
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate runs the struct validation tags of every sub-config.
func Validate(config *Config) error {
	validate := validator.New()
	for name, sub := range map[string]any{
		"app":       config.AppConfig,
		"tracing":   config.Tracing,
		"database":  config.DatabaseConfig,
		"governor":  config.GovernorConfig,
		"dns":       config.DNSConfig,
		"transport": config.TransportConfig,
	} {
		if err := validate.Struct(sub); err != nil {
			return errors.Wrapf(err, "invalid %s config", name)
		}
	}
	return nil
}

// Defaults returns a config populated only from envDefault tags, for tests and tooling.
func Defaults() *GovernorConfig {
	cfg := &GovernorConfig{}
	_ = env.Parse(cfg)
	return cfg
}
