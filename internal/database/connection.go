package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseConfig struct {
	Host            string `env:"GOVERNOR_POSTGRES_HOST,required" validate:"required"`
	Port            string `env:"GOVERNOR_POSTGRES_PORT,required" validate:"required"`
	User            string `env:"GOVERNOR_POSTGRES_USER,required" validate:"required"`
	DBName          string `env:"GOVERNOR_POSTGRES_DB_NAME,required" validate:"required"`
	Password        string `env:"GOVERNOR_POSTGRES_PASSWORD,required" validate:"required"`
	MaxConn         int    `env:"GOVERNOR_POSTGRES_DB_MAX_CONN" envDefault:"100"`
	MaxIdleConn     int    `env:"GOVERNOR_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"GOVERNOR_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"GOVERNOR_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"GOVERNOR_POSTGRES_SSL_MODE" envDefault:"require" validate:"required"`
}

func NewConnection(dbConfig *DatabaseConfig) (*gorm.DB, error) {
	if err := validateConfig(dbConfig); err != nil {
		return nil, err
	}

	portInt, err := strconv.Atoi(dbConfig.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid port number: %w", err)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, portInt, dbConfig.User, dbConfig.Password, dbConfig.DBName, dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(gormLogLevel(dbConfig.LogLevel)),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sqlDB, dbConfig)

	return db, nil
}

type poolSetter interface {
	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)
	SetConnMaxLifetime(d time.Duration)
}

func applyPoolSettings(sqlDB poolSetter, dbConfig *DatabaseConfig) {
	maxIdle, maxOpen, lifetime := 10, 100, time.Hour
	if dbConfig.MaxIdleConn > 0 {
		maxIdle = dbConfig.MaxIdleConn
	}
	if dbConfig.MaxConn > 0 {
		maxOpen = dbConfig.MaxConn
	}
	if dbConfig.ConnMaxLifetime > 0 {
		lifetime = time.Duration(dbConfig.ConnMaxLifetime) * time.Minute
	}
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(lifetime)
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(level) {
	case "SILENT":
		return logger.Silent
	case "ERROR":
		return logger.Error
	case "INFO":
		return logger.Info
	default:
		return logger.Warn
	}
}

func validateConfig(config *DatabaseConfig) error {
	switch {
	case config == nil:
		return errors.New("database config is nil")
	case config.Host == "":
		return errors.New("database host config is empty")
	case config.Port == "":
		return errors.New("database port config is empty")
	case config.User == "":
		return errors.New("database user config is empty")
	case config.Password == "":
		return errors.New("database password config is empty")
	case config.DBName == "":
		return errors.New("database name config is empty")
	case config.SSLMode == "":
		return errors.New("database SSLMode config is empty")
	}
	return nil
}
