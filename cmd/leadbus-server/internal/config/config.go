// Package config provides configuration management for the leadbus server.
// It loads settings from environment variables, optionally seeded from a
// .env file, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/coregx/leadbus/dlq"
	"github.com/coregx/leadbus/model"
	"github.com/coregx/leadbus/retry"
)

// DriverMemory keeps leads and audit records in process memory.
const DriverMemory = "memory"

// Config holds all configuration for the leadbus server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Bus      BusConfig
	Broker   BrokerConfig
	Tracing  TracingConfig
	DLQ      DLQConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"memory"` // memory, mysql, postgres, sqlite3
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"leadbus"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME" envDefault:"leadbus"`
	Prefix   string `env:"DB_PREFIX" envDefault:"crm_"`
}

// BusConfig holds the pipeline settings.
type BusConfig struct {
	MaxRetries          int           `env:"BUS_MAX_RETRIES" envDefault:"3"`
	RetryDelay          time.Duration `env:"BUS_RETRY_DELAY" envDefault:"500ms"`
	PublishDelay        time.Duration `env:"BUS_PUBLISH_DELAY" envDefault:"100ms"`
	HandlerTimeout      time.Duration `env:"BUS_HANDLER_TIMEOUT" envDefault:"30s"`
	EnableNotifications bool          `env:"BUS_ENABLE_NOTIFICATIONS" envDefault:"true"`
	SimulateFaults      bool          `env:"BUS_SIMULATE_FAULTS" envDefault:"true"`
	TaskLatency         bool          `env:"WORKER_TASK_LATENCY" envDefault:"true"`
}

// RetryStrategy returns the fixed-delay strategy for the processing queue.
func (b BusConfig) RetryStrategy() retry.Strategy {
	return retry.Strategy{
		MaxRetries:      b.MaxRetries,
		BaseDelay:       b.RetryDelay,
		ExponentialBase: 1.0,
	}
}

// responseSlack covers request parsing, rendering and mirror publishing on
// top of the delivery itself.
const responseSlack = 15 * time.Second

// DeliveryBudget is the longest a synchronous publish may take: the publish
// delay plus every attempt and every retry wait. It returns 0 (unbounded)
// when handler attempts have no timeout.
func (b BusConfig) DeliveryBudget() time.Duration {
	if b.HandlerTimeout <= 0 {
		return 0
	}

	strategy := b.RetryStrategy()
	budget := b.PublishDelay + b.HandlerTimeout*time.Duration(b.MaxRetries+1)
	for i := 1; i <= b.MaxRetries; i++ {
		budget += strategy.CalculateRetryDelay(i)
	}
	return budget + responseSlack
}

// BrokerConfig holds the optional RabbitMQ mirror settings.
type BrokerConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL"`
	Exchange    string `env:"RABBITMQ_EXCHANGE" envDefault:"crm.leads"`
}

// Enabled reports whether events are mirrored to RabbitMQ.
func (b BrokerConfig) Enabled() bool { return b.RabbitMQURL != "" }

// TracingConfig holds the OpenTelemetry exporter settings.
type TracingConfig struct {
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"leadbus"`
	Endpoint    string `env:"OTEL_EXPORTER_ENDPOINT"`
}

// Enabled reports whether spans are exported.
func (t TracingConfig) Enabled() bool { return t.Endpoint != "" }

// DLQConfig holds the dead letter monitor settings.
type DLQConfig struct {
	ReportSchedule string `env:"DLQ_REPORT_SCHEDULE" envDefault:"@every 5m"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	db := &c.Database
	if err := validation.ValidateStruct(db,
		validation.Field(&db.Driver, validation.Required,
			validation.In(DriverMemory, "mysql", "postgres", "sqlite3")),
		validation.Field(&db.Password, validation.When(db.Driver == "mysql" || db.Driver == "postgres",
			validation.Required.Error("DB_PASSWORD is required for "+db.Driver))),
		validation.Field(&db.Database, validation.When(db.Driver != DriverMemory, validation.Required)),
	); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}

	if err := c.Bus.RetryStrategy().Validate(); err != nil {
		return fmt.Errorf("invalid bus config: %w", err)
	}
	if c.Bus.PublishDelay < 0 || c.Bus.HandlerTimeout < 0 {
		return fmt.Errorf("invalid bus config: delays must be >= 0")
	}

	if err := dlq.ValidateSchedule(c.DLQ.ReportSchedule); err != nil {
		return fmt.Errorf("invalid DLQ_REPORT_SCHEDULE: %w", err)
	}
	return nil
}

// UsesMemory reports whether the server runs without a database.
func (c *DatabaseConfig) UsesMemory() bool {
	return c.Driver == DriverMemory
}

// TablePrefix returns the configured prefix, falling back to the default.
func (c *DatabaseConfig) TablePrefix() string {
	if c.Prefix == "" {
		return model.TablePrefix()
	}
	return c.Prefix
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}
