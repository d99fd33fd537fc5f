/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the automation core
type Config struct {
	// configFileUsed is the path to the config file that was loaded (empty if none)
	configFileUsed string

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `mapstructure:"log-level"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Auth configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Scheduler worker configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Poller worker configuration
	Poller PollerConfig `mapstructure:"poller"`

	// Alerting worker configuration
	Alerting AlertingConfig `mapstructure:"alerting"`

	// HistoryRetention configuration
	HistoryRetention HistoryRetentionConfig `mapstructure:"history-retention"`

	// RateLimits for notification delivery
	RateLimits RateLimitsConfig `mapstructure:"rate-limits"`

	// API server configuration
	API APIConfig `mapstructure:"api"`

	// Notify configures outbound notification channels
	Notify NotifyConfig `mapstructure:"notify"`
}

// StorageConfig configures the storage backend
type StorageConfig struct {
	// DatabaseURL is a connection URL that overrides Type and the
	// per-backend sections when set (postgres://, mysql://, sqlite://)
	DatabaseURL string `mapstructure:"database-url" json:"-"`

	// Type is the storage backend type (sqlite, postgres, mysql)
	Type string `mapstructure:"type" json:"type"`

	// SQLite configuration
	SQLite SQLiteConfig `mapstructure:"sqlite" json:"sqlite,omitempty"`

	// PostgreSQL configuration
	PostgreSQL PostgreSQLConfig `mapstructure:"postgres" json:"postgres,omitempty"`

	// MySQL configuration
	MySQL MySQLConfig `mapstructure:"mysql" json:"mysql,omitempty"`

	// MaxOpenConns bounds the connection pool per worker
	MaxOpenConns int `mapstructure:"max-open-conns" json:"maxOpenConns"`

	// MaxIdleConns bounds idle pooled connections
	MaxIdleConns int `mapstructure:"max-idle-conns" json:"maxIdleConns"`
}

// SQLiteConfig configures SQLite storage
type SQLiteConfig struct {
	// Path to database file
	Path string `mapstructure:"path" json:"path"`
}

// PostgreSQLConfig configures PostgreSQL storage
type PostgreSQLConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Database string `mapstructure:"database" json:"database,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"-"`
	SSLMode  string `mapstructure:"ssl-mode" json:"sslMode,omitempty"`
}

// MySQLConfig configures MySQL/MariaDB storage
type MySQLConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Database string `mapstructure:"database" json:"database,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"-"`
}

// AuthConfig configures API authentication
type AuthConfig struct {
	// ServiceToken is the shared bearer token for inter-service calls
	ServiceToken string `mapstructure:"service-token" json:"-"`
}

// SchedulerConfig configures the scheduler worker
type SchedulerConfig struct {
	// Interval between scheduler ticks (5s to 1h)
	Interval time.Duration `mapstructure:"interval" json:"interval"`

	// DispatchLimit bounds the number of actions dispatched per tick
	DispatchLimit int `mapstructure:"dispatch-limit" json:"dispatchLimit"`
}

// PollerConfig configures the poller worker
type PollerConfig struct {
	// RefreshInterval is how often the device registry is rebuilt
	RefreshInterval time.Duration `mapstructure:"refresh-interval" json:"refreshInterval"`

	// SweepInterval is how often old readings are pruned
	SweepInterval time.Duration `mapstructure:"sweep-interval" json:"sweepInterval"`
}

// AlertingConfig configures the alert evaluator
type AlertingConfig struct {
	// Interval between evaluation cycles
	Interval time.Duration `mapstructure:"interval" json:"interval"`
}

// HistoryRetentionConfig configures retention of readings
type HistoryRetentionConfig struct {
	// Days is how long readings are kept
	Days int `mapstructure:"days" json:"days"`
}

// RateLimitsConfig configures global notification rate limits
type RateLimitsConfig struct {
	// MaxAlertsPerMinute across all channels
	MaxAlertsPerMinute int `mapstructure:"max-alerts-per-minute" json:"maxAlertsPerMinute"`
}

// APIConfig configures the REST API server
type APIConfig struct {
	// Port for the API server
	Port int `mapstructure:"port" json:"port"`

	// AllowedHosts lists permitted CORS origins; ["*"] is accepted in dev
	AllowedHosts []string `mapstructure:"allowed-hosts" json:"allowedHosts"`

	// RequestTimeout bounds each request
	RequestTimeout time.Duration `mapstructure:"request-timeout" json:"requestTimeout"`
}

// NotifyConfig configures outbound notification channels
type NotifyConfig struct {
	// WebhookURL receives alert event notifications when set
	WebhookURL string `mapstructure:"webhook-url" json:"webhookUrl,omitempty"`
}

// Scheduler interval bounds
const (
	MinSchedulerInterval = 5 * time.Second
	MaxSchedulerInterval = 3600 * time.Second
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "/data/reefcore.db",
			},
			PostgreSQL: PostgreSQLConfig{
				Port:    5432,
				SSLMode: "require",
			},
			MySQL: MySQLConfig{
				Port: 3306,
			},
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Scheduler: SchedulerConfig{
			Interval:      30 * time.Second,
			DispatchLimit: 100,
		},
		Poller: PollerConfig{
			RefreshInterval: 300 * time.Second,
			SweepInterval:   6 * time.Hour,
		},
		Alerting: AlertingConfig{
			Interval: 30 * time.Second,
		},
		HistoryRetention: HistoryRetentionConfig{
			Days: 90,
		},
		RateLimits: RateLimitsConfig{
			MaxAlertsPerMinute: 50,
		},
		API: APIConfig{
			Port:           8080,
			AllowedHosts:   []string{"*"},
			RequestTimeout: 30 * time.Second,
		},
	}
}

// BindFlags binds configuration flags to pflags
func BindFlags(flags *pflag.FlagSet) {
	// Top-level
	flags.String("config", "", "Path to config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	// Storage
	flags.String("storage.database-url", "", "Database connection URL (overrides storage.type)")
	flags.String("storage.type", "sqlite", "Storage backend type (sqlite, postgres, mysql)")
	flags.String("storage.sqlite.path", "/data/reefcore.db", "Path to SQLite database file")
	flags.String("storage.postgres.host", "", "PostgreSQL host")
	flags.Int("storage.postgres.port", 5432, "PostgreSQL port")
	flags.String("storage.postgres.database", "", "PostgreSQL database name")
	flags.String("storage.postgres.username", "", "PostgreSQL username")
	flags.String("storage.postgres.password", "", "PostgreSQL password")
	flags.String("storage.postgres.ssl-mode", "require", "PostgreSQL SSL mode")
	flags.String("storage.mysql.host", "", "MySQL host")
	flags.Int("storage.mysql.port", 3306, "MySQL port")
	flags.String("storage.mysql.database", "", "MySQL database name")
	flags.String("storage.mysql.username", "", "MySQL username")
	flags.String("storage.mysql.password", "", "MySQL password")
	flags.Int("storage.max-open-conns", 10, "Maximum open database connections")
	flags.Int("storage.max-idle-conns", 5, "Maximum idle database connections")

	// Auth
	flags.String("auth.service-token", "", "Shared bearer token for service calls")

	// Scheduler worker
	flags.Duration("scheduler.interval", 30*time.Second, "Scheduler tick interval (5s to 1h)")
	flags.Int("scheduler.dispatch-limit", 100, "Maximum actions dispatched per tick")

	// Poller worker
	flags.Duration("poller.refresh-interval", 300*time.Second, "Device registry refresh interval")
	flags.Duration("poller.sweep-interval", 6*time.Hour, "Reading retention sweep interval")

	// Alerting worker
	flags.Duration("alerting.interval", 30*time.Second, "Alert evaluation interval")

	// History retention
	flags.Int("history-retention.days", 90, "How long to keep readings, in days")

	// Rate limits
	flags.Int("rate-limits.max-alerts-per-minute", 50, "Maximum alert notifications per minute")

	// API server
	flags.Int("api.port", 8080, "API server port")
	flags.StringSlice("api.allowed-hosts", []string{"*"}, "Allowed CORS origins")
	flags.Duration("api.request-timeout", 30*time.Second, "Per-request deadline")

	// Notifications
	flags.String("notify.webhook-url", "", "Webhook URL for alert event notifications")
}

// Load loads configuration from flags, environment, and config file
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults from DefaultConfig
	defaults := DefaultConfig()
	v.SetDefault("log-level", defaults.LogLevel)
	v.SetDefault("storage.type", defaults.Storage.Type)
	v.SetDefault("storage.sqlite.path", defaults.Storage.SQLite.Path)
	v.SetDefault("storage.postgres.port", defaults.Storage.PostgreSQL.Port)
	v.SetDefault("storage.postgres.ssl-mode", defaults.Storage.PostgreSQL.SSLMode)
	v.SetDefault("storage.mysql.port", defaults.Storage.MySQL.Port)
	v.SetDefault("storage.max-open-conns", defaults.Storage.MaxOpenConns)
	v.SetDefault("storage.max-idle-conns", defaults.Storage.MaxIdleConns)
	v.SetDefault("scheduler.interval", defaults.Scheduler.Interval)
	v.SetDefault("scheduler.dispatch-limit", defaults.Scheduler.DispatchLimit)
	v.SetDefault("poller.refresh-interval", defaults.Poller.RefreshInterval)
	v.SetDefault("poller.sweep-interval", defaults.Poller.SweepInterval)
	v.SetDefault("alerting.interval", defaults.Alerting.Interval)
	v.SetDefault("history-retention.days", defaults.HistoryRetention.Days)
	v.SetDefault("rate-limits.max-alerts-per-minute", defaults.RateLimits.MaxAlertsPerMinute)
	v.SetDefault("api.port", defaults.API.Port)
	v.SetDefault("api.allowed-hosts", defaults.API.AllowedHosts)
	v.SetDefault("api.request-timeout", defaults.API.RequestTimeout)

	// Bind flags
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	// Environment variables
	v.SetEnvPrefix("REEFCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Bare variable names accepted for deployment compatibility
	_ = v.BindEnv("storage.database-url", "REEFCORE_STORAGE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("auth.service-token", "REEFCORE_AUTH_SERVICE_TOKEN", "SERVICE_TOKEN")
	_ = v.BindEnv("scheduler.interval", "REEFCORE_SCHEDULER_INTERVAL", "SCHEDULER_INTERVAL")
	_ = v.BindEnv("poller.refresh-interval", "REEFCORE_POLLER_REFRESH_INTERVAL", "POLLER_REFRESH_INTERVAL")
	_ = v.BindEnv("history-retention.days", "REEFCORE_HISTORY_RETENTION_DAYS", "HISTORY_RETENTION_DAYS")
	_ = v.BindEnv("api.allowed-hosts", "REEFCORE_API_ALLOWED_HOSTS", "ALLOWED_HOSTS")

	// Config file
	var configFileUsed string
	if configFile, _ := flags.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		configFileUsed = v.ConfigFileUsed()
	} else {
		// Try default locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/reefcore")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err == nil {
			configFileUsed = v.ConfigFileUsed()
		}
		// Ignore error if no config file found - will use defaults
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.configFileUsed = configFileUsed

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configured values against accepted ranges
func (c *Config) Validate() error {
	if c.Scheduler.Interval < MinSchedulerInterval || c.Scheduler.Interval > MaxSchedulerInterval {
		return fmt.Errorf("scheduler.interval %s outside accepted range [%s, %s]",
			c.Scheduler.Interval, MinSchedulerInterval, MaxSchedulerInterval)
	}
	if c.HistoryRetention.Days < 1 {
		return fmt.Errorf("history-retention.days must be at least 1")
	}
	if _, _, err := c.Storage.DSN(); err != nil {
		return err
	}
	return nil
}

// ConfigFileUsed returns the path to the config file that was loaded (empty if none)
func (c *Config) ConfigFileUsed() string {
	return c.configFileUsed
}

// DSN resolves the storage configuration to a GORM dialect and DSN
func (s *StorageConfig) DSN() (dialect string, dsn string, err error) {
	if s.DatabaseURL != "" {
		return dsnFromURL(s.DatabaseURL)
	}

	switch s.Type {
	case "sqlite", "":
		return "sqlite", s.SQLite.Path, nil
	case "postgres":
		pg := s.PostgreSQL
		if pg.Host == "" {
			return "", "", fmt.Errorf("storage.postgres.host required when type is postgres")
		}
		return "postgres", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			pg.Host, pg.Port, pg.Username, pg.Password, pg.Database, pg.SSLMode,
		), nil
	case "mysql":
		my := s.MySQL
		if my.Host == "" {
			return "", "", fmt.Errorf("storage.mysql.host required when type is mysql")
		}
		return "mysql", fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			my.Username, my.Password, my.Host, my.Port, my.Database,
		), nil
	default:
		return "", "", fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// dsnFromURL maps a connection URL to a dialect and driver DSN
func dsnFromURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing database url: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", raw, nil
	case "mysql":
		password, _ := u.User.Password()
		database := strings.TrimPrefix(u.Path, "/")
		return "mysql", fmt.Sprintf(
			"%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			u.User.Username(), password, u.Host, database,
		), nil
	case "sqlite", "file":
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme: %s", u.Scheme)
	}
}
