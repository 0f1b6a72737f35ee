package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Audit      AuditConfig      `yaml:"audit"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig represents Redis configuration. Redis is optional: when
// Enabled is false the rate limiter keeps its counters in process memory.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	SessionTTL      time.Duration `yaml:"session_ttl"`
	LockoutLimit    int           `yaml:"lockout_limit"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
	HashIterations  int           `yaml:"hash_iterations"`
	BootstrapAdmin  string        `yaml:"bootstrap_admin"`
}

// RateLimitConfig holds per-endpoint-class limits, expressed as
// requests per window.
type RateLimitConfig struct {
	Enabled bool            `yaml:"enabled"`
	Classes map[string]Rate `yaml:"classes"`
}

// Rate is a single fixed-window limit
type Rate struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// AuditConfig represents audit log configuration
type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file and applies environment
// overrides for secrets that should not live in the file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("TRADEDASH_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("TRADEDASH_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// applyDefaults fills in values the file may omit
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5001
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.Auth.LockoutLimit == 0 {
		c.Auth.LockoutLimit = 5
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = 15 * time.Minute
	}
	if c.Auth.HashIterations == 0 {
		c.Auth.HashIterations = 100000
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Auth.LockoutLimit < 1 {
		return fmt.Errorf("auth lockout_limit must be positive, got %d", c.Auth.LockoutLimit)
	}
	if c.Auth.HashIterations < 10000 {
		return fmt.Errorf("auth hash_iterations too low: %d", c.Auth.HashIterations)
	}
	for class, rate := range c.RateLimit.Classes {
		if rate.Requests <= 0 || rate.Window <= 0 {
			return fmt.Errorf("rate limit class %q must have positive requests and window", class)
		}
	}
	return nil
}
