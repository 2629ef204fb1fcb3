// Package config loads and validates the gateway configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the CARELINE_ prefix (e.g.,
// CARELINE_DATABASE_HOST overrides database.host in the YAML).
//
// APP_SECRET, OPENAI_API_KEY and GOOGLE_MAPS_API_KEY have no CARELINE_ prefix because
// they are injected by infrastructure tooling (Kubernetes secrets, Vault agent) that
// treats them as generic secret names.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Clinic    ClinicConfig    `mapstructure:"clinic"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional shared session store and rate limiter backend.
// When disabled, sessions and rate limits live in process memory.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AuthConfig holds login and session configuration
type AuthConfig struct {
	// SessionTTL bounds how long an issued token stays valid. Zero means until logout.
	SessionTTL       time.Duration      `mapstructure:"session_ttl"`
	BcryptCost       int                `mapstructure:"bcrypt_cost"`
	DemoUsersEnabled bool               `mapstructure:"demo_users_enabled"`
	Credentials      []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a provisioned login. PasswordHash is a bcrypt verifier
// produced by cmd/hash; plaintext passwords are never read from configuration.
type CredentialConfig struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
}

// GeneratorConfig holds the response generator settings
type GeneratorConfig struct {
	// Provider is "openai" or "none". With "none" every query is answered by the fallback.
	Provider         string        `mapstructure:"provider"`
	APIKey           string        `mapstructure:"api_key"`
	Endpoint         string        `mapstructure:"endpoint"`
	Model            string        `mapstructure:"model"`
	Temperature      float64       `mapstructure:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout"`
	SystemPromptFile string        `mapstructure:"system_prompt_file"`
}

// ChatConfig holds chat input limits
type ChatConfig struct {
	MaxMessageLength int `mapstructure:"max_message_length"`
}

// ClinicConfig holds the nearby-facility lookup settings
type ClinicConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	RadiusMeters int           `mapstructure:"radius_meters"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// Store is "postgres" or "memory"
	Store string `mapstructure:"store"`
	// Secret keys the HMAC digests. Loaded from APP_SECRET.
	Secret       string        `mapstructure:"secret"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Shippers forward digest-only records to external sinks
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // webhook, file
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// LoginRequestsPerMinute is the tighter limit applied to POST /api/login
	LoginRequestsPerMinute int `mapstructure:"login_requests_per_minute"`
	LoginBurst             int `mapstructure:"login_burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.key_prefix",

		// Auth
		"auth.session_ttl",
		"auth.bcrypt_cost",
		"auth.demo_users_enabled",

		// Generator
		"generator.provider",
		"generator.endpoint",
		"generator.model",
		"generator.temperature",
		"generator.max_tokens",
		"generator.timeout",
		"generator.system_prompt_file",

		// Chat
		"chat.max_message_length",

		// Clinic
		"clinic.enabled",
		"clinic.base_url",
		"clinic.radius_meters",
		"clinic.max_results",
		"clinic.timeout",

		// Audit
		"audit.store",
		"audit.write_timeout",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.login_requests_per_minute",
		"security.rate_limiting.login_burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}

	// Unprefixed secrets
	secrets := map[string]string{
		"audit.secret":      "APP_SECRET",
		"generator.api_key": "OPENAI_API_KEY",
		"clinic.api_key":    "GOOGLE_MAPS_API_KEY",
	}
	for key, env := range secrets {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", env, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/careline")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("CARELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Audit.Secret = expandEnv(cfg.Audit.Secret)
	cfg.Generator.APIKey = expandEnv(cfg.Generator.APIKey)
	cfg.Clinic.APIKey = expandEnv(cfg.Clinic.APIKey)

	// A configured API key turns the integration on unless the operator pinned it off.
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "none"
		if cfg.Generator.APIKey != "" {
			cfg.Generator.Provider = "openai"
		}
	}
	if cfg.Clinic.APIKey != "" && !v.IsSet("clinic.enabled") {
		cfg.Clinic.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "careline")
	v.SetDefault("database.user", "careline")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_idle_connections", 2)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "careline:")

	// Auth defaults
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.demo_users_enabled", true)

	// Generator defaults
	v.SetDefault("generator.provider", "")
	v.SetDefault("generator.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("generator.model", "gpt-4o-mini")
	v.SetDefault("generator.temperature", 0.2)
	v.SetDefault("generator.max_tokens", 500)
	v.SetDefault("generator.timeout", "30s")
	v.SetDefault("generator.system_prompt_file", "system_prompt.txt")

	// Chat defaults
	v.SetDefault("chat.max_message_length", 1000)

	// Clinic defaults
	v.SetDefault("clinic.base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("clinic.radius_meters", 5000)
	v.SetDefault("clinic.max_results", 5)
	v.SetDefault("clinic.timeout", "10s")

	// Audit defaults
	v.SetDefault("audit.store", "postgres")
	v.SetDefault("audit.write_timeout", "5s")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.rate_limiting.login_requests_per_minute", 10)
	v.SetDefault("security.rate_limiting.login_burst", 5)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "careline")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validStores := map[string]bool{"postgres": true, "memory": true}
	if !validStores[c.Audit.Store] {
		return fmt.Errorf("invalid audit store: %s (must be postgres or memory)", c.Audit.Store)
	}
	if c.Audit.Store == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Auth.SessionTTL < 0 {
		return fmt.Errorf("auth.session_ttl must not be negative")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("invalid auth.bcrypt_cost: %d (must be between 4 and 31)", c.Auth.BcryptCost)
	}
	for i, cred := range c.Auth.Credentials {
		if cred.Email == "" || cred.PasswordHash == "" {
			return fmt.Errorf("auth.credentials[%d] requires email and password_hash", i)
		}
	}

	validProviders := map[string]bool{"openai": true, "none": true}
	if !validProviders[c.Generator.Provider] {
		return fmt.Errorf("invalid generator provider: %s (must be openai or none)", c.Generator.Provider)
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator.timeout must be positive")
	}

	if c.Chat.MaxMessageLength < 1 {
		return fmt.Errorf("chat.max_message_length must be positive")
	}

	if c.Clinic.Enabled && c.Clinic.APIKey == "" {
		return fmt.Errorf("GOOGLE_MAPS_API_KEY is required when clinic lookup is enabled")
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// IsDevMode reports whether the process runs in development mode. Development
// mode tolerates a missing APP_SECRET by generating an ephemeral one.
func IsDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
