// Package config loads and validates the CampusFace configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the CFA_ prefix (e.g., CFA_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
//
// The CFA_JWT_SECRET variable is read directly by the auth package rather than
// through this struct so that the secret never travels through config dumps.
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
	Images    ImagesConfig    `mapstructure:"images"`
	Codes     CodesConfig     `mapstructure:"codes"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the host:port listen address for the HTTP server
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the Redis connection used by the rate limiter.
// Rate limiting falls back to an in-process limiter when Addr is empty,
// so Redis is optional for single-node deployments.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// JWTExpiry is the lifetime of issued session tokens
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

// ImagesConfig holds face-image hosting configuration
type ImagesConfig struct {
	// Backend selects the image host: "local", "s3", "azure", or "gcs"
	Backend string `mapstructure:"backend"`
	// SignedURLTTL is how long display URLs for face images remain valid
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`
	// MaxUploadBytes caps the size of an uploaded photo
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	Azure AzureImagesConfig `mapstructure:"azure"`
	S3    S3ImagesConfig    `mapstructure:"s3"`
	GCS   GCSImagesConfig   `mapstructure:"gcs"`
	Local LocalImagesConfig `mapstructure:"local"`
}

// AzureImagesConfig holds Azure Blob Storage configuration for the image host
type AzureImagesConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3ImagesConfig holds S3-compatible configuration for the image host
type S3ImagesConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// Authentication method: "default", "static", or "assume_role".
	// "default" uses the AWS default credential chain (env vars, shared
	// config, IAM role); "static" uses explicit keys.
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
}

// GCSImagesConfig holds Google Cloud Storage configuration for the image host
type GCSImagesConfig struct {
	Bucket string `mapstructure:"bucket"`
	// Endpoint overrides the GCS endpoint (for emulators)
	Endpoint string `mapstructure:"endpoint"`
	// CredentialsFile is a service account key file path; empty uses ADC
	CredentialsFile string `mapstructure:"credentials_file"`
}

// LocalImagesConfig holds filesystem image-host configuration (development only)
type LocalImagesConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// CodesConfig holds authorization code lifecycle configuration
type CodesConfig struct {
	// TTL is the lifetime of a generated code
	TTL time.Duration `mapstructure:"ttl"`
	// SweepEnabled starts the background job that invalidates expired codes
	// so listings reflect expiry promptly. Validation does not depend on it.
	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SyncConfig holds the directory-sync event publisher configuration
type SyncConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// RateLimitingConfig holds request rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// CodeRequestsPerMinute is the stricter per-caller limit applied to the
	// code generate/validate endpoints (brute-force guard on 6-digit values)
	CodeRequestsPerMinute int `mapstructure:"code_requests_per_minute"`
}

// TLSConfig holds TLS configuration
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
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds pprof configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// BootstrapConfig holds the first-run administrator account seeded at startup
type BootstrapConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminName     string `mapstructure:"admin_name"`
	AdminPassword string `mapstructure:"admin_password"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
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
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.jwt_expiry",

		// Images
		"images.backend",
		"images.signed_url_ttl",
		"images.max_upload_bytes",
		"images.azure.account_name",
		"images.azure.account_key",
		"images.azure.container_name",
		"images.s3.endpoint",
		"images.s3.region",
		"images.s3.bucket",
		"images.s3.auth_method",
		"images.s3.access_key_id",
		"images.s3.secret_access_key",
		"images.s3.role_arn",
		"images.s3.role_session_name",
		"images.gcs.bucket",
		"images.gcs.endpoint",
		"images.gcs.credentials_file",
		"images.local.base_path",

		// Codes
		"codes.ttl",
		"codes.sweep_enabled",
		"codes.sweep_interval",

		// Sync
		"sync.enabled",
		"sync.brokers",
		"sync.topic",

		// Security
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.code_requests_per_minute",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Bootstrap
		"bootstrap.admin_email",
		"bootstrap.admin_name",
		"bootstrap.admin_password",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/campusface")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("CFA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Images.Azure.AccountKey = expandEnv(cfg.Images.Azure.AccountKey)
	cfg.Images.S3.AccessKeyID = expandEnv(cfg.Images.S3.AccessKeyID)
	cfg.Images.S3.SecretAccessKey = expandEnv(cfg.Images.S3.SecretAccessKey)
	cfg.Bootstrap.AdminPassword = expandEnv(cfg.Bootstrap.AdminPassword)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "campusface")
	v.SetDefault("database.user", "campusface")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "1h")

	// Images defaults
	v.SetDefault("images.backend", "local")
	v.SetDefault("images.signed_url_ttl", "15m")
	v.SetDefault("images.max_upload_bytes", 8<<20)
	v.SetDefault("images.local.base_path", "./faces")

	// Codes defaults
	v.SetDefault("codes.ttl", "5m")
	v.SetDefault("codes.sweep_enabled", false)
	v.SetDefault("codes.sweep_interval", "1m")

	// Sync defaults
	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.topic", "campusface.membership")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.rate_limiting.code_requests_per_minute", 30)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate image host backend
	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Images.Backend] {
		return fmt.Errorf("invalid images backend: %s (must be azure, s3, gcs, or local)", c.Images.Backend)
	}
	switch c.Images.Backend {
	case "azure":
		if c.Images.Azure.AccountName == "" {
			return fmt.Errorf("images.azure.account_name is required when using the Azure backend")
		}
		if c.Images.Azure.AccountKey == "" {
			return fmt.Errorf("images.azure.account_key is required when using the Azure backend")
		}
		if c.Images.Azure.ContainerName == "" {
			return fmt.Errorf("images.azure.container_name is required when using the Azure backend")
		}
	case "s3":
		if c.Images.S3.Bucket == "" {
			return fmt.Errorf("images.s3.bucket is required when using the S3 backend")
		}
		if c.Images.S3.Region == "" {
			return fmt.Errorf("images.s3.region is required when using the S3 backend")
		}
	case "gcs":
		if c.Images.GCS.Bucket == "" {
			return fmt.Errorf("images.gcs.bucket is required when using the GCS backend")
		}
	case "local":
		if c.Images.Local.BasePath == "" {
			return fmt.Errorf("images.local.base_path is required when using the local backend")
		}
	}

	// Validate code lifecycle settings
	if c.Codes.TTL <= 0 {
		return fmt.Errorf("codes.ttl must be positive")
	}
	if c.Codes.SweepEnabled && c.Codes.SweepInterval <= 0 {
		return fmt.Errorf("codes.sweep_interval must be positive when the sweep is enabled")
	}

	// Validate sync publisher
	if c.Sync.Enabled {
		if len(c.Sync.Brokers) == 0 {
			return fmt.Errorf("sync.brokers is required when sync is enabled")
		}
		if c.Sync.Topic == "" {
			return fmt.Errorf("sync.topic is required when sync is enabled")
		}
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
