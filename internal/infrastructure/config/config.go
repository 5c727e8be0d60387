package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override (e.g. RECON_DATABASE_PASSWORD)
const EnvPrefix = "RECON"

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Log            LogConfig
	HTTP           HTTPConfig
	Storage        StorageConfig
	Telemetry      TelemetryConfig
	Reconciliation ReconciliationConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsDevelopment reports whether the service runs in development mode
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogExportEnabled  bool // Mirror zap records to the OTLP log exporter
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	// Continuous profiling
	ProfilingEnabled  bool
	PyroscopeEndpoint string
}

// ReconciliationConfig holds matching engine settings
type ReconciliationConfig struct {
	AutoMatchMaxEntries int           // Pending entries loaded per auto-match run
	AutoMatchLockTTL    time.Duration // TTL of the per-tenant auto-match lock
	ArchiveEnabled      bool          // Upload the workbook of finalized reconciliations
	ArchivePrefix       string        // Object key prefix of archived workbooks
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with RECON_ prefix (e.g., RECON_DATABASE_PASSWORD)
// 2. .env file in the working directory, if present
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Storage: StorageConfig{
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogExportEnabled:  v.GetBool("telemetry.log_export_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeEndpoint: v.GetString("telemetry.pyroscope_endpoint"),
		},
		Reconciliation: ReconciliationConfig{
			AutoMatchMaxEntries: v.GetInt("reconciliation.auto_match_max_entries"),
			AutoMatchLockTTL:    v.GetDuration("reconciliation.auto_match_lock_ttl"),
			ArchiveEnabled:      v.GetBool("reconciliation.archive_enabled"),
			ArchivePrefix:       v.GetString("reconciliation.archive_prefix"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "reconciliation"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "reconciliation"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "erp-backend"
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Exports of large reconciliations are rendered synchronously
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	// No default origins: cross-origin requests stay disabled until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID", "X-User-ID"}
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "reconciliation-archive"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeEndpoint == "" {
		cfg.Telemetry.PyroscopeEndpoint = "http://localhost:4040"
	}
	if cfg.Reconciliation.AutoMatchMaxEntries == 0 {
		cfg.Reconciliation.AutoMatchMaxEntries = 5000
	}
	if cfg.Reconciliation.AutoMatchLockTTL == 0 {
		cfg.Reconciliation.AutoMatchLockTTL = 30 * time.Second
	}
	if cfg.Reconciliation.ArchivePrefix == "" {
		cfg.Reconciliation.ArchivePrefix = "reconciliations"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Reconciliation.AutoMatchMaxEntries < 0 {
		return fmt.Errorf("reconciliation.auto_match_max_entries cannot be negative")
	}
	if c.Reconciliation.AutoMatchLockTTL < time.Second {
		return fmt.Errorf("reconciliation.auto_match_lock_ttl must be at least 1s, got %s", c.Reconciliation.AutoMatchLockTTL)
	}
	if c.Reconciliation.ArchiveEnabled && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.access_key and storage.secret_key are required when reconciliation.archive_enabled is set")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
