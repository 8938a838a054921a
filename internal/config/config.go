// Package config provides configuration management for the literature mining service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the literature mining service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains the audit event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Scraper contains pipeline-wide scraping settings.
	Scraper ScraperConfig `mapstructure:"scraper"`
	// Sources contains bibliographic source configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Classifiers contains the relevance classifier endpoints.
	Classifiers []ClassifierConfig `mapstructure:"classifiers"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 50).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 10).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// KafkaConfig holds the audit event publisher settings.
type KafkaConfig struct {
	// Enabled controls whether event publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish batch events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// ScraperConfig holds pipeline-wide scraping settings.
type ScraperConfig struct {
	// BatchSize is the number of processed records buffered before a flush
	// to the classifiers and the store (default: 20000).
	BatchSize int `mapstructure:"batch_size"`
	// ScanCap is the per-source ceiling on scanned records for sources that
	// page through unbounded result sets (default: 5000).
	ScanCap int `mapstructure:"scan_cap"`
	// SaveAll stores every scanned record under GeneralTag regardless of
	// classifier verdicts (default: false).
	SaveAll bool `mapstructure:"save_all"`
	// GeneralTag is the catch-all tag used when SaveAll is on (default: "all").
	GeneralTag string `mapstructure:"general_tag"`
	// Subject is the subject facet applied where a source supports it
	// (default: "Food Science").
	Subject string `mapstructure:"subject"`
}

// SourcesConfig holds configuration for all bibliographic sources.
type SourcesConfig struct {
	// Springer contains Springer Meta API settings.
	Springer SourceConfig `mapstructure:"springer"`
	// Elsevier contains Elsevier/ScienceDirect API settings.
	Elsevier SourceConfig `mapstructure:"elsevier"`
	// PubMed contains PubMed E-utilities settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
	// S2ORC contains settings for the local S2ORC corpus.
	S2ORC S2ORCConfig `mapstructure:"s2orc"`
}

// SourceConfig holds configuration for a single API-backed source.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g.
	// LITMINE_SOURCES_SPRINGER_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// PageSize is the number of records requested per page.
	PageSize int `mapstructure:"page_size"`
}

// S2ORCConfig holds settings for the file-backed S2ORC source.
type S2ORCConfig struct {
	// Enabled controls whether the corpus source is used.
	Enabled bool `mapstructure:"enabled"`
	// CorpusPath is the path to the JSONL corpus file.
	CorpusPath string `mapstructure:"corpus_path"`
}

// ClassifierConfig holds one relevance classifier endpoint.
type ClassifierConfig struct {
	// Tag is the tag this classifier decides membership for.
	Tag string `mapstructure:"tag"`
	// BaseURL is the base URL of the model server.
	BaseURL string `mapstructure:"base_url"`
	// APIKey optionally authenticates predict calls (loaded from
	// LITMINE_CLASSIFIER_API_KEY, shared across endpoints).
	APIKey string `mapstructure:"-"`
	// Timeout is the timeout for predict calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxBatch caps the number of abstracts per predict request.
	MaxBatch int `mapstructure:"max_batch"`
	// Enabled controls whether this classifier participates in sessions.
	Enabled bool `mapstructure:"enabled"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("LITMINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/literature-mining-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	// Source API keys.
	cfg.Sources.Springer.APIKey = os.Getenv("LITMINE_SOURCES_SPRINGER_API_KEY")
	cfg.Sources.Elsevier.APIKey = os.Getenv("LITMINE_SOURCES_ELSEVIER_API_KEY")
	cfg.Sources.PubMed.APIKey = os.Getenv("LITMINE_SOURCES_PUBMED_API_KEY")

	// A single key authenticates all classifier endpoints.
	classifierKey := os.Getenv("LITMINE_CLASSIFIER_API_KEY")
	for i := range cfg.Classifiers {
		cfg.Classifiers[i].APIKey = classifierKey
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "litmine")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "literature_mining_service")
	// Default to "require" for production security. Use LITMINE_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.literature_mining_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Scraper defaults
	v.SetDefault("scraper.batch_size", 20000)
	v.SetDefault("scraper.scan_cap", 5000)
	v.SetDefault("scraper.save_all", false)
	v.SetDefault("scraper.general_tag", "all")
	v.SetDefault("scraper.subject", "Food Science")

	// Source defaults - Springer (disabled by default, requires API key)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("sources.springer.enabled", false)
	v.SetDefault("sources.springer.base_url", "https://api.springernature.com/meta/v2")
	v.SetDefault("sources.springer.timeout", "30s")
	v.SetDefault("sources.springer.rate_limit", 5.0)
	v.SetDefault("sources.springer.page_size", 100)

	// Source defaults - Elsevier (disabled by default, requires API key)
	v.SetDefault("sources.elsevier.enabled", false)
	v.SetDefault("sources.elsevier.base_url", "https://api.elsevier.com/content")
	v.SetDefault("sources.elsevier.timeout", "30s")
	v.SetDefault("sources.elsevier.rate_limit", 5.0)
	v.SetDefault("sources.elsevier.page_size", 25)

	// Source defaults - PubMed (no API key required)
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.timeout", "30s")
	v.SetDefault("sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("sources.pubmed.page_size", 10000)

	// Source defaults - S2ORC corpus file
	v.SetDefault("sources.s2orc.enabled", false)
	v.SetDefault("sources.s2orc.corpus_path", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate scraper config
	if c.Scraper.BatchSize <= 0 {
		return fmt.Errorf("scraper batch_size must be positive")
	}
	if c.Scraper.ScanCap <= 0 {
		return fmt.Errorf("scraper scan_cap must be positive")
	}
	if c.Scraper.SaveAll && c.Scraper.GeneralTag == "" {
		return fmt.Errorf("scraper general_tag is required when save_all is enabled")
	}

	// Sources that need an API key must have one when enabled.
	if c.Sources.Springer.Enabled && c.Sources.Springer.APIKey == "" {
		return fmt.Errorf("springer source requires LITMINE_SOURCES_SPRINGER_API_KEY to be set")
	}
	if c.Sources.Elsevier.Enabled && c.Sources.Elsevier.APIKey == "" {
		return fmt.Errorf("elsevier source requires LITMINE_SOURCES_ELSEVIER_API_KEY to be set")
	}
	if c.Sources.S2ORC.Enabled && c.Sources.S2ORC.CorpusPath == "" {
		return fmt.Errorf("s2orc source requires sources.s2orc.corpus_path to be set")
	}

	// Classifier entries must be addressable and uniquely tagged.
	seenTags := make(map[string]bool, len(c.Classifiers))
	for i, cc := range c.Classifiers {
		if cc.Tag == "" {
			return fmt.Errorf("classifier %d: tag is required", i)
		}
		if cc.BaseURL == "" {
			return fmt.Errorf("classifier %q: base_url is required", cc.Tag)
		}
		if seenTags[cc.Tag] {
			return fmt.Errorf("classifier %q: duplicate tag", cc.Tag)
		}
		seenTags[cc.Tag] = true
	}

	return nil
}
