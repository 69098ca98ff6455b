// Package config provides configuration management for the citation tracking service.
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

// Config holds all configuration for the citation tracking service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the ledger.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains classification and summarization oracle settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Kafka contains Kafka publisher settings for pipeline events.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Discovery contains citation discovery (Semantic Scholar) settings.
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	// Extraction contains text-extraction collaborator settings.
	Extraction ExtractionConfig `mapstructure:"extraction"`
	// PDF contains PDF download settings.
	PDF PDFConfig `mapstructure:"pdf"`
	// Pipeline contains orchestrator settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Artifacts contains summary artifact store settings.
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	// TrackedPapers is the set of reference papers whose citers are monitored.
	TrackedPapers []TrackedPaperConfig `mapstructure:"tracked_papers"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
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

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for citation poll workflows.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
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

// LLMConfig holds oracle client configuration.
type LLMConfig struct {
	// Provider is the oracle provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for oracle API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Temperature is the sampling temperature for classification calls.
	Temperature float64 `mapstructure:"temperature"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from CITETRACK_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the model used for stage-one classification.
	Model string `mapstructure:"model"`
	// HeavyModel is the model used for stage-two classification and summaries.
	HeavyModel string `mapstructure:"heavy_model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from CITETRACK_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the model used for stage-one classification.
	Model string `mapstructure:"model"`
	// HeavyModel is the model used for stage-two classification and summaries.
	HeavyModel string `mapstructure:"heavy_model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// KafkaConfig holds Kafka publisher settings for pipeline events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish pipeline events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DiscoveryConfig holds citation discovery settings.
type DiscoveryConfig struct {
	// SemanticScholar contains Semantic Scholar Graph API settings.
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	// PageSize is the maximum citations fetched per poll per tracked paper.
	PageSize int `mapstructure:"page_size"`
}

// SourceConfig holds configuration for a single external API.
type SourceConfig struct {
	// Enabled controls whether this source is registered and polled.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g.
	// CITETRACK_DISCOVERY_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// ExtractionConfig holds text-extraction collaborator settings.
type ExtractionConfig struct {
	// BaseURL is the extraction service endpoint.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for extraction calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// SnippetPages is the number of leading pages used for stage-one snippets.
	SnippetPages int `mapstructure:"snippet_pages"`
	// MaxTextChars caps extracted full text.
	MaxTextChars int `mapstructure:"max_text_chars"`
	// FallbackTextChars caps full text when the primary cap cannot be honored.
	FallbackTextChars int `mapstructure:"fallback_text_chars"`
	// AbstractFallbackChars is the leading-text length used as an abstract
	// substitute when no clean abstract exists.
	AbstractFallbackChars int `mapstructure:"abstract_fallback_chars"`
}

// PDFConfig holds PDF download settings.
type PDFConfig struct {
	// Timeout is the download timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSizeBytes caps the downloaded document size.
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	// UserAgent is sent on download requests.
	UserAgent string `mapstructure:"user_agent"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// PollInterval is the delay between discovery polls.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MaxRetries is the retry ceiling before a record is permanently failed.
	MaxRetries int `mapstructure:"max_retries"`
	// Concurrency bounds how many records are processed in parallel per poll.
	Concurrency int `mapstructure:"concurrency"`
	// StageTimeout bounds every external call made by a single stage.
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// ArtifactsConfig holds summary artifact store settings.
type ArtifactsConfig struct {
	// BaseDir is the root directory for summary and classification artifacts.
	BaseDir string `mapstructure:"base_dir"`
}

// TrackedPaperConfig identifies one tracked reference paper.
type TrackedPaperConfig struct {
	// ID is the external (Semantic Scholar) paper identifier.
	ID string `mapstructure:"id"`
	// Alias is the short name used in logs and artifact paths.
	Alias string `mapstructure:"alias"`
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

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("CITETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-service")

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
	cfg.LLM.OpenAI.APIKey = os.Getenv("CITETRACK_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("CITETRACK_LLM_ANTHROPIC_API_KEY")
	cfg.Discovery.SemanticScholar.APIKey = os.Getenv("CITETRACK_DISCOVERY_SEMANTIC_SCHOLAR_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "citetrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "citation_service")
	// Default to "require" for production security. Use CITETRACK_DATABASE_SSL_MODE=disable for local development.
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

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "citation-tracking")
	v.SetDefault("temporal.task_queue", "citation-poll-tasks")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "1s")
	v.SetDefault("llm.temperature", 0.0)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.heavy_model", "gpt-4o")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.anthropic.heavy_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.citation_service.pipeline")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Discovery defaults - Semantic Scholar
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("discovery.semantic_scholar.enabled", true)
	v.SetDefault("discovery.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("discovery.semantic_scholar.timeout", "30s")
	v.SetDefault("discovery.semantic_scholar.rate_limit", 1.0)
	v.SetDefault("discovery.page_size", 50)

	// Extraction defaults
	v.SetDefault("extraction.base_url", "http://localhost:8070")
	v.SetDefault("extraction.timeout", "60s")
	v.SetDefault("extraction.rate_limit", 5.0)
	v.SetDefault("extraction.snippet_pages", 3)
	v.SetDefault("extraction.max_text_chars", 30000)
	v.SetDefault("extraction.fallback_text_chars", 20000)
	v.SetDefault("extraction.abstract_fallback_chars", 1500)

	// PDF defaults
	v.SetDefault("pdf.timeout", "60s")
	v.SetDefault("pdf.max_size_bytes", int64(100*1024*1024))
	v.SetDefault("pdf.user_agent", "CiteTrack/1.0")

	// Pipeline defaults
	v.SetDefault("pipeline.poll_interval", "1h")
	v.SetDefault("pipeline.max_retries", 5)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.stage_timeout", "120s")

	// Artifacts defaults
	v.SetDefault("artifacts.base_dir", "summaries")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
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

	// Validate pipeline config
	if c.Pipeline.MaxRetries <= 0 {
		return fmt.Errorf("pipeline max_retries must be positive")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline concurrency must be positive")
	}
	if c.Pipeline.PollInterval <= 0 {
		return fmt.Errorf("pipeline poll_interval must be positive")
	}

	// Validate extraction config
	if c.Extraction.SnippetPages <= 0 {
		return fmt.Errorf("extraction snippet_pages must be positive")
	}
	if c.Extraction.MaxTextChars <= 0 {
		return fmt.Errorf("extraction max_text_chars must be positive")
	}

	// Validate tracked papers
	seen := make(map[string]bool, len(c.TrackedPapers))
	for i, tp := range c.TrackedPapers {
		if tp.ID == "" {
			return fmt.Errorf("tracked_papers[%d]: id is required", i)
		}
		if tp.Alias == "" {
			return fmt.Errorf("tracked_papers[%d]: alias is required", i)
		}
		if seen[tp.ID] {
			return fmt.Errorf("tracked_papers[%d]: duplicate id %s", i, tp.ID)
		}
		seen[tp.ID] = true
	}

	// Validate that the configured oracle provider has its required API key set.
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires CITETRACK_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires CITETRACK_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	return nil
}
