// Package config provides centralized configuration management for the chart feed.
// Configuration is layered: built-in defaults, then an optional JSON or YAML file,
// then environment variables, and is validated before use.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	AppName    string `json:"app_name" yaml:"app_name" env:"APP_NAME"`
	Version    string `json:"version" yaml:"version" env:"VERSION"`
	ConfigPath string `json:"-" yaml:"-" env:"CONFIG_PATH"`

	Exchange      ExchangeConfig      `json:"exchange" yaml:"exchange"`
	Pagination    PaginationConfig    `json:"pagination" yaml:"pagination"`
	Poller        PollerConfig        `json:"poller" yaml:"poller"`
	Stream        StreamConfig        `json:"stream" yaml:"stream"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Export        ExportConfig        `json:"export" yaml:"export"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Chart         ChartConfig         `json:"chart" yaml:"chart"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
	ErrorHandling ErrorHandlingConfig `json:"error_handling" yaml:"error_handling"`
}

// ExchangeConfig configures the market data REST client
type ExchangeConfig struct {
	BaseURL     string            `json:"base_url" yaml:"base_url" env:"EXCHANGE_BASE_URL"`
	Symbol      string            `json:"symbol" yaml:"symbol" env:"EXCHANGE_SYMBOL"`
	RateLimit   int               `json:"rate_limit" yaml:"rate_limit" env:"RATE_LIMIT"` // Requests per second
	Timeout     string            `json:"timeout" yaml:"timeout" env:"HTTP_TIMEOUT"`
	RetryPolicy RetryPolicyConfig `json:"retry_policy" yaml:"retry_policy"`
}

// PaginationConfig configures historical paging
type PaginationConfig struct {
	InitialLimit     int    `json:"initial_limit" yaml:"initial_limit" env:"INITIAL_LIMIT"`
	LoadMoreLimit    int    `json:"load_more_limit" yaml:"load_more_limit" env:"LOAD_MORE_LIMIT"`
	DefaultTimeframe string `json:"default_timeframe" yaml:"default_timeframe" env:"DEFAULT_TIMEFRAME"`
	ScrollThreshold  int    `json:"scroll_threshold" yaml:"scroll_threshold" env:"SCROLL_THRESHOLD"`   // Logical bars from the oldest candle
	ScrollInterval   string `json:"scroll_interval" yaml:"scroll_interval" env:"SCROLL_INTERVAL"`      // Minimum interval between scroll-triggered loads
	RequestTimeout   string `json:"request_timeout" yaml:"request_timeout" env:"PAGE_REQUEST_TIMEOUT"` // Upper bound for one page request
}

// PollerConfig configures the current price poller
type PollerConfig struct {
	Interval string `json:"interval" yaml:"interval" env:"POLL_INTERVAL"`
	Auto     bool   `json:"auto" yaml:"auto" env:"POLL_AUTO"`
}

// StreamConfig configures the live kline websocket
type StreamConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" env:"STREAM_ENABLED"`
	URL            string `json:"url" yaml:"url" env:"STREAM_URL"`
	ReconnectDelay string `json:"reconnect_delay" yaml:"reconnect_delay" env:"STREAM_RECONNECT_DELAY"`
	MaxReconnect   string `json:"max_reconnect" yaml:"max_reconnect" env:"STREAM_MAX_RECONNECT"`
}

// StorageConfig configures the archive backend
type StorageConfig struct {
	Type         string `json:"type" yaml:"type" env:"STORAGE_TYPE"`                 // "none", "memory", "duckdb", "sqlite"
	DatabaseURL  string `json:"database_url" yaml:"database_url" env:"DATABASE_URL"` // Database file path
	BatchSize    int    `json:"batch_size" yaml:"batch_size" env:"BATCH_SIZE"`       // Rows per insert transaction
	QueryTimeout string `json:"query_timeout" yaml:"query_timeout" env:"QUERY_TIMEOUT"`
}

// ExportConfig configures parquet export
type ExportConfig struct {
	Dir string `json:"dir" yaml:"dir" env:"EXPORT_DIR"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string `json:"addr" yaml:"addr" env:"SERVER_ADDR"`
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ChartConfig configures presentation hints returned with the series
type ChartConfig struct {
	Theme     string            `json:"theme" yaml:"theme" env:"CHART_THEME"`
	UpColor   string            `json:"up_color" yaml:"up_color" env:"CHART_UP_COLOR"`
	DownColor string            `json:"down_color" yaml:"down_color" env:"CHART_DOWN_COLOR"`
	Extra     map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" yaml:"level" env:"LOG_LEVEL"`    // debug, info, warn, error
	Format        string            `json:"format" yaml:"format" env:"LOG_FORMAT"` // json, text
	Output        string            `json:"output" yaml:"output" env:"LOG_OUTPUT"` // stdout, stderr, file
	FilePath      string            `json:"file_path" yaml:"file_path" env:"LOG_FILE_PATH"`
	MaxSize       int               `json:"max_size" yaml:"max_size" env:"LOG_MAX_SIZE"` // MB
	MaxBackups    int               `json:"max_backups" yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge        int               `json:"max_age" yaml:"max_age" env:"LOG_MAX_AGE"` // days
	Compress      bool              `json:"compress" yaml:"compress" env:"LOG_COMPRESS"`
	ContextFields map[string]string `json:"context_fields" yaml:"context_fields"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `json:"path" yaml:"path" env:"METRICS_PATH"`
}

// ErrorHandlingConfig configures error handling and retry policies
type ErrorHandlingConfig struct {
	GlobalRetryPolicy    RetryPolicyConfig            `json:"global_retry_policy" yaml:"global_retry_policy"`
	ComponentPolicies    map[string]RetryPolicyConfig `json:"component_policies" yaml:"component_policies"`
	EnableCircuitBreaker bool                         `json:"enable_circuit_breaker" yaml:"enable_circuit_breaker" env:"ENABLE_CIRCUIT_BREAKER"`
	CircuitBreakerConfig CircuitBreakerConfig         `json:"circuit_breaker_config" yaml:"circuit_breaker_config"`
}

// RetryPolicyConfig configures retry behavior
type RetryPolicyConfig struct {
	MaxAttempts     int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay    string   `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay        string   `json:"max_delay" yaml:"max_delay"`
	BackoffStrategy string   `json:"backoff_strategy" yaml:"backoff_strategy"` // fixed, exponential, linear
	RetryableErrors []string `json:"retryable_errors" yaml:"retryable_errors"`
	Jitter          bool     `json:"jitter" yaml:"jitter"`
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeout  string `json:"recovery_timeout" yaml:"recovery_timeout"`
	HalfOpenRequests int    `json:"half_open_requests" yaml:"half_open_requests"`
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	config.ConfigPath = cm.configPath
	cm.config = config
	cm.logger.Info("configuration loaded successfully",
		"config_path", cm.configPath,
		"symbol", config.Exchange.Symbol,
		"storage_type", config.Storage.Type,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadFromEnv loads configuration from environment variables
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	if val := os.Getenv("APP_NAME"); val != "" {
		config.AppName = val
	}

	// Exchange
	if val := os.Getenv("EXCHANGE_BASE_URL"); val != "" {
		config.Exchange.BaseURL = val
	}
	if val := os.Getenv("EXCHANGE_SYMBOL"); val != "" {
		config.Exchange.Symbol = strings.ToUpper(val)
	}
	if val := os.Getenv("RATE_LIMIT"); val != "" {
		if rateLimit, err := strconv.Atoi(val); err == nil {
			config.Exchange.RateLimit = rateLimit
		}
	}
	if val := os.Getenv("HTTP_TIMEOUT"); val != "" {
		config.Exchange.Timeout = val
	}

	// Pagination
	if val := os.Getenv("INITIAL_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Pagination.InitialLimit = limit
		}
	}
	if val := os.Getenv("LOAD_MORE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Pagination.LoadMoreLimit = limit
		}
	}
	if val := os.Getenv("DEFAULT_TIMEFRAME"); val != "" {
		config.Pagination.DefaultTimeframe = val
	}
	if val := os.Getenv("SCROLL_THRESHOLD"); val != "" {
		if threshold, err := strconv.Atoi(val); err == nil {
			config.Pagination.ScrollThreshold = threshold
		}
	}
	if val := os.Getenv("SCROLL_INTERVAL"); val != "" {
		config.Pagination.ScrollInterval = val
	}

	// Poller and stream
	if val := os.Getenv("POLL_INTERVAL"); val != "" {
		config.Poller.Interval = val
	}
	if val := os.Getenv("POLL_AUTO"); val != "" {
		config.Poller.Auto = val == "true"
	}
	if val := os.Getenv("STREAM_ENABLED"); val != "" {
		config.Stream.Enabled = val == "true"
	}
	if val := os.Getenv("STREAM_URL"); val != "" {
		config.Stream.URL = val
	}

	// Storage
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		config.Storage.Type = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Storage.DatabaseURL = val
	}
	if val := os.Getenv("BATCH_SIZE"); val != "" {
		if batchSize, err := strconv.Atoi(val); err == nil {
			config.Storage.BatchSize = batchSize
		}
	}
	if val := os.Getenv("EXPORT_DIR"); val != "" {
		config.Export.Dir = val
	}

	// Server and chart
	if val := os.Getenv("SERVER_ADDR"); val != "" {
		config.Server.Addr = val
	}
	if val := os.Getenv("CHART_THEME"); val != "" {
		config.Chart.Theme = val
	}

	// Logging
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}

	// Metrics
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		config.Metrics.Enabled = val == "true"
	}

	cm.logger.Debug("loaded configuration from environment variables")
	return nil
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errors []string

	checkDuration := func(field, value string) {
		if _, err := time.ParseDuration(value); err != nil {
			errors = append(errors, fmt.Sprintf("%s is not a valid duration: %v", field, err))
		}
	}

	// Exchange
	if config.Exchange.BaseURL == "" {
		errors = append(errors, "exchange.base_url is required")
	}
	if config.Exchange.Symbol == "" {
		errors = append(errors, "exchange.symbol is required")
	}
	if config.Exchange.RateLimit <= 0 {
		errors = append(errors, "exchange.rate_limit must be greater than 0")
	}
	checkDuration("exchange.timeout", config.Exchange.Timeout)
	if config.Exchange.RetryPolicy.MaxAttempts <= 0 {
		errors = append(errors, "exchange.retry_policy.max_attempts must be greater than 0")
	}

	// Pagination
	if config.Pagination.InitialLimit <= 0 || config.Pagination.InitialLimit > 1000 {
		errors = append(errors, "pagination.initial_limit must be between 1 and 1000")
	}
	if config.Pagination.LoadMoreLimit <= 0 || config.Pagination.LoadMoreLimit > 1000 {
		errors = append(errors, "pagination.load_more_limit must be between 1 and 1000")
	}
	if !validTimeframes[config.Pagination.DefaultTimeframe] {
		errors = append(errors, fmt.Sprintf("pagination.default_timeframe %q is not supported", config.Pagination.DefaultTimeframe))
	}
	if config.Pagination.ScrollThreshold < 0 {
		errors = append(errors, "pagination.scroll_threshold must not be negative")
	}
	checkDuration("pagination.scroll_interval", config.Pagination.ScrollInterval)
	checkDuration("pagination.request_timeout", config.Pagination.RequestTimeout)

	// Poller
	checkDuration("poller.interval", config.Poller.Interval)

	// Stream
	if config.Stream.Enabled && config.Stream.URL == "" {
		errors = append(errors, "stream.url is required when the stream is enabled")
	}

	// Storage
	validStorage := map[string]bool{"none": true, "memory": true, "duckdb": true, "sqlite": true}
	if !validStorage[config.Storage.Type] {
		errors = append(errors, "storage.type must be one of: none, memory, duckdb, sqlite")
	}
	if (config.Storage.Type == "duckdb" || config.Storage.Type == "sqlite") && config.Storage.DatabaseURL == "" {
		errors = append(errors, fmt.Sprintf("storage.database_url is required for %s storage", config.Storage.Type))
	}
	if config.Storage.BatchSize <= 0 {
		errors = append(errors, "storage.batch_size must be greater than 0")
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when logging.output is file")
	}

	// Chart
	if config.Chart.Theme != "light" && config.Chart.Theme != "dark" {
		errors = append(errors, "chart.theme must be one of: light, dark")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Kept in sync with models.AllTimeframes; config does not import models.
var validTimeframes = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// SaveConfig writes the current configuration to the config file
func (cm *ConfigManager) SaveConfig(ctx context.Context) error {
	if cm.configPath == "" {
		return fmt.Errorf("no config path specified")
	}
	if cm.config == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cm.config)
	default:
		data, err = json.MarshalIndent(cm.config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.logger.Info("configuration saved", "path", cm.configPath)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "btc-chart",
		Version: "1.0.0",
		Exchange: ExchangeConfig{
			BaseURL:   "https://api.binance.com",
			Symbol:    "BTCUSDT",
			RateLimit: 10,
			Timeout:   "10s",
			RetryPolicy: RetryPolicyConfig{
				MaxAttempts:     3,
				InitialDelay:    "500ms",
				MaxDelay:        "5s",
				BackoffStrategy: "exponential",
				RetryableErrors: []string{"timeout", "rate_limit", "server_error"},
				Jitter:          true,
			},
		},
		Pagination: PaginationConfig{
			InitialLimit:     500,
			LoadMoreLimit:    500,
			DefaultTimeframe: "1h",
			ScrollThreshold:  20,
			ScrollInterval:   "300ms",
			RequestTimeout:   "30s",
		},
		Poller: PollerConfig{
			Interval: "10s",
			Auto:     false,
		},
		Stream: StreamConfig{
			Enabled:        false,
			URL:            "wss://stream.binance.com:9443/ws",
			ReconnectDelay: "1s",
			MaxReconnect:   "30s",
		},
		Storage: StorageConfig{
			Type:         "memory",
			DatabaseURL:  "./data/chart.db",
			BatchSize:    500,
			QueryTimeout: "30s",
		},
		Export: ExportConfig{
			Dir: "./export",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Chart: ChartConfig{
			Theme: "light",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
			ContextFields: map[string]string{
				"service": "btc-chart",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		ErrorHandling: ErrorHandlingConfig{
			GlobalRetryPolicy: RetryPolicyConfig{
				MaxAttempts:     3,
				InitialDelay:    "1s",
				MaxDelay:        "30s",
				BackoffStrategy: "exponential",
				RetryableErrors: []string{"timeout", "network"},
				Jitter:          true,
			},
			ComponentPolicies:    make(map[string]RetryPolicyConfig),
			EnableCircuitBreaker: true,
			CircuitBreakerConfig: CircuitBreakerConfig{
				FailureThreshold: 5,
				RecoveryTimeout:  "30s",
				HalfOpenRequests: 1,
			},
		},
	}
}

// DurationOr parses value, returning def when it is empty or malformed.
func DurationOr(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// String returns the configuration as indented JSON
func (c *AppConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
