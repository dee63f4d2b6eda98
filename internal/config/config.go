package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// NATS configuration
	NatsURL            string
	NatsRequestSubject string
	NatsEndSubject     string
	NatsTimeout        time.Duration
	RequestTimeout     time.Duration

	// Language model configuration
	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string
	LLMTimeout time.Duration
	MaxTokens  int

	// Session memory
	RedisURL   string
	SessionTTL time.Duration

	CatalogPath string

	// Company data source
	DataBaseURL     string
	DataRealmID     string
	DataAccessToken string
	DataSandbox     bool
	DataPageSize    int
	CacheDir        string

	// Service configuration
	ServiceName string
	MetricsAddr string
	LogLevel    string
	LogFormat   string
}

func Load() *Config {
	return &Config{
		// NATS settings
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsRequestSubject: getEnv("NATS_REQUEST_SUBJECT", "dialog.turn"),
		NatsEndSubject:     getEnv("NATS_END_SUBJECT", "dialog.end"),
		NatsTimeout:        getDurationEnv("NATS_TIMEOUT", 30*time.Second),
		RequestTimeout:     getDurationEnv("REQUEST_TIMEOUT", 2*time.Minute),

		// LLM settings
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMTimeout: getDurationEnv("LLM_TIMEOUT", 60*time.Second),
		MaxTokens:  getIntEnv("LLM_MAX_TOKENS", 1024),

		// Memory settings; an empty REDIS_URL keeps sessions in process.
		RedisURL:   getEnv("REDIS_URL", ""),
		SessionTTL: getDurationEnv("SESSION_TTL", 30*time.Minute),

		CatalogPath: getEnv("CATALOG_PATH", ""),

		// Data source settings
		DataBaseURL:     getEnv("DATA_BASE_URL", ""),
		DataRealmID:     getEnv("DATA_REALM_ID", ""),
		DataAccessToken: getEnv("DATA_ACCESS_TOKEN", ""),
		DataSandbox:     getBoolEnv("DATA_SANDBOX", true),
		DataPageSize:    getIntEnv("PAGE_SIZE", 100),
		CacheDir:        getEnv("CACHE_DIR", ".cache/retrievers"),

		// Service settings
		ServiceName: getEnv("SERVICE_NAME", "tod-intent"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
	}
}

// Validate reports every missing or out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	if c.LLMAPIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY environment variable is required"))
	}
	if c.NatsRequestSubject == "" {
		errs = append(errs, errors.New("NATS_REQUEST_SUBJECT must not be empty"))
	}
	if c.DataPageSize <= 0 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be positive, got %d", c.DataPageSize))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.MaxTokens))
	}
	return errors.Join(errs...)
}

// DataEnabled reports whether company data retrieval is configured.
func (c *Config) DataEnabled() bool {
	return c.DataRealmID != "" || c.DataBaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
