// Package app builds the service components from configuration. Both
// binaries share it.
package app

import (
	"fmt"
	"net/http"

	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/config"
	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/retrieval"
	"github.com/avvvet/tod-intent/internal/tools"
	"go.uber.org/zap"
)

// Catalog loads CATALOG_PATH, or the built-in catalog when unset.
func Catalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", cfg.CatalogPath, err)
	}
	return cat, nil
}

// Provider builds the language model backend with usage monitoring.
func Provider(cfg *config.Config, m *metrics.Collectors, logger *zap.Logger) (*llm.OpenAIProvider, *llm.Monitor, error) {
	monitor := llm.NewMonitor(cfg.LLMModel, m, logger)
	provider, err := llm.NewOpenAIProvider(llm.ProviderConfig{
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
		Timeout: cfg.LLMTimeout,
	}, monitor, logger)
	if err != nil {
		return nil, nil, err
	}
	return provider, monitor, nil
}

// Store returns a Redis store when REDIS_URL is set and an in-process one otherwise.
func Store(cfg *config.Config, logger *zap.Logger) (memory.Store, error) {
	if cfg.RedisURL == "" {
		logger.Warn("⚠️ REDIS_URL not set, sessions are kept in process memory")
		return memory.NewLocalStore(), nil
	}
	store, err := memory.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("💾 Redis connected", zap.Duration("session_ttl", cfg.SessionTTL))
	return store, nil
}

// Retriever builds the company data retriever, or nil when no data source is configured.
func Retriever(cfg *config.Config, logger *zap.Logger) *retrieval.HTTPRetriever {
	if !cfg.DataEnabled() {
		return nil
	}
	baseURL := cfg.DataBaseURL
	if baseURL == "" {
		baseURL = retrieval.QuickBooksBaseURL(cfg.DataRealmID, cfg.DataSandbox)
	}
	conn := retrieval.NewStaticConnection(cfg.DataRealmID, "QuickBooks", cfg.DataAccessToken)
	return retrieval.NewHTTPRetriever(conn, baseURL,
		retrieval.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
		retrieval.WithCache(retrieval.NewFileCache(cfg.CacheDir)),
		retrieval.WithPageSize(cfg.DataPageSize),
		retrieval.WithLogger(logger),
	)
}

// DataTools registers the retrieval tools on a runner, or returns nil when
// no data source is configured.
func DataTools(cfg *config.Config, m *metrics.Collectors, logger *zap.Logger) *tools.Runner {
	r := Retriever(cfg, logger)
	if r == nil {
		return nil
	}
	runner := tools.NewRunner(m, logger)
	runner.Register(retrieval.DataTools(r, logger)...)
	logger.Info("📦 Data tools registered", zap.Strings("tools", runner.Names()))
	return runner
}
