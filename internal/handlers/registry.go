package handlers

import (
	"github.com/avvvet/tod-intent/internal/catalog"
	"github.com/avvvet/tod-intent/internal/intent"
	"github.com/avvvet/tod-intent/internal/llm"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/tools"
	"go.uber.org/zap"
)

// collaborators are the intents each intent may call as tools. Keep it acyclic.
var collaborators = map[string][]string{
	"search_hotels":  {"get_listing_details"},
	"book_listing":   {"get_listing_details"},
	"cancel_booking": {"get_booking"},
}

// RegistryConfig holds what the intent servers of a session are built from.
type RegistryConfig struct {
	Catalog  *catalog.Catalog
	Provider llm.Provider
	// DataTools answers the data intent. Without it the intent is answered
	// by the model alone.
	DataTools *tools.Runner
	Platform  string
	MaxTokens int
	Metrics   *metrics.Collectors
	Logger    *zap.Logger
}

// DataIntent is answered with the data retrieval tools.
const DataIntent = "qb"

// NewRegistryFactory returns a function building a fresh registry with one
// server per catalog intent.
func NewRegistryFactory(cfg RegistryConfig) func() *intent.Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Platform == "" {
		cfg.Platform = "QuickBooks"
	}

	return func() *intent.Registry {
		registry := intent.NewRegistry()
		for _, in := range cfg.Catalog.Intents() {
			server := intent.NewServer(in, cfg.Catalog, behaviorFor(in.Name, cfg),
				intent.WithCollaborators(collaborators[in.Name]...),
				intent.WithMetrics(cfg.Metrics),
				intent.WithLogger(cfg.Logger),
			)
			registry.Register(in.Name, server)
		}
		return registry
	}
}

func behaviorFor(name string, cfg RegistryConfig) intent.Behavior {
	switch {
	case name == FallbackIntent:
		return intent.ClarifyBehavior{}
	case name == DataIntent && cfg.DataTools != nil:
		return &intent.ToolBehavior{
			Provider:  cfg.Provider,
			Runner:    cfg.DataTools,
			Platform:  cfg.Platform,
			MaxTokens: cfg.MaxTokens,
		}
	case cfg.Provider == nil:
		return intent.AskBehavior{}
	default:
		return &intent.LLMBehavior{Provider: cfg.Provider, MaxTokens: cfg.MaxTokens}
	}
}
