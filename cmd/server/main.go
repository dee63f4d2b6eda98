package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avvvet/tod-intent/internal/app"
	"github.com/avvvet/tod-intent/internal/classifier"
	"github.com/avvvet/tod-intent/internal/config"
	"github.com/avvvet/tod-intent/internal/handlers"
	"github.com/avvvet/tod-intent/internal/logging"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/metrics"
	"github.com/avvvet/tod-intent/internal/transport"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists (for development)
	envErr := godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Info("No .env file found, using environment variables")
	}

	logger.Info("🚀 Starting TOD Intent Service...",
		zap.String("service", cfg.ServiceName),
		zap.String("nats_url", cfg.NatsURL),
		zap.String("model", cfg.LLMModel))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("❌ Invalid configuration", zap.Error(err))
	}

	collectors := metrics.New()

	cat, err := app.Catalog(cfg)
	if err != nil {
		logger.Fatal("❌ Failed to load catalog", zap.Error(err))
	}

	store, err := app.Store(cfg, logger)
	if err != nil {
		logger.Fatal("❌ Failed to initialize session store", zap.Error(err))
	}
	memoryManager := memory.NewManager(store, logger)
	logger.Info("🧠 Memory manager initialized")

	provider, monitor, err := app.Provider(cfg, collectors, logger)
	if err != nil {
		logger.Fatal("❌ Failed to initialize LLM provider", zap.Error(err))
	}

	dataTools := app.DataTools(cfg, collectors, logger)
	if dataTools == nil {
		logger.Warn("⚠️ No data source configured, data questions are answered by the model alone")
	}

	turnHandler := handlers.NewTurnHandler(
		memoryManager,
		classifier.New(provider, cat, collectors, logger),
		handlers.NewRegistryFactory(handlers.RegistryConfig{
			Catalog:   cat,
			Provider:  provider,
			DataTools: dataTools,
			MaxTokens: cfg.MaxTokens,
			Metrics:   collectors,
			Logger:    logger,
		}),
		collectors,
		logger,
	).WithIdleTimeout(cfg.SessionTTL)
	logger.Info("✅ Turn handler initialized", zap.Strings("intents", cat.IntentNames()))

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go turnHandler.RunJanitor(janitorCtx, time.Minute)

	natsTransport, err := transport.NewNATSTransport(cfg, turnHandler, logger)
	if err != nil {
		logger.Fatal("❌ Failed to initialize NATS transport", zap.Error(err))
	}
	if err := natsTransport.Start(); err != nil {
		logger.Fatal("❌ Failed to start NATS transport", zap.Error(err))
	}

	opsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           opsRouter(collectors, memoryManager),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("📊 Ops server listening", zap.String("addr", cfg.MetricsAddr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("❌ Ops server failed", zap.Error(err))
		}
	}()

	logger.Info("✅ TOD Intent Service is running!",
		zap.String("subject", cfg.NatsRequestSubject),
		zap.String("end_subject", cfg.NatsEndSubject))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("🛑 Received signal, shutting down gracefully...", zap.String("signal", sig.String()))

	stats := monitor.Stats()
	logger.Info("📊 LLM usage",
		zap.Int("calls", stats.Total.Calls),
		zap.Int("input_tokens", stats.Total.InputTokens),
		zap.Int("output_tokens", stats.Total.OutputTokens),
		zap.Float64("estimated_cost_usd", stats.EstimatedCost),
		zap.Int("active_sessions", turnHandler.ActiveSessions()))

	stopJanitor()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := natsTransport.Close(); err != nil {
		logger.Warn("⚠️ Error closing NATS transport", zap.Error(err))
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		logger.Warn("⚠️ Error stopping ops server", zap.Error(err))
	}
	if err := memoryManager.Close(); err != nil {
		logger.Warn("⚠️ Error closing memory manager", zap.Error(err))
	}

	logger.Info("👋 TOD Intent Service stopped")
}

func opsRouter(collectors *metrics.Collectors, manager *memory.Manager) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", collectors.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := manager.Ping(ctx); err != nil {
			http.Error(w, "session store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
