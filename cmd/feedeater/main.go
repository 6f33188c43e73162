// FeedEater ingestion fleet server — boots the collector modules, runs
// the job scheduler, and serves the operational HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/feedeater/feedeater/pkg/ai"
	"github.com/feedeater/feedeater/pkg/api"
	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/cleanup"
	"github.com/feedeater/feedeater/pkg/config"
	"github.com/feedeater/feedeater/pkg/contexts"
	"github.com/feedeater/feedeater/pkg/history"
	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/modules/bitfinex"
	"github.com/feedeater/feedeater/pkg/modules/polymarket"
	"github.com/feedeater/feedeater/pkg/modules/rss"
	"github.com/feedeater/feedeater/pkg/scheduler"
	"github.com/feedeater/feedeater/pkg/settings"
	"github.com/feedeater/feedeater/pkg/store"
	"github.com/feedeater/feedeater/pkg/version"
)

// shutdownTimeout bounds the wait for in-flight job runs after their
// contexts are cancelled. Runs that do not finish are failed over at
// next boot.
const shutdownTimeout = 30 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting FeedEater",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Connect to PostgreSQL (runs pending migrations)
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Connect to the broker
	busClient, err := bus.Connect(cfg.BrokerURL)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()

	// 4. Shared fleet services. The AI client is constructed even when
	// unconfigured; its calls then fail and the context engine degrades
	// to placeholder summaries.
	registry := settings.NewRegistry(st)
	if err := st.EnsureVectorColumn(ctx, "bus_contexts", "embedding", registry.EmbedDim(ctx)); err != nil {
		slog.Error("Failed to align context embedding dimension", "error", err)
		os.Exit(1)
	}
	aiClient := ai.NewClient(cfg.AI.BaseURL, cfg.AI.Token)
	if cfg.AI.BaseURL == "" {
		slog.Info("AI service not configured; summaries degrade to placeholders and embeddings are skipped")
	}
	engine := contexts.NewEngine(st, aiClient)

	sched := scheduler.New(scheduler.NewJobStore(st), scheduler.Options{
		QueueDepth:         cfg.Scheduler.QueueDepth,
		Concurrency:        cfg.Scheduler.Concurrency,
		DefaultBudget:      cfg.Scheduler.DefaultBudget,
		SettingsGeneration: registry.Generation,
	})

	// 5. Register collector modules
	modules := module.NewRegistry()
	for _, m := range []module.Module{rss.New(), bitfinex.New(), polymarket.New()} {
		if err := modules.Add(m); err != nil {
			slog.Error("Failed to register module", "error", err)
			os.Exit(1)
		}
	}

	overrides := make(map[string]module.Override, len(cfg.Modules))
	for name, mc := range cfg.Modules {
		overrides[name] = module.Override{
			Enabled:   mc.Enabled,
			Schedules: mc.Schedules,
			Settings:  mc.Settings,
		}
	}

	// appCtx is the parent of every collector invocation and stream
	// subscription; cancelling it begins the shutdown.
	appCtx, appCancel := context.WithCancel(ctx)
	defer appCancel()

	// 6. Boot modules: schemas, settings defaults, job registration
	host := module.NewHost(modules, module.HostDeps{
		Store:     st,
		Bus:       busClient,
		Settings:  registry,
		AI:        aiClient,
		Contexts:  engine,
		Scheduler: sched,
		Overrides: overrides,
	})
	if err := host.Boot(ctx); err != nil {
		slog.Error("Failed to boot modules", "error", err)
		os.Exit(1)
	}

	// 7. Bus history persister (sole writer of bus_messages)
	persister := history.NewPersister(st, busClient)
	if err := persister.Start(appCtx); err != nil {
		slog.Error("Failed to start history persister", "error", err)
		os.Exit(1)
	}

	// 8. Log replay buffer for the log SSE bridge. Non-fatal: without it
	// the log stream serves live entries only.
	logBuf := api.NewLogBuffer(busClient, api.DefaultLogBufferSize)
	if err := logBuf.Start(appCtx); err != nil {
		slog.Warn("Log buffer unavailable, log stream serves live entries only", "error", err)
		logBuf = nil
	}

	// 9. Retention sweeps
	cleaner := cleanup.NewService(cfg.Retention, st)
	cleaner.Start(appCtx)

	// 10. Start the scheduler
	if err := sched.Start(appCtx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// 11. Operational HTTP server (non-blocking)
	httpServer := api.NewServer(st, busClient, host, sched, registry, history.NewService(st))
	httpServer.SetInternalToken(cfg.AI.Token)
	if logBuf != nil {
		httpServer.SetLogBuffer(logBuf)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := httpServer.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("FeedEater started successfully", "modules", len(host.Manifests()))

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown. Cancelling appCtx ends in-flight collector
	// sessions at their next context check; the scheduler then drains.
	appCancel()

	stopCtx, stopCancel := context.WithTimeout(ctx, shutdownTimeout)
	sched.Stop(stopCtx)
	stopCancel()

	cleaner.Stop()
	if logBuf != nil {
		logBuf.Stop()
	}
	persister.Stop()

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
