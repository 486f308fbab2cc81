package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	bhhttp "github.com/buildhive/buildhive/internal/adapter/http"
	bhmcp "github.com/buildhive/buildhive/internal/adapter/mcp"
	bhnats "github.com/buildhive/buildhive/internal/adapter/nats"
	bhotel "github.com/buildhive/buildhive/internal/adapter/otel"
	"github.com/buildhive/buildhive/internal/adapter/postgres"
	"github.com/buildhive/buildhive/internal/adapter/ristretto"
	"github.com/buildhive/buildhive/internal/adapter/sim"
	"github.com/buildhive/buildhive/internal/adapter/ws"
	"github.com/buildhive/buildhive/internal/config"
	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/logger"
	"github.com/buildhive/buildhive/internal/port/executor"
	"github.com/buildhive/buildhive/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"scheduler_concurrency", cfg.Scheduler.MaxConcurrency,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Telemetry ---
	shutdownTelemetry, err := bhotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	var metrics *bhotel.Metrics
	if cfg.Telemetry.Enabled {
		metrics, err = bhotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := bhnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	cache, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Agent pool ---
	registry := agent.NewRegistry()
	store := postgres.NewStore(pool)
	if err := seedAgents(ctx, cfg, registry, store); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}

	sim.Register()
	executors := executor.FactoryResolver{
		Config: map[string]string{"base_duration": cfg.Executor.BaseDuration.String()},
	}

	// --- Services ---
	hub := ws.NewHub()
	selector := service.NewSelector(registry)
	lifecycle := service.NewLifecycle(registry, selector, executors, store, queue, hub)
	scheduler := service.NewScheduler(cfg.Scheduler, lifecycle, metrics)
	delegation := service.NewDelegation(registry, scheduler, store, queue)
	healthSvc := service.NewHealthAnalyzer(cache, cfg.Health.CacheTTL)
	syncer := service.NewIntegrationSyncer(cfg.Integrations, store, sim.SyncFuncs())

	go scheduler.Run(ctx)

	// --- MCP ---
	if cfg.MCP.Enabled {
		mcpSrv := bhmcp.NewServer(
			bhmcp.ServerConfig{Addr: ":" + cfg.MCP.Port, Name: "buildhive", Version: version},
			bhmcp.ServerDeps{Delegator: delegation, Health: healthSvc},
		)
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
	}

	// --- HTTP ---
	handlers := &bhhttp.Handlers{
		Delegator: delegation,
		Registry:  registry,
		Health:    healthSvc,
		Store:     store,
		Syncer:    syncer,
		Queue:     queue,
		Events:    hub,
	}

	r := chi.NewRouter()
	r.Use(bhhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(bhhttp.Logger)
	r.Use(bhhttp.SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Telemetry.Enabled {
		r.Use(bhotel.Middleware(cfg.Logging.Service))
	}

	r.Get("/health", healthHandler(queue))
	r.Get("/ws", hub.HandleWS)
	bhhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

// seedAgents registers the configured agent pool and persists the snapshots.
func seedAgents(ctx context.Context, cfg *config.Config, registry *agent.Registry, store *postgres.Store) error {
	for _, spec := range cfg.Agents {
		if _, err := registry.Register(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.Name, err)
		}
		a, err := registry.Get(spec.Name)
		if err != nil {
			return err
		}
		if err := store.SaveAgent(ctx, a); err != nil {
			slog.Error("persist seeded agent", "agent", spec.Name, "error", err)
		}
	}
	slog.Info("agent pool seeded", "count", registry.Count())
	return nil
}

// healthHandler reports process liveness and NATS connectivity.
func healthHandler(queue *bhnats.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := "ok"
		code := http.StatusOK
		if !queue.IsConnected() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"status":%q,"version":%q}`, status, version)
	}
}
