// Talon - Circular-lending detection for P2P loan books.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/talon/internal/analysis"
	"github.com/opensource-finance/talon/internal/api"
	"github.com/opensource-finance/talon/internal/bus"
	"github.com/opensource-finance/talon/internal/cache"
	"github.com/opensource-finance/talon/internal/domain"
	"github.com/opensource-finance/talon/internal/policy"
	"github.com/opensource-finance/talon/internal/repository"
	"github.com/opensource-finance/talon/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	cfg := loadConfig()
	initLogger(cfg.Logging)

	slog.Info("starting talon",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"mode", cfg.Analysis.Mode,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize alert-policy engine
	engine, err := policy.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	tenants := cfg.Worker.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{api.DefaultTenantID}
	}

	if err := loadPolicies(ctx, repo, engine, tenants); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", engine.PoliciesCount())

	// Initialize detection pipeline
	pipeline := analysis.NewPipeline(cfg.Analysis, engine, Version)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, pipeline)

		workerCfg := worker.Config{
			TenantIDs:   cfg.Worker.TenantIDs,
			Concurrency: cfg.Worker.Concurrency,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, pipeline, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("talon is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("talon shutdown complete")
}

// loadConfig assembles configuration from tier defaults plus TALON_*
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if envStr("TALON_TIER", "") == "pro" {
		cfg = domain.ProConfig()
	}

	cfg.Server.Host = envStr("TALON_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("TALON_PORT", cfg.Server.Port)

	// Detection defaults
	if mode := envStr("TALON_MODE", ""); mode != "" {
		cfg.Analysis.Mode = domain.AnalysisMode(mode)
	}
	cfg.Analysis.MaxCycleLength = envInt("TALON_MAX_CYCLE_LENGTH", cfg.Analysis.MaxCycleLength)
	cfg.Analysis.HighRiskThreshold = envFloat("TALON_HIGH_RISK_THRESHOLD", cfg.Analysis.HighRiskThreshold)
	cfg.Analysis.MaxCycles = envInt("TALON_MAX_CYCLES", cfg.Analysis.MaxCycles)
	cfg.Analysis.Workers = envInt("TALON_WORKERS", cfg.Analysis.Workers)

	// Storage
	cfg.Repository.SQLitePath = envStr("TALON_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = envStr("TALON_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = envInt("TALON_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = envStr("TALON_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = envStr("TALON_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = envStr("TALON_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = envStr("TALON_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	// Cache and bus
	cfg.Cache.RedisAddr = envStr("TALON_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = envStr("TALON_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.EventBus.NATSUrl = envStr("TALON_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = envStr("TALON_NATS_TOKEN", cfg.EventBus.NATSToken)

	// Observability
	cfg.Logging.Level = envStr("TALON_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envStr("TALON_LOG_FORMAT", cfg.Logging.Format)
	cfg.Tracing.Enabled = envBool("TALON_TRACING_ENABLED", cfg.Tracing.Enabled)

	// Worker
	cfg.Worker.Enabled = envBool("TALON_WORKER_ENABLED", cfg.Worker.Enabled)
	cfg.Worker.Concurrency = envInt("TALON_WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	if tenants := envStr("TALON_TENANTS", ""); tenants != "" {
		for _, t := range strings.Split(tenants, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Worker.TenantIDs = append(cfg.Worker.TenantIDs, t)
			}
		}
	}

	return cfg
}

func initLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadPolicies loads each tenant's stored policies into the engine,
// seeding the starter set when a tenant's store is empty.
func loadPolicies(ctx context.Context, repo domain.Repository, engine *policy.Engine, tenants []string) error {
	for _, tenantID := range tenants {
		stored, err := repo.ListPolicies(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list policies", "tenant_id", tenantID, "error", err)
			continue
		}

		if len(stored) == 0 {
			seeds := policy.SeedPolicies()
			for _, seed := range seeds {
				if err := repo.SavePolicy(ctx, tenantID, seed); err != nil {
					return fmt.Errorf("failed to seed policy %s: %w", seed.ID, err)
				}
			}
			stored = seeds
			slog.Info("seeded starter policies", "tenant_id", tenantID, "count", len(seeds))
		}

		if err := engine.LoadPolicies(stored); err != nil {
			slog.Warn("failed to load policies into engine", "tenant_id", tenantID, "error", err)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 TALON                    ║")
	fmt.Println("  ║    Circular-Lending Detection Engine      ║")
	fmt.Println("  ║      Every ring leaves a trace.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze             - Analyze a loan book")
	fmt.Println("    GET  /analyses            - List recent analyses")
	fmt.Println("    GET  /analyses/{id}       - Get analysis by ID")
	fmt.Println("    GET  /policies            - List alert policies")
	fmt.Println("    POST /policies            - Create an alert policy")
	fmt.Println("    DELETE /policies/{id}     - Delete an alert policy")
	fmt.Println("    POST /policies/reload     - Hot-reload policies")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /metrics             - Prometheus metrics")
	fmt.Println()
}
