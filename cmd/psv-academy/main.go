package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/psv-academy/internal/academy"
	"github.com/terra-clan/psv-academy/internal/api"
	"github.com/terra-clan/psv-academy/internal/cleanup"
	"github.com/terra-clan/psv-academy/internal/config"
	"github.com/terra-clan/psv-academy/internal/content"
	"github.com/terra-clan/psv-academy/internal/events"
	"github.com/terra-clan/psv-academy/internal/services"
	"github.com/terra-clan/psv-academy/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting psv-academy",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Initialize repository (runs migrations on postgres)
	repo, err := storage.Open(initCtx, storage.Options{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		MigrationsDir: cfg.Database.MigrationsDir,
		MaxConns:      cfg.Database.MaxConns,
		MinConns:      cfg.Database.MinConns,
	})
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}
	slog.Info("storage ready", "driver", cfg.Database.Driver)

	// Initialize service registry
	registry := services.NewRegistry()
	registry.Register("storage", services.NewCheckFunc(cfg.Database.Driver, repo.Ping))

	// Load scenario catalogue
	loader := content.NewLoader()
	if err := loader.LoadFromDir(cfg.Content.Dir); err != nil {
		slog.Warn("failed to load content from dir", "dir", cfg.Content.Dir, "error", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub()
	var opts []academy.Option

	if cfg.Redis.Enabled {
		redisProvider, err := services.NewRedisProvider(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Error("failed to create redis provider", "error", err)
			os.Exit(1)
		}
		registry.Register("redis", redisProvider)
		seedLeaderboard(initCtx, repo, redisProvider)
		opts = append(opts,
			academy.WithLeaderboard(redisProvider),
			academy.WithIdempotency(redisProvider, cfg.Idempotency.TTL),
		)
	}

	if cfg.Events.Enabled {
		notifier, err := services.NewPostgresNotifier(cfg.Database.DSN, cfg.Events.Channel)
		if err != nil {
			slog.Error("failed to create event notifier", "error", err)
			os.Exit(1)
		}
		registry.Register("events", notifier)
		opts = append(opts, academy.WithPublisher(notifier))

		go func() {
			if err := notifier.Listen(ctx, hub.Publish); err != nil {
				slog.Error("event listener stopped", "error", err)
			}
		}()
	}

	slog.Info("backing services registered", "services", registry.List())

	svc := academy.NewService(repo, loader, hub, opts...)

	// Start retention worker
	cleaner := cleanup.NewCleaner(repo, cfg.Retention.Interval, cfg.Retention.AttemptsPerScenario, cfg.Retention.DraftTTL)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.Auth, svc, repo, hub, registry)
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Close live feeds, external providers, then storage
	hub.Close()
	registry.CloseAll()
	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("psv-academy stopped")
}

// seedLeaderboard copies stored XP into Redis so a fresh cache serves complete rankings
func seedLeaderboard(ctx context.Context, repo storage.Repository, lb academy.Leaderboard) {
	entries, err := repo.TopProfiles(ctx, 500)
	if err != nil {
		slog.Warn("failed to load profiles for leaderboard seed", "error", err)
		return
	}
	for _, e := range entries {
		if err := lb.SetXP(ctx, e.ProfileID, e.XP); err != nil {
			slog.Warn("failed to seed leaderboard", "error", err)
			return
		}
	}
	slog.Info("leaderboard seeded", "profiles", len(entries))
}
