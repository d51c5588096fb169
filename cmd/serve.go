package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Ananth-NQI/wamirror-backend/database"
	"github.com/Ananth-NQI/wamirror-backend/internal/config"
	"github.com/Ananth-NQI/wamirror-backend/internal/handlers"
	"github.com/Ananth-NQI/wamirror-backend/internal/jobs"
	"github.com/Ananth-NQI/wamirror-backend/internal/middleware"
	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
	"github.com/Ananth-NQI/wamirror-backend/internal/routes"
	"github.com/Ananth-NQI/wamirror-backend/internal/services"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and restore connected sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	hub := notifier.NewHub(log)
	var sink *notifier.RedisSink
	defer func() {
		// drain the hub before closing the sink it feeds
		hub.Close()
		if sink != nil {
			_ = sink.Close()
		}
	}()

	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		s, err := notifier.NewRedisSink(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("⚠️  Redis unavailable - events stay in-process")
		} else {
			sink = s
			hub.AddSink(sink)
			log.Info().Msg("✅ Redis event sink connected")
		}
	}

	provider := whatsapp.NewRodProvider(whatsapp.RodConfig{
		BrowserBin:   cfg.BrowserBin,
		Headless:     cfg.BrowserHeadless,
		DataDir:      cfg.SessionDataDir,
		PollInterval: cfg.PollInterval,
	}, log)

	manager := services.NewSessionManager(store, provider, hub, services.ManagerConfig{
		StartTimeout:       cfg.StartTimeout,
		SyncPerChatLimit:   cfg.SyncPerChatLimit,
		SyncInterChatDelay: cfg.SyncInterChatDelay,
	}, log)

	// Restore sessions that were connected when the last process stopped.
	// The listener does not wait for it.
	restoreCtx, cancelRestore := context.WithCancel(cmd.Context())
	defer cancelRestore()
	restored := make(chan struct{})
	go func() {
		defer close(restored)
		if err := manager.RestoreAll(restoreCtx); err != nil {
			log.Error().Err(err).Msg("session restore failed")
		}
	}()

	reconciler := jobs.NewStatusReconcilerJob(manager, cfg.ReconcileInterval, log)
	reconciler.Start()

	deps := routes.Dependencies{
		Store:   store,
		Manager: manager,
		Replies: services.NewQuickReplyService(store),
		Hub:     hub,
		Logger:  log,
	}
	if sink != nil {
		deps.EventSink = sink
	}

	app := newApp(cfg, log)
	routes.SetupRoutes(app, deps)

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("🛑 gracefully shutting down...")
		reconciler.Stop()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Str("storage", storageType(cfg)).
		Bool("redis", cfg.RedisURL != "").
		Msg("🚀 wamirror backend starting")

	listenErr := app.Listen(":" + cfg.Port)

	cancelRestore()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("session shutdown incomplete")
	}
	select {
	case <-restored:
	case <-ctx.Done():
		log.Warn().Msg("session restore still running at exit")
	}
	return listenErr
}

func openStore(cfg *config.Config, log zerolog.Logger) (storage.Store, error) {
	if cfg.UseMemoryStore {
		log.Warn().Msg("⚠️  Using in-memory storage (not for production!)")
		return storage.NewMemoryStore(), nil
	}

	log.Info().Msg("📦 connecting to PostgreSQL database...")
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("🔄 running database migrations...")
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Msg("✅ using PostgreSQL database storage")
	return storage.NewDatabaseStore(db), nil
}

func newApp(cfg *config.Config, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "wamirror backend " + routes.Version,
		ErrorHandler: handlers.ErrorHandler(log),
		IdleTimeout:  2 * time.Minute,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDevelopment()}))
	app.Use(requestid.New())
	app.Use(middleware.Logger(log.With().Str("component", "http").Logger()))
	app.Use(middleware.Metrics())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	return app
}

func storageType(cfg *config.Config) string {
	if cfg.UseMemoryStore {
		return "memory"
	}
	return "postgres"
}
