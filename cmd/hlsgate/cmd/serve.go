package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/hlsgate/internal/auth"
	"github.com/jmylchreest/hlsgate/internal/config"
	"github.com/jmylchreest/hlsgate/internal/database"
	"github.com/jmylchreest/hlsgate/internal/database/migrations"
	"github.com/jmylchreest/hlsgate/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/hlsgate/internal/http"
	"github.com/jmylchreest/hlsgate/internal/http/handlers"
	"github.com/jmylchreest/hlsgate/internal/httpclient"
	"github.com/jmylchreest/hlsgate/internal/repository"
	"github.com/jmylchreest/hlsgate/internal/scheduler"
	"github.com/jmylchreest/hlsgate/internal/startup"
	"github.com/jmylchreest/hlsgate/internal/storage"
	"github.com/jmylchreest/hlsgate/internal/stream"
	"github.com/jmylchreest/hlsgate/internal/version"
)

// scratchSweepCron is how often orphaned scratch directories are swept
// while the server runs. Boot does a full sweep regardless.
const scratchSweepCron = "0 * * * *"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hlsgate server",
	Long: `Start the hlsgate HTTP server.

The server provides:
- On-demand DASH to HLS republishing at /streams/{id}/
- A browser player and login at /
- REST API for stream status and the event journal
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "hlsgate.db", "Event journal database DSN")
	serveCmd.Flags().String("data-dir", "./data", "Data directory for HLS output")

	// Lineup flags
	serveCmd.Flags().String("channels", "channels.toml", "Channel lineup file")
	serveCmd.Flags().String("users", "users.toml", "User accounts file")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
	mustBindPFlag("lineup.channels_file", serveCmd.Flags().Lookup("channels"))
	mustBindPFlag("lineup.users_file", serveCmd.Flags().Lookup("users"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Without a signing secret every restart would invalidate sessions and
	// any guessable default would leave the streams open. Refuse to serve.
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required: set HLSGATE_AUTH_SECRET or auth.secret in the config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The HLS writer shells out to ffmpeg, so a missing or too-old binary
	// should fail startup rather than the first stream activation.
	detector := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath)
	binInfo, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}
	if !binInfo.HasMuxer("hls") {
		return fmt.Errorf("ffmpeg at %s cannot mux hls", binInfo.FFmpegPath)
	}
	if !binInfo.HasEncoder("aac") {
		return fmt.Errorf("ffmpeg at %s has no aac encoder", binInfo.FFmpegPath)
	}
	logger.Info("ffmpeg detected",
		slog.String("path", binInfo.FFmpegPath),
		slog.String("version", binInfo.Version),
	)

	// Initialize the event journal database
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	if err := runMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	eventRepo := repository.NewStreamEventRepository(db.DB)

	// Initialize the storage sandboxes
	layout, err := storage.NewLayout(cfg.Storage.BaseDir, cfg.Storage.StreamsDir, cfg.Storage.ScratchDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	// Everything under streams/ and scratch/ belongs to pipelines from the
	// previous run; none of it is resumable.
	if _, err := startup.CleanupStreamDirs(logger, layout.Streams); err != nil {
		logger.Warn("failed to clean stream output from previous run",
			slog.String("error", err.Error()),
		)
	}
	if _, err := startup.CleanupOrphanedScratchDirs(logger, layout.Scratch, stream.ScratchDirPrefix, 0); err != nil {
		logger.Warn("failed to clean scratch space from previous run",
			slog.String("error", err.Error()),
		)
	}

	// Load the channel and user lineup
	lineup, err := config.LoadLineup(cfg.Lineup)
	if err != nil {
		return fmt.Errorf("loading lineup: %w", err)
	}
	store := config.NewLineupStore(lineup)
	logger.Info("lineup loaded",
		slog.Int("channels", len(lineup.Channels())),
		slog.Int("users", lineup.UserCount()),
	)

	if cfg.Lineup.Watch {
		watcher := config.NewLineupWatcher(cfg.Lineup, store, logger)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("watching lineup: %w", err)
		}
		defer watcher.Stop()
	}

	// Per-channel upstream circuit breakers, shared between the pipelines
	// that trip them and the health API that reports them.
	breakers := httpclient.NewCircuitBreakerManager(0, 0, 0)

	manager := stream.NewManager(stream.ManagerConfig{
		Streaming:  cfg.Streaming,
		FFmpegPath: binInfo.FFmpegPath,
		Streams:    layout.Streams,
		Scratch:    layout.Scratch,
		Events:     eventRepo,
		Breakers:   breakers,
		Logger:     logger,
	})
	defer manager.Close()

	// Recurring maintenance: journal retention and scratch sweeps
	sched := scheduler.NewScheduler().WithLogger(logger)
	if err := sched.AddJob("event-prune", cfg.Events.PruneCron,
		scheduler.EventPruneJob(eventRepo, cfg.Events.Retention, logger)); err != nil {
		return fmt.Errorf("scheduling event prune: %w", err)
	}
	if err := sched.AddJob("scratch-sweep", scratchSweepCron,
		scheduler.ScratchSweepJob(layout.Scratch, logger)); err != nil {
		return fmt.Errorf("scheduling scratch sweep: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	svc := auth.NewService(cfg.Auth, func(username string) (config.User, bool) {
		return store.Current().User(username)
	})

	// Initialize HTTP server
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// The session guard only applies to operations registered after it, so
	// it goes in before any handler.
	api := server.API()
	api.UseMiddleware(handlers.NewAuthGuard(api, svc))

	handlers.NewStreamsHandler(manager, store).
		WithLogger(logger).
		WithStreamsDir(layout.Streams).
		Register(api)
	handlers.NewEventsHandler(eventRepo).WithLogger(logger).Register(api)
	handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithCircuitBreakerManager(breakers).
		WithStreamController(manager).
		WithScheduler(sched).
		Register(api)
	handlers.NewVersionHandler().Register(api)

	// Raw chi routes: login, HLS file delivery, and the playlist export
	router := server.Router()
	handlers.NewAuthHandler(svc).
		WithLogger(logger).
		WithEvents(eventRepo).
		WithRateLimit(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow).
		RegisterChiRoutes(router)
	handlers.NewFilesHandler(manager, layout.Streams).
		WithLogger(logger).
		RegisterChiRoutes(router, auth.Middleware(svc))
	handlers.NewPlaylistHandler(store).
		WithLogger(logger).
		RegisterChiRoutes(router, auth.Middleware(svc))

	// OpenAPI docs and the embedded player UI as the NotFound fallback
	router.Get("/docs", handlers.NewDocsHandler("hlsgate API", "/openapi.json").ServeHTTP)
	router.NotFound(handlers.NewStaticHandler().ServeHTTP)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting hlsgate server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

func runMigrations(ctx context.Context, db *database.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(ctx)
}
