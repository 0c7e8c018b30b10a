package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediaDownloader/api/auth"
	"mediaDownloader/api/cache"
	"mediaDownloader/api/config"
	"mediaDownloader/api/database"
	"mediaDownloader/api/handlers"
	"mediaDownloader/api/kafka"
	"mediaDownloader/api/service"
	"mediaDownloader/worker/fetcher"
	"mediaDownloader/worker/probe"
	"mediaDownloader/worker/scheduler"
)

func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the download scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, repo, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer repo.Close()

	logger.Info("Downloader starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("target_dir", cfg.Worker.TargetDir),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
	)
	if cfg.UsesDefaultSecret() {
		logger.Warn("JWT_SECRET is not set, tokens are signed with the development key")
	}

	interrupted, err := repo.FailInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if len(interrupted) > 0 {
		logger.Warn("Marked interrupted jobs as failed", zap.Strings("job_ids", interrupted))
	}

	statusCache, closeCache, err := connectCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	producer, err := connectProducer(cfg, logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	sched := scheduler.New(cfg.Worker, scheduler.Deps{
		Store:   repo,
		Cache:   statusCache,
		Events:  producer,
		Fetcher: fetcher.NewYtDlp(cfg.Worker.YtDlpPath, logger.Named("fetcher")),
		Prober:  probe.NewDefault(logger.Named("probe"), cfg.Worker.FFprobePath),
	}, logger.Named("scheduler"))

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	users := service.NewUserService(repo, issuer, logger)
	if err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	downloads := service.NewDownloadService(repo, repo, statusCache, producer, sched, cfg.MaxBatchSize, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Handler:   handlers.NewHandler(downloads, users, sched, logger),
		Tokens:    issuer,
		Users:     users,
		StaticDir: cfg.StaticDir,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error("Server failed", zap.Error(runErr))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Scheduler shutdown timed out", zap.Error(err))
	}

	logger.Info("Downloader stopped")
	return runErr
}

func connectCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.SnapshotCache, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, status cache disabled")
		return cache.NopStatusCache{}, func() {}, nil
	}

	redisCache, err := database.ConnectCache(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return cache.NewStatusCache(redisCache), func() { redisCache.Close() }, nil
}

func connectProducer(cfg *config.Config, logger *zap.Logger) (kafka.Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, job events disabled")
		return kafka.NopProducer{}, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	logger.Info("Kafka producer ready",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
	)
	return producer, nil
}
