package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mediaDownloader/api/config"
	"mediaDownloader/api/database"
	"mediaDownloader/api/repository"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openRepository connects to the configured store and brings its schema up to date.
func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Repository, error) {
	var repo repository.Repository

	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo = repository.NewPostgresRepo(db)
	default:
		db, err := database.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		repo = repository.NewSQLiteRepo(db)
	}

	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Connected to database", zap.String("driver", cfg.DBDriver))
	return repo, nil
}

// bootstrap loads configuration and opens the store for one-shot commands.
func bootstrap(ctx context.Context) (*config.Config, *zap.Logger, repository.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, logger, repo, nil
}
