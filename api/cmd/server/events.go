package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediaDownloader/api/config"
	"mediaDownloader/api/kafka"
	"mediaDownloader/api/models"
)

func EventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the job event feed",
	}
	cmd.AddCommand(eventsTailCmd())
	return cmd
}

func eventsTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Log job lifecycle events from Kafka until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if len(cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is not set")
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, logger)
			if err != nil {
				return fmt.Errorf("create kafka consumer: %w", err)
			}
			defer consumer.Close()

			logger.Info("Tailing job events", zap.String("topic", cfg.KafkaTopic))
			return consumer.Consume(ctx, cfg.KafkaTopic, func(ctx context.Context, event *models.JobEvent) error {
				logger.Info("Job event",
					zap.String("job_id", event.JobID),
					zap.Int64("user_id", event.UserID),
					zap.String("status", event.Status.String()),
					zap.Float64("progress", event.Progress),
					zap.String("aspect_ratio", event.AspectRatio),
					zap.Time("at", event.At),
				)
				return nil
			})
		},
	}
}
