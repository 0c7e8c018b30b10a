package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"mediaDownloader/api/models"
)

type EventHandler func(ctx context.Context, event *models.JobEvent) error

type Consumer struct {
	consumer sarama.ConsumerGroup
	logger   *zap.Logger
}

func NewConsumer(brokers []string, groupID string, logger *zap.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c, logger: logger}, nil
}

type consumerHandler struct {
	fn     EventHandler
	ctx    context.Context
	logger *zap.Logger
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var event models.JobEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			h.logger.Warn("Skipping malformed event",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			session.MarkMessage(msg, "")
			continue
		}
		if err := h.fn(h.ctx, &event); err != nil {
			h.logger.Error("Event handler failed",
				zap.String("job_id", event.JobID),
				zap.Error(err),
			)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Consume blocks, re-joining the group after every rebalance, until ctx is done.
func (c *Consumer) Consume(ctx context.Context, topic string, handler EventHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx, logger: c.logger}
	for {
		if err := c.consumer.Consume(ctx, []string{topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
