package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"mediaDownloader/api/models"
)

// Producer publishes job lifecycle events. Events are a notification feed;
// nothing in the process consumes its own events.
type Producer interface {
	PublishJobEvent(ctx context.Context, event *models.JobEvent) error
	Close() error
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return NewProducerFromSarama(p, topic), nil
}

// NewProducerFromSarama wraps an existing sync producer.
func NewProducerFromSarama(p sarama.SyncProducer, topic string) Producer {
	return &producer{producer: p, topic: topic}
}

func (p *producer) PublishJobEvent(ctx context.Context, event *models.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.JobID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}

// NopProducer drops every event. It is used when no brokers are configured.
type NopProducer struct{}

func (NopProducer) PublishJobEvent(context.Context, *models.JobEvent) error { return nil }
func (NopProducer) Close() error                                            { return nil }
