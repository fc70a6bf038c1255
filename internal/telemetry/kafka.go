package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"plantwatch/internal/config"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg config.PublishConfig, logger *slog.Logger) *KafkaPublisher {
	if logger != nil {
		logger.Info("kafka publish enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.Timeout,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Value: payload, Time: time.Now()})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
