package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"plantwatch/internal/config"
	"plantwatch/internal/storage"
)

// Publisher delivers one encoded status to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// NewPublisher builds the transport selected by cfg.Transport.
func NewPublisher(ctx context.Context, cfg config.PublishConfig, logger *slog.Logger) (Publisher, error) {
	switch strings.ToLower(cfg.Transport) {
	case "mqtt":
		return NewMQTTPublisher(ctx, cfg, logger)
	case "kafka":
		return NewKafkaPublisher(cfg, logger), nil
	case "log", "":
		return NewLogPublisher(cfg.Topic, logger), nil
	default:
		return nil, fmt.Errorf("unsupported publish transport %q", cfg.Transport)
	}
}

// NewConfiguredDispatcher builds the dispatcher for cfg. With publishing
// disabled every status still goes out through a LogPublisher.
func NewConfiguredDispatcher(ctx context.Context, cfg config.PublishConfig, source string, store storage.Store, logger *slog.Logger) (*Dispatcher, error) {
	var pub Publisher
	if cfg.Enabled {
		var err error
		pub, err = NewPublisher(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	} else {
		pub = NewLogPublisher(cfg.Topic, logger)
	}
	encoder, err := NewEncoder(cfg.Encoding)
	if err != nil {
		pub.Close()
		return nil, err
	}
	return NewDispatcher(DispatcherOptions{
		Source:     source,
		Topic:      cfg.Topic,
		QueueSize:  cfg.QueueSize,
		Timeout:    cfg.Timeout,
		Encoder:    encoder,
		Publishers: []Publisher{pub},
		Store:      store,
		Logger:     logger,
	}), nil
}

// LogPublisher writes payloads to the log. Used when no broker is configured.
type LogPublisher struct {
	topic  string
	logger *slog.Logger
}

func NewLogPublisher(topic string, logger *slog.Logger) *LogPublisher {
	return &LogPublisher{topic: topic, logger: logger}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(_ context.Context, payload []byte) error {
	if p.logger != nil {
		p.logger.Info("status", "topic", p.topic, "payload", string(payload))
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
