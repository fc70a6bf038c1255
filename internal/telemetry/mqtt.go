package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"plantwatch/internal/config"
)

var errNotConnected = errors.New("mqtt not connected")

// MQTTPublisher publishes to one topic. The paho client reconnects on its
// own schedule; publishes while disconnected fail fast.
type MQTTPublisher struct {
	client    mqtt.Client
	topic     string
	qos       byte
	endpoint  string
	logger    *slog.Logger
	connected atomic.Bool
}

func NewMQTTPublisher(ctx context.Context, cfg config.PublishConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	p := &MQTTPublisher{topic: cfg.Topic, qos: cfg.QoS, endpoint: cfg.Endpoint, logger: logger}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "plantwatch-" + uuid.New().String()[:8]
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Endpoint)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.connected.Store(true)
		if logger != nil {
			logger.Info("mqtt connection established", "broker", cfg.Endpoint, "client_id", clientID)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.connected.Store(false)
		if logger != nil {
			logger.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Endpoint, "err", err)
		}
	}
	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	wait := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if !token.WaitTimeout(wait) {
		// ConnectRetry keeps trying in the background.
		if logger != nil {
			logger.Warn("mqtt broker not reachable yet, continuing", "broker", cfg.Endpoint)
		}
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, &PublishError{Transport: "mqtt", Topic: cfg.Topic, Err: err}
	}
	return p, nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Publish(ctx context.Context, payload []byte) error {
	if !p.connected.Load() || !p.client.IsConnectionOpen() {
		return errNotConnected
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
