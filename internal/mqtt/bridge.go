// internal/mqtt/bridge.go
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/status"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Commander is the operator surface reachable over MQTT.
type Commander interface {
	Acknowledge(device, class string) error
	SetThreshold(device string, v float64) error
	SetGlobalThreshold(v float64) error
	WriteSetpoint(ctx context.Context, device string, v float64) (string, error)
	WriteCommand(ctx context.Context, device string) (string, error)
}

// Config is the broker connection and topic layout.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// publishFunc sends one payload. Swapped out in tests.
type publishFunc func(topic string, retained bool, payload []byte) error

// Bridge mirrors snapshots to the broker and turns command messages into
// operator calls.
//
// Topics:
//
//	<prefix>/<device>/state   snapshot JSON, retained
//	<prefix>/<device>/cmd     command JSON (subscribed)
//	<prefix>/<device>/result  command outcome
//	<prefix>/threshold        global threshold (subscribed)
type Bridge struct {
	cfg     Config
	cmd     Commander
	log     zerolog.Logger
	client  paho.Client
	publish publishFunc

	ctx context.Context
}

// New prepares a bridge. Nothing is dialled until Connect.
func New(cfg Config, cmd Commander, logger zerolog.Logger) (*Bridge, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	if cmd == nil {
		return nil, errors.New("mqtt: commander required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}

	b := newBridge(cfg, cmd, logger, nil)

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.log.Warn().Err(err).Msg("broker connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	b.client = paho.NewClient(opts)
	b.publish = b.clientPublish
	return b, nil
}

func newBridge(cfg Config, cmd Commander, logger zerolog.Logger, pub publishFunc) *Bridge {
	cfg.TopicPrefix = strings.Trim(cfg.TopicPrefix, "/")
	return &Bridge{
		cfg:     cfg,
		cmd:     cmd,
		log:     logger.With().Str("component", "mqtt").Str("broker", cfg.Broker).Logger(),
		publish: pub,
		ctx:     context.Background(),
	}
}

// Connect dials the broker. Subscriptions are (re)installed on every
// successful connect.
func (b *Bridge) Connect(ctx context.Context) error {
	b.ctx = ctx

	tok := b.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect %s: timeout", b.cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", b.cfg.Broker, err)
	}
	return nil
}

func (b *Bridge) onConnect(c paho.Client) {
	b.log.Info().Msg("connected to broker")

	filters := map[string]byte{
		b.topic("+", "cmd"):  b.cfg.QoS,
		b.topic("threshold"): b.cfg.QoS,
	}
	tok := c.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) {
		b.handle(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(connectTimeout) || tok.Error() != nil {
		b.log.Error().Err(tok.Error()).Msg("subscribe failed")
		return
	}
	b.log.Info().Str("prefix", b.cfg.TopicPrefix).Msg("subscribed to command topics")
}

// Run publishes every snapshot received until ctx ends or snaps closes.
func (b *Bridge) Run(ctx context.Context, snaps <-chan status.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			b.PublishSnapshot(s)
		}
	}
}

// PublishSnapshot writes one device state, retained.
func (b *Bridge) PublishSnapshot(s status.Snapshot) {
	payload, err := status.Encode(s)
	if err != nil {
		b.log.Error().Err(err).Str("device", s.Device).Msg("encode snapshot failed")
		return
	}
	if err := b.publish(b.topic(s.Device, "state"), true, payload); err != nil {
		b.log.Warn().Err(err).Str("device", s.Device).Msg("publish state failed")
	}
}

// Close disconnects, letting in-flight work finish for up to 250ms.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
		b.log.Info().Msg("disconnected from broker")
	}
}

func (b *Bridge) clientPublish(topic string, retained bool, payload []byte) error {
	tok := b.client.Publish(topic, b.cfg.QoS, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish %s: timeout", topic)
	}
	return tok.Error()
}

func (b *Bridge) topic(parts ...string) string {
	if b.cfg.TopicPrefix == "" {
		return strings.Join(parts, "/")
	}
	return b.cfg.TopicPrefix + "/" + strings.Join(parts, "/")
}
