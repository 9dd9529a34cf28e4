package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/brindlewood/oneshot"
	"github.com/brindlewood/oneshot/internal/config"
)

// Publisher manages an MQTT connection: it publishes an availability
// birth/will message, publishes arbitrary retained or transient state
// to topics, and dispatches inbound messages on configured
// subscriptions to a MessageHandler.
type Publisher struct {
	cfg         config.MQTTConfig
	instanceID  string
	logger      *slog.Logger
	cm          *autopaho.ConnectionManager
	handler     MessageHandler
	rateLimiter *messageRateLimiter

	mu          sync.Mutex
	readyOnce   sync.Once
	readySender *oneshot.Sender[struct{}]
	readyRecv   *oneshot.Receiver[struct{}]
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection. A nil logger is replaced with
// [slog.Default].
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	readySender, readyRecv := oneshot.Channel[struct{}]()
	return &Publisher{
		cfg:         cfg,
		logger:      logger,
		readySender: readySender,
		readyRecv:   readyRecv,
	}
}

// SetInstanceID appends a stable client instance ID (see
// [LoadOrCreateInstanceID]) to the MQTT client ID, so the broker sees
// a consistent session identity across restarts even if DeviceName is
// later renamed. Must be called before [Publisher.Start].
func (p *Publisher) SetInstanceID(id string) {
	p.instanceID = id
}

// clientID returns the MQTT client ID: DeviceName alone, or
// DeviceName-InstanceID when an instance ID has been set.
func (p *Publisher) clientID() string {
	if p.instanceID == "" {
		return p.cfg.DeviceName
	}
	return p.cfg.DeviceName + "-" + p.instanceID
}

// SetMessageHandler registers a callback for inbound MQTT messages
// received on subscribed topics. Must be called before
// [Publisher.Start]. If not called, a default handler that logs
// messages at debug level is used when subscriptions are configured.
func (p *Publisher) SetMessageHandler(h MessageHandler) {
	p.handler = h
}

// Ready blocks until the broker connection is established for the
// first time, or ctx is done. Unlike AwaitConnection it does not
// require the connection manager to already exist: it can be called
// before Start returns, and will be satisfied by the first
// OnConnectionUp callback Start's autopaho config fires. Later
// reconnects are not reported a second time; use AwaitConnection after
// a reconnect if you need to wait on a specific connection attempt.
func (p *Publisher) Ready(ctx context.Context) error {
	_, err := p.readyRecv.RecvContext(ctx)
	return err
}

func (p *Publisher) signalReady() {
	p.readyOnce.Do(func() {
		p.readySender.Send(struct{}{})
	})
}

// Publish publishes payload to topic with the given QoS and retain flag.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	cm := p.connectionManager()
	if cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// connectionManager returns the active autopaho connection manager, or
// nil if Start has not yet established one. Safe to call concurrently
// with Start.
func (p *Publisher) connectionManager() *autopaho.ConnectionManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cm
}

func (p *Publisher) setConnectionManager(cm *autopaho.ConnectionManager) {
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()
}

// AvailabilityTopic returns the topic this publisher's birth/will
// message is sent on.
func (p *Publisher) AvailabilityTopic() string {
	return p.cfg.DeviceName + "/availability"
}

// Start connects to the MQTT broker. It blocks until ctx is cancelled.
// On every (re-)connect it publishes a birth message and re-subscribes
// to configured topics, since autopaho does not do either
// automatically.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.AvailabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			p.publishAvailability(publishCtx, cm, "online")
			p.subscribe(publishCtx, cm)
			p.signalReady()
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID(),
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.setConnectionManager(cm)

	if len(p.cfg.Subscriptions) > 0 {
		if p.handler == nil {
			p.handler = defaultMessageHandler(p.logger)
		}
		p.rateLimiter = newMessageRateLimiter(100, time.Second, p.logger)
		go p.rateLimiter.start(ctx)

		cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
			if !p.rateLimiter.allow() {
				return true, nil
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						p.logger.Error("mqtt message handler panicked",
							"topic", pr.Packet.Topic,
							"panic", r,
						)
					}
				}()
				p.handler(pr.Packet.Topic, pr.Packet.Payload)
			}()
			return true, nil
		})
	}

	<-ctx.Done()
	return ctx.Err()
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection. The provided context
// controls how long to wait for the publish and disconnect to complete.
func (p *Publisher) Stop(ctx context.Context) error {
	cm := p.connectionManager()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the MQTT broker connection is
// established or ctx expires, delegating to autopaho directly. Use
// Ready instead when you only care about the first connection and
// want to wait on it before Start's connection manager exists.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	cm := p.connectionManager()
	if cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	return cm.AwaitConnection(ctx)
}

// subscribe sends SUBSCRIBE packets for all configured topic filters.
// Called on every (re-)connect because autopaho does not automatically
// resubscribe after reconnection.
func (p *Publisher) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if len(p.cfg.Subscriptions) == 0 {
		return
	}

	opts := make([]paho.SubscribeOptions, 0, len(p.cfg.Subscriptions))
	topics := make([]string, 0, len(p.cfg.Subscriptions))
	for _, sub := range p.cfg.Subscriptions {
		opts = append(opts, paho.SubscribeOptions{
			Topic: sub.Topic,
			QoS:   0,
		})
		topics = append(topics, sub.Topic)
	}

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: opts,
	}); err != nil {
		p.logger.Error("mqtt subscribe failed",
			"error", err, "topics", topics)
	} else {
		p.logger.Info("mqtt subscribed to topics", "topics", topics)
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.AvailabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}
