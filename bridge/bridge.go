// Package bridge couples bus channels to an MQTT broker. Forwarded channels
// are published as JSON to <prefix>/<channel>; routed topics are decoded and
// published into the bus.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stateforward/go-hsmbus/bus"
)

var (
	ErrNoRenderer = errors.New("no renderer for channel")
	ErrTimeout    = errors.New("mqtt operation timed out")
)

// Renderer converts a channel payload into a value marshalled as JSON.
type Renderer func(payload []byte) (any, error)

// Decoder handles a payload received on a routed topic.
type Decoder func(payload []byte) error

type Config struct {
	Prefix  string
	QoS     byte
	Timeout time.Duration
}

// Envelope is the JSON document published for every forwarded message.
type Envelope struct {
	Channel   string    `json:"channel"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type Bridge struct {
	client     mqtt.Client
	config     Config
	logger     *slog.Logger
	subscriber *bus.Subscriber
	renderers  map[*bus.Channel]Renderer
	routes     map[string]Decoder
	buf        []byte
}

// New creates the bridge subscriber on r. r must not be sealed yet.
func New(r *bus.Registry, client mqtt.Client, config Config, capacity int, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client:     client,
		config:     config,
		logger:     logger.With("component", "bridge"),
		subscriber: r.NewSubscriber("bridge", capacity),
		renderers:  map[*bus.Channel]Renderer{},
		routes:     map[string]Decoder{},
	}
}

// Forward publishes every message of ch to the broker, rendered by render.
// It must be called before the registry is sealed.
func (b *Bridge) Forward(r *bus.Registry, ch *bus.Channel, render Renderer) {
	r.Observe(ch, b.subscriber)
	b.renderers[ch] = render
	b.buf = make([]byte, max(len(b.buf), ch.Size()))
}

// ForwardTyped forwards a typed channel, rendering the decoded value.
func ForwardTyped[T any](b *Bridge, r *bus.Registry, ch *bus.Typed[T]) {
	b.Forward(r, ch.Channel, func(payload []byte) (any, error) {
		return ch.Decode(payload)
	})
}

// Route decodes messages received on topic.
func (b *Bridge) Route(topic string, decode Decoder) {
	b.routes[topic] = decode
}

// Topic is the broker topic of a forwarded channel.
func (b *Bridge) Topic(ch *bus.Channel) string {
	return strings.TrimSuffix(b.config.Prefix, "/") + "/" + strings.ReplaceAll(ch.Name(), ".", "/")
}

func (b *Bridge) wait(token mqtt.Token, what string) error {
	if !token.WaitTimeout(b.config.Timeout) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, what, b.config.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Start connects the client when needed and subscribes every route.
func (b *Bridge) Start() error {
	if !b.client.IsConnected() {
		if err := b.wait(b.client.Connect(), "connect"); err != nil {
			return err
		}
		b.logger.Info("connected to broker")
	}
	for topic, decode := range b.routes {
		handler := b.handler(decode)
		if err := b.wait(b.client.Subscribe(topic, b.config.QoS, handler), "subscribe "+topic); err != nil {
			return err
		}
		b.logger.Info("subscribed", "topic", topic, "qos", b.config.QoS)
	}
	return nil
}

func (b *Bridge) handler(decode Decoder) mqtt.MessageHandler {
	return func(_ mqtt.Client, message mqtt.Message) {
		if err := decode(message.Payload()); err != nil {
			b.logger.Warn("dropping inbound message", "topic", message.Topic(), "error", err)
			return
		}
		b.logger.Debug("inbound message", "topic", message.Topic())
	}
}

// Stop disconnects, waiting quiesce milliseconds for pending work.
func (b *Bridge) Stop(quiesce uint) {
	b.client.Disconnect(quiesce)
}

// Run forwards queued messages until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		delivery, ok, err := b.subscriber.WaitMessage(ctx, b.buf, time.Second)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.logger.Error("wait for message failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := b.publish(delivery, b.buf[:delivery.Size]); err != nil {
			b.logger.Error("uplink failed", "channel", delivery.Channel.Name(), "error", err)
		}
	}
}

func (b *Bridge) publish(delivery bus.Delivery, payload []byte) error {
	render, ok := b.renderers[delivery.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRenderer, delivery.Channel.Name())
	}
	value, err := render(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{
		Channel:   delivery.Channel.Name(),
		Seq:       delivery.Seq,
		Timestamp: delivery.Timestamp,
		Payload:   value,
	})
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	topic := b.Topic(delivery.Channel)
	return b.wait(b.client.Publish(topic, b.config.QoS, false, data), "publish "+topic)
}
