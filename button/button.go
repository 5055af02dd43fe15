// Package button classifies presses of a digital input into short and long
// presses and publishes them on the button channel.
//
// Edges reach the classifier in two ways. The edge handler updates a Flag
// with the current pressed level, and publishes the raw edge on the edge
// channel so the button goroutine wakes up. Only the button goroutine changes
// state.
package button

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/stateforward/go-hsmbus"
	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/embedded"
	"github.com/stateforward/go-hsmbus/module"
)

type MessageType uint8

const (
	MessageIdle MessageType = iota + 1
	MessageShortPress
	MessageLongPress
)

func (t MessageType) String() string {
	switch t {
	case MessageIdle:
		return "idle"
	case MessageShortPress:
		return "short"
	case MessageLongPress:
		return "long"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Message is published on the button channel.
type Message struct {
	Type   MessageType
	Number uint8
}

// Edge is a raw input change as reported by the edge source.
type Edge struct {
	Levels  uint32
	Changed uint32
}

const (
	ChannelName     = "button"
	EdgeChannelName = "button.edges"
)

var ErrInvalidConfig = errors.New("invalid button configuration")

type Config struct {
	// Number is carried in short and long press messages.
	Number uint8
	// Mask selects the input bit watched in edge levels.
	Mask uint32
	// LongPress is the hold time after which a press is long.
	LongPress time.Duration
	// ReleaseWait bounds each wait for release after a long press.
	ReleaseWait time.Duration
	// PublishTimeout bounds the button channel lock wait.
	PublishTimeout time.Duration
	// QueueCapacity is the edge subscriber queue size.
	QueueCapacity int
}

var DefaultConfig = Config{
	Number:         1,
	Mask:           1,
	LongPress:      3 * time.Second,
	ReleaseWait:    100 * time.Millisecond,
	PublishTimeout: time.Second,
	QueueCapacity:  8,
}

func (c Config) Validate() error {
	var err error
	if c.Mask == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: mask is empty", ErrInvalidConfig))
	}
	if c.LongPress <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: long press threshold %s", ErrInvalidConfig, c.LongPress))
	}
	if c.ReleaseWait <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: release wait %s", ErrInvalidConfig, c.ReleaseWait))
	}
	if c.QueueCapacity < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: queue capacity %d", ErrInvalidConfig, c.QueueCapacity))
	}
	return err
}

// Button is the storage of the button state machine.
type Button struct {
	module.Inbox
	config     Config
	channel    *bus.Typed[Message]
	edges      *bus.Typed[Edge]
	subscriber *bus.Subscriber
	flag       *Flag
	logger     *slog.Logger

	held     bool
	longSent bool
}

// New defines the button and edge channels on r and subscribes the button to
// the edge channel. r must not be sealed yet.
func New(r *bus.Registry, config Config, logger *slog.Logger) (*Button, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Button{
		config:  config,
		channel: bus.Define(r, ChannelName, Message{Type: MessageIdle}),
		edges:   bus.Define(r, EdgeChannelName, Edge{}),
		flag:    NewFlag(),
		logger:  logger.With("module", "button"),
	}
	b.subscriber = r.NewSubscriber("button", config.QueueCapacity)
	r.Observe(b.edges.Channel, b.subscriber)
	return b, nil
}

// Channel is where classified presses are published.
func (b *Button) Channel() *bus.Typed[Message] {
	return b.channel
}

func (b *Button) Edges() *bus.Typed[Edge] {
	return b.edges
}

func (b *Button) Flag() *Flag {
	return b.flag
}

// HandleEdge is the embedded.EdgeHandler of the button. It never blocks.
func (b *Button) HandleEdge(levels, changed uint32) {
	if changed&b.config.Mask == 0 {
		return
	}
	b.flag.Set(levels&b.config.Mask != 0)
	if err := b.edges.Publish(Edge{Levels: levels, Changed: changed}, 0); err != nil {
		b.logger.Debug("edge not published", "error", err)
	}
}

// Attach installs the edge handler on source.
func (b *Button) Attach(source embedded.EdgeSource) error {
	if err := source.Init(b.HandleEdge); err != nil {
		return fmt.Errorf("button: edge source: %w", err)
	}
	return nil
}

// Runtime builds the module runtime driving the button machine.
func (b *Button) Runtime(config module.Config, watchdog embedded.Watchdog, opts ...module.Option) (*module.Runtime[*Button], error) {
	machine, err := Machine()
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "button"
	}
	if config.Initial == hsm.None {
		config.Initial = StateInit
	}
	opts = append([]module.Option{module.WithLogger(b.logger)}, opts...)
	return module.New(config, machine, b, b.subscriber, watchdog, opts...)
}

func (b *Button) publish(ctx *hsm.Context[*Button], kind MessageType, number uint8) {
	ctx.Logger().Debug("publishing button event", "type", kind, "button", number)
	if err := b.channel.Publish(Message{Type: kind, Number: number}, b.config.PublishTimeout); err != nil {
		ctx.Logger().Error("button publish failed", "type", kind, "error", err)
	}
}

// pressEdge reports whether the pending message is a press of the watched input.
func (b *Button) pressEdge() bool {
	if !b.From(b.edges.Channel) {
		return false
	}
	edge, err := b.edges.Decode(b.Payload())
	if err != nil {
		return false
	}
	return edge.Changed&b.config.Mask != 0 && edge.Levels&b.config.Mask != 0
}

const (
	StateInit hsm.StateID = iota + 1
	StateIdle
	StatePressed
	StateLongPressPending
)

// Machine returns the button state machine, built once.
var Machine = sync.OnceValues(func() (*hsm.Machine[*Button], error) {
	return hsm.NewMachine("button", hsm.Table[*Button]{
		StateInit: {
			Name:    "init",
			Entry:   initEntry,
			Run:     initRun,
			Initial: StateIdle,
		},
		StateIdle: {
			Name:   "idle",
			Entry:  idleEntry,
			Run:    idleRun,
			Parent: StateInit,
		},
		StatePressed: {
			Name:    "pressed",
			Entry:   pressedEntry,
			Run:     pressedRun,
			Parent:  StateInit,
			Initial: StateLongPressPending,
		},
		StateLongPressPending: {
			Name:   "long_press_pending",
			Entry:  longPressPendingEntry,
			Run:    longPressPendingRun,
			Parent: StatePressed,
		},
	})
})

func initEntry(ctx *hsm.Context[*Button]) {
	ctx.Logger().Info("button module initializing", "mask", ctx.Storage.config.Mask)
	ctx.Storage.held = false
	ctx.Storage.longSent = false
}

func initRun(ctx *hsm.Context[*Button]) hsm.Result {
	return hsm.Handled
}

func idleEntry(ctx *hsm.Context[*Button]) {
	ctx.Storage.publish(ctx, MessageIdle, 0)
}

func idleRun(ctx *hsm.Context[*Button]) hsm.Result {
	b := ctx.Storage
	if b.flag.Pressed() || b.pressEdge() {
		ctx.SetState(StatePressed)
		return hsm.Transitioned
	}
	return hsm.Handled
}

func pressedEntry(ctx *hsm.Context[*Button]) {
	ctx.Logger().Debug("button pressed")
	ctx.Storage.held = false
	ctx.Storage.longSent = false
}

func pressedRun(ctx *hsm.Context[*Button]) hsm.Result {
	b := ctx.Storage
	if b.flag.Pressed() {
		return hsm.Handled
	}
	b.publish(ctx, MessageShortPress, b.config.Number)
	ctx.SetState(StateIdle)
	return hsm.Transitioned
}

func longPressPendingEntry(ctx *hsm.Context[*Button]) {
	b := ctx.Storage
	b.held = !b.flag.WaitRelease(ctx, b.config.LongPress)
	ctx.Logger().Debug("long press check", "held", b.held)
}

func longPressPendingRun(ctx *hsm.Context[*Button]) hsm.Result {
	b := ctx.Storage
	if !b.held {
		return hsm.Unhandled
	}
	if !b.longSent {
		b.publish(ctx, MessageLongPress, b.config.Number)
		b.longSent = true
	}
	if !b.flag.WaitRelease(ctx, b.config.ReleaseWait) {
		return hsm.Handled
	}
	ctx.SetState(StateIdle)
	return hsm.Transitioned
}
