// Package sensor samples a temperature and humidity sensor at a fixed
// interval while started, publishing every successful reading.
package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/stateforward/go-hsmbus"
	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/embedded"
	"github.com/stateforward/go-hsmbus/module"
)

type MessageType uint8

const (
	MessageIdle MessageType = iota + 1
	MessageStart
	MessageStop
	MessageDataReady
)

func (t MessageType) String() string {
	switch t {
	case MessageIdle:
		return "idle"
	case MessageStart:
		return "start"
	case MessageStop:
		return "stop"
	case MessageDataReady:
		return "data_ready"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Command is published on the command channel to start or stop sampling.
type Command struct {
	Type MessageType
}

// Message is published on the data channel. Timestamp is milliseconds since
// the module was created.
type Message struct {
	Type        MessageType
	Temperature float32
	Humidity    float32
	Timestamp   uint32
}

const (
	CommandChannelName = "sensor.commands"
	DataChannelName    = "sensor.data"
)

var ErrInvalidConfig = errors.New("invalid sensor configuration")

type Config struct {
	// Interval between samples while sampling.
	Interval time.Duration
	// PublishTimeout bounds the data channel lock wait.
	PublishTimeout time.Duration
	// QueueCapacity is the command subscriber queue size.
	QueueCapacity int
}

var DefaultConfig = Config{
	Interval:       5 * time.Second,
	PublishTimeout: time.Second,
	QueueCapacity:  8,
}

func (c Config) Validate() error {
	var err error
	if c.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: interval %s", ErrInvalidConfig, c.Interval))
	}
	if c.QueueCapacity < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: queue capacity %d", ErrInvalidConfig, c.QueueCapacity))
	}
	return err
}

// Sensor is the storage of the sensor state machine.
type Sensor struct {
	module.Inbox
	config     Config
	reader     embedded.SensorReader
	commands   *bus.Typed[Command]
	data       *bus.Typed[Message]
	subscriber *bus.Subscriber
	clock      clock.Clock
	started    time.Time
	logger     *slog.Logger

	temperature float32
	humidity    float32
	readErr     error
	sampledAt   time.Time
	samples     uint32
}

type Option func(*Sensor)

func WithClock(c clock.Clock) Option {
	return func(s *Sensor) {
		s.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sensor) {
		s.logger = logger
	}
}

// New defines the command and data channels on r and subscribes the sensor
// to the command channel. r must not be sealed yet.
func New(r *bus.Registry, config Config, reader embedded.SensorReader, opts ...Option) (*Sensor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: no reader", ErrInvalidConfig)
	}
	s := &Sensor{
		config: config,
		reader: reader,
		clock:  r.Clock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "sensor")
	s.started = s.clock.Now()
	s.commands = bus.Define(r, CommandChannelName, Command{})
	s.data = bus.Define(r, DataChannelName, Message{Type: MessageIdle})
	s.subscriber = r.NewSubscriber("sensor", config.QueueCapacity)
	r.Observe(s.commands.Channel, s.subscriber)
	return s, nil
}

func (s *Sensor) Commands() *bus.Typed[Command] {
	return s.commands
}

func (s *Sensor) Data() *bus.Typed[Message] {
	return s.data
}

// Runtime builds the module runtime driving the sensor machine.
func (s *Sensor) Runtime(config module.Config, watchdog embedded.Watchdog, opts ...module.Option) (*module.Runtime[*Sensor], error) {
	machine, err := Machine()
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "sensor"
	}
	if config.Initial == hsm.None {
		config.Initial = StateInit
	}
	opts = append([]module.Option{module.WithLogger(s.logger)}, opts...)
	return module.New(config, machine, s, s.subscriber, watchdog, opts...)
}

// command returns the pending command, if any.
func (s *Sensor) command() (MessageType, bool) {
	if !s.From(s.commands.Channel) {
		return 0, false
	}
	command, err := s.commands.Decode(s.Payload())
	if err != nil {
		s.logger.Error("bad sensor command", "error", err)
		return 0, false
	}
	return command.Type, true
}

func (s *Sensor) timestamp() uint32 {
	return uint32(clock.Since(s.clock, s.started).Milliseconds())
}

func (s *Sensor) publish(ctx *hsm.Context[*Sensor], message Message, timeout time.Duration) {
	message.Timestamp = s.timestamp()
	if err := s.data.Publish(message, timeout); err != nil {
		ctx.Logger().Error("sensor publish failed", "type", message.Type, "error", err)
	}
}

const (
	StateInit hsm.StateID = iota + 1
	StateIdle
	StateSampling
	StateDataReady
)

// Machine returns the sensor state machine, built once.
var Machine = sync.OnceValues(func() (*hsm.Machine[*Sensor], error) {
	return hsm.NewMachine("sensor", hsm.Table[*Sensor]{
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
		StateSampling: {
			Name:    "sampling",
			Entry:   samplingEntry,
			Run:     samplingRun,
			Parent:  StateInit,
			Initial: StateDataReady,
		},
		StateDataReady: {
			Name:   "data_ready",
			Entry:  dataReadyEntry,
			Run:    dataReadyRun,
			Parent: StateSampling,
		},
	})
})

func initEntry(ctx *hsm.Context[*Sensor]) {
	ctx.Logger().Info("sensor module initializing", "interval", ctx.Storage.config.Interval)
	ctx.Storage.samples = 0
}

func initRun(ctx *hsm.Context[*Sensor]) hsm.Result {
	return hsm.Handled
}

func idleEntry(ctx *hsm.Context[*Sensor]) {
	ctx.Logger().Debug("sensor idle")
	ctx.Storage.publish(ctx, Message{Type: MessageIdle}, 0)
}

func idleRun(ctx *hsm.Context[*Sensor]) hsm.Result {
	if command, ok := ctx.Storage.command(); ok && command == MessageStart {
		ctx.SetState(StateSampling)
		return hsm.Transitioned
	}
	return hsm.Handled
}

func samplingEntry(ctx *hsm.Context[*Sensor]) {
	s := ctx.Storage
	s.temperature, s.humidity, s.readErr = s.reader.Read(ctx)
	s.sampledAt = s.clock.Now()
	if s.readErr != nil {
		ctx.Logger().Error("sensor read failed", "error", s.readErr)
		return
	}
	s.samples++
	ctx.Logger().Debug("sensor read", "temperature", s.temperature, "humidity", s.humidity)
}

func samplingRun(ctx *hsm.Context[*Sensor]) hsm.Result {
	if command, ok := ctx.Storage.command(); ok && command == MessageStop {
		ctx.SetState(StateIdle)
		return hsm.Transitioned
	}
	return hsm.Handled
}

func dataReadyEntry(ctx *hsm.Context[*Sensor]) {
	s := ctx.Storage
	if s.readErr != nil {
		return
	}
	ctx.Logger().Debug("sensor data ready", "sample", s.samples)
	s.publish(ctx, Message{
		Type:        MessageDataReady,
		Temperature: s.temperature,
		Humidity:    s.humidity,
	}, s.config.PublishTimeout)
}

func dataReadyRun(ctx *hsm.Context[*Sensor]) hsm.Result {
	s := ctx.Storage
	if s.readErr != nil {
		ctx.SetState(StateIdle)
		return hsm.Transitioned
	}
	if command, ok := s.command(); ok && command == MessageStop {
		return hsm.Unhandled
	}
	if clock.Since(s.clock, s.sampledAt) >= s.config.Interval {
		ctx.SetState(StateSampling)
		return hsm.Transitioned
	}
	return hsm.Handled
}
