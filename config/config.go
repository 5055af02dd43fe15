// Package config loads the firmware configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/stateforward/go-hsmbus/button"
	"github.com/stateforward/go-hsmbus/module"
	"github.com/stateforward/go-hsmbus/sensor"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Log      Log      `yaml:"log"`
	Liveness Liveness `yaml:"liveness"`
	Button   Button   `yaml:"button"`
	Sensor   Sensor   `yaml:"sensor"`
	Bridge   Bridge   `yaml:"bridge"`
	Metrics  Metrics  `yaml:"metrics"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Liveness struct {
	Capacity int           `yaml:"capacity"`
	Period   time.Duration `yaml:"period"`
}

// Runtime holds the timeouts shared by every module runtime.
type Runtime struct {
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	WatchdogTimeout   time.Duration `yaml:"watchdog_timeout"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
}

type Button struct {
	Runtime     `yaml:",inline"`
	Number      uint8         `yaml:"number"`
	Mask        uint32        `yaml:"mask"`
	LongPress   time.Duration `yaml:"long_press"`
	ReleaseWait time.Duration `yaml:"release_wait"`
}

type Sensor struct {
	Runtime  `yaml:",inline"`
	Interval time.Duration `yaml:"interval"`
	Seed     uint64        `yaml:"seed"`
}

type Bridge struct {
	Enabled       bool          `yaml:"enabled"`
	Broker        string        `yaml:"broker"`
	ClientID      string        `yaml:"client_id"`
	Prefix        string        `yaml:"prefix"`
	CommandTopic  string        `yaml:"command_topic"`
	QoS           byte          `yaml:"qos"`
	Timeout       time.Duration `yaml:"timeout"`
	QueueCapacity int           `yaml:"queue_capacity"`
}

type Metrics struct {
	// Address serves /metrics when set.
	Address string `yaml:"address"`
}

func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Liveness: Liveness{
			Capacity: 8,
			Period:   time.Second,
		},
		Button: Button{
			Runtime: Runtime{
				ProcessingTimeout: time.Second,
				WatchdogTimeout:   30 * time.Second,
				QueueCapacity:     button.DefaultConfig.QueueCapacity,
				PublishTimeout:    button.DefaultConfig.PublishTimeout,
			},
			Number:      button.DefaultConfig.Number,
			Mask:        button.DefaultConfig.Mask,
			LongPress:   button.DefaultConfig.LongPress,
			ReleaseWait: button.DefaultConfig.ReleaseWait,
		},
		Sensor: Sensor{
			Runtime: Runtime{
				ProcessingTimeout: time.Second,
				WatchdogTimeout:   30 * time.Second,
				QueueCapacity:     sensor.DefaultConfig.QueueCapacity,
				PublishTimeout:    sensor.DefaultConfig.PublishTimeout,
			},
			Interval: sensor.DefaultConfig.Interval,
			Seed:     1,
		},
		Bridge: Bridge{
			Broker:        "tcp://localhost:1883",
			ClientID:      "hsmbus",
			Prefix:        "hsmbus",
			CommandTopic:  "hsmbus/sensor/command",
			Timeout:       5 * time.Second,
			QueueCapacity: 32,
		},
	}
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Load reads path, or returns the defaults when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	config, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (r Runtime) validate(name string) error {
	var err error
	if r.ProcessingTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %s.processing_timeout must be positive", ErrInvalid, name))
	}
	if r.WatchdogTimeout <= r.ProcessingTimeout {
		err = multierr.Append(err, fmt.Errorf("%w: %s.watchdog_timeout %s must exceed processing_timeout %s",
			ErrInvalid, name, r.WatchdogTimeout, r.ProcessingTimeout))
	}
	return err
}

func (c Config) Validate() error {
	var err error
	if _, e := c.Log.level(); e != nil {
		err = multierr.Append(err, e)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		err = multierr.Append(err, fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format))
	}
	if c.Liveness.Capacity < 2 {
		err = multierr.Append(err, fmt.Errorf("%w: liveness.capacity %d below the module count", ErrInvalid, c.Liveness.Capacity))
	}
	if c.Liveness.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: liveness.period must be positive", ErrInvalid))
	}
	err = multierr.Append(err, c.Button.validate("button"))
	// a long press blocks the button loop between two feeds
	if blocked := c.Button.LongPress + 2*c.Button.ReleaseWait + c.Button.ProcessingTimeout; blocked >= c.Button.WatchdogTimeout {
		err = multierr.Append(err, fmt.Errorf("%w: button.watchdog_timeout %s must exceed long_press + 2*release_wait + processing_timeout (%s)",
			ErrInvalid, c.Button.WatchdogTimeout, blocked))
	}
	err = multierr.Append(err, c.ButtonConfig().Validate())
	err = multierr.Append(err, c.Sensor.validate("sensor"))
	err = multierr.Append(err, c.SensorConfig().Validate())
	if c.Bridge.Enabled {
		if c.Bridge.Broker == "" {
			err = multierr.Append(err, fmt.Errorf("%w: bridge.broker is empty", ErrInvalid))
		}
		if c.Bridge.QoS > 2 {
			err = multierr.Append(err, fmt.Errorf("%w: bridge.qos %d", ErrInvalid, c.Bridge.QoS))
		}
		if c.Bridge.QueueCapacity < 1 {
			err = multierr.Append(err, fmt.Errorf("%w: bridge.queue_capacity %d", ErrInvalid, c.Bridge.QueueCapacity))
		}
	}
	return err
}

func (l Log) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, l.Level)
	}
	return level, nil
}

// Logger builds the process logger.
func (l Log) Logger() *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, options))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, options))
}

func (c Config) ButtonConfig() button.Config {
	return button.Config{
		Number:         c.Button.Number,
		Mask:           c.Button.Mask,
		LongPress:      c.Button.LongPress,
		ReleaseWait:    c.Button.ReleaseWait,
		PublishTimeout: c.Button.PublishTimeout,
		QueueCapacity:  c.Button.QueueCapacity,
	}
}

func (c Config) SensorConfig() sensor.Config {
	return sensor.Config{
		Interval:       c.Sensor.Interval,
		PublishTimeout: c.Sensor.PublishTimeout,
		QueueCapacity:  c.Sensor.QueueCapacity,
	}
}

// Module returns the runtime configuration of a module.
func (r Runtime) Module(name string) module.Config {
	return module.Config{
		Name:              name,
		ProcessingTimeout: r.ProcessingTimeout,
		WatchdogTimeout:   r.WatchdogTimeout,
	}
}
