package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/sync/errgroup"

	"github.com/stateforward/go-hsmbus/bridge"
	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/button"
	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/config"
	"github.com/stateforward/go-hsmbus/liveness"
	"github.com/stateforward/go-hsmbus/module"
	"github.com/stateforward/go-hsmbus/pkg/telemetry"
	"github.com/stateforward/go-hsmbus/sensor"
)

// platform is what the firmware takes from its surroundings.
type platform struct {
	// Clock measures liveness deadlines.
	Clock  clock.Clock
	Edges  *simulatedButton
	Tracer trace.TracerProvider
}

// Module composes the firmware: the bus, the liveness service, the button and
// sensor modules with simulated hardware, and the optional MQTT bridge.
func Module(cfg config.Config, p platform) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Supply(&p),
		fx.Provide(
			provideLogger,
			provideTracer,
			provideRegistry,
			provideLiveness,
			provideButton,
			provideSensor,
			provideBridge,
		),
		fx.Invoke(seal),
		fx.Invoke(start),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger := cfg.Log.Logger()
	slog.SetDefault(logger)
	return logger
}

func provideTracer(p *platform) trace.Tracer {
	return p.Tracer.Tracer(telemetry.Name)
}

func provideRegistry(logger *slog.Logger, tracer trace.Tracer) *bus.Registry {
	return bus.NewRegistry(bus.WithLogger(logger), bus.WithTracer(tracer))
}

// provideLiveness makes a missed deadline fatal: the application shuts down
// with exit code 1.
func provideLiveness(cfg config.Config, p *platform, logger *slog.Logger, shutdowner fx.Shutdowner) *liveness.Service {
	return liveness.New(cfg.Liveness.Capacity,
		liveness.WithClock(p.Clock),
		liveness.WithLogger(logger),
		liveness.WithExpiryHandler(func(expired []liveness.Expired) {
			for _, e := range expired {
				logger.Error("task missed its liveness deadline", "token", e.Token, "overdue", e.Overdue)
			}
			if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
				logger.Error("shutdown failed", "error", err)
			}
		}),
	)
}

func provideButton(cfg config.Config, r *bus.Registry, logger *slog.Logger) (*button.Button, error) {
	b, err := button.New(r, cfg.ButtonConfig(), logger)
	if err != nil {
		return nil, err
	}
	r.Listen(b.Channel().Channel, "button.log", func(ch *bus.Channel, payload []byte) {
		if message, err := b.Channel().Decode(payload); err == nil {
			logger.Info("button", "type", message.Type, "number", message.Number)
		}
	})
	return b, nil
}

func provideSensor(cfg config.Config, r *bus.Registry, logger *slog.Logger) (*sensor.Sensor, error) {
	s, err := sensor.New(r, cfg.SensorConfig(), sensor.NewSimulated(cfg.Sensor.Seed), sensor.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	r.Listen(s.Data().Channel, "sensor.log", func(ch *bus.Channel, payload []byte) {
		if message, err := s.Data().Decode(payload); err == nil && message.Type == sensor.MessageDataReady {
			logger.Info("sensor", "temperature", message.Temperature, "humidity", message.Humidity, "timestamp", message.Timestamp)
		}
	})
	return s, nil
}

// provideBridge returns nil when the bridge is disabled.
func provideBridge(cfg config.Config, r *bus.Registry, b *button.Button, s *sensor.Sensor, logger *slog.Logger) *bridge.Bridge {
	if !cfg.Bridge.Enabled {
		return nil
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Bridge.Broker)
	opts.SetClientID(cfg.Bridge.ClientID)
	opts.SetAutoReconnect(true)
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}
	br := bridge.New(r, mqtt.NewClient(opts), bridge.Config{
		Prefix:  cfg.Bridge.Prefix,
		QoS:     cfg.Bridge.QoS,
		Timeout: cfg.Bridge.Timeout,
	}, cfg.Bridge.QueueCapacity, logger)
	bridge.ForwardTyped(br, r, b.Channel())
	bridge.ForwardTyped(br, r, s.Data())
	br.Route(cfg.Bridge.CommandTopic, bridge.SensorCommands(s.Commands(), cfg.Sensor.PublishTimeout))
	return br
}

type sealParams struct {
	fx.In
	Registry *bus.Registry
	Button   *button.Button
	Sensor   *sensor.Sensor
	Bridge   *bridge.Bridge
}

// seal runs once every component has registered its channels.
func seal(p sealParams) {
	p.Registry.Seal()
}

type runParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     config.Config
	Logger     *slog.Logger
	Registry   *bus.Registry
	Liveness   *liveness.Service
	Button     *button.Button
	Sensor     *sensor.Sensor
	Bridge     *bridge.Bridge
	Platform   *platform
	Tracer     trace.Tracer
}

func start(p runParams) error {
	opts := []module.Option{module.WithLogger(p.Logger), module.WithTrace(telemetry.Trace(p.Tracer))}
	buttonRuntime, err := p.Button.Runtime(p.Config.Button.Module("button"), p.Liveness, opts...)
	if err != nil {
		return err
	}
	sensorRuntime, err := p.Sensor.Runtime(p.Config.Sensor.Module("sensor"), p.Liveness, opts...)
	if err != nil {
		return err
	}
	edges := p.Platform.Edges
	if err := p.Button.Attach(edges); err != nil {
		return err
	}
	var server *http.Server
	if p.Config.Metrics.Address != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(bus.NewCollector(p.Registry, "firmware"))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: p.Config.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.Bridge != nil {
				if err := p.Bridge.Start(); err != nil {
					cancel()
					return err
				}
				group.Go(func() error { return p.Bridge.Run(ctx) })
			}
			group.Go(func() error { return p.Liveness.Run(ctx, p.Config.Liveness.Period) })
			group.Go(func() error { return buttonRuntime.Run(ctx) })
			group.Go(func() error { return sensorRuntime.Run(ctx) })
			group.Go(func() error { return edges.Run(ctx) })
			group.Go(func() error {
				// sampling starts as if commanded remotely
				return p.Sensor.Commands().Publish(sensor.Command{Type: sensor.MessageStart}, p.Config.Sensor.PublishTimeout)
			})
			if server != nil {
				group.Go(func() error {
					p.Logger.Info("serving metrics", "address", server.Addr)
					if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				group.Go(func() error {
					<-ctx.Done()
					return server.Shutdown(context.Background())
				})
			}
			go func() {
				<-ctx.Done()
				if err := context.Cause(ctx); err != nil && !errors.Is(err, context.Canceled) {
					p.Logger.Error("module failed", "error", err)
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			err := group.Wait()
			if p.Bridge != nil {
				p.Bridge.Stop(250)
			}
			return err
		},
	})
	return nil
}
