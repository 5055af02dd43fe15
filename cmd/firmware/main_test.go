package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/stateforward/go-hsmbus/bridge"
	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/config"
	"github.com/stateforward/go-hsmbus/pkg/telemetry"
)

func TestDiagrams(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-plantuml"}, &out))
	assert.Equal(t, 2, strings.Count(out.String(), "@startuml"))
	assert.Contains(t, out.String(), "@startuml button")
	assert.Contains(t, out.String(), "@startuml sensor")
}

func TestRunFor(t *testing.T) {
	require.NoError(t, run([]string{"-for", "200ms", "-press-every", "20ms"}, &bytes.Buffer{}))
}

func TestBadConfig(t *testing.T) {
	assert.Error(t, run([]string{"-config", "does-not-exist.yaml"}, &bytes.Buffer{}))
}

func TestModule(t *testing.T) {
	cfg := config.Default()
	cfg.Sensor.Interval = 10 * time.Millisecond
	cfg.Log.Level = "error"
	var (
		registry *bus.Registry
		br       *bridge.Bridge
	)
	spans := telemetry.NewRecorder()
	app := fxtest.New(t,
		Module(cfg, platform{
			Clock:  clock.Make(),
			Edges:  newSimulatedButton(clock.Make(), 10*time.Millisecond, 0),
			Tracer: spans,
		}),
		fx.Populate(&registry, &br),
	)
	app.RequireStart()
	assert.True(t, registry.Sealed())
	assert.Nil(t, br, "bridge disabled by default")

	data, ok := registry.Channel("sensor.data")
	require.True(t, ok)
	buttons, ok := registry.Channel("button")
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		return data.Stats().Publishes > 1 && buttons.Stats().Publishes > 1
	}, 2*time.Second, 5*time.Millisecond)
	app.RequireStop()

	names := spans.Names()
	assert.Contains(t, names, "bus.publish")
	assert.Contains(t, names, "hsm.SetInitial")
	assert.Contains(t, names, "hsm.run")
}

func TestMissedDeadlineShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	mock := clock.NewMock()
	app := fxtest.New(t, Module(cfg, platform{
		Clock:  mock,
		Edges:  newSimulatedButton(clock.Make(), time.Hour, 0),
		Tracer: telemetry.NewRecorder(),
	}))
	app.RequireStart()
	defer app.RequireStop()
	shutdown := app.Wait()

	var received fx.ShutdownSignal
	require.Eventually(t, func() bool {
		mock.Add(cfg.Button.WatchdogTimeout + cfg.Liveness.Period)
		select {
		case received = <-shutdown:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, received.ExitCode)
}
