// Command firmware runs the button and sensor modules on simulated hardware,
// optionally bridging the bus to an MQTT broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/stateforward/go-hsmbus/button"
	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/config"
	"github.com/stateforward/go-hsmbus/pkg/plantuml"
	"github.com/stateforward/go-hsmbus/sensor"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "firmware:", err)
		os.Exit(1)
	}
}

func diagrams(w io.Writer) error {
	buttonMachine, err := button.Machine()
	if err != nil {
		return err
	}
	if err := plantuml.Generate(w, buttonMachine, button.StateInit); err != nil {
		return err
	}
	sensorMachine, err := sensor.Machine()
	if err != nil {
		return err
	}
	return plantuml.Generate(w, sensorMachine, sensor.StateInit)
}

func run(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("firmware", flag.ContinueOnError)
	path := flags.String("config", "", "YAML configuration file")
	diagram := flags.Bool("plantuml", false, "print the state machine diagrams and exit")
	duration := flags.Duration("for", 0, "stop after this long; 0 runs until interrupted")
	press := flags.Duration("press-every", 2*time.Second, "interval between simulated button presses")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *diagram {
		return diagrams(stdout)
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}

	edges := newSimulatedButton(clock.Make(), *press, cfg.Button.LongPress+time.Second)
	app := fx.New(Module(cfg, platform{
		Clock:  clock.Make(),
		Edges:  edges,
		Tracer: otel.GetTracerProvider(),
	}))
	if err := app.Err(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-app.Wait():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return app.Stop(stopCtx)
}
