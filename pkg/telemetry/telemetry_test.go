package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/stateforward/go-hsmbus"
	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/pkg/telemetry"
)

func TestTrace(t *testing.T) {
	recorder := telemetry.NewRecorder()
	machine, err := hsm.NewMachine("lamp", hsm.Table[struct{}]{
		1: {Name: "off", Run: func(ctx *hsm.Context[struct{}]) hsm.Result {
			ctx.SetState(2)
			return hsm.Handled
		}},
		2: {Name: "on"},
	})
	require.NoError(t, err)
	ctx := hsm.New(context.Background(), machine, struct{}{},
		hsm.WithTrace(telemetry.Trace(recorder.Tracer("test"))))
	require.NoError(t, ctx.SetInitial(1))
	assert.Equal(t, hsm.Transitioned, ctx.Run())

	assert.Equal(t, []string{
		"hsm.enter", "hsm.SetInitial",
		"hsm.exit", "hsm.enter", "hsm.SetState", "hsm.run",
	}, recorder.Names())
	spans := recorder.Spans()
	assert.Equal(t, "/off", spans[0].Attributes["state"])
	assert.Equal(t, "handled", spans[5].Attributes["result"])
}

func TestTraceRecordsErrors(t *testing.T) {
	recorder := telemetry.NewRecorder()
	end := telemetry.Trace(recorder.Tracer("test"))(context.Background(), "run", "/m/s")
	end(errors.New("boom"))
	spans := recorder.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status)
	assert.Len(t, spans[0].Errors, 1)
}

func TestBusPublishSpans(t *testing.T) {
	recorder := telemetry.NewRecorder()
	r := bus.NewRegistry(bus.WithTracer(recorder.Tracer("bus")))
	ch := r.Define("raw", 1, nil, bus.WithValidator(func(payload []byte) bool { return payload[0] != 0 }))
	r.Seal()

	require.NoError(t, ch.Publish([]byte{1}, time.Millisecond))
	assert.Error(t, ch.Publish([]byte{0}, time.Millisecond))

	spans := recorder.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "bus.publish", spans[0].Name)
	assert.Equal(t, "raw", spans[0].Attributes["channel"])
	assert.Equal(t, codes.Unset, spans[0].Status)
	assert.Equal(t, codes.Error, spans[1].Status)
}
