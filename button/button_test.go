package button_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stateforward/go-hsmbus/bus"
	"github.com/stateforward/go-hsmbus/button"
	"github.com/stateforward/go-hsmbus/embedded"
	"github.com/stateforward/go-hsmbus/embedded/mock_embedded"
	"github.com/stateforward/go-hsmbus/module"
	"github.com/stateforward/go-hsmbus/pkg/tests"
)

// harness runs a button module and collects the messages it publishes.
type harness struct {
	button *button.Button
	cancel context.CancelFunc
	done   chan error

	mu       sync.Mutex
	messages []button.Message
}

func start(t *testing.T, config button.Config, opts ...module.Option) *harness {
	t.Helper()
	r := bus.NewRegistry()
	b, err := button.New(r, config, nil)
	require.NoError(t, err)
	h := &harness{button: b, done: make(chan error, 1)}
	r.Listen(b.Channel().Channel, "recorder", func(ch *bus.Channel, payload []byte) {
		message, err := b.Channel().Decode(payload)
		assert.NoError(t, err)
		h.mu.Lock()
		h.messages = append(h.messages, message)
		h.mu.Unlock()
	})
	r.Seal()

	runtime, err := b.Runtime(module.Config{ProcessingTimeout: 10 * time.Millisecond}, nil, opts...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- runtime.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) types() []button.MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]button.MessageType, len(h.messages))
	for i, m := range h.messages {
		types[i] = m.Type
	}
	return types
}

func (h *harness) waitFor(t *testing.T, expected ...button.MessageType) {
	t.Helper()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(expected, h.types())
	}, 2*time.Second, time.Millisecond, "messages %v", h.types())
}

func config(longPress time.Duration) button.Config {
	config := button.DefaultConfig
	config.LongPress = longPress
	config.ReleaseWait = 20 * time.Millisecond
	return config
}

func TestShortPress(t *testing.T) {
	h := start(t, config(500*time.Millisecond))
	h.waitFor(t, button.MessageIdle)

	h.button.HandleEdge(1, 1)
	time.Sleep(50 * time.Millisecond)
	h.button.HandleEdge(0, 1)

	h.waitFor(t, button.MessageIdle, button.MessageShortPress, button.MessageIdle)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []button.MessageType{button.MessageIdle, button.MessageShortPress, button.MessageIdle}, h.types(),
		"no long press for a short cycle")
	h.mu.Lock()
	assert.Equal(t, uint8(1), h.messages[1].Number)
	assert.Equal(t, uint8(0), h.messages[2].Number)
	h.mu.Unlock()
}

func TestPressReportsTransition(t *testing.T) {
	recorder := &tests.Recorder{}
	h := start(t, config(500*time.Millisecond), module.WithTrace(recorder.Results()))
	h.waitFor(t, button.MessageIdle)

	h.button.HandleEdge(1, 1)
	time.Sleep(20 * time.Millisecond)
	h.button.HandleEdge(0, 1)
	h.waitFor(t, button.MessageIdle, button.MessageShortPress, button.MessageIdle)

	steps := recorder.Steps()
	assert.Contains(t, steps, "/init/idle=transitioned")
	assert.Contains(t, steps, "/init/pressed=transitioned")
}

func TestLongPress(t *testing.T) {
	h := start(t, config(100*time.Millisecond))
	h.waitFor(t, button.MessageIdle)

	h.button.HandleEdge(1, 1)
	h.waitFor(t, button.MessageIdle, button.MessageLongPress)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []button.MessageType{button.MessageIdle, button.MessageLongPress}, h.types(),
		"long press published once while held")

	h.button.HandleEdge(0, 1)
	h.waitFor(t, button.MessageIdle, button.MessageLongPress, button.MessageIdle)
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, h.types(), button.MessageShortPress)
}

func TestTapFasterThanTheLoop(t *testing.T) {
	h := start(t, config(500*time.Millisecond))
	h.waitFor(t, button.MessageIdle)

	h.button.HandleEdge(1, 1)
	h.button.HandleEdge(0, 1)
	h.waitFor(t, button.MessageIdle, button.MessageShortPress, button.MessageIdle)
}

func TestIgnoresOtherInputs(t *testing.T) {
	h := start(t, config(100*time.Millisecond))
	h.waitFor(t, button.MessageIdle)

	h.button.HandleEdge(2, 2)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, h.button.Flag().Pressed())
	assert.Equal(t, []button.MessageType{button.MessageIdle}, h.types())
}

func TestAttach(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mock_embedded.NewMockEdgeSource(ctrl)
	var handler embedded.EdgeHandler
	source.EXPECT().Init(gomock.Any()).DoAndReturn(func(h embedded.EdgeHandler) error {
		handler = h
		return nil
	})

	r := bus.NewRegistry()
	b, err := button.New(r, button.DefaultConfig, nil)
	require.NoError(t, err)
	r.Seal()
	require.NoError(t, b.Attach(source))
	require.NotNil(t, handler)

	handler(1, 1)
	assert.True(t, b.Flag().Pressed())
	edge, err := b.Edges().Value(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, button.Edge{Levels: 1, Changed: 1}, edge)

	failing := mock_embedded.NewMockEdgeSource(ctrl)
	failing.EXPECT().Init(gomock.Any()).Return(errors.New("no gpio"))
	assert.ErrorContains(t, b.Attach(failing), "no gpio")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, button.DefaultConfig.Validate())
	err := button.Config{}.Validate()
	assert.ErrorIs(t, err, button.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "mask")
	assert.Contains(t, err.Error(), "queue capacity")

	_, err = button.New(bus.NewRegistry(), button.Config{}, nil)
	assert.Error(t, err)
}

func TestFlag(t *testing.T) {
	flag := button.NewFlag()
	assert.True(t, flag.WaitRelease(context.Background(), 0), "not pressed")

	flag.Set(true)
	assert.False(t, flag.WaitRelease(context.Background(), 10*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		flag.Set(false)
	}()
	assert.True(t, flag.WaitRelease(context.Background(), time.Second))

	flag.Set(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, flag.WaitRelease(ctx, time.Second))
}
