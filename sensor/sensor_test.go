package sensor_test

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
	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/embedded"
	"github.com/stateforward/go-hsmbus/embedded/mock_embedded"
	"github.com/stateforward/go-hsmbus/module"
	"github.com/stateforward/go-hsmbus/sensor"
)

type harness struct {
	sensor *sensor.Sensor
	clock  *clock.Mock

	mu       sync.Mutex
	messages []sensor.Message
}

func start(t *testing.T, reader embedded.SensorReader) *harness {
	t.Helper()
	mock := clock.NewMock()
	r := bus.NewRegistry(bus.WithClock(mock))
	config := sensor.DefaultConfig
	config.Interval = time.Second
	s, err := sensor.New(r, config, reader)
	require.NoError(t, err)
	h := &harness{sensor: s, clock: mock}
	r.Listen(s.Data().Channel, "recorder", func(ch *bus.Channel, payload []byte) {
		message, err := s.Data().Decode(payload)
		assert.NoError(t, err)
		h.mu.Lock()
		h.messages = append(h.messages, message)
		h.mu.Unlock()
	})
	r.Seal()

	runtime, err := s.Runtime(module.Config{ProcessingTimeout: 5 * time.Millisecond}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runtime.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) snapshot() []sensor.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sensor.Message(nil), h.messages...)
}

func (h *harness) count(kind sensor.MessageType) int {
	n := 0
	for _, m := range h.snapshot() {
		if m.Type == kind {
			n++
		}
	}
	return n
}

func (h *harness) command(t *testing.T, kind sensor.MessageType) {
	t.Helper()
	require.NoError(t, h.sensor.Commands().Publish(sensor.Command{Type: kind}, time.Second))
}

func TestSamplingCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mock_embedded.NewMockSensorReader(ctrl)
	reader.EXPECT().Read(gomock.Any()).Return(float32(23.1), float32(55.5), nil).Times(2)

	h := start(t, reader)
	require.Eventually(t, func() bool { return h.count(sensor.MessageIdle) == 1 }, time.Second, time.Millisecond)

	h.command(t, sensor.MessageStart)
	require.Eventually(t, func() bool { return h.count(sensor.MessageDataReady) == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, h.count(sensor.MessageDataReady), "one sample per interval")

	data := h.snapshot()[1]
	assert.Equal(t, float32(23.1), data.Temperature)
	assert.Equal(t, float32(55.5), data.Humidity)

	h.clock.Add(time.Second)
	require.Eventually(t, func() bool { return h.count(sensor.MessageDataReady) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint32(1000), h.snapshot()[2].Timestamp)

	h.command(t, sensor.MessageStop)
	require.Eventually(t, func() bool { return h.count(sensor.MessageIdle) == 2 }, time.Second, time.Millisecond)
	h.clock.Add(5 * time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, h.count(sensor.MessageDataReady), "no samples after stop")
}

func TestReadFailureReturnsToIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mock_embedded.NewMockSensorReader(ctrl)
	reader.EXPECT().Read(gomock.Any()).Return(float32(0), float32(0), errors.New("i2c nack"))

	h := start(t, reader)
	require.Eventually(t, func() bool { return h.count(sensor.MessageIdle) == 1 }, time.Second, time.Millisecond)
	h.command(t, sensor.MessageStart)
	require.Eventually(t, func() bool { return h.count(sensor.MessageIdle) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.count(sensor.MessageDataReady))
}

func TestSimulated(t *testing.T) {
	s := sensor.NewSimulated(1)
	for i := 0; i < 100; i++ {
		temperature, humidity, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, temperature, float32(22.5))
		assert.Less(t, temperature, float32(32.45))
		assert.GreaterOrEqual(t, humidity, float32(50))
		assert.Less(t, humidity, float32(79.95))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, sensor.DefaultConfig.Validate())
	assert.ErrorIs(t, sensor.Config{}.Validate(), sensor.ErrInvalidConfig)
	_, err := sensor.New(bus.NewRegistry(), sensor.DefaultConfig, nil)
	assert.ErrorIs(t, err, sensor.ErrInvalidConfig)
}
